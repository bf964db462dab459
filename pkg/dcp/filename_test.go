// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dcp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckpointFileNameRoundTrip(t *testing.T) {
	name := checkpointFileName(3, 7)
	require.Equal(t, "dcp-id3-rank7.fti", name)

	fileID, rank, ok := parseCheckpointFileName(name)
	require.True(t, ok)
	require.Equal(t, 3, fileID)
	require.Equal(t, 7, rank)
}

func TestParseCheckpointFileNameRejectsGarbage(t *testing.T) {
	for _, bad := range []string{"foo.fti", "dcp-id3-rank7.txt", "dcp-idx-ranky.fti", ""} {
		_, _, ok := parseCheckpointFileName(bad)
		require.False(t, ok, bad)
	}
}
