// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dcp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDigestProviders(t *testing.T) {
	providers := []DigestProvider{MD5Digest(), CRC32Digest(), SHA256Digest(), BLAKE2bDigest()}
	for _, dp := range providers {
		t.Run(dp.Name(), func(t *testing.T) {
			h1 := hashBlock(dp, []byte("hello world"))
			h2 := hashBlock(dp, []byte("hello world"))
			require.Equal(t, h1, h2, "hashing the same bytes twice must be deterministic")
			require.Len(t, h1, dp.WideLen())

			h3 := hashBlock(dp, []byte("hello World"))
			require.NotEqual(t, h1, h3)

			require.LessOrEqual(t, dp.ShortLen(), dp.WideLen())
		})
	}
}

func TestDigestByName(t *testing.T) {
	for _, name := range []string{"", "md5", "crc32", "sha256", "blake2b"} {
		dp, err := digestByName(name)
		require.NoError(t, err)
		require.NotNil(t, dp)
	}

	_, err := digestByName("sha1")
	require.Error(t, err)
}
