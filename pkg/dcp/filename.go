// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dcp

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
)

const filePrefix = "dcp-id"

// checkpointFileName builds the on-disk name for a given file id and rank,
// following the "dcp-id<FileId>-rank<Rank>.fti" convention.
func checkpointFileName(fileID, rank int) string {
	return fmt.Sprintf("%s%d-rank%d.fti", filePrefix, fileID, rank)
}

// checkpointFilePath joins dir with the generated file name.
func checkpointFilePath(dir string, fileID, rank int) string {
	return filepath.Join(dir, checkpointFileName(fileID, rank))
}

// parseCheckpointFileName extracts fileID and rank from a checkpoint file
// name, returning ok=false if name does not match the convention.
func parseCheckpointFileName(name string) (fileID, rank int, ok bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, ".fti") {
		return 0, 0, false
	}
	body := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), ".fti")
	parts := strings.SplitN(body, "-rank", 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	id, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, false
	}
	rk, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, false
	}
	return id, rk, true
}
