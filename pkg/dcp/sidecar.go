// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// This file implements one concrete way for a host to persist State across
// restarts: a small JSON sidecar file next to the checkpoint file itself.
// The core never reads or writes this file on its own.
package dcp

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// SidecarPath returns the conventional sidecar path for a rank's checkpoint
// directory: "<dir>/dcp-rank<rank>.state.json".
func SidecarPath(dir string, rank int) string {
	return filepath.Join(dir, fmt.Sprintf("dcp-rank%d.state.json", rank))
}

// SaveState writes s as JSON to path, overwriting any existing sidecar.
func SaveState(path string, s *State) error {
	raw, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return newError(NonSuccess, "SaveState", err)
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return newError(NonSuccess, "SaveState", err)
	}
	return nil
}

// LoadState reads a sidecar written by SaveState. A missing sidecar is not
// an error: it returns a fresh State sized for stackDepth, matching the
// bookkeeping of a process that has never checkpointed.
func LoadState(path string, stackDepth int) (*State, error) {
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return NewState(stackDepth), nil
	}
	if err != nil {
		return nil, newError(NonSuccess, "LoadState", err)
	}
	s := NewState(stackDepth)
	if err := json.Unmarshal(raw, s); err != nil {
		return nil, newError(NonSuccess, "LoadState", err)
	}
	s.resize(stackDepth)
	return s, nil
}
