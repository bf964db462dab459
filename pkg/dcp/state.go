// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dcp

// State is the mutable long-lived per-process checkpoint bookkeeping (C6).
// It must be persisted by the host across restarts; the core only ever
// reads and mutates it in memory. cmd/dcpctl shows one way to round-trip it
// through a JSON sidecar file.
type State struct {
	// Counter is the total number of checkpoints emitted so far.
	Counter int
	// LayerSize holds the byte length of each layer currently in the file.
	LayerSize []int
	// LayerHash holds the hex-encoded rolling digest of each layer.
	LayerHash []string
	// NbLayerReco is how many leading layers the last Verify judged intact.
	NbLayerReco int
	// NbVarReco is the variable count declared by the last verified layer.
	NbVarReco int
	// CkptID is the logical id supplied by the caller at the last verified
	// or written layer.
	CkptID int32
	// FileSize is the cumulative size, in bytes, of the current file.
	FileSize int64
}

// NewState returns a State sized for a stack of depth s, with all counters
// at zero - the state of a process that has never checkpointed.
func NewState(s int) *State {
	return &State{
		LayerSize: make([]int, s),
		LayerHash: make([]string, s),
	}
}

// FileID returns which file the next checkpoint belongs to.
func (s *State) FileID(stackDepth int) int {
	return s.Counter / stackDepth
}

// Layer returns the layer index within the current file the next checkpoint
// will occupy.
func (s *State) Layer(stackDepth int) int {
	return s.Counter % stackDepth
}

// resize grows LayerSize/LayerHash to at least n entries, preserving
// existing contents - used when Verify discovers a stack depth larger than
// the one this State was constructed with (adoption-on-mismatch).
func (s *State) resize(n int) {
	for len(s.LayerSize) < n {
		s.LayerSize = append(s.LayerSize, 0)
	}
	for len(s.LayerHash) < n {
		s.LayerHash = append(s.LayerHash, "")
	}
}

// truncateLayersFrom zeroes bookkeeping for layers >= from, used after a
// tail-truncation so stale sizes/hashes from a previous run don't linger.
func (s *State) truncateLayersFrom(from int) {
	for i := from; i < len(s.LayerSize); i++ {
		s.LayerSize[i] = 0
		s.LayerHash[i] = ""
	}
}
