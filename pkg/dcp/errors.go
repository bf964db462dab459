// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dcp

import "fmt"

// blockCountError reports a dataset whose block count would overflow the
// 16-bit blockId field.
type blockCountError struct {
	varID  int32
	blocks int
}

func (e *blockCountError) Error() string {
	return fmt.Sprintf("dataset %d needs %d blocks, exceeds 2^16 limit", e.varID, e.blocks)
}

// preambleMismatchError reports a (blockSize, stackDepth) disagreement
// between the current config and a file being opened for recovery.
type preambleMismatchError struct {
	wantBlockSize, gotBlockSize   uint64
	wantStackDepth, gotStackDepth uint32
}

func (e *preambleMismatchError) Error() string {
	return fmt.Sprintf("preamble mismatch: config(blockSize=%d,stackDepth=%d) file(blockSize=%d,stackDepth=%d)",
		e.wantBlockSize, e.wantStackDepth, e.gotBlockSize, e.gotStackDepth)
}

// unknownVarError reports a file referencing a variable id the Engine's
// dataset list does not know about.
type unknownVarError struct {
	varID int32
}

func (e *unknownVarError) Error() string {
	return fmt.Sprintf("unknown variable id %d", e.varID)
}

// blockRangeError reports a blockId that falls outside a dataset's current
// block count.
type blockRangeError struct {
	varID, blockID int
}

func (e *blockRangeError) Error() string {
	return fmt.Sprintf("variable %d: block id %d out of range", e.varID, e.blockID)
}
