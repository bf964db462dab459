// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// This file implements the layer decoder (C4): the recover path that
// replays a baseline layer plus every layer the integrity scanner judged
// trustworthy, patching changed blocks into the Engine's datasets in place.
package dcp

import (
	"bufio"
	"fmt"
	"io"
	"os"

	"github.com/nhr-fau/dcp-engine/pkg/log"
)

// RecoverAll replays the current file's baseline plus State.NbLayerReco-1
// diff layers into every registered dataset. Callers should run Verify
// first so NbLayerReco reflects the file's actual integrity; RecoverAll
// itself trusts that value without re-scanning.
func (e *Engine) RecoverAll() error {
	return e.recover(nil)
}

// RecoverOne replays the same layers as RecoverAll but patches only the
// dataset identified by varID; every other dataset's bytes are left
// untouched.
func (e *Engine) RecoverOne(varID int32) error {
	return e.recover(&varID)
}

func (e *Engine) recover(only *int32) error {
	path := e.path()
	f, err := os.Open(path)
	if err != nil {
		return newError(NonSuccess, "Recover", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)

	var le [8]byte
	if _, err := io.ReadFull(r, le[:8]); err != nil {
		return newError(NonSuccess, "Recover", err)
	}
	fileBlockSize := byteOrder.Uint64(le[:8])
	if _, err := io.ReadFull(r, le[:4]); err != nil {
		return newError(NonSuccess, "Recover", err)
	}
	fileStackDepth := byteOrder.Uint32(le[:4])
	if fileBlockSize != e.Config.BlockSize || fileStackDepth != e.Config.StackDepth {
		return newError(NonRecoverable, "Recover", &preambleMismatchError{
			wantBlockSize: e.Config.BlockSize, gotBlockSize: fileBlockSize,
			wantStackDepth: e.Config.StackDepth, gotStackDepth: fileStackDepth,
		})
	}
	blockSize := int(e.Config.BlockSize)

	if err := e.recoverBaseline(r, blockSize, only); err != nil {
		return newError(NonSuccess, "Recover", err)
	}

	nbLayerReco := e.State.NbLayerReco
	if nbLayerReco == 0 {
		nbLayerReco = 1
	}
	for l := 1; l < nbLayerReco; l++ {
		if err := e.recoverDiffLayer(r, l, blockSize, only); err != nil {
			return newError(NonSuccess, "Recover", err)
		}
	}

	if only == nil {
		for _, d := range e.Datasets {
			e.rebuildHashArray(d, blockSize)
		}
	} else if d := e.index[*only]; d != nil {
		e.rebuildHashArray(d, blockSize)
	}

	if e.metrics != nil {
		e.metrics.LayersRecovered.Add(float64(nbLayerReco))
	}
	log.Debugf("dcp: rank %d: recovered %d layers from %s", e.Rank, nbLayerReco, path)
	return nil
}

func (e *Engine) recoverBaseline(r *bufio.Reader, blockSize int, only *int32) error {
	var le [8]byte
	if _, err := io.ReadFull(r, le[:4]); err != nil {
		return err
	}
	_ = int32(byteOrder.Uint32(le[:4])) // ckptID, not needed to replay
	if _, err := io.ReadFull(r, le[:4]); err != nil {
		return err
	}
	nbVar := int(byteOrder.Uint32(le[:4]))

	for i := 0; i < nbVar; i++ {
		if _, err := io.ReadFull(r, le[:4]); err != nil {
			return err
		}
		varID := int32(byteOrder.Uint32(le[:4]))
		if _, err := io.ReadFull(r, le[:8]); err != nil {
			return err
		}
		dataSize := byteOrder.Uint64(le[:8])
		padded := int(dataSize)
		if rem := padded % blockSize; rem != 0 {
			padded += blockSize - rem
		}

		d := e.index[varID]
		if d == nil {
			return &unknownVarError{varID: varID}
		}
		if only != nil && *only != varID {
			if _, err := io.CopyN(io.Discard, r, int64(padded)); err != nil {
				return err
			}
			continue
		}
		if len(d.Data) < int(dataSize) {
			return fmt.Errorf("dataset %d: buffer too small for %d bytes", varID, dataSize)
		}
		if _, err := io.ReadFull(r, d.Data[:dataSize]); err != nil {
			return err
		}
		if pad := padded - int(dataSize); pad > 0 {
			if _, err := io.CopyN(io.Discard, r, int64(pad)); err != nil {
				return err
			}
		}
	}
	return nil
}

func (e *Engine) recoverDiffLayer(r *bufio.Reader, layer, blockSize int, only *int32) error {
	var le [8]byte
	if _, err := io.ReadFull(r, le[:4]); err != nil {
		return err
	}
	if _, err := io.ReadFull(r, le[:4]); err != nil {
		return err
	}

	pos := 8
	target := e.State.LayerSize[layer]
	var hdr [6]byte
	for pos < target {
		if _, err := io.ReadFull(r, hdr[:]); err != nil {
			return err
		}
		varID := int32(byteOrder.Uint32(hdr[:4]))
		blockID := int(byteOrder.Uint16(hdr[4:6]))
		pos += 6 + blockSize

		d := e.index[varID]
		if d == nil {
			return &unknownVarError{varID: varID}
		}
		if only != nil && *only != varID {
			if _, err := io.CopyN(io.Discard, r, int64(blockSize)); err != nil {
				return err
			}
			continue
		}
		offset := blockID * blockSize
		if offset > len(d.Data) {
			return &blockRangeError{varID: int(varID), blockID: blockID}
		}
		chunk := blockSize
		if offset+chunk > len(d.Data) {
			chunk = len(d.Data) - offset
		}
		if _, err := io.ReadFull(r, d.Data[offset:offset+chunk]); err != nil {
			return err
		}
		if pad := blockSize - chunk; pad > 0 {
			if _, err := io.CopyN(io.Discard, r, int64(pad)); err != nil {
				return err
			}
		}
	}
	return nil
}

// rebuildHashArray recomputes a dataset's hashArray from its current
// in-memory bytes, so the next Write has a valid baseline to diff against.
func (e *Engine) rebuildHashArray(d *Dataset, blockSize int) {
	nBlocks := d.numBlocks(blockSize)
	out := make([]byte, nBlocks*e.digest.WideLen())
	scratch := make([]byte, blockSize)
	for b := 0; b < nBlocks; b++ {
		start, end := d.blockRange(blockSize, b)
		block := scratch[:blockSize]
		copy(block, d.Data[start:end])
		for i := end - start; i < blockSize; i++ {
			block[i] = 0
		}
		h := hashBlock(e.digest, block)
		copy(out[b*e.digest.WideLen():], h)
	}
	d.hashArray = out
	d.hashDataSize = len(d.Data)
}
