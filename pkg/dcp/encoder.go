// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// This file implements the layer encoder (C3): the write path that appends
// one baseline or diff layer to a rank's checkpoint file.
//
// File format:
//
//	Preamble (baseline only): uint64 blockSize, uint32 stackDepth
//	Layer:    int32 ckptID, int32 nbVar
//	Baseline var: int32 varId, uint64 dataSize, byte[ceil(dataSize/B)*B]
//	Diff block:   uint32 varId, uint16 blockId, byte[B]
package dcp

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/nhr-fau/dcp-engine/pkg/log"
)

var byteOrder = binary.LittleEndian

// Write appends the next checkpoint layer to this Engine's current file,
// creating the file (and writing the preamble plus a full baseline) when
// the layer is 0, or appending a diff layer otherwise. ckptID is recorded
// verbatim at the layer head for the caller's own bookkeeping.
func (e *Engine) Write(ckptID int32) error {
	stackDepth := int(e.Config.StackDepth)
	blockSize := int(e.Config.BlockSize)
	layer := e.State.Layer(stackDepth)
	fileID := e.State.FileID(stackDepth)
	path := e.pathForFile(fileID)

	if layer == 0 {
		if err := e.rolloverCleanup(fileID); err != nil {
			log.Warnf("dcp: rank %d: cleanup of previous file failed: %v", e.Rank, err)
		}
		for _, d := range e.Datasets {
			d.hashArray = nil
			d.hashDataSize = 0
		}
	}

	flags := os.O_WRONLY | os.O_CREATE
	if layer == 0 {
		flags |= os.O_TRUNC
	} else {
		flags |= os.O_APPEND
	}
	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return newError(NonSuccess, "Write", err)
	}
	defer f.Close()

	startSize := e.State.FileSize
	if layer == 0 {
		startSize = 0
	}
	bw := bufio.NewWriter(f)
	preambleLen, layerLen, werr := e.writeLayer(bw, ckptID, layer, blockSize)
	if werr == nil {
		werr = bw.Flush()
	}
	if werr == nil {
		werr = f.Sync()
	}
	if werr != nil {
		log.Errorf("dcp: rank %d: write layer %d failed: %v", e.Rank, layer, werr)
		if terr := f.Truncate(startSize); terr != nil {
			log.Errorf("dcp: rank %d: rollback truncate to %d failed: %v", e.Rank, startSize, terr)
		}
		return newError(NonSuccess, "Write", werr)
	}

	written := preambleLen + layerLen
	e.State.FileSize = startSize + int64(written)
	e.State.LayerSize[layer] = layerLen
	e.State.CkptID = ckptID
	e.State.Counter++
	if e.metrics != nil {
		e.metrics.BytesWritten.Add(float64(written))
		e.metrics.LayersWritten.Inc()
	}
	log.Debugf("dcp: rank %d: wrote layer %d (%d bytes) to %s", e.Rank, layer, written, path)
	return nil
}

// rolloverCleanup removes the previous file once a new baseline begins.
// A missing previous file is not an error (the very first checkpoint has
// none); any other failure is logged but does not abort the write.
func (e *Engine) rolloverCleanup(fileID int) error {
	if fileID == 0 {
		return nil
	}
	prev := e.pathForFile(fileID - 1)
	err := os.Remove(prev)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// writeLayer writes one layer's bytes to w and returns (preamble bytes
// written - 0 unless layer==0, layer bytes written starting at its own
// ckptID/nbVar header). The sum of the two is how much the file grew.
func (e *Engine) writeLayer(w *bufio.Writer, ckptID int32, layer, blockSize int) (int, int, error) {
	preamble := 0
	n := 0
	write := func(b []byte) error {
		nn, err := w.Write(b)
		n += nn
		return err
	}
	var le [8]byte

	if layer == 0 {
		byteOrder.PutUint64(le[:8], e.Config.BlockSize)
		if _, err := w.Write(le[:8]); err != nil {
			return preamble, n, err
		}
		preamble += 8
		byteOrder.PutUint32(le[:4], e.Config.StackDepth)
		if _, err := w.Write(le[:4]); err != nil {
			return preamble, n, err
		}
		preamble += 4
	}

	byteOrder.PutUint32(le[:4], uint32(ckptID))
	if err := write(le[:4]); err != nil {
		return preamble, n, err
	}
	byteOrder.PutUint32(le[:4], uint32(len(e.Datasets)))
	if err := write(le[:4]); err != nil {
		return preamble, n, err
	}

	layerDigest := e.digest.New()
	scratch := make([]byte, blockSize)

	for _, d := range e.Datasets {
		nBlocks := d.numBlocks(blockSize)
		if nBlocks > 1<<16 {
			return preamble, n, fmt.Errorf("%w", &blockCountError{varID: d.VarID, blocks: nBlocks})
		}

		if layer == 0 {
			byteOrder.PutUint32(le[:4], uint32(d.VarID))
			if err := write(le[:4]); err != nil {
				return preamble, n, err
			}
			byteOrder.PutUint64(le[:8], uint64(len(d.Data)))
			if err := write(le[:8]); err != nil {
				return preamble, n, err
			}
		}

		newHashArray := make([]byte, nBlocks*e.digest.WideLen())
		for b := 0; b < nBlocks; b++ {
			start, end := d.blockRange(blockSize, b)
			block := scratch[:blockSize]
			copy(block, d.Data[start:end])
			for i := end - start; i < blockSize; i++ {
				block[i] = 0
			}

			newHash := hashBlock(e.digest, block)
			copy(newHashArray[b*e.digest.WideLen():], newHash)

			commit := b*blockSize >= d.hashDataSize || !blockHashEqual(d.hashArray, b, e.digest.WideLen(), newHash)
			if !commit {
				continue
			}

			if layer > 0 {
				var hdr [6]byte
				byteOrder.PutUint32(hdr[:4], uint32(d.VarID))
				byteOrder.PutUint16(hdr[4:6], uint16(b))
				if err := write(hdr[:]); err != nil {
					return preamble, n, err
				}
			}
			if err := write(block); err != nil {
				return preamble, n, err
			}
			layerDigest.Write(newHash)
		}

		d.hashArrayTmp = newHashArray
	}

	for _, d := range e.Datasets {
		d.hashArray = d.hashArrayTmp
		d.hashArrayTmp = nil
		d.hashDataSize = len(d.Data)
	}

	e.State.LayerHash[layer] = fmt.Sprintf("%x", layerDigest.Sum(nil)[:e.digest.ShortLen()])
	return preamble, n, nil
}

// blockHashEqual reports whether hashArray's entry at block index b equals
// newHash. A nil or short hashArray (no prior hash recorded) is never equal,
// forcing the block to commit.
func blockHashEqual(hashArray []byte, b, wideLen int, newHash []byte) bool {
	off := b * wideLen
	if off+wideLen > len(hashArray) {
		return false
	}
	old := hashArray[off : off+wideLen]
	if len(old) != len(newHash) {
		return false
	}
	for i := range old {
		if old[i] != newHash[i] {
			return false
		}
	}
	return true
}
