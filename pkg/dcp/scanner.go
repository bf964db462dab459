// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// This file implements the integrity scanner (C5): an end-to-end pass over
// a checkpoint file that recomputes each layer's rolling hash exactly as
// the encoder produced it, stopping at the first mismatch, and truncating
// the file to the last confirmed byte so a future append cannot leave a
// half-written tail in place.
package dcp

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/nhr-fau/dcp-engine/pkg/log"
)

// Verify scans path, populates State with how many layers are trustworthy,
// and truncates any unusable tail. Unlike Recover, Verify adopts the file's
// own (blockSize, stackDepth) when they disagree with the current Config -
// it is a diagnostic tool that must still work against a file produced by
// a differently configured run.
func (e *Engine) Verify(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return newError(NonSuccess, "Verify", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var le [8]byte
	if _, err := io.ReadFull(r, le[:8]); err != nil {
		return newError(NonSuccess, "Verify", err)
	}
	blockSize64 := byteOrder.Uint64(le[:8])
	if _, err := io.ReadFull(r, le[:4]); err != nil {
		return newError(NonSuccess, "Verify", err)
	}
	stackDepth := byteOrder.Uint32(le[:4])
	if blockSize64 != e.Config.BlockSize || stackDepth != e.Config.StackDepth {
		log.Warnf("dcp: rank %d: verify adopting file preamble blockSize=%d stackDepth=%d (config had %d/%d)",
			e.Rank, blockSize64, stackDepth, e.Config.BlockSize, e.Config.StackDepth)
	}
	blockSize := int(blockSize64)
	e.State.resize(int(stackDepth))

	fileID, _, ok := parseCheckpointFileName(filepath.Base(path))
	if !ok {
		fileID = e.State.FileID(int(e.Config.StackDepth))
	}
	counter := fileID * int(stackDepth)

	pos := int64(12)
	nbLayerReco := 0
	nbVarReco := 0
	var lastCkptID int32

	for l := 0; l < int(stackDepth); l++ {
		layerStart := pos
		ckptID, nbVar, layerLen, hashHex, verr := e.scanLayer(r, l, blockSize)
		if verr == io.EOF {
			break
		}
		if verr != nil {
			log.Warnf("dcp: rank %d: verify stopped at layer %d: %v", e.Rank, l, verr)
			break
		}
		expect := e.State.LayerHash[l]
		if expect != "" && expect != hashHex {
			log.Warnf("dcp: rank %d: verify layer %d hash mismatch, stopping", e.Rank, l)
			if e.metrics != nil {
				e.metrics.VerifyFailures.Inc()
			}
			break
		}
		pos = layerStart + int64(layerLen)
		e.State.LayerHash[l] = hashHex
		e.State.LayerSize[l] = layerLen
		nbLayerReco++
		nbVarReco = nbVar
		lastCkptID = ckptID
		counter++
	}

	e.State.truncateLayersFrom(nbLayerReco)
	e.State.NbLayerReco = nbLayerReco
	e.State.NbVarReco = nbVarReco
	e.State.CkptID = lastCkptID
	e.State.Counter = counter
	e.State.FileSize = pos

	if err := f.Truncate(pos); err != nil {
		return newError(NonSuccess, "Verify", err)
	}
	if e.metrics != nil {
		e.metrics.RecoverableDepth.Set(float64(nbLayerReco))
	}
	log.Debugf("dcp: rank %d: verify(%s) nbLayerReco=%d", e.Rank, path, nbLayerReco)
	return nil
}

// scanLayer reads one layer's header and body, hashing block payloads into
// a rolling digest, and returns (ckptID, nbVar, total bytes read for this
// layer including the 8-byte header, hex digest at the short width).
//
// For diff layers the body has no self-describing length: the scanner
// reads (header, block) pairs until the running byte count reaches the
// previously recorded LayerSize for that layer (persisted by the host
// across restarts, see the collaborator contract). A layer with no
// recorded size is treated as empty - the first diff ever written always
// has a size recorded by the Write call that produced it.
func (e *Engine) scanLayer(r *bufio.Reader, layer, blockSize int) (int32, int, int, string, error) {
	var le [8]byte
	if _, err := io.ReadFull(r, le[:4]); err != nil {
		return 0, 0, 0, "", err
	}
	ckptID := int32(byteOrder.Uint32(le[:4]))
	if _, err := io.ReadFull(r, le[:4]); err != nil {
		return 0, 0, 0, "", err
	}
	nbVar := int(byteOrder.Uint32(le[:4]))

	digest := e.digest.New()
	n := 8

	if layer == 0 {
		for i := 0; i < nbVar; i++ {
			if _, err := io.ReadFull(r, le[:4]); err != nil {
				return 0, 0, 0, "", fmt.Errorf("layer 0 var %d header: %w", i, err)
			}
			n += 4
			if _, err := io.ReadFull(r, le[:8]); err != nil {
				return 0, 0, 0, "", fmt.Errorf("layer 0 var %d size: %w", i, err)
			}
			n += 8
			dataSize := byteOrder.Uint64(le[:8])
			padded := int(dataSize)
			if rem := padded % blockSize; rem != 0 {
				padded += blockSize - rem
			}
			block := make([]byte, blockSize)
			remaining := padded
			for remaining > 0 {
				if _, err := io.ReadFull(r, block); err != nil {
					return 0, 0, 0, "", fmt.Errorf("layer 0 var %d block: %w", i, err)
				}
				n += blockSize
				remaining -= blockSize
				h := hashBlock(e.digest, block)
				digest.Write(h)
			}
		}
	} else {
		target := 0
		if layer < len(e.State.LayerSize) {
			target = e.State.LayerSize[layer]
		}
		var hdr [6]byte
		for n < target {
			if _, err := io.ReadFull(r, hdr[:]); err != nil {
				return 0, 0, 0, "", fmt.Errorf("diff block header at byte %d: %w", n, err)
			}
			n += 6
			block := make([]byte, blockSize)
			if _, err := io.ReadFull(r, block); err != nil {
				return 0, 0, 0, "", fmt.Errorf("diff block payload at byte %d: %w", n, err)
			}
			n += blockSize
			h := hashBlock(e.digest, block)
			digest.Write(h)
		}
	}

	return ckptID, nbVar, n, hex.EncodeToString(digest.Sum(nil)[:e.digest.ShortLen()]), nil
}
