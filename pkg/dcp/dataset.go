// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dcp

// Dataset is one named, fixed-size in-memory buffer the host wants the
// engine to track across checkpoints. VarID must be stable and unique for
// the lifetime of the Engine: it is what ties a block on disk back to the
// buffer it patches into.
type Dataset struct {
	VarID int32
	Name  string
	Data  []byte

	// hashDataSize is the size, in bytes, that hashArray describes.
	hashDataSize int
	// hashArray holds the concatenated wide hash of every block as of the
	// last successful write, length ceil(hashDataSize/B)*W.
	hashArray []byte
	// hashArrayTmp holds the in-progress hash array during a write; it
	// replaces hashArray wholesale once the layer is fully written.
	hashArrayTmp []byte
}

// numBlocks returns how many fixed-size blocks Data splits into under the
// given block size, counting a final short block as one whole block.
func (d *Dataset) numBlocks(blockSize int) int {
	if len(d.Data) == 0 {
		return 0
	}
	n := len(d.Data) / blockSize
	if len(d.Data)%blockSize != 0 {
		n++
	}
	return n
}

// blockRange returns the byte range [start, end) of block i within Data.
// end may be less than start+blockSize for the final, short block.
func (d *Dataset) blockRange(blockSize, i int) (start, end int) {
	start = i * blockSize
	end = start + blockSize
	if end > len(d.Data) {
		end = len(d.Data)
	}
	return start, end
}

// datasetIndex is a lookup table from VarID to Dataset, built once by
// NewEngine for the decoder's random access by id (the encoder and the
// scanner just walk the data in order).
type datasetIndex map[int32]*Dataset

func newDatasetIndex(datasets []*Dataset) datasetIndex {
	idx := make(datasetIndex, len(datasets))
	for _, d := range datasets {
		idx[d.VarID] = d
	}
	return idx
}
