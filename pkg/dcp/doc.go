// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package dcp implements a differential checkpointing engine for long-running
// parallel computations.
//
// A process registers a set of named in-memory datasets and periodically asks
// the engine to persist them. The first checkpoint of a file writes a full
// baseline layer; every checkpoint after that hashes each fixed-size block of
// every dataset and writes only the blocks whose hash changed, tagged with
// their dataset id and block index. After a configurable number of layers,
// the engine rolls over to a new file and removes the previous one.
//
// Recovery replays the baseline layer followed by every layer an integrity
// scan judged trustworthy, patching changed blocks into the dataset buffers
// in place. The scan recomputes each layer's rolling hash exactly as the
// encoder produced it and stops at the first mismatch, so a process that
// crashed mid-write can always recover everything up to its last complete
// checkpoint.
//
// # File format
//
//	Preamble  := uint64 blockSize | uint32 stackDepth
//	Layer0    := int32 ckptID | int32 nbVar | (int32 varId | uint64 size | block...){nbVar}
//	LayerK>0  := int32 ckptID | int32 nbVar | (uint32 varId | uint16 blockId | block){0,}
//
// All integers are little-endian. Every block, including the tail block of a
// dataset, occupies exactly BlockSize bytes on disk (zero-padded).
//
// # Collaborator contract
//
// The engine deliberately knows nothing about process topology, dataset
// registration, or MPI-level coordination - those are supplied by the host
// as a rank, a directory, a dataset list and a Config. See cmd/dcpctl for a
// minimal host that plays that role.
package dcp
