// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// This file implements the pluggable block-digest capability (C1).
//
// A DigestProvider wraps a hash.Hash constructor together with the wide and
// short digest widths the rest of the engine needs: the wide width is what
// hashArray entries and in-memory comparisons use, the short width is what
// gets hex-encoded into LayerHash and compared during verification.
package dcp

import (
	"crypto/md5"
	"fmt"
	"hash"
	"hash/crc32"

	sha256simd "github.com/minio/sha256-simd"
	"golang.org/x/crypto/blake2b"
)

// DigestProvider is the block-hash capability used throughout the engine.
// Implementations must be safe to call New() on repeatedly and concurrently;
// the hash.Hash value New() returns is never shared across goroutines.
type DigestProvider interface {
	// Name identifies the algorithm, e.g. for logging and config round-trips.
	Name() string
	// New returns a fresh hash.Hash instance.
	New() hash.Hash
	// WideLen is the number of bytes a full digest occupies in hashArray.
	WideLen() int
	// ShortLen is the number of leading bytes used for the on-disk/verify
	// comparison. ShortLen <= WideLen.
	ShortLen() int
}

type digestProvider struct {
	name     string
	newHash  func() hash.Hash
	wideLen  int
	shortLen int
}

func (d digestProvider) Name() string    { return d.name }
func (d digestProvider) New() hash.Hash  { return d.newHash() }
func (d digestProvider) WideLen() int    { return d.wideLen }
func (d digestProvider) ShortLen() int   { return d.shortLen }

// MD5Digest is the default digest: W=16.
func MD5Digest() DigestProvider {
	return digestProvider{name: "md5", newHash: md5.New, wideLen: md5.Size, shortLen: md5.Size}
}

// CRC32Digest is the cheapest variant: W=4, suitable for frequent checkpoints
// where collision resistance matters less than throughput.
func CRC32Digest() DigestProvider {
	return digestProvider{
		name:     "crc32",
		newHash:  func() hash.Hash { return crc32.NewIEEE() },
		wideLen:  crc32.Size,
		shortLen: crc32.Size,
	}
}

// SHA256Digest uses a SIMD-accelerated implementation (drop-in hash.Hash) for
// higher integrity-verification confidence at a moderate CPU cost.
func SHA256Digest() DigestProvider {
	return digestProvider{name: "sha256", newHash: sha256simd.New, wideLen: sha256simd.Size, shortLen: 16}
}

// BLAKE2bDigest uses blake2b-256, a fast keyed/unkeyed hash with a 32-byte
// digest, as a further alternative to the two stdlib-backed providers.
func BLAKE2bDigest() DigestProvider {
	return digestProvider{
		name: "blake2b",
		newHash: func() hash.Hash {
			h, err := blake2b.New256(nil)
			if err != nil {
				// nil key is always accepted by blake2b.New256; this would
				// only fail on programmer error (a non-nil, wrong-length key).
				panic(fmt.Errorf("dcp: blake2b.New256: %w", err))
			}
			return h
		},
		wideLen:  32,
		shortLen: 16,
	}
}

// digestByName resolves a config digest name to a provider. It is the single
// place new algorithms need to be registered.
func digestByName(name string) (DigestProvider, error) {
	switch name {
	case "", "md5":
		return MD5Digest(), nil
	case "crc32":
		return CRC32Digest(), nil
	case "sha256":
		return SHA256Digest(), nil
	case "blake2b":
		return BLAKE2bDigest(), nil
	default:
		return nil, fmt.Errorf("dcp: unknown digest algorithm %q", name)
	}
}

// hashBlock computes the wide digest of a single block-sized buffer.
func hashBlock(dp DigestProvider, buf []byte) []byte {
	h := dp.New()
	h.Write(buf)
	return h.Sum(nil)
}
