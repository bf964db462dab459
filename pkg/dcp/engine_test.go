// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dcp

import (
	"bytes"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestEngine(t *testing.T, blockSize uint64, stackDepth uint32, digest string, datasets []*Dataset) *Engine {
	t.Helper()
	cfg := Config{
		BlockSize:  blockSize,
		StackDepth: stackDepth,
		Digest:     digest,
		RootDir:    t.TempDir(),
		NumWorkers: 1,
	}
	e, err := NewEngine(0, cfg.RootDir, cfg, datasets, nil)
	require.NoError(t, err)
	return e
}

func cloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// Property 1: round-trip (baseline only).
func TestRoundTripBaselineOnly(t *testing.T) {
	data := make([]byte, 20)
	for i := range data {
		data[i] = byte(i)
	}
	ds := &Dataset{VarID: 7, Name: "v7", Data: cloneBytes(data)}
	e := newTestEngine(t, 8, 4, "md5", []*Dataset{ds})

	require.NoError(t, e.Write(1))

	recovered := &Dataset{VarID: 7, Name: "v7", Data: make([]byte, 20)}
	e2 := newTestEngine(t, 8, 4, "md5", []*Dataset{recovered})
	e2.Dir = e.Dir
	e2.index = newDatasetIndex([]*Dataset{recovered})
	e2.Datasets = []*Dataset{recovered}

	require.NoError(t, e2.Verify(e2.path()))
	require.NoError(t, e2.RecoverAll())
	require.Equal(t, data, recovered.Data)
}

// Property 2: round-trip across a stack of writes restores the latest state.
func TestRoundTripStack(t *testing.T) {
	ds := &Dataset{VarID: 1, Name: "v1", Data: make([]byte, 32)}
	e := newTestEngine(t, 8, 4, "md5", []*Dataset{ds})

	var last []byte
	for k := 0; k < 4; k++ {
		for i := range ds.Data {
			ds.Data[i] = byte(k*10 + i)
		}
		last = cloneBytes(ds.Data)
		require.NoError(t, e.Write(int32(k)))
	}

	recovered := &Dataset{VarID: 1, Name: "v1", Data: make([]byte, 32)}
	e2 := newTestEngine(t, 8, 4, "md5", []*Dataset{recovered})
	e2.Dir = e.Dir
	e2.index = newDatasetIndex([]*Dataset{recovered})
	e2.Datasets = []*Dataset{recovered}
	e2.State.LayerHash = append([]string(nil), e.State.LayerHash...)
	e2.State.LayerSize = append([]int(nil), e.State.LayerSize...)
	e2.State.Counter = e.State.Counter

	require.NoError(t, e2.Verify(e2.path()))
	require.Equal(t, 4, e2.State.NbLayerReco)
	require.NoError(t, e2.RecoverAll())
	require.Equal(t, last, recovered.Data)
}

// Property 3: diff efficacy - flipping m blocks appends exactly 8+m*(B+6) bytes.
func TestDiffEfficacy(t *testing.T) {
	data := make([]byte, 20)
	for i := range data {
		data[i] = byte(i)
	}
	ds := &Dataset{VarID: 7, Name: "v7", Data: cloneBytes(data)}
	e := newTestEngine(t, 8, 4, "md5", []*Dataset{ds})
	require.NoError(t, e.Write(1))

	sizeBefore := e.State.FileSize
	ds.Data[10] = ^ds.Data[10] // flip a byte in block 1 (bytes [8,16))
	require.NoError(t, e.Write(2))
	grown := e.State.FileSize - sizeBefore
	require.EqualValues(t, 8+1*(8+6), grown)
	require.Equal(t, 8+1*(8+6), e.State.LayerSize[1])
}

// Property 3b: growing a dataset always commits the new trailing blocks.
func TestDiffEfficacyOnGrowth(t *testing.T) {
	ds := &Dataset{VarID: 7, Name: "v7", Data: make([]byte, 20)}
	e := newTestEngine(t, 8, 4, "md5", []*Dataset{ds})
	require.NoError(t, e.Write(1))

	sizeBefore := e.State.FileSize
	grown := make([]byte, 28)
	copy(grown, ds.Data)
	grown[20] = 1
	grown[27] = 1
	ds.Data = grown
	require.NoError(t, e.Write(2))
	delta := e.State.FileSize - sizeBefore
	require.EqualValues(t, 8+2*(8+6), delta)
}

// Property 4: verify is idempotent.
func TestVerifyIdempotent(t *testing.T) {
	ds := &Dataset{VarID: 1, Name: "v1", Data: make([]byte, 16)}
	e := newTestEngine(t, 8, 4, "md5", []*Dataset{ds})
	require.NoError(t, e.Write(0))
	ds.Data[0]++
	require.NoError(t, e.Write(1))

	require.NoError(t, e.Verify(e.path()))
	first := e.State.NbLayerReco
	firstSize := e.State.FileSize

	require.NoError(t, e.Verify(e.path()))
	require.Equal(t, first, e.State.NbLayerReco)
	require.Equal(t, firstSize, e.State.FileSize)
}

// Property 5: tail truncation is recovered from cleanly.
func TestTailTruncation(t *testing.T) {
	ds := &Dataset{VarID: 1, Name: "v1", Data: make([]byte, 16)}
	e := newTestEngine(t, 8, 4, "md5", []*Dataset{ds})
	require.NoError(t, e.Write(0))
	goodSize := e.State.FileSize

	ds.Data[0]++
	require.NoError(t, e.Write(1))
	fullSize := e.State.FileSize
	require.Greater(t, fullSize, goodSize)

	f, err := os.OpenFile(e.path(), os.O_WRONLY, 0o644)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(goodSize+3))
	require.NoError(t, f.Close())

	require.NoError(t, e.Verify(e.path()))
	require.Equal(t, 1, e.State.NbLayerReco)
	require.EqualValues(t, goodSize, e.State.FileSize)

	require.NoError(t, e.RecoverAll())
	require.Equal(t, byte(0), ds.Data[0], "truncated layer 1 must not be replayed; baseline value must come back")
}

// Property 6: a preamble mismatch hard-fails recovery without touching memory.
func TestPreambleMismatchRejected(t *testing.T) {
	ds := &Dataset{VarID: 1, Name: "v1", Data: []byte("abcdefgh")}
	e := newTestEngine(t, 8, 4, "md5", []*Dataset{ds})
	require.NoError(t, e.Write(0))

	other := &Dataset{VarID: 1, Name: "v1", Data: []byte("00000000")}
	e2 := newTestEngine(t, 16, 4, "md5", []*Dataset{other})
	e2.Dir = e.Dir
	e2.index = newDatasetIndex([]*Dataset{other})
	e2.Datasets = []*Dataset{other}
	e2.State.NbLayerReco = 1

	err := e2.RecoverAll()
	require.Error(t, err)
	require.Equal(t, NonRecoverable, CodeOf(err))
	require.Equal(t, []byte("00000000"), other.Data, "memory must be untouched on a preamble mismatch")
}

// Property 7: an unknown varId in the file fails recovery with NonSuccess.
// Variable 1 is already named by the baseline layer, so recovery stops there
// before reaching the diff layer.
func TestUnknownVarIDRejected(t *testing.T) {
	a := &Dataset{VarID: 1, Name: "v1", Data: make([]byte, 8)}
	e := newTestEngine(t, 8, 4, "md5", []*Dataset{a})
	require.NoError(t, e.Write(0))
	a.Data[0] = 9
	require.NoError(t, e.Write(1))

	onlyA := &Dataset{VarID: 2, Name: "v2", Data: make([]byte, 8)}
	e2 := newTestEngine(t, 8, 4, "md5", []*Dataset{onlyA})
	e2.Dir = e.Dir
	e2.index = newDatasetIndex([]*Dataset{onlyA})
	e2.Datasets = []*Dataset{onlyA}
	e2.State.NbLayerReco = 2
	e2.State.LayerSize = append([]int(nil), e.State.LayerSize...)

	err := e2.RecoverAll()
	require.Error(t, err)
	require.Equal(t, NonSuccess, CodeOf(err))
}

// Property 8: recoverOne touches only the requested dataset.
func TestRecoverOneTouchesOnlyItsDataset(t *testing.T) {
	a := &Dataset{VarID: 1, Name: "a", Data: []byte("AAAAAAAA")}
	b := &Dataset{VarID: 2, Name: "b", Data: []byte("BBBBBBBB")}
	e := newTestEngine(t, 8, 4, "md5", []*Dataset{a, b})
	require.NoError(t, e.Write(0))
	a.Data = []byte("aaaaaaaa")
	b.Data = []byte("bbbbbbbb")
	require.NoError(t, e.Write(1))

	// Reuse e's own State: it already knows each layer's size and hash
	// from having written them in this process, matching the contract that
	// a cold process restores this bookkeeping from a persisted sidecar
	// (see SidecarPath/SaveState/LoadState) before calling Verify.
	ra := &Dataset{VarID: 1, Name: "a", Data: make([]byte, 8)}
	rb := &Dataset{VarID: 2, Name: "b", Data: bytes.Repeat([]byte("Z"), 8)}
	e2 := newTestEngine(t, 8, 4, "md5", []*Dataset{ra, rb})
	e2.Dir = e.Dir
	e2.index = newDatasetIndex([]*Dataset{ra, rb})
	e2.Datasets = []*Dataset{ra, rb}
	e2.State = e.State

	require.NoError(t, e2.Verify(e2.path()))
	require.NoError(t, e2.RecoverOne(1))
	require.Equal(t, []byte("aaaaaaaa"), ra.Data)
	require.Equal(t, bytes.Repeat([]byte("Z"), 8), rb.Data, "dataset 2 must be untouched by RecoverOne(1)")
}

// Scenario S4: after StackDepth writes, a new file id begins and the
// previous file is removed.
func TestFileRolloverRemovesPreviousFile(t *testing.T) {
	ds := &Dataset{VarID: 1, Name: "v1", Data: make([]byte, 8)}
	e := newTestEngine(t, 8, 4, "md5", []*Dataset{ds})
	for k := 0; k < 4; k++ {
		ds.Data[0] = byte(k)
		require.NoError(t, e.Write(int32(k)))
	}
	_, err := os.Stat(e.pathForFile(0))
	require.NoError(t, err, "file 0 must exist after its 4 layers were written")

	ds.Data[0] = 99
	require.NoError(t, e.Write(4))

	_, err = os.Stat(e.pathForFile(0))
	require.True(t, os.IsNotExist(err), "file 0 must be removed once file 1's baseline is written")
	_, err = os.Stat(e.pathForFile(1))
	require.NoError(t, err)
}

// Scenario S6: Check only succeeds when size and integrity both match.
func TestCheckRequiresSizeAndIntegrity(t *testing.T) {
	ds := &Dataset{VarID: 1, Name: "v1", Data: make([]byte, 1024)}
	e := newTestEngine(t, 1024, 8, "md5", []*Dataset{ds})
	require.NoError(t, e.Write(0))

	fi, err := os.Stat(e.path())
	require.NoError(t, err)

	require.True(t, e.Check(e.path(), fi.Size(), "verify"))
	require.False(t, e.Check(e.path(), fi.Size()+1, "verify"))
	require.True(t, e.Check(e.path(), fi.Size(), ""))
}

// Check reports success purely on Verify's error, not on how many layers it
// recovered: a file whose preamble is intact but whose layer-0 header is
// truncated makes Verify stop immediately with NbLayerReco==0 and still
// return nil - that is a successful (if unhelpful) scan, not a failure.
func TestCheckSucceedsWithZeroRecoveredLayers(t *testing.T) {
	ds := &Dataset{VarID: 1, Name: "v1", Data: make([]byte, 1024)}
	e := newTestEngine(t, 1024, 8, "md5", []*Dataset{ds})
	require.NoError(t, e.Write(0))

	f, err := os.OpenFile(e.path(), os.O_WRONLY, 0o644)
	require.NoError(t, err)
	require.NoError(t, f.Truncate(16)) // preamble (12) + partial layer-0 header
	require.NoError(t, f.Close())

	fi, err := os.Stat(e.path())
	require.NoError(t, err)

	require.True(t, e.Check(e.path(), fi.Size(), "verify"))
	require.Equal(t, 0, e.State.NbLayerReco)
}
