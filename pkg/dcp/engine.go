// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dcp

import (
	"github.com/nhr-fau/dcp-engine/pkg/log"
	"github.com/prometheus/client_golang/prometheus"
)

// Engine is the core's one handle: everything the original kept in static
// globals lives here instead, passed explicitly by the host on every call.
// One Engine serves one rank; there is no shared state between Engines, so
// a host running several ranks in one process (e.g. the CLI's --ranks
// fan-out) simply constructs one Engine per rank.
type Engine struct {
	Rank     int
	Dir      string
	Config   Config
	State    *State
	Datasets []*Dataset

	digest  DigestProvider
	index   datasetIndex
	metrics *Metrics
}

// NewEngine builds an Engine for one rank. cfg is validated; datasets are
// kept by reference (the Engine never copies dataset bytes except into its
// own scratch buffers during a checkpoint pass). reg may be nil to disable
// metrics registration.
func NewEngine(rank int, dir string, cfg Config, datasets []*Dataset, reg prometheus.Registerer) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, newError(NonRecoverable, "NewEngine", err)
	}
	dp, err := cfg.digestProvider()
	if err != nil {
		return nil, newError(NonRecoverable, "NewEngine", err)
	}
	for _, d := range datasets {
		if d.numBlocks(int(cfg.BlockSize)) > 1<<16 {
			return nil, newError(NonRecoverable, "NewEngine",
				&blockCountError{varID: d.VarID, blocks: d.numBlocks(int(cfg.BlockSize))})
		}
	}
	e := &Engine{
		Rank:     rank,
		Dir:      dir,
		Config:   cfg,
		State:    NewState(int(cfg.StackDepth)),
		Datasets: datasets,
		digest:   dp,
		index:    newDatasetIndex(datasets),
		metrics:  NewMetrics(reg, rank),
	}
	log.Debugf("dcp: engine ready rank=%d dir=%s digest=%s blockSize=%d stackDepth=%d",
		rank, dir, dp.Name(), cfg.BlockSize, cfg.StackDepth)
	return e, nil
}

// path returns the file holding this Engine's most recent checkpoint (the
// one numbered Counter-1), or file 0 before any checkpoint was written.
func (e *Engine) path() string {
	fileID := 0
	if e.State.Counter > 0 {
		fileID = (e.State.Counter - 1) / int(e.Config.StackDepth)
	}
	return checkpointFilePath(e.Dir, fileID, e.Rank)
}

// pathForFile returns the file path for an arbitrary fileID under this
// Engine's rank, used when cleaning up the previous file on rollover.
func (e *Engine) pathForFile(fileID int) string {
	return checkpointFilePath(e.Dir, fileID, e.Rank)
}
