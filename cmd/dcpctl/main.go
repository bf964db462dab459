// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command dcpctl is a minimal host for the dCP engine: it plays the role of
// the external collaborator described by the engine's contract - rank and
// topology discovery, dataset registration, and driving the write/recover/
// verify operations - well enough to exercise the engine end-to-end from
// the command line.
package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/nhr-fau/dcp-engine/pkg/dcp"
	"github.com/nhr-fau/dcp-engine/pkg/log"
	"github.com/google/gops/agent"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"
)

func main() {
	var (
		flagConfig   string
		flagDir      string
		flagRanks    int
		flagVars     int
		flagVarSize  int
		flagCkptID   int
		flagGops     bool
		flagLogLevel string
	)
	flag.StringVar(&flagConfig, "config", "", "path to a JSON config file (optional, defaults are used otherwise)")
	flag.StringVar(&flagDir, "dir", "./dcp-data", "root directory for checkpoint files")
	flag.IntVar(&flagRanks, "ranks", 1, "number of simulated ranks to run the chosen operation for, concurrently")
	flag.IntVar(&flagVars, "vars", 3, "number of synthetic datasets to register per rank")
	flag.IntVar(&flagVarSize, "var-size", 4096, "byte size of each synthetic dataset")
	flag.IntVar(&flagCkptID, "ckpt-id", 0, "logical checkpoint id recorded at the layer head")
	flag.BoolVar(&flagGops, "gops", false, "listen via github.com/google/gops/agent (for debugging)")
	flag.StringVar(&flagLogLevel, "loglevel", "info", "debug, info, notice, warn, err or crit")
	flag.Parse()

	log.SetLogLevel(flagLogLevel)

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Fatalf("dcpctl: parsing './.env' failed: %s", err.Error())
	}

	if flagGops {
		if err := agent.Listen(agent.Options{}); err != nil {
			log.Fatalf("dcpctl: gops/agent.Listen failed: %s", err.Error())
		}
	}

	op := flag.Arg(0)
	if op == "" {
		log.Fatal("dcpctl: missing operation: write|recover-all|recover-one|verify|check")
	}

	cfg := dcp.DefaultConfig()
	cfg.RootDir = flagDir
	if flagConfig != "" {
		loaded, err := dcp.LoadConfig(flagConfig)
		if err != nil {
			log.Fatalf("dcpctl: loading config: %s", err.Error())
		}
		cfg = loaded
	}
	if err := os.MkdirAll(cfg.RootDir, 0o755); err != nil {
		log.Fatalf("dcpctl: creating root dir: %s", err.Error())
	}

	reg := prometheus.NewRegistry()
	g, ctx := errgroup.WithContext(context.Background())
	g.SetLimit(cfg.NumWorkers)
	for rank := 0; rank < flagRanks; rank++ {
		rank := rank
		g.Go(func() error {
			return runRank(ctx, rank, cfg, reg, op, flagVars, flagVarSize, int32(flagCkptID))
		})
	}
	if err := g.Wait(); err != nil {
		log.Fatalf("dcpctl: %s", err.Error())
	}

	dump, err := dumpMetrics(reg)
	if err != nil {
		log.Warnf("dcpctl: could not format metrics: %s", err.Error())
	} else {
		fmt.Fprint(os.Stdout, dump)
	}
}

// runRank synthesizes this rank's datasets (simulated registration), loads
// its persisted State from the sidecar, builds an Engine, and drives the
// requested operation.
func runRank(ctx context.Context, rank int, cfg dcp.Config, reg prometheus.Registerer, op string, nbVars, varSize int, ckptID int32) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	datasets := syntheticDatasets(rank, nbVars, varSize)
	engine, err := dcp.NewEngine(rank, cfg.RootDir, cfg, datasets, reg)
	if err != nil {
		return fmt.Errorf("rank %d: %w", rank, err)
	}

	sidecar := dcp.SidecarPath(cfg.RootDir, rank)
	state, err := dcp.LoadState(sidecar, int(cfg.StackDepth))
	if err != nil {
		return fmt.Errorf("rank %d: %w", rank, err)
	}
	engine.State = state
	defer func() {
		if serr := dcp.SaveState(sidecar, engine.State); serr != nil {
			log.Warnf("rank %d: saving state: %s", rank, serr.Error())
		}
	}()

	switch op {
	case "write":
		if err := engine.Write(ckptID); err != nil {
			return fmt.Errorf("rank %d: write: %w", rank, err)
		}
	case "verify":
		path := filepath.Join(cfg.RootDir, fmt.Sprintf("dcp-id%d-rank%d.fti", engine.State.FileID(int(cfg.StackDepth)), rank))
		if err := engine.Verify(path); err != nil {
			return fmt.Errorf("rank %d: verify: %w", rank, err)
		}
		log.Infof("rank %d: verify: %d recoverable layers", rank, engine.State.NbLayerReco)
	case "recover-all":
		if err := engine.RecoverAll(); err != nil {
			return fmt.Errorf("rank %d: recover-all: %w", rank, err)
		}
	case "recover-one":
		if nbVars == 0 {
			return fmt.Errorf("rank %d: recover-one needs at least one dataset", rank)
		}
		if err := engine.RecoverOne(datasets[0].VarID); err != nil {
			return fmt.Errorf("rank %d: recover-one: %w", rank, err)
		}
	case "check":
		path := filepath.Join(cfg.RootDir, fmt.Sprintf("dcp-id%d-rank%d.fti", engine.State.FileID(int(cfg.StackDepth)), rank))
		fi, statErr := os.Stat(path)
		size := int64(0)
		if statErr == nil {
			size = fi.Size()
		}
		ok := engine.Check(path, size, "verify")
		log.Infof("rank %d: check(%s): %v", rank, path, ok)
	default:
		return fmt.Errorf("rank %d: unknown operation %q", rank, op)
	}
	return nil
}

// syntheticDatasets simulates the external collaborator's dataset
// registration: a fixed number of named in-memory buffers filled with
// pseudo-random bytes from a seed derived from the rank, so the same rank
// gets the same contents on every run.
func syntheticDatasets(rank, nbVars, varSize int) []*dcp.Dataset {
	r := rand.New(rand.NewSource(int64(rank) + 1))
	datasets := make([]*dcp.Dataset, nbVars)
	for i := 0; i < nbVars; i++ {
		data := make([]byte, varSize)
		r.Read(data)
		datasets[i] = &dcp.Dataset{
			VarID: int32(i),
			Name:  fmt.Sprintf("var%d", i),
			Data:  data,
		}
	}
	return datasets
}
