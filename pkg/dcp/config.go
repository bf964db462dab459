// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dcp

import (
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"

	"github.com/nhr-fau/dcp-engine/pkg/log"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schemas/*
var schemaFiles embed.FS

func loadEmbeddedSchema(s string) (io.ReadCloser, error) {
	u, err := url.Parse(s)
	if err != nil {
		return nil, err
	}
	return schemaFiles.Open(u.Path)
}

func init() {
	jsonschema.Loaders["embedFS"] = loadEmbeddedSchema
}

const (
	// DefaultBlockSize is a reasonable mid-range block size.
	DefaultBlockSize = 64 * 1024
	// DefaultStackDepth is the number of layers (the baseline plus its diff
	// layers) kept per file before rolling over to a new file and baseline.
	DefaultStackDepth = 8
	// DefaultNumWorkers bounds the CLI's simulated multi-rank fan-out.
	DefaultNumWorkers = 4
)

// Config is the engine's immutable-per-process-lifetime configuration.
type Config struct {
	BlockSize  uint64 `json:"block_size"`
	StackDepth uint32 `json:"stack_depth"`
	Digest     string `json:"digest"`
	RootDir    string `json:"root_dir"`
	NumWorkers int    `json:"num_workers"`
}

// DefaultConfig returns a Config pre-filled with reasonable defaults;
// callers still need to set RootDir.
func DefaultConfig() Config {
	return Config{
		BlockSize:  DefaultBlockSize,
		StackDepth: DefaultStackDepth,
		Digest:     "md5",
		NumWorkers: DefaultNumWorkers,
	}
}

// LoadConfig reads a JSON config document from path, applies defaults for
// any zero-valued field, validates it against the embedded schema, and
// returns the resolved Config.
func LoadConfig(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, newError(NonRecoverable, "LoadConfig", err)
	}

	var generic interface{}
	if err := json.Unmarshal(raw, &generic); err != nil {
		return Config{}, newError(NonRecoverable, "LoadConfig", fmt.Errorf("invalid json: %w", err))
	}
	if err := validateConfigSchema(generic); err != nil {
		return Config{}, newError(NonRecoverable, "LoadConfig", err)
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return Config{}, newError(NonRecoverable, "LoadConfig", err)
	}
	if cfg.BlockSize == 0 {
		cfg.BlockSize = DefaultBlockSize
	}
	if cfg.StackDepth == 0 {
		cfg.StackDepth = DefaultStackDepth
	}
	if cfg.NumWorkers == 0 {
		cfg.NumWorkers = DefaultNumWorkers
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, newError(NonRecoverable, "LoadConfig", err)
	}
	log.Debugf("dcp: loaded config %+v", cfg)
	return cfg, nil
}

func validateConfigSchema(v interface{}) error {
	s, err := jsonschema.Compile("embedFS://schemas/config.schema.json")
	if err != nil {
		return err
	}
	if err := s.Validate(v); err != nil {
		return fmt.Errorf("%#v", err)
	}
	return nil
}

// Validate enforces the invariants every Config must satisfy regardless of
// whether it was loaded from disk or constructed in code. A non-power-of-two
// block size is logged as a warning, not rejected: it is merely suboptimal.
func (c Config) Validate() error {
	if c.BlockSize == 0 {
		return fmt.Errorf("block size must be > 0")
	}
	if c.StackDepth == 0 {
		return fmt.Errorf("stack depth must be >= 1")
	}
	if c.RootDir == "" {
		return fmt.Errorf("root dir must be set")
	}
	if _, err := digestByName(c.Digest); err != nil {
		return err
	}
	if c.BlockSize&(c.BlockSize-1) != 0 {
		log.Warnf("dcp: block size %d is not a power of two", c.BlockSize)
	}
	return nil
}

// digestProvider resolves the Config's digest name to a concrete provider.
func (c Config) digestProvider() (DigestProvider, error) {
	return digestByName(c.Digest)
}
