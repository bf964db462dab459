// Copyright (C) 2022 NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package dcp

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDefaultConfigValidates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RootDir = t.TempDir()
	require.NoError(t, cfg.Validate())
}

func TestConfigValidateRejectsMissingFields(t *testing.T) {
	cases := []Config{
		{StackDepth: 1, RootDir: "x"},
		{BlockSize: 1, RootDir: "x"},
		{BlockSize: 1, StackDepth: 1},
		{BlockSize: 1, StackDepth: 1, RootDir: "x", Digest: "unknown"},
	}
	for _, c := range cases {
		require.Error(t, c.Validate())
	}
}

func TestConfigValidateWarnsOnNonPowerOfTwo(t *testing.T) {
	cfg := Config{BlockSize: 100, StackDepth: 1, RootDir: "x", Digest: "md5"}
	require.NoError(t, cfg.Validate(), "non power-of-two block size is a warning, not a hard error")
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	doc := map[string]any{
		"block_size":  1024,
		"stack_depth": 4,
		"digest":      "crc32",
		"root_dir":    dir,
		"num_workers": 2,
	}
	raw, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, uint64(1024), cfg.BlockSize)
	require.Equal(t, uint32(4), cfg.StackDepth)
	require.Equal(t, "crc32", cfg.Digest)
	require.Equal(t, dir, cfg.RootDir)
	require.Equal(t, 2, cfg.NumWorkers)
}

func TestLoadConfigRejectsSchemaViolation(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	raw, err := json.Marshal(map[string]any{
		"block_size":  1024,
		"stack_depth": 4,
		"digest":      "not-a-real-digest",
		"root_dir":    dir,
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	_, err = LoadConfig(path)
	require.Error(t, err)
}

func TestLoadConfigAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	raw, err := json.Marshal(map[string]any{
		"block_size":  2048,
		"stack_depth": 1,
		"root_dir":    dir,
	})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Equal(t, DefaultNumWorkers, cfg.NumWorkers)
	require.Equal(t, "md5", cfg.Digest)
}
