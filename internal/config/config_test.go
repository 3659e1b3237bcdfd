// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewWritesDefaultConfig(t *testing.T) {
	dir := t.TempDir()

	cfg, err := New(dir, "test")
	require.NoError(t, err)

	assert.FileExists(t, filepath.Join(dir, "config.toml"))
	assert.Equal(t, 7575, cfg.Config.Port)
	assert.Equal(t, "INFO", cfg.Config.LogLevel)
	assert.Equal(t, "https://api.themoviedb.org/3", cfg.Config.TMDBBaseURL)
	assert.Equal(t, 4, cfg.Config.AudibleDailySyncLimit)
	assert.Equal(t, dir, cfg.Config.DataDir, "dataDir falls back to the config dir")
}

func TestNewReadsConfigFile(t *testing.T) {
	dir := t.TempDir()

	content := `
host = "0.0.0.0"
port = 9999
logLevel = "DEBUG"
dataDir = "/var/lib/medialog"
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0o644))

	cfg, err := New(dir, "test")
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0", cfg.Config.Host)
	assert.Equal(t, 9999, cfg.Config.Port)
	assert.Equal(t, "DEBUG", cfg.Config.LogLevel)
	assert.Equal(t, "/var/lib/medialog", cfg.Config.DataDir)
}

func TestEnvOverridesConfigFile(t *testing.T) {
	dir := t.TempDir()

	content := `
host = "localhost"
port = 7575
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0o644))

	t.Setenv("MEDIALOG__PORT", "8888")
	t.Setenv("MEDIALOG__HOST", "0.0.0.0")

	cfg, err := New(dir, "test")
	require.NoError(t, err)

	assert.Equal(t, 8888, cfg.Config.Port)
	assert.Equal(t, "0.0.0.0", cfg.Config.Host)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	dir := t.TempDir()

	content := `
port = 7575
audibleEnabled = true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.toml"), []byte(content), 0o644))

	_, err := New(dir, "test")
	assert.Error(t, err)
}
