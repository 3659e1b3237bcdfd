// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import (
	"encoding/hex"
	"errors"
	"fmt"
)

// DefaultUserID is the user wired in by single-user deployments. Every store
// and service call takes an explicit user ID; this is only the value the host
// uses when no other user management exists.
const DefaultUserID = 1

// Config represents the application configuration
type Config struct {
	Version       string
	Host          string `toml:"host" mapstructure:"host"`
	Port          int    `toml:"port" mapstructure:"port"`
	BaseURL       string `toml:"baseUrl" mapstructure:"baseUrl"`
	LogLevel      string `toml:"logLevel" mapstructure:"logLevel"`
	LogPath       string `toml:"logPath" mapstructure:"logPath"`
	LogMaxSize    int    `toml:"logMaxSize" mapstructure:"logMaxSize"`
	LogMaxBackups int    `toml:"logMaxBackups" mapstructure:"logMaxBackups"`
	DataDir       string `toml:"dataDir" mapstructure:"dataDir"`

	// EncryptionKey is the hex-encoded 256-bit key used to protect third-party
	// credentials (Plex and Audible tokens) at rest. Required whenever an
	// integration is enabled.
	EncryptionKey string `toml:"encryptionKey" mapstructure:"encryptionKey"`

	MetricsEnabled bool   `toml:"metricsEnabled" mapstructure:"metricsEnabled"`
	MetricsHost    string `toml:"metricsHost" mapstructure:"metricsHost"`
	MetricsPort    int    `toml:"metricsPort" mapstructure:"metricsPort"`

	// Plex webhook ingestion
	PlexEnabled bool `toml:"plexEnabled" mapstructure:"plexEnabled"`

	// TMDB is used to bridge TVDB/IMDB identifiers to TMDB ids during matching.
	TMDBAPIKey  string `toml:"tmdbApiKey" mapstructure:"tmdbApiKey"`
	TMDBBaseURL string `toml:"tmdbBaseUrl" mapstructure:"tmdbBaseUrl"`

	// Audible remote service (the Python microservice wrapping the audible lib)
	AudibleEnabled        bool   `toml:"audibleEnabled" mapstructure:"audibleEnabled"`
	AudibleServiceURL     string `toml:"audibleServiceUrl" mapstructure:"audibleServiceUrl"`
	AudibleAPISecret      string `toml:"audibleApiSecret" mapstructure:"audibleApiSecret"`
	AudibleDailySyncLimit int    `toml:"audibleDailySyncLimit" mapstructure:"audibleDailySyncLimit"`
}

var (
	ErrEncryptionKeyMissing = errors.New("encryptionKey is required when an integration is enabled")
	ErrEncryptionKeySize    = errors.New("encryptionKey must decode to 32 bytes")
)

// DecodeEncryptionKey decodes the configured hex key into raw bytes.
func (c *Config) DecodeEncryptionKey() ([]byte, error) {
	if c.EncryptionKey == "" {
		return nil, ErrEncryptionKeyMissing
	}

	key, err := hex.DecodeString(c.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("decode encryptionKey: %w", err)
	}
	if len(key) != 32 {
		return nil, ErrEncryptionKeySize
	}

	return key, nil
}

// Validate checks settings that must be present before the host can start.
// Integration toggles require the encryption key so credentials are never
// persisted in the clear.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}

	if c.PlexEnabled || c.AudibleEnabled {
		if _, err := c.DecodeEncryptionKey(); err != nil {
			return err
		}
	}

	if c.AudibleEnabled && c.AudibleServiceURL == "" {
		return errors.New("audibleServiceUrl is required when audible sync is enabled")
	}

	return nil
}
