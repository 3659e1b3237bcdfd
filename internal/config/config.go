// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package config loads the application configuration from a TOML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/lifelog/medialog/internal/domain"
)

const envPrefix = "MEDIALOG__"

var configTemplate = `# config.toml

# Hostname / IP
#
host = "{{ host }}"

# Port
#
port = 7575

# Base url
# Set custom baseUrl eg /medialog/ to serve in subdirectory.
#
#baseUrl = "/medialog/"

# Log level
#
# Options: "ERROR", "DEBUG", "INFO", "WARN", "TRACE"
#
logLevel = "INFO"

# Log Path
#
# Optional
#
#logPath = "log/medialog.log"

# Encryption key (hex, 32 bytes) for credentials at rest
#
#encryptionKey = ""
`

type AppConfig struct {
	Config *domain.Config
	viper  *viper.Viper
}

func New(configPath string, version string) (*AppConfig, error) {
	c := &AppConfig{
		viper: viper.New(),
	}

	c.defaults(version)

	if err := c.load(configPath); err != nil {
		return nil, err
	}

	if err := c.Config.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}

func (c *AppConfig) defaults(version string) {
	c.Config = &domain.Config{
		Version:               version,
		Host:                  "localhost",
		Port:                  7575,
		LogLevel:              "INFO",
		LogMaxSize:            50,
		LogMaxBackups:         3,
		TMDBBaseURL:           "https://api.themoviedb.org/3",
		AudibleDailySyncLimit: 4,
	}
}

func (c *AppConfig) load(configPath string) error {
	c.viper.SetConfigType("toml")

	if configPath != "" {
		// check if path and file exists, if not, create it
		if err := c.writeDefaultConfig(configPath); err != nil {
			return err
		}

		c.viper.SetConfigFile(filepath.Join(configPath, "config.toml"))
	} else {
		c.viper.SetConfigName("config")
		c.viper.AddConfigPath(".")
		c.viper.AddConfigPath("$HOME/.config/medialog")
	}

	if err := c.viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("config read error: %w", err)
		}
	}

	for _, key := range c.viper.AllKeys() {
		envKey := envPrefix + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := c.viper.BindEnv(key, envKey); err != nil {
			return fmt.Errorf("config: unable to bind env %q: %w", envKey, err)
		}
	}

	if err := c.viper.Unmarshal(c.Config); err != nil {
		return fmt.Errorf("config unmarshal error: %w", err)
	}

	if c.Config.DataDir == "" {
		c.Config.DataDir = configPath
	}

	return nil
}

func (c *AppConfig) writeDefaultConfig(configPath string) error {
	cfgFile := filepath.Join(configPath, "config.toml")

	if _, err := os.Stat(cfgFile); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}

	if err := os.MkdirAll(configPath, 0o755); err != nil {
		return fmt.Errorf("create config dir %s: %w", configPath, err)
	}

	host := "127.0.0.1"
	if _, err := os.Stat("/.dockerenv"); err == nil {
		// docker default
		host = "0.0.0.0"
	}

	content := strings.ReplaceAll(configTemplate, "{{ host }}", host)

	if err := os.WriteFile(cfgFile, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write default config %s: %w", cfgFile, err)
	}

	log.Info().Msgf("Wrote default config file: %s", cfgFile)

	return nil
}

// InitLogger configures the global zerolog logger from the loaded config.
func (c *AppConfig) InitLogger() {
	level, err := zerolog.ParseLevel(strings.ToLower(c.Config.LogLevel))
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if c.Config.LogPath != "" {
		log.Logger = log.Output(&lumberjack.Logger{
			Filename:   c.Config.LogPath,
			MaxSize:    c.Config.LogMaxSize,
			MaxBackups: c.Config.LogMaxBackups,
		})
		return
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
}
