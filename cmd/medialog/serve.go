// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/lifelog/medialog/internal/api"
	"github.com/lifelog/medialog/internal/audible"
	"github.com/lifelog/medialog/internal/config"
	"github.com/lifelog/medialog/internal/crypto"
	"github.com/lifelog/medialog/internal/database"
	"github.com/lifelog/medialog/internal/metrics"
	"github.com/lifelog/medialog/internal/models"
	"github.com/lifelog/medialog/internal/services/audiblesync"
	"github.com/lifelog/medialog/internal/services/matching"
	"github.com/lifelog/medialog/internal/services/plexsync"
	"github.com/lifelog/medialog/internal/services/progress"
	"github.com/lifelog/medialog/internal/tmdb"
)

func RunServeCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the sync engine and HTTP API",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.New(configPath, version)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg.InitLogger()

			db, err := database.New(filepath.Join(cfg.Config.DataDir, "medialog.db"))
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			defer func() {
				if err := db.Close(); err != nil {
					log.Error().Err(err).Msg("Failed to close database")
				}
			}()

			// The key is only mandatory when an integration is enabled;
			// Validate has already enforced that.
			var encryptor *crypto.Encryptor
			if cfg.Config.EncryptionKey != "" {
				key, err := cfg.Config.DecodeEncryptionKey()
				if err != nil {
					return fmt.Errorf("decode encryption key: %w", err)
				}
				if encryptor, err = crypto.NewEncryptor(key); err != nil {
					return fmt.Errorf("init encryptor: %w", err)
				}
			}

			conn := db.Conn()
			settingsStore := models.NewSettingsStore(conn)
			mappingStore := models.NewExternalMappingStore(conn)
			conflictStore := models.NewConflictStore(conn)
			activityStore := models.NewActivityLogStore(conn)
			showStore := models.NewShowStore(conn)
			movieStore := models.NewMovieStore(conn)
			bookStore := models.NewBookStore(conn)

			registry := prometheus.NewRegistry()
			registry.MustRegister(
				collectors.NewGoCollector(),
				collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
			)
			collector := metrics.NewCollector(registry)

			tmdbClient := tmdb.NewClient(cfg.Config.TMDBBaseURL, cfg.Config.TMDBAPIKey)
			audibleClient := audible.NewClient(cfg.Config.AudibleServiceURL, cfg.Config.AudibleAPISecret)

			showMatcher := matching.NewShowMatcher(mappingStore, conflictStore, showStore, tmdbClient)
			movieMatcher := matching.NewMovieMatcher(mappingStore, conflictStore, movieStore, tmdbClient)
			bookMatcher := matching.NewBookMatcher(mappingStore, conflictStore, bookStore)
			resolver := matching.NewResolver(mappingStore, conflictStore)

			applier := progress.NewApplier(showStore, movieStore)
			plexSync := plexsync.NewService(settingsStore, activityStore, showMatcher, movieMatcher, applier, collector, cfg.Config.PlexEnabled)
			audibleSync := audiblesync.NewService(audibleClient, settingsStore, bookStore, bookMatcher, activityStore, encryptor, collector, cfg.Config.AudibleDailySyncLimit, cfg.Config.AudibleEnabled)

			server := api.NewServer(&api.Dependencies{
				Config:          cfg,
				SettingsStore:   settingsStore,
				MappingStore:    mappingStore,
				ConflictStore:   conflictStore,
				ActivityStore:   activityStore,
				ShowStore:       showStore,
				MovieStore:      movieStore,
				BookStore:       bookStore,
				PlexSync:        plexSync,
				AudibleSync:     audibleSync,
				Resolver:        resolver,
				MetricsRegistry: registry,
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log.Info().Str("version", version).Msg("Starting medialog")
			return server.ListenAndServe(ctx)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "", "Path to configuration file or directory")

	return cmd
}
