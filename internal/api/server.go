// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package api assembles the HTTP server and its routes.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/lifelog/medialog/internal/api/handlers"
	"github.com/lifelog/medialog/internal/api/middleware"
	"github.com/lifelog/medialog/internal/config"
	"github.com/lifelog/medialog/internal/models"
	"github.com/lifelog/medialog/internal/services/audiblesync"
	"github.com/lifelog/medialog/internal/services/matching"
	"github.com/lifelog/medialog/internal/services/plexsync"
)

// Dependencies carries everything the router needs.
type Dependencies struct {
	Config *config.AppConfig

	SettingsStore *models.SettingsStore
	MappingStore  *models.ExternalMappingStore
	ConflictStore *models.ConflictStore
	ActivityStore *models.ActivityLogStore
	ShowStore     *models.ShowStore
	MovieStore    *models.MovieStore
	BookStore     *models.BookStore

	PlexSync    *plexsync.Service
	AudibleSync *audiblesync.Service
	Resolver    *matching.Resolver

	MetricsRegistry *prometheus.Registry
}

type Server struct {
	deps    *Dependencies
	httpSrv *http.Server
}

func NewServer(deps *Dependencies) *Server {
	return &Server{deps: deps}
}

// Handler builds the full route tree.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)

	healthHandler := handlers.NewHealthHandler()
	r.Route("/healthz", healthHandler.Routes)

	if s.deps.Config.Config.MetricsEnabled && s.deps.MetricsRegistry != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.deps.MetricsRegistry, promhttp.HandlerOpts{}))
	}

	webhooksHandler := handlers.NewWebhooksHandler(s.deps.PlexSync)
	conflictsHandler := handlers.NewConflictsHandler(s.deps.ConflictStore, s.deps.Resolver)
	activityHandler := handlers.NewActivityHandler(s.deps.ActivityStore)
	mappingsHandler := handlers.NewMappingsHandler(s.deps.MappingStore)
	settingsHandler := handlers.NewSettingsHandler(s.deps.SettingsStore)
	syncHandler := handlers.NewSyncHandler(s.deps.AudibleSync)
	libraryHandler := handlers.NewLibraryHandler(s.deps.ShowStore, s.deps.MovieStore, s.deps.BookStore)

	r.Route("/api", func(r chi.Router) {
		r.Route("/webhooks", webhooksHandler.Routes)
		r.Route("/conflicts", conflictsHandler.Routes)
		r.Route("/activity", activityHandler.Routes)
		r.Route("/mappings", mappingsHandler.Routes)
		r.Route("/settings", settingsHandler.Routes)
		r.Route("/sync", syncHandler.Routes)
		r.Route("/audible", syncHandler.AuthRoutes)
		r.Route("/library", libraryHandler.Routes)
	})

	return r
}

// ListenAndServe starts the HTTP server and blocks until ctx is canceled,
// then drains in-flight requests.
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(s.deps.Config.Config.Host, fmt.Sprintf("%d", s.deps.Config.Config.Port))

	s.httpSrv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := s.httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	log.Info().Msg("Shutting down HTTP server")
	return s.httpSrv.Shutdown(shutdownCtx)
}
