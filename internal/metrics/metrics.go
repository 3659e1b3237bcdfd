// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package metrics exposes Prometheus counters for the sync pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Collector struct {
	WebhookEvents   *prometheus.CounterVec
	SyncRuns        *prometheus.CounterVec
	MatchesCreated  *prometheus.CounterVec
	ConflictsRaised *prometheus.CounterVec
}

// NewCollector registers the pipeline counters on the given registerer.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		WebhookEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medialog",
			Subsystem: "webhook",
			Name:      "events_total",
			Help:      "Processed webhook events by terminal status.",
		}, []string{"status"}),
		SyncRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medialog",
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Audible sync runs by outcome.",
		}, []string{"outcome"}),
		MatchesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medialog",
			Subsystem: "matching",
			Name:      "mappings_total",
			Help:      "External mappings created by method.",
		}, []string{"method"}),
		ConflictsRaised: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medialog",
			Subsystem: "matching",
			Name:      "conflicts_total",
			Help:      "Match attempts that ended in a conflict, by type.",
		}, []string{"type"}),
	}

	reg.MustRegister(c.WebhookEvents, c.SyncRuns, c.MatchesCreated, c.ConflictsRaised)
	return c
}
