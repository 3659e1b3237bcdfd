// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/lifelog/medialog/internal/domain"
	"github.com/lifelog/medialog/internal/plex"
	"github.com/lifelog/medialog/internal/services/plexsync"
)

type WebhooksHandler struct {
	plexSync *plexsync.Service
}

func NewWebhooksHandler(plexSync *plexsync.Service) *WebhooksHandler {
	return &WebhooksHandler{plexSync: plexSync}
}

func (h *WebhooksHandler) Routes(r chi.Router) {
	r.Post("/plex", h.HandlePlexWebhook)
}

// HandlePlexWebhook ingests one Plex event. Plex treats any non-2xx as a
// delivery failure and retries, so processing outcomes (ignored, duplicate,
// conflict, even apply failures) are all acknowledged with 200; only an
// unreadable payload, a disabled integration, or a failed activity-log write
// surface as errors.
func (h *WebhooksHandler) HandlePlexWebhook(w http.ResponseWriter, r *http.Request) {
	hook, err := plex.ParseRequest(r)
	if err != nil {
		if errors.Is(err, plex.ErrNoPayload) {
			RespondError(w, http.StatusBadRequest, "Missing webhook payload")
			return
		}
		RespondError(w, http.StatusBadRequest, "Malformed webhook payload")
		return
	}

	outcome, err := h.plexSync.ProcessWebhook(r.Context(), domain.DefaultUserID, hook)
	if err != nil {
		if errors.Is(err, plexsync.ErrDisabled) {
			RespondError(w, http.StatusServiceUnavailable, "Plex integration is not enabled")
			return
		}
		log.Error().Err(err).Str("event", hook.Event).Msg("Failed to record webhook outcome")
		RespondError(w, http.StatusInternalServerError, "Failed to process webhook")
		return
	}

	RespondJSON(w, http.StatusOK, outcome)
}
