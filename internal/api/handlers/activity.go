// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/lifelog/medialog/internal/domain"
	"github.com/lifelog/medialog/internal/models"
)

type ActivityHandler struct {
	activity *models.ActivityLogStore
}

func NewActivityHandler(activity *models.ActivityLogStore) *ActivityHandler {
	return &ActivityHandler{activity: activity}
}

func (h *ActivityHandler) Routes(r chi.Router) {
	r.Get("/", h.ListActivity)
}

// ListActivity returns recent activity-log entries, newest first.
// Supports limit and offset query parameters.
func (h *ActivityHandler) ListActivity(w http.ResponseWriter, r *http.Request) {
	limit := QueryInt(r, "limit", 50)
	offset := QueryInt(r, "offset", 0)

	entries, err := h.activity.List(r.Context(), domain.DefaultUserID, limit, offset)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list activity log")
		RespondError(w, http.StatusInternalServerError, "Failed to list activity")
		return
	}
	RespondJSON(w, http.StatusOK, entries)
}
