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

type SettingsHandler struct {
	settings *models.SettingsStore
}

func NewSettingsHandler(settings *models.SettingsStore) *SettingsHandler {
	return &SettingsHandler{settings: settings}
}

func (h *SettingsHandler) Routes(r chi.Router) {
	r.Get("/", h.GetSettings)
	r.Put("/", h.UpdateSettings)
}

// settingsResponse never carries token material; stored tokens are surfaced
// only as fixed-length redacted placeholders.
type settingsResponse struct {
	PlexAutoMarkWatched bool   `json:"plexAutoMarkWatched"`
	AudibleAuthorized   bool   `json:"audibleAuthorized"`
	AudibleAccessToken  string `json:"audibleAccessToken,omitempty"`
	AudibleCountryCode  string `json:"audibleCountryCode"`
	AudibleSyncCount    int    `json:"audibleSyncCount"`
	AudibleNextSyncAt   string `json:"audibleNextSyncAt,omitempty"`
}

func toSettingsResponse(s *models.Settings) settingsResponse {
	resp := settingsResponse{
		PlexAutoMarkWatched: s.PlexAutoMarkWatched,
		AudibleAuthorized:   s.HasAudibleAuth(),
		AudibleCountryCode:  s.AudibleCountryCode,
		AudibleSyncCount:    s.AudibleSyncCount,
	}
	if s.AudibleAccessToken != nil {
		resp.AudibleAccessToken = domain.RedactString(*s.AudibleAccessToken)
	}
	if s.AudibleNextSyncAt != nil {
		resp.AudibleNextSyncAt = s.AudibleNextSyncAt.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	return resp
}

func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.settings.Get(r.Context(), domain.DefaultUserID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to load settings")
		RespondError(w, http.StatusInternalServerError, "Failed to load settings")
		return
	}
	RespondJSON(w, http.StatusOK, toSettingsResponse(settings))
}

type updateSettingsRequest struct {
	PlexAutoMarkWatched *bool `json:"plexAutoMarkWatched"`
}

// UpdateSettings applies mutable settings fields. Clients may echo back the
// redacted token placeholder from GET; it is recognized and never stored.
func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	var req struct {
		updateSettingsRequest
		AudibleAccessToken string `json:"audibleAccessToken"`
	}
	if !DecodeJSON(w, r, &req) {
		return
	}

	if req.AudibleAccessToken != "" && !domain.IsRedactedValue(req.AudibleAccessToken) {
		RespondError(w, http.StatusBadRequest, "Tokens cannot be set here; use the audible auth endpoint")
		return
	}

	if req.PlexAutoMarkWatched != nil {
		if err := h.settings.SetPlexAutoMarkWatched(r.Context(), domain.DefaultUserID, *req.PlexAutoMarkWatched); err != nil {
			log.Error().Err(err).Msg("Failed to update settings")
			RespondError(w, http.StatusInternalServerError, "Failed to update settings")
			return
		}
	}

	settings, err := h.settings.Get(r.Context(), domain.DefaultUserID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to reload settings")
		RespondError(w, http.StatusInternalServerError, "Failed to load settings")
		return
	}
	RespondJSON(w, http.StatusOK, toSettingsResponse(settings))
}
