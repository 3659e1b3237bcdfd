// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/lifelog/medialog/internal/audible"
	"github.com/lifelog/medialog/internal/domain"
	"github.com/lifelog/medialog/internal/services/audiblesync"
)

type SyncHandler struct {
	audibleSync *audiblesync.Service
}

func NewSyncHandler(audibleSync *audiblesync.Service) *SyncHandler {
	return &SyncHandler{audibleSync: audibleSync}
}

func (h *SyncHandler) Routes(r chi.Router) {
	r.Post("/audible", h.TriggerAudibleSync)
}

// AuthRoutes registers the Audible credential endpoints.
func (h *SyncHandler) AuthRoutes(r chi.Router) {
	r.Post("/auth", h.AuthenticateAudible)
}

// TriggerAudibleSync runs a full library sync synchronously and returns the
// run summary. Rate-limit rejections are 429 so clients can back off.
func (h *SyncHandler) TriggerAudibleSync(w http.ResponseWriter, r *http.Request) {
	result, err := h.audibleSync.Sync(r.Context(), domain.DefaultUserID)
	if err != nil {
		switch {
		case errors.Is(err, audiblesync.ErrRateLimited):
			RespondError(w, http.StatusTooManyRequests, err.Error())
		case errors.Is(err, audiblesync.ErrNotAuthenticated):
			RespondError(w, http.StatusUnauthorized, "Audible account not authenticated")
		case errors.Is(err, audiblesync.ErrNotConfigured):
			RespondError(w, http.StatusServiceUnavailable, "Audible integration is not configured")
		case errors.Is(err, audible.ErrDisabled):
			RespondError(w, http.StatusServiceUnavailable, "Audible integration is not configured")
		case errors.Is(err, audible.ErrUnauthorized):
			RespondError(w, http.StatusUnauthorized, "Audible tokens rejected; re-authentication required")
		default:
			log.Error().Err(err).Msg("Audible sync failed")
			RespondError(w, http.StatusInternalServerError, "Audible sync failed")
		}
		return
	}
	RespondJSON(w, http.StatusOK, result)
}

type audibleAuthRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	CountryCode string `json:"countryCode"`
}

// AuthenticateAudible logs in to Audible and stores encrypted tokens.
// Credentials pass through to the remote service and are never persisted.
func (h *SyncHandler) AuthenticateAudible(w http.ResponseWriter, r *http.Request) {
	var req audibleAuthRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Password == "" {
		RespondError(w, http.StatusBadRequest, "Email and password are required")
		return
	}

	if err := h.audibleSync.Authenticate(r.Context(), domain.DefaultUserID, req.Email, req.Password, req.CountryCode); err != nil {
		if errors.Is(err, audiblesync.ErrNotConfigured) || errors.Is(err, audible.ErrDisabled) {
			RespondError(w, http.StatusServiceUnavailable, "Audible integration is not configured")
			return
		}
		log.Error().Err(err).Str("email", domain.RedactString(req.Email)).Msg("Audible authentication failed")
		RespondError(w, http.StatusBadGateway, "Audible authentication failed")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]bool{"authorized": true})
}
