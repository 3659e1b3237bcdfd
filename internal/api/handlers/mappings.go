// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/lifelog/medialog/internal/domain"
	"github.com/lifelog/medialog/internal/models"
)

type MappingsHandler struct {
	mappings *models.ExternalMappingStore
}

func NewMappingsHandler(mappings *models.ExternalMappingStore) *MappingsHandler {
	return &MappingsHandler{mappings: mappings}
}

func (h *MappingsHandler) Routes(r chi.Router) {
	r.Get("/", h.ListMappings)
	r.Put("/{mappingID}", h.RelinkMapping)
	r.Patch("/{mappingID}/sync", h.SetSyncEnabled)
}

// ListMappings returns mappings, optionally filtered by provider.
func (h *MappingsHandler) ListMappings(w http.ResponseWriter, r *http.Request) {
	provider := models.Provider(r.URL.Query().Get("provider"))
	switch provider {
	case "", models.ProviderPlexShow, models.ProviderPlexMovie, models.ProviderAudibleBook:
	default:
		RespondError(w, http.StatusBadRequest, "Unknown provider")
		return
	}

	mappings, err := h.mappings.List(r.Context(), domain.DefaultUserID, provider)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list mappings")
		RespondError(w, http.StatusInternalServerError, "Failed to list mappings")
		return
	}
	RespondJSON(w, http.StatusOK, mappings)
}

type relinkMappingRequest struct {
	InternalID int64 `json:"internalId"`
}

// RelinkMapping repoints a mapping at a different internal entity. The
// mapping becomes method=manual with full confidence.
func (h *MappingsHandler) RelinkMapping(w http.ResponseWriter, r *http.Request) {
	mappingID, ok := ParseIDParam(w, r, "mappingID")
	if !ok {
		return
	}

	var req relinkMappingRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if req.InternalID < 1 {
		RespondError(w, http.StatusBadRequest, "internalId is required")
		return
	}

	mapping, err := h.mappings.Relink(r.Context(), domain.DefaultUserID, mappingID, req.InternalID)
	if err != nil {
		if errors.Is(err, models.ErrMappingNotFound) {
			RespondError(w, http.StatusNotFound, "Mapping not found")
			return
		}
		log.Error().Err(err).Int64("mappingID", mappingID).Msg("Failed to relink mapping")
		RespondError(w, http.StatusInternalServerError, "Failed to relink mapping")
		return
	}
	RespondJSON(w, http.StatusOK, mapping)
}

type setSyncEnabledRequest struct {
	Enabled bool `json:"enabled"`
}

// SetSyncEnabled toggles progress sync for one mapping.
func (h *MappingsHandler) SetSyncEnabled(w http.ResponseWriter, r *http.Request) {
	mappingID, ok := ParseIDParam(w, r, "mappingID")
	if !ok {
		return
	}

	var req setSyncEnabledRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	if err := h.mappings.SetSyncEnabled(r.Context(), domain.DefaultUserID, mappingID, req.Enabled); err != nil {
		if errors.Is(err, models.ErrMappingNotFound) {
			RespondError(w, http.StatusNotFound, "Mapping not found")
			return
		}
		log.Error().Err(err).Int64("mappingID", mappingID).Msg("Failed to toggle mapping sync")
		RespondError(w, http.StatusInternalServerError, "Failed to update mapping")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]bool{"enabled": req.Enabled})
}
