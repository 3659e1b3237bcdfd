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
	"github.com/lifelog/medialog/internal/services/matching"
)

type ConflictsHandler struct {
	conflicts *models.ConflictStore
	resolver  *matching.Resolver
}

func NewConflictsHandler(conflicts *models.ConflictStore, resolver *matching.Resolver) *ConflictsHandler {
	return &ConflictsHandler{conflicts: conflicts, resolver: resolver}
}

func (h *ConflictsHandler) Routes(r chi.Router) {
	r.Get("/", h.ListConflicts)
	r.Post("/{conflictID}/resolve", h.ResolveConflict)
}

// ListConflicts returns every pending conflict, oldest first.
func (h *ConflictsHandler) ListConflicts(w http.ResponseWriter, r *http.Request) {
	conflicts, err := h.conflicts.ListPending(r.Context(), domain.DefaultUserID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list pending conflicts")
		RespondError(w, http.StatusInternalServerError, "Failed to list conflicts")
		return
	}
	RespondJSON(w, http.StatusOK, conflicts)
}

type resolveConflictRequest struct {
	Action     models.ResolutionAction `json:"action"`
	InternalID *int64                  `json:"internalId"`
}

// ResolveConflict applies a human decision to a pending conflict. Resolving
// an already-resolved conflict is a 409, not an error to paper over: the
// caller's view of the queue is stale.
func (h *ConflictsHandler) ResolveConflict(w http.ResponseWriter, r *http.Request) {
	conflictID, ok := ParseIDParam(w, r, "conflictID")
	if !ok {
		return
	}

	var req resolveConflictRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	switch req.Action {
	case models.ResolutionSelect, models.ResolutionCreateNew, models.ResolutionIgnore:
	default:
		RespondError(w, http.StatusBadRequest, "Unknown resolution action")
		return
	}

	conflict, err := h.resolver.ResolveConflict(r.Context(), domain.DefaultUserID, conflictID, req.Action, req.InternalID)
	if err != nil {
		switch {
		case errors.Is(err, matching.ErrInternalIDRequired):
			RespondError(w, http.StatusBadRequest, "internalId is required for this action")
		case errors.Is(err, models.ErrConflictAlreadyResolved):
			RespondError(w, http.StatusConflict, "Conflict is already resolved")
		case errors.Is(err, models.ErrConflictNotFound):
			RespondError(w, http.StatusNotFound, "Conflict not found")
		default:
			log.Error().Err(err).Int64("conflictID", conflictID).Msg("Failed to resolve conflict")
			RespondError(w, http.StatusInternalServerError, "Failed to resolve conflict")
		}
		return
	}

	RespondJSON(w, http.StatusOK, conflict)
}
