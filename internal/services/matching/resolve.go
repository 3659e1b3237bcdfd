// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package matching

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/lifelog/medialog/internal/models"
)

var ErrInternalIDRequired = errors.New("internal id is required for this resolution action")

// Resolver applies human decisions to pending conflicts.
type Resolver struct {
	mappings  *models.ExternalMappingStore
	conflicts *models.ConflictStore
}

func NewResolver(mappings *models.ExternalMappingStore, conflicts *models.ConflictStore) *Resolver {
	return &Resolver{
		mappings:  mappings,
		conflicts: conflicts,
	}
}

// ResolveConflict resolves a pending conflict. For select/create_new a manual
// mapping with full confidence is written; ignore resolves the conflict
// without a mapping. Ignore is not a permanent suppression: a later
// re-encounter of the same external item raises a fresh conflict, so future
// catalog additions can still be matched.
func (r *Resolver) ResolveConflict(ctx context.Context, userID int64, conflictID int64, action models.ResolutionAction, internalID *int64) (*models.Conflict, error) {
	conflict, err := r.conflicts.GetByID(ctx, userID, conflictID)
	if err != nil {
		return nil, err
	}
	if conflict.Resolved {
		return nil, models.ErrConflictAlreadyResolved
	}

	switch action {
	case models.ResolutionSelect, models.ResolutionCreateNew:
		if internalID == nil {
			return nil, ErrInternalIDRequired
		}

		if _, err := r.mappings.Upsert(ctx, userID, conflict.Provider, conflict.ExternalID, internalID, 1.0, models.MatchMethodManual); err != nil {
			return nil, fmt.Errorf("create manual mapping: %w", err)
		}

	case models.ResolutionIgnore:
		internalID = nil

	default:
		return nil, fmt.Errorf("unknown resolution action %q", action)
	}

	resolved, err := r.conflicts.Resolve(ctx, userID, conflictID, action, internalID)
	if err != nil {
		return nil, err
	}

	log.Info().
		Int64("conflictId", conflictID).
		Str("provider", string(conflict.Provider)).
		Str("externalId", conflict.ExternalID).
		Str("action", string(action)).
		Msg("conflict resolved")

	return resolved, nil
}
