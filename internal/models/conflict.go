// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrConflictNotFound        = errors.New("conflict not found")
	ErrConflictAlreadyResolved = errors.New("conflict already resolved")
)

// ConflictType classifies why automatic matching stopped.
type ConflictType string

const (
	ConflictNoMatch         ConflictType = "no_match"
	ConflictMultipleMatches ConflictType = "multiple_matches"
	ConflictAmbiguous       ConflictType = "ambiguous"
	ConflictTypeMismatch    ConflictType = "type_mismatch"
)

// ResolutionAction is the human decision applied to a pending conflict.
type ResolutionAction string

const (
	ResolutionSelect    ResolutionAction = "select"
	ResolutionCreateNew ResolutionAction = "create_new"
	ResolutionIgnore    ResolutionAction = "ignore"
)

// PotentialMatch is one candidate offered for manual review, ordered by score.
type PotentialMatch struct {
	InternalID int64   `json:"internalId"`
	Title      string  `json:"title"`
	Score      float64 `json:"score"`
}

// Conflict is a pending ambiguous-match case awaiting human resolution. At
// most one unresolved conflict exists per (provider, externalId); resolved
// rows are kept for history.
type Conflict struct {
	ID                 int64             `json:"id"`
	UserID             int64             `json:"userId"`
	Provider           Provider          `json:"provider"`
	ExternalID         string            `json:"externalId"`
	ExternalTitle      string            `json:"externalTitle"`
	ExternalYear       *int              `json:"externalYear"`
	ConflictType       ConflictType      `json:"conflictType"`
	PotentialMatches   []PotentialMatch  `json:"potentialMatches"`
	Resolved           bool              `json:"resolved"`
	ResolutionAction   *ResolutionAction `json:"resolutionAction"`
	ResolvedInternalID *int64            `json:"resolvedInternalId"`
	CreatedAt          time.Time         `json:"createdAt"`
	UpdatedAt          time.Time         `json:"updatedAt"`
	ResolvedAt         *time.Time        `json:"resolvedAt"`
}

type ConflictStore struct {
	db *sql.DB
}

func NewConflictStore(db *sql.DB) *ConflictStore {
	return &ConflictStore{db: db}
}

const conflictColumns = `id, user_id, provider, external_id, external_title, external_year, conflict_type, potential_matches, resolved, resolution_action, resolved_internal_id, created_at, updated_at, resolved_at`

func scanConflict(row interface{ Scan(...any) error }) (*Conflict, error) {
	c := &Conflict{}
	var (
		year       sql.NullInt64
		matches    string
		action     sql.NullString
		internalID sql.NullInt64
		resolvedAt sql.NullTime
	)
	err := row.Scan(
		&c.ID,
		&c.UserID,
		&c.Provider,
		&c.ExternalID,
		&c.ExternalTitle,
		&year,
		&c.ConflictType,
		&matches,
		&c.Resolved,
		&action,
		&internalID,
		&c.CreatedAt,
		&c.UpdatedAt,
		&resolvedAt,
	)
	if err != nil {
		return nil, err
	}

	if year.Valid {
		y := int(year.Int64)
		c.ExternalYear = &y
	}
	if action.Valid {
		a := ResolutionAction(action.String)
		c.ResolutionAction = &a
	}
	if internalID.Valid {
		c.ResolvedInternalID = &internalID.Int64
	}
	if resolvedAt.Valid {
		c.ResolvedAt = &resolvedAt.Time
	}

	if err := json.Unmarshal([]byte(matches), &c.PotentialMatches); err != nil {
		return nil, fmt.Errorf("decode potential matches for conflict %d: %w", c.ID, err)
	}

	return c, nil
}

// Upsert records a pending conflict for (provider, externalID). Re-encountering
// the same unmatched external item refreshes the existing pending row instead
// of duplicating it; resolved rows are untouched, so a later re-encounter after
// an "ignore" resolution raises a fresh conflict.
func (s *ConflictStore) Upsert(ctx context.Context, userID int64, provider Provider, externalID, externalTitle string, externalYear *int, conflictType ConflictType, potentialMatches []PotentialMatch) (*Conflict, error) {
	if potentialMatches == nil {
		potentialMatches = []PotentialMatch{}
	}
	matches, err := json.Marshal(potentialMatches)
	if err != nil {
		return nil, fmt.Errorf("encode potential matches: %w", err)
	}

	var year sql.NullInt64
	if externalYear != nil {
		year = sql.NullInt64{Int64: int64(*externalYear), Valid: true}
	}

	query := `
		INSERT INTO conflicts (user_id, provider, external_id, external_title, external_year, conflict_type, potential_matches)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, provider, external_id) WHERE resolved = 0 DO UPDATE SET
			external_title = excluded.external_title,
			external_year = excluded.external_year,
			conflict_type = excluded.conflict_type,
			potential_matches = excluded.potential_matches,
			updated_at = CURRENT_TIMESTAMP
		RETURNING ` + conflictColumns

	return scanConflict(s.db.QueryRowContext(ctx, query, userID, provider, externalID, externalTitle, year, conflictType, string(matches)))
}

// GetPending returns the unresolved conflict for (provider, externalID), or
// ErrConflictNotFound when none is pending.
func (s *ConflictStore) GetPending(ctx context.Context, userID int64, provider Provider, externalID string) (*Conflict, error) {
	query := `SELECT ` + conflictColumns + ` FROM conflicts WHERE user_id = ? AND provider = ? AND external_id = ? AND resolved = 0`

	conflict, err := scanConflict(s.db.QueryRowContext(ctx, query, userID, provider, externalID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConflictNotFound
		}
		return nil, err
	}

	return conflict, nil
}

// GetByID returns a conflict by id.
func (s *ConflictStore) GetByID(ctx context.Context, userID int64, id int64) (*Conflict, error) {
	query := `SELECT ` + conflictColumns + ` FROM conflicts WHERE user_id = ? AND id = ?`

	conflict, err := scanConflict(s.db.QueryRowContext(ctx, query, userID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrConflictNotFound
		}
		return nil, err
	}

	return conflict, nil
}

// ListPending returns all unresolved conflicts, newest first.
func (s *ConflictStore) ListPending(ctx context.Context, userID int64) ([]*Conflict, error) {
	query := `SELECT ` + conflictColumns + ` FROM conflicts WHERE user_id = ? AND resolved = 0 ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	conflicts := make([]*Conflict, 0)
	for rows.Next() {
		conflict, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		conflicts = append(conflicts, conflict)
	}

	return conflicts, rows.Err()
}

// Resolve marks a pending conflict resolved with the action taken. Resolving
// an already-resolved conflict is rejected so repeated UI submissions cannot
// silently repoint mappings.
func (s *ConflictStore) Resolve(ctx context.Context, userID int64, id int64, action ResolutionAction, resolvedInternalID *int64) (*Conflict, error) {
	var internal sql.NullInt64
	if resolvedInternalID != nil {
		internal = sql.NullInt64{Int64: *resolvedInternalID, Valid: true}
	}

	query := `
		UPDATE conflicts
		SET resolved = 1, resolution_action = ?, resolved_internal_id = ?, resolved_at = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ? AND id = ? AND resolved = 0
		RETURNING ` + conflictColumns

	conflict, err := scanConflict(s.db.QueryRowContext(ctx, query, action, internal, userID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Distinguish missing from already-resolved for the API surface.
			if _, getErr := s.GetByID(ctx, userID, id); getErr == nil {
				return nil, ErrConflictAlreadyResolved
			}
			return nil, ErrConflictNotFound
		}
		return nil, err
	}

	return conflict, nil
}
