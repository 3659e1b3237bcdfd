// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var ErrMappingNotFound = errors.New("external mapping not found")

// Provider identifies the external system an id belongs to.
type Provider string

const (
	ProviderPlexShow    Provider = "plex_show"
	ProviderPlexMovie   Provider = "plex_movie"
	ProviderAudibleBook Provider = "audible_book"
)

// MatchMethod records how a mapping was established.
type MatchMethod string

const (
	MatchMethodIDExact        MatchMethod = "id_exact"
	MatchMethodFuzzyTitleYear MatchMethod = "fuzzy_title_year"
	MatchMethodManual         MatchMethod = "manual"
)

// ExternalMapping is a confirmed association between an external provider's
// item id and an internal catalog entity. Rows are never hard-deleted.
type ExternalMapping struct {
	ID          int64       `json:"id"`
	UserID      int64       `json:"userId"`
	Provider    Provider    `json:"provider"`
	ExternalID  string      `json:"externalId"`
	InternalID  *int64      `json:"internalId"`
	Confidence  float64     `json:"confidence"`
	Method      MatchMethod `json:"method"`
	SyncEnabled bool        `json:"syncEnabled"`
	CreatedAt   time.Time   `json:"createdAt"`
	UpdatedAt   time.Time   `json:"updatedAt"`
}

type ExternalMappingStore struct {
	db *sql.DB
}

func NewExternalMappingStore(db *sql.DB) *ExternalMappingStore {
	return &ExternalMappingStore{db: db}
}

const mappingColumns = `id, user_id, provider, external_id, internal_id, confidence, method, sync_enabled, created_at, updated_at`

func scanMapping(row interface{ Scan(...any) error }) (*ExternalMapping, error) {
	m := &ExternalMapping{}
	var internalID sql.NullInt64
	err := row.Scan(
		&m.ID,
		&m.UserID,
		&m.Provider,
		&m.ExternalID,
		&internalID,
		&m.Confidence,
		&m.Method,
		&m.SyncEnabled,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if internalID.Valid {
		m.InternalID = &internalID.Int64
	}
	return m, nil
}

// Create inserts a new mapping. The (user, provider, external_id) uniqueness
// constraint makes concurrent first-sightings safe: the loser of the race gets
// the existing row back with created=false.
func (s *ExternalMappingStore) Create(ctx context.Context, userID int64, provider Provider, externalID string, internalID *int64, confidence float64, method MatchMethod) (*ExternalMapping, bool, error) {
	query := `
		INSERT INTO external_mappings (user_id, provider, external_id, internal_id, confidence, method)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING ` + mappingColumns

	var internal sql.NullInt64
	if internalID != nil {
		internal = sql.NullInt64{Int64: *internalID, Valid: true}
	}

	mapping, err := scanMapping(s.db.QueryRowContext(ctx, query, userID, provider, externalID, internal, confidence, method))
	if err != nil {
		if isUniqueConstraintError(err) {
			existing, getErr := s.GetByExternalID(ctx, userID, provider, externalID)
			if getErr != nil {
				return nil, false, getErr
			}
			return existing, false, nil
		}
		return nil, false, err
	}

	return mapping, true, nil
}

// GetByExternalID returns the mapping for (provider, externalID), or
// ErrMappingNotFound.
func (s *ExternalMappingStore) GetByExternalID(ctx context.Context, userID int64, provider Provider, externalID string) (*ExternalMapping, error) {
	query := `SELECT ` + mappingColumns + ` FROM external_mappings WHERE user_id = ? AND provider = ? AND external_id = ?`

	mapping, err := scanMapping(s.db.QueryRowContext(ctx, query, userID, provider, externalID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMappingNotFound
		}
		return nil, err
	}

	return mapping, nil
}

// GetByID returns a mapping by row id.
func (s *ExternalMappingStore) GetByID(ctx context.Context, userID int64, id int64) (*ExternalMapping, error) {
	query := `SELECT ` + mappingColumns + ` FROM external_mappings WHERE user_id = ? AND id = ?`

	mapping, err := scanMapping(s.db.QueryRowContext(ctx, query, userID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMappingNotFound
		}
		return nil, err
	}

	return mapping, nil
}

// List returns all mappings for a user, optionally filtered by provider.
func (s *ExternalMappingStore) List(ctx context.Context, userID int64, provider Provider) ([]*ExternalMapping, error) {
	query := `SELECT ` + mappingColumns + ` FROM external_mappings WHERE user_id = ?`
	args := []any{userID}
	if provider != "" {
		query += ` AND provider = ?`
		args = append(args, provider)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	mappings := make([]*ExternalMapping, 0)
	for rows.Next() {
		mapping, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, mapping)
	}

	return mappings, rows.Err()
}

// Relink repoints a mapping at a different internal entity. Used for manual
// corrections; the method always becomes manual with full confidence.
func (s *ExternalMappingStore) Relink(ctx context.Context, userID int64, id int64, internalID int64) (*ExternalMapping, error) {
	query := `
		UPDATE external_mappings
		SET internal_id = ?, method = ?, confidence = 1.0, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ? AND id = ?
		RETURNING ` + mappingColumns

	mapping, err := scanMapping(s.db.QueryRowContext(ctx, query, internalID, MatchMethodManual, userID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMappingNotFound
		}
		return nil, err
	}

	return mapping, nil
}

// Upsert creates the mapping or repoints an existing row at a new internal
// entity. Used by conflict resolution, where a pending conflict may coexist
// with a mapping created by an earlier resolution round.
func (s *ExternalMappingStore) Upsert(ctx context.Context, userID int64, provider Provider, externalID string, internalID *int64, confidence float64, method MatchMethod) (*ExternalMapping, error) {
	query := `
		INSERT INTO external_mappings (user_id, provider, external_id, internal_id, confidence, method)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (user_id, provider, external_id) DO UPDATE SET
			internal_id = excluded.internal_id,
			confidence = excluded.confidence,
			method = excluded.method,
			updated_at = CURRENT_TIMESTAMP
		RETURNING ` + mappingColumns

	var internal sql.NullInt64
	if internalID != nil {
		internal = sql.NullInt64{Int64: *internalID, Valid: true}
	}

	return scanMapping(s.db.QueryRowContext(ctx, query, userID, provider, externalID, internal, confidence, method))
}

// SetSyncEnabled toggles progress sync for a mapping.
func (s *ExternalMappingStore) SetSyncEnabled(ctx context.Context, userID int64, id int64, enabled bool) error {
	query := `UPDATE external_mappings SET sync_enabled = ?, updated_at = CURRENT_TIMESTAMP WHERE user_id = ? AND id = ?`

	result, err := s.db.ExecContext(ctx, query, enabled, userID, id)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrMappingNotFound
	}

	return nil
}
