// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// Settings holds per-user integration state. Token fields are stored
// encrypted (iv:tag:cipher); this layer never sees plaintext credentials.
type Settings struct {
	UserID                int64      `json:"userId"`
	PlexAutoMarkWatched   bool       `json:"plexAutoMarkWatched"`
	AudibleAccessToken    *string    `json:"-"`
	AudibleRefreshToken   *string    `json:"-"`
	AudibleCountryCode    string     `json:"audibleCountryCode"`
	AudibleTokenExpiresAt *time.Time `json:"audibleTokenExpiresAt"`
	AudibleSyncCount      int        `json:"audibleSyncCount"`
	AudibleSyncCountDate  string     `json:"audibleSyncCountDate"`
	AudibleNextSyncAt     *time.Time `json:"audibleNextSyncAt"`
	UpdatedAt             time.Time  `json:"updatedAt"`
}

// HasAudibleAuth reports whether encrypted Audible tokens are on file.
func (s *Settings) HasAudibleAuth() bool {
	return s.AudibleAccessToken != nil && s.AudibleRefreshToken != nil
}

type SettingsStore struct {
	db *sql.DB
}

func NewSettingsStore(db *sql.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

const settingsColumns = `user_id, plex_auto_mark_watched, audible_access_token, audible_refresh_token, audible_country_code, audible_token_expires_at, audible_sync_count, audible_sync_count_date, audible_next_sync_at, updated_at`

func scanSettings(row interface{ Scan(...any) error }) (*Settings, error) {
	s := &Settings{}
	var (
		accessToken  sql.NullString
		refreshToken sql.NullString
		expiresAt    sql.NullTime
		nextSyncAt   sql.NullTime
	)
	err := row.Scan(
		&s.UserID,
		&s.PlexAutoMarkWatched,
		&accessToken,
		&refreshToken,
		&s.AudibleCountryCode,
		&expiresAt,
		&s.AudibleSyncCount,
		&s.AudibleSyncCountDate,
		&nextSyncAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if accessToken.Valid {
		s.AudibleAccessToken = &accessToken.String
	}
	if refreshToken.Valid {
		s.AudibleRefreshToken = &refreshToken.String
	}
	if expiresAt.Valid {
		s.AudibleTokenExpiresAt = &expiresAt.Time
	}
	if nextSyncAt.Valid {
		s.AudibleNextSyncAt = &nextSyncAt.Time
	}
	return s, nil
}

// Get returns settings for a user, creating the default row on first access.
func (s *SettingsStore) Get(ctx context.Context, userID int64) (*Settings, error) {
	query := `SELECT ` + settingsColumns + ` FROM settings WHERE user_id = ?`

	settings, err := scanSettings(s.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s.createDefault(ctx, userID)
		}
		return nil, err
	}

	return settings, nil
}

func (s *SettingsStore) createDefault(ctx context.Context, userID int64) (*Settings, error) {
	query := `
		INSERT INTO settings (user_id)
		VALUES (?)
		ON CONFLICT (user_id) DO UPDATE SET user_id = excluded.user_id
		RETURNING ` + settingsColumns

	return scanSettings(s.db.QueryRowContext(ctx, query, userID))
}

// SetPlexAutoMarkWatched toggles the automation gate for webhook processing.
func (s *SettingsStore) SetPlexAutoMarkWatched(ctx context.Context, userID int64, enabled bool) error {
	if _, err := s.Get(ctx, userID); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE settings SET plex_auto_mark_watched = ?, updated_at = CURRENT_TIMESTAMP WHERE user_id = ?`,
		enabled, userID,
	)
	return err
}

// SetAudibleAuth stores encrypted tokens and country code after a successful
// authentication against the remote Audible service.
func (s *SettingsStore) SetAudibleAuth(ctx context.Context, userID int64, encryptedAccess, encryptedRefresh, countryCode string, expiresAt *time.Time) error {
	if _, err := s.Get(ctx, userID); err != nil {
		return err
	}

	var expires sql.NullTime
	if expiresAt != nil {
		expires = sql.NullTime{Time: *expiresAt, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE settings
		SET audible_access_token = ?, audible_refresh_token = ?, audible_country_code = ?, audible_token_expires_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ?`,
		encryptedAccess, encryptedRefresh, countryCode, expires, userID,
	)
	return err
}

// UpdateAudibleAccessToken replaces the access token after a refresh.
func (s *SettingsStore) UpdateAudibleAccessToken(ctx context.Context, userID int64, encryptedAccess string, expiresAt *time.Time) error {
	var expires sql.NullTime
	if expiresAt != nil {
		expires = sql.NullTime{Time: *expiresAt, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE settings
		SET audible_access_token = ?, audible_token_expires_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ?`,
		encryptedAccess, expires, userID,
	)
	return err
}

// RecordSyncAttempt counts a sync against today's quota and sets the next
// allowed sync time. The counter resets when the stored date rolls over.
func (s *SettingsStore) RecordSyncAttempt(ctx context.Context, userID int64, today string, nextSyncAt time.Time) error {
	if _, err := s.Get(ctx, userID); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		UPDATE settings
		SET audible_sync_count = CASE WHEN audible_sync_count_date = ? THEN audible_sync_count + 1 ELSE 1 END,
			audible_sync_count_date = ?,
			audible_next_sync_at = ?,
			updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ?`,
		today, today, nextSyncAt.UTC(), userID,
	)
	return err
}
