// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// ActivityStatus is the terminal outcome of a processed event or sync run.
type ActivityStatus string

const (
	ActivityStatusSuccess   ActivityStatus = "success"
	ActivityStatusFailed    ActivityStatus = "failed"
	ActivityStatusIgnored   ActivityStatus = "ignored"
	ActivityStatusDuplicate ActivityStatus = "duplicate"
)

// ActivityLogEntry is one append-only audit record. The log doubles as the
// duplicate-window oracle for webhook dedupe.
type ActivityLogEntry struct {
	ID           int64          `json:"id"`
	UserID       int64          `json:"userId"`
	EventType    string         `json:"eventType"`
	ExternalRef  string         `json:"externalRef"`
	Season       *int           `json:"season"`
	Episode      *int           `json:"episode"`
	Status       ActivityStatus `json:"status"`
	ActionTaken  string         `json:"actionTaken"`
	ErrorMessage string         `json:"errorMessage"`
	DurationMs   int64          `json:"durationMs"`
	CreatedAt    time.Time      `json:"createdAt"`
}

type ActivityLogStore struct {
	db *sql.DB
}

func NewActivityLogStore(db *sql.DB) *ActivityLogStore {
	return &ActivityLogStore{db: db}
}

const activityColumns = `id, user_id, event_type, external_ref, season, episode, status, action_taken, error_message, duration_ms, created_at`

func scanActivity(row interface{ Scan(...any) error }) (*ActivityLogEntry, error) {
	e := &ActivityLogEntry{}
	var season, episode sql.NullInt64
	err := row.Scan(
		&e.ID,
		&e.UserID,
		&e.EventType,
		&e.ExternalRef,
		&season,
		&episode,
		&e.Status,
		&e.ActionTaken,
		&e.ErrorMessage,
		&e.DurationMs,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if season.Valid {
		v := int(season.Int64)
		e.Season = &v
	}
	if episode.Valid {
		v := int(episode.Int64)
		e.Episode = &v
	}
	return e, nil
}

// Append writes one log entry and returns the stored row.
func (s *ActivityLogStore) Append(ctx context.Context, entry *ActivityLogEntry) (*ActivityLogEntry, error) {
	query := `
		INSERT INTO activity_log (user_id, event_type, external_ref, season, episode, status, action_taken, error_message, duration_ms)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING ` + activityColumns

	var season, episode sql.NullInt64
	if entry.Season != nil {
		season = sql.NullInt64{Int64: int64(*entry.Season), Valid: true}
	}
	if entry.Episode != nil {
		episode = sql.NullInt64{Int64: int64(*entry.Episode), Valid: true}
	}

	return scanActivity(s.db.QueryRowContext(ctx, query,
		entry.UserID,
		entry.EventType,
		entry.ExternalRef,
		season,
		episode,
		entry.Status,
		entry.ActionTaken,
		entry.ErrorMessage,
		entry.DurationMs,
	))
}

// HasRecentEvent reports whether an identical (externalRef, season, episode)
// event was already processed within the window. Entries that were themselves
// flagged duplicate do not extend the window, so a burst of repeats collapses
// onto the first processed event.
func (s *ActivityLogStore) HasRecentEvent(ctx context.Context, userID int64, eventType, externalRef string, season, episode *int, window time.Duration) (bool, error) {
	query := `
		SELECT COUNT(*)
		FROM activity_log
		WHERE user_id = ?
		  AND event_type = ?
		  AND external_ref = ?
		  AND season IS ?
		  AND episode IS ?
		  AND status != ?
		  AND created_at >= datetime('now', ?)
	`

	var seasonArg, episodeArg any
	if season != nil {
		seasonArg = *season
	}
	if episode != nil {
		episodeArg = *episode
	}

	// created_at rows are written with CURRENT_TIMESTAMP (UTC), so the window
	// is computed in SQL against the same clock.
	modifier := fmt.Sprintf("-%d seconds", int(window.Seconds()))

	var count int
	err := s.db.QueryRowContext(ctx, query, userID, eventType, externalRef, seasonArg, episodeArg, ActivityStatusDuplicate, modifier).Scan(&count)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// List returns entries newest first with simple offset paging.
func (s *ActivityLogStore) List(ctx context.Context, userID int64, limit, offset int) ([]*ActivityLogEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}

	query := `SELECT ` + activityColumns + ` FROM activity_log WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`

	rows, err := s.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]*ActivityLogEntry, 0)
	for rows.Next() {
		entry, err := scanActivity(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	return entries, rows.Err()
}
