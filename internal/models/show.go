// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var (
	ErrShowNotFound    = errors.New("show not found")
	ErrSeasonNotFound  = errors.New("season not found")
	ErrEpisodeNotFound = errors.New("episode not found")
)

// Show is an internal TV series. The watched/total episode counters are
// derived aggregates: RecountEpisodes recomputes them from the per-episode
// flags so they can never drift.
type Show struct {
	ID              int64     `json:"id"`
	UserID          int64     `json:"userId"`
	Title           string    `json:"title"`
	Year            *int      `json:"year"`
	TMDBID          *int64    `json:"tmdbId"`
	IMDBID          *string   `json:"imdbId"`
	TotalEpisodes   int       `json:"totalEpisodes"`
	WatchedEpisodes int       `json:"watchedEpisodes"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// Episode is a single episode's watch state within a season.
type Episode struct {
	ID            int64      `json:"id"`
	SeasonID      int64      `json:"seasonId"`
	EpisodeNumber int        `json:"episodeNumber"`
	Title         string     `json:"title"`
	Watched       bool       `json:"watched"`
	DateWatched   *time.Time `json:"dateWatched"`
}

type ShowStore struct {
	db *sql.DB
}

func NewShowStore(db *sql.DB) *ShowStore {
	return &ShowStore{db: db}
}

const showColumns = `id, user_id, title, year, tmdb_id, imdb_id, total_episodes, watched_episodes, created_at, updated_at`

func scanShow(row interface{ Scan(...any) error }) (*Show, error) {
	s := &Show{}
	var (
		year   sql.NullInt64
		tmdbID sql.NullInt64
		imdbID sql.NullString
	)
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.Title,
		&year,
		&tmdbID,
		&imdbID,
		&s.TotalEpisodes,
		&s.WatchedEpisodes,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if year.Valid {
		y := int(year.Int64)
		s.Year = &y
	}
	if tmdbID.Valid {
		s.TMDBID = &tmdbID.Int64
	}
	if imdbID.Valid {
		s.IMDBID = &imdbID.String
	}
	return s, nil
}

// Create inserts a show.
func (s *ShowStore) Create(ctx context.Context, userID int64, title string, year *int, tmdbID *int64, imdbID *string) (*Show, error) {
	query := `
		INSERT INTO shows (user_id, title, year, tmdb_id, imdb_id)
		VALUES (?, ?, ?, ?, ?)
		RETURNING ` + showColumns

	var yearArg, tmdbArg sql.NullInt64
	var imdbArg sql.NullString
	if year != nil {
		yearArg = sql.NullInt64{Int64: int64(*year), Valid: true}
	}
	if tmdbID != nil {
		tmdbArg = sql.NullInt64{Int64: *tmdbID, Valid: true}
	}
	if imdbID != nil {
		imdbArg = sql.NullString{String: *imdbID, Valid: true}
	}

	return scanShow(s.db.QueryRowContext(ctx, query, userID, title, yearArg, tmdbArg, imdbArg))
}

// GetByID returns a show by id, or ErrShowNotFound.
func (s *ShowStore) GetByID(ctx context.Context, userID int64, id int64) (*Show, error) {
	query := `SELECT ` + showColumns + ` FROM shows WHERE user_id = ? AND id = ?`

	show, err := scanShow(s.db.QueryRowContext(ctx, query, userID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrShowNotFound
		}
		return nil, err
	}

	return show, nil
}

// GetByTMDBID returns the show holding the given TMDB id, or ErrShowNotFound.
func (s *ShowStore) GetByTMDBID(ctx context.Context, userID int64, tmdbID int64) (*Show, error) {
	query := `SELECT ` + showColumns + ` FROM shows WHERE user_id = ? AND tmdb_id = ?`

	show, err := scanShow(s.db.QueryRowContext(ctx, query, userID, tmdbID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrShowNotFound
		}
		return nil, err
	}

	return show, nil
}

// List returns all shows for a user. The matching engine scores the full
// catalog in memory; personal libraries are small enough that a similarity
// pre-filter in SQL is not worth the coupling.
func (s *ShowStore) List(ctx context.Context, userID int64) ([]*Show, error) {
	query := `SELECT ` + showColumns + ` FROM shows WHERE user_id = ? ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	shows := make([]*Show, 0)
	for rows.Next() {
		show, err := scanShow(rows)
		if err != nil {
			return nil, err
		}
		shows = append(shows, show)
	}

	return shows, rows.Err()
}

// AddSeason inserts a season, returning its id. Existing seasons are returned
// as-is.
func (s *ShowStore) AddSeason(ctx context.Context, showID int64, seasonNumber int) (int64, error) {
	query := `
		INSERT INTO seasons (show_id, season_number)
		VALUES (?, ?)
		ON CONFLICT (show_id, season_number) DO UPDATE SET season_number = excluded.season_number
		RETURNING id
	`

	var id int64
	if err := s.db.QueryRowContext(ctx, query, showID, seasonNumber).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// AddEpisode inserts an episode into a season, returning its id.
func (s *ShowStore) AddEpisode(ctx context.Context, seasonID int64, episodeNumber int, title string) (int64, error) {
	query := `
		INSERT INTO episodes (season_id, episode_number, title)
		VALUES (?, ?, ?)
		ON CONFLICT (season_id, episode_number) DO UPDATE SET title = excluded.title
		RETURNING id
	`

	var id int64
	if err := s.db.QueryRowContext(ctx, query, seasonID, episodeNumber, title).Scan(&id); err != nil {
		return 0, err
	}
	return id, nil
}

// GetEpisode returns the watch state for (show, season, episode). The error
// distinguishes a missing season from a missing episode so the caller can
// report which level of the hierarchy is absent.
func (s *ShowStore) GetEpisode(ctx context.Context, showID int64, seasonNumber, episodeNumber int) (*Episode, error) {
	var seasonID int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM seasons WHERE show_id = ? AND season_number = ?`,
		showID, seasonNumber,
	).Scan(&seasonID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSeasonNotFound
		}
		return nil, err
	}

	e := &Episode{}
	var dateWatched sql.NullTime
	err = s.db.QueryRowContext(ctx,
		`SELECT id, season_id, episode_number, title, watched, date_watched FROM episodes WHERE season_id = ? AND episode_number = ?`,
		seasonID, episodeNumber,
	).Scan(&e.ID, &e.SeasonID, &e.EpisodeNumber, &e.Title, &e.Watched, &dateWatched)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEpisodeNotFound
		}
		return nil, err
	}
	if dateWatched.Valid {
		e.DateWatched = &dateWatched.Time
	}

	return e, nil
}

// MarkEpisodeWatched sets the watched flag and timestamp for an episode that
// is not yet watched. It must not be called for an already-watched episode;
// the guard keeps the original date_watched intact if a caller slips through.
func (s *ShowStore) MarkEpisodeWatched(ctx context.Context, episodeID int64) error {
	query := `UPDATE episodes SET watched = 1, date_watched = CURRENT_TIMESTAMP WHERE id = ? AND watched = 0`

	result, err := s.db.ExecContext(ctx, query, episodeID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrEpisodeNotFound
	}

	return nil
}

// RecountEpisodes recomputes the aggregate episode counters from the
// per-episode flags. A full recount, not an increment, so the counters always
// equal the live derived counts.
func (s *ShowStore) RecountEpisodes(ctx context.Context, showID int64) (*Show, error) {
	query := `
		UPDATE shows
		SET total_episodes = (
			SELECT COUNT(*) FROM episodes e
			JOIN seasons se ON se.id = e.season_id
			WHERE se.show_id = shows.id
		),
		watched_episodes = (
			SELECT COUNT(*) FROM episodes e
			JOIN seasons se ON se.id = e.season_id
			WHERE se.show_id = shows.id AND e.watched = 1
		),
		updated_at = CURRENT_TIMESTAMP
		WHERE id = ?
		RETURNING ` + showColumns

	show, err := scanShow(s.db.QueryRowContext(ctx, query, showID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrShowNotFound
		}
		return nil, err
	}

	return show, nil
}
