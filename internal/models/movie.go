// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var ErrMovieNotFound = errors.New("movie not found")

const (
	MovieStatusUnwatched = "unwatched"
	MovieStatusWatched   = "watched"
)

type Movie struct {
	ID          int64      `json:"id"`
	UserID      int64      `json:"userId"`
	Title       string     `json:"title"`
	Year        *int       `json:"year"`
	TMDBID      *int64     `json:"tmdbId"`
	IMDBID      *string    `json:"imdbId"`
	Status      string     `json:"status"`
	WatchedDate *time.Time `json:"watchedDate"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

type MovieStore struct {
	db *sql.DB
}

func NewMovieStore(db *sql.DB) *MovieStore {
	return &MovieStore{db: db}
}

const movieColumns = `id, user_id, title, year, tmdb_id, imdb_id, status, watched_date, created_at, updated_at`

func scanMovie(row interface{ Scan(...any) error }) (*Movie, error) {
	m := &Movie{}
	var (
		year        sql.NullInt64
		tmdbID      sql.NullInt64
		imdbID      sql.NullString
		watchedDate sql.NullTime
	)
	err := row.Scan(
		&m.ID,
		&m.UserID,
		&m.Title,
		&year,
		&tmdbID,
		&imdbID,
		&m.Status,
		&watchedDate,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if year.Valid {
		y := int(year.Int64)
		m.Year = &y
	}
	if tmdbID.Valid {
		m.TMDBID = &tmdbID.Int64
	}
	if imdbID.Valid {
		m.IMDBID = &imdbID.String
	}
	if watchedDate.Valid {
		m.WatchedDate = &watchedDate.Time
	}
	return m, nil
}

// Create inserts a movie.
func (s *MovieStore) Create(ctx context.Context, userID int64, title string, year *int, tmdbID *int64, imdbID *string) (*Movie, error) {
	query := `
		INSERT INTO movies (user_id, title, year, tmdb_id, imdb_id)
		VALUES (?, ?, ?, ?, ?)
		RETURNING ` + movieColumns

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

	return scanMovie(s.db.QueryRowContext(ctx, query, userID, title, yearArg, tmdbArg, imdbArg))
}

// GetByID returns a movie by id, or ErrMovieNotFound.
func (s *MovieStore) GetByID(ctx context.Context, userID int64, id int64) (*Movie, error) {
	query := `SELECT ` + movieColumns + ` FROM movies WHERE user_id = ? AND id = ?`

	movie, err := scanMovie(s.db.QueryRowContext(ctx, query, userID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMovieNotFound
		}
		return nil, err
	}

	return movie, nil
}

// GetByTMDBID returns the movie holding the given TMDB id, or ErrMovieNotFound.
func (s *MovieStore) GetByTMDBID(ctx context.Context, userID int64, tmdbID int64) (*Movie, error) {
	query := `SELECT ` + movieColumns + ` FROM movies WHERE user_id = ? AND tmdb_id = ?`

	movie, err := scanMovie(s.db.QueryRowContext(ctx, query, userID, tmdbID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrMovieNotFound
		}
		return nil, err
	}

	return movie, nil
}

// List returns all movies for a user.
func (s *MovieStore) List(ctx context.Context, userID int64) ([]*Movie, error) {
	query := `SELECT ` + movieColumns + ` FROM movies WHERE user_id = ? ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	movies := make([]*Movie, 0)
	for rows.Next() {
		movie, err := scanMovie(rows)
		if err != nil {
			return nil, err
		}
		movies = append(movies, movie)
	}

	return movies, rows.Err()
}

// MarkWatched sets a movie watched with the current timestamp. Only movies not
// already watched are updated, preserving the original watched_date.
func (s *MovieStore) MarkWatched(ctx context.Context, userID int64, id int64) error {
	query := `
		UPDATE movies
		SET status = ?, watched_date = CURRENT_TIMESTAMP, updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ? AND id = ? AND status != ?
	`

	result, err := s.db.ExecContext(ctx, query, MovieStatusWatched, userID, id, MovieStatusWatched)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrMovieNotFound
	}

	return nil
}
