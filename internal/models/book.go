// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var ErrBookNotFound = errors.New("book not found")

// Book is an internal book or audiobook with listening progress.
type Book struct {
	ID              int64      `json:"id"`
	UserID          int64      `json:"userId"`
	Title           string     `json:"title"`
	Author          string     `json:"author"`
	Narrator        string     `json:"narrator"`
	ISBN            *string    `json:"isbn"`
	ASIN            *string    `json:"asin"`
	CoverURL        string     `json:"coverUrl"`
	ReleaseDate     string     `json:"releaseDate"`
	RuntimeMinutes  int        `json:"runtimeMinutes"`
	PercentComplete float64    `json:"percentComplete"`
	PositionSeconds int64      `json:"positionSeconds"`
	IsFinished      bool       `json:"isFinished"`
	FinishedDate    *time.Time `json:"finishedDate"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

// BookProgress is the subset of fields the Audible sync diffs against the
// remote library snapshot.
type BookProgress struct {
	PercentComplete float64
	PositionSeconds int64
	IsFinished      bool
}

// Changed reports whether the remote snapshot differs from the stored state.
func (p BookProgress) Changed(b *Book) bool {
	return p.PercentComplete != b.PercentComplete ||
		p.PositionSeconds != b.PositionSeconds ||
		p.IsFinished != b.IsFinished
}

type BookStore struct {
	db *sql.DB
}

func NewBookStore(db *sql.DB) *BookStore {
	return &BookStore{db: db}
}

const bookColumns = `id, user_id, title, author, narrator, isbn, asin, cover_url, release_date, runtime_minutes, percent_complete, position_seconds, is_finished, finished_date, created_at, updated_at`

func scanBook(row interface{ Scan(...any) error }) (*Book, error) {
	b := &Book{}
	var (
		isbn         sql.NullString
		asin         sql.NullString
		finishedDate sql.NullTime
	)
	err := row.Scan(
		&b.ID,
		&b.UserID,
		&b.Title,
		&b.Author,
		&b.Narrator,
		&isbn,
		&asin,
		&b.CoverURL,
		&b.ReleaseDate,
		&b.RuntimeMinutes,
		&b.PercentComplete,
		&b.PositionSeconds,
		&b.IsFinished,
		&finishedDate,
		&b.CreatedAt,
		&b.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if isbn.Valid {
		b.ISBN = &isbn.String
	}
	if asin.Valid {
		b.ASIN = &asin.String
	}
	if finishedDate.Valid {
		b.FinishedDate = &finishedDate.Time
	}
	return b, nil
}

// Create inserts a book.
func (s *BookStore) Create(ctx context.Context, userID int64, title, author string, isbn, asin *string) (*Book, error) {
	query := `
		INSERT INTO books (user_id, title, author, isbn, asin)
		VALUES (?, ?, ?, ?, ?)
		RETURNING ` + bookColumns

	var isbnArg, asinArg sql.NullString
	if isbn != nil {
		isbnArg = sql.NullString{String: *isbn, Valid: true}
	}
	if asin != nil {
		asinArg = sql.NullString{String: *asin, Valid: true}
	}

	return scanBook(s.db.QueryRowContext(ctx, query, userID, title, author, isbnArg, asinArg))
}

// GetByID returns a book by id, or ErrBookNotFound.
func (s *BookStore) GetByID(ctx context.Context, userID int64, id int64) (*Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books WHERE user_id = ? AND id = ?`

	book, err := scanBook(s.db.QueryRowContext(ctx, query, userID, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookNotFound
		}
		return nil, err
	}

	return book, nil
}

// GetByISBN returns the book with the given ISBN, or ErrBookNotFound.
func (s *BookStore) GetByISBN(ctx context.Context, userID int64, isbn string) (*Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books WHERE user_id = ? AND isbn = ?`

	book, err := scanBook(s.db.QueryRowContext(ctx, query, userID, isbn))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookNotFound
		}
		return nil, err
	}

	return book, nil
}

// List returns all books for a user.
func (s *BookStore) List(ctx context.Context, userID int64) ([]*Book, error) {
	query := `SELECT ` + bookColumns + ` FROM books WHERE user_id = ? ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	books := make([]*Book, 0)
	for rows.Next() {
		book, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, book)
	}

	return books, rows.Err()
}

// UpdateProgress writes new listening progress and appends a history row for
// trend analysis. finished_date is only set on the transition into finished,
// never overwritten on later syncs.
func (s *BookStore) UpdateProgress(ctx context.Context, userID int64, id int64, progress BookProgress) (*Book, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	query := `
		UPDATE books
		SET percent_complete = ?,
			position_seconds = ?,
			is_finished = ?,
			finished_date = CASE WHEN ? AND finished_date IS NULL THEN CURRENT_TIMESTAMP ELSE finished_date END,
			updated_at = CURRENT_TIMESTAMP
		WHERE user_id = ? AND id = ?
		RETURNING ` + bookColumns

	book, err := scanBook(tx.QueryRowContext(ctx, query,
		progress.PercentComplete,
		progress.PositionSeconds,
		progress.IsFinished,
		progress.IsFinished,
		userID,
		id,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBookNotFound
		}
		return nil, err
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO book_progress_history (book_id, percent_complete, position_seconds, is_finished) VALUES (?, ?, ?, ?)`,
		id, progress.PercentComplete, progress.PositionSeconds, progress.IsFinished,
	)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}

	return book, nil
}

// ProgressHistoryEntry is one recorded progress sample.
type ProgressHistoryEntry struct {
	ID              int64     `json:"id"`
	BookID          int64     `json:"bookId"`
	PercentComplete float64   `json:"percentComplete"`
	PositionSeconds int64     `json:"positionSeconds"`
	IsFinished      bool      `json:"isFinished"`
	RecordedAt      time.Time `json:"recordedAt"`
}

// ProgressHistory returns recorded progress samples for a book, oldest first.
func (s *BookStore) ProgressHistory(ctx context.Context, userID int64, bookID int64) ([]*ProgressHistoryEntry, error) {
	// ownership check before exposing history rows
	if _, err := s.GetByID(ctx, userID, bookID); err != nil {
		return nil, err
	}

	query := `
		SELECT id, book_id, percent_complete, position_seconds, is_finished, recorded_at
		FROM book_progress_history
		WHERE book_id = ?
		ORDER BY recorded_at, id
	`

	rows, err := s.db.QueryContext(ctx, query, bookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]*ProgressHistoryEntry, 0)
	for rows.Next() {
		e := &ProgressHistoryEntry{}
		if err := rows.Scan(&e.ID, &e.BookID, &e.PercentComplete, &e.PositionSeconds, &e.IsFinished, &e.RecordedAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}
