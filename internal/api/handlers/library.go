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

// LibraryHandler exposes read access to the internal catalog.
type LibraryHandler struct {
	shows  *models.ShowStore
	movies *models.MovieStore
	books  *models.BookStore
}

func NewLibraryHandler(shows *models.ShowStore, movies *models.MovieStore, books *models.BookStore) *LibraryHandler {
	return &LibraryHandler{shows: shows, movies: movies, books: books}
}

func (h *LibraryHandler) Routes(r chi.Router) {
	r.Get("/shows", h.ListShows)
	r.Get("/movies", h.ListMovies)
	r.Get("/books", h.ListBooks)
	r.Get("/books/{bookID}/history", h.BookProgressHistory)
}

func (h *LibraryHandler) ListShows(w http.ResponseWriter, r *http.Request) {
	shows, err := h.shows.List(r.Context(), domain.DefaultUserID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list shows")
		RespondError(w, http.StatusInternalServerError, "Failed to list shows")
		return
	}
	RespondJSON(w, http.StatusOK, shows)
}

func (h *LibraryHandler) ListMovies(w http.ResponseWriter, r *http.Request) {
	movies, err := h.movies.List(r.Context(), domain.DefaultUserID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list movies")
		RespondError(w, http.StatusInternalServerError, "Failed to list movies")
		return
	}
	RespondJSON(w, http.StatusOK, movies)
}

func (h *LibraryHandler) ListBooks(w http.ResponseWriter, r *http.Request) {
	books, err := h.books.List(r.Context(), domain.DefaultUserID)
	if err != nil {
		log.Error().Err(err).Msg("Failed to list books")
		RespondError(w, http.StatusInternalServerError, "Failed to list books")
		return
	}
	RespondJSON(w, http.StatusOK, books)
}

// BookProgressHistory returns the recorded progress snapshots for a book,
// newest first.
func (h *LibraryHandler) BookProgressHistory(w http.ResponseWriter, r *http.Request) {
	bookID, ok := ParseIDParam(w, r, "bookID")
	if !ok {
		return
	}

	history, err := h.books.ProgressHistory(r.Context(), domain.DefaultUserID, bookID)
	if err != nil {
		if errors.Is(err, models.ErrBookNotFound) {
			RespondError(w, http.StatusNotFound, "Book not found")
			return
		}
		log.Error().Err(err).Int64("bookID", bookID).Msg("Failed to load progress history")
		RespondError(w, http.StatusInternalServerError, "Failed to load progress history")
		return
	}
	RespondJSON(w, http.StatusOK, history)
}
