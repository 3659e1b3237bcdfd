// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package progress mutates internal watch state under the sync subsystem's
// direction. All mutations are idempotent: re-applying an event that already
// took effect is a reported no-op, never an overwrite.
package progress

import (
	"context"
	"errors"
	"fmt"

	"github.com/lifelog/medialog/internal/models"
)

// ApplyResult reports one watch-state mutation. Failure is a structured
// outcome, not an error return, so the orchestrator can log and continue.
type ApplyResult struct {
	Success        bool
	AlreadyWatched bool
	Error          string
}

// Applier mutates episode and movie watch state.
type Applier struct {
	shows  *models.ShowStore
	movies *models.MovieStore
}

func NewApplier(shows *models.ShowStore, movies *models.MovieStore) *Applier {
	return &Applier{
		shows:  shows,
		movies: movies,
	}
}

// MarkEpisodeWatched marks one episode watched and recomputes the show's
// aggregate counters. An already-watched episode keeps its original
// date_watched.
func (a *Applier) MarkEpisodeWatched(ctx context.Context, userID int64, showID int64, season, episode int) ApplyResult {
	if _, err := a.shows.GetByID(ctx, userID, showID); err != nil {
		if errors.Is(err, models.ErrShowNotFound) {
			return ApplyResult{Error: fmt.Sprintf("show %d not found", showID)}
		}
		return ApplyResult{Error: err.Error()}
	}

	ep, err := a.shows.GetEpisode(ctx, showID, season, episode)
	if err != nil {
		switch {
		case errors.Is(err, models.ErrSeasonNotFound):
			return ApplyResult{Error: fmt.Sprintf("season %d not found for show %d", season, showID)}
		case errors.Is(err, models.ErrEpisodeNotFound):
			return ApplyResult{Error: fmt.Sprintf("episode S%02dE%02d not found for show %d", season, episode, showID)}
		default:
			return ApplyResult{Error: err.Error()}
		}
	}

	if ep.Watched {
		return ApplyResult{Success: true, AlreadyWatched: true}
	}

	if err := a.shows.MarkEpisodeWatched(ctx, ep.ID); err != nil {
		return ApplyResult{Error: err.Error()}
	}

	// Recompute aggregates from the per-episode flags rather than
	// incrementing, so the counters cannot drift from the derived truth.
	if _, err := a.shows.RecountEpisodes(ctx, showID); err != nil {
		return ApplyResult{Error: fmt.Sprintf("recount episodes for show %d: %v", showID, err)}
	}

	return ApplyResult{Success: true}
}

// MarkMovieWatched marks a movie watched. An already-watched movie keeps its
// original watched_date.
func (a *Applier) MarkMovieWatched(ctx context.Context, userID int64, movieID int64) ApplyResult {
	movie, err := a.movies.GetByID(ctx, userID, movieID)
	if err != nil {
		if errors.Is(err, models.ErrMovieNotFound) {
			return ApplyResult{Error: fmt.Sprintf("movie %d not found", movieID)}
		}
		return ApplyResult{Error: err.Error()}
	}

	if movie.Status == models.MovieStatusWatched {
		return ApplyResult{Success: true, AlreadyWatched: true}
	}

	if err := a.movies.MarkWatched(ctx, userID, movieID); err != nil {
		return ApplyResult{Error: err.Error()}
	}

	return ApplyResult{Success: true}
}
