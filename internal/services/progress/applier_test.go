// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package progress_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifelog/medialog/internal/models"
	"github.com/lifelog/medialog/internal/services/progress"
	"github.com/lifelog/medialog/internal/testdb"
)

const testUserID = 1

func intPtr(v int) *int { return &v }

func newApplier(t *testing.T) (*progress.Applier, *models.ShowStore, *models.MovieStore) {
	t.Helper()

	db := testdb.Open(t, "progress")
	shows := models.NewShowStore(db.Conn())
	movies := models.NewMovieStore(db.Conn())
	return progress.NewApplier(shows, movies), shows, movies
}

func TestMarkEpisodeWatched(t *testing.T) {
	applier, shows, _ := newApplier(t)
	ctx := context.Background()

	show, err := shows.Create(ctx, testUserID, "Breaking Bad", intPtr(2008), nil, nil)
	require.NoError(t, err)
	seasonID, err := shows.AddSeason(ctx, show.ID, 2)
	require.NoError(t, err)
	_, err = shows.AddEpisode(ctx, seasonID, 5, "Breakage")
	require.NoError(t, err)
	_, err = shows.AddEpisode(ctx, seasonID, 6, "Peekaboo")
	require.NoError(t, err)

	result := applier.MarkEpisodeWatched(ctx, testUserID, show.ID, 2, 5)
	assert.True(t, result.Success)
	assert.False(t, result.AlreadyWatched)
	assert.Empty(t, result.Error)

	ep, err := shows.GetEpisode(ctx, show.ID, 2, 5)
	require.NoError(t, err)
	assert.True(t, ep.Watched)
	require.NotNil(t, ep.DateWatched)
	firstWatched := *ep.DateWatched

	// Aggregates are recomputed from the per-episode flags.
	updated, err := shows.GetByID(ctx, testUserID, show.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, updated.TotalEpisodes)
	assert.Equal(t, 1, updated.WatchedEpisodes)

	// Re-applying is a reported no-op that keeps the original watch date.
	again := applier.MarkEpisodeWatched(ctx, testUserID, show.ID, 2, 5)
	assert.True(t, again.Success)
	assert.True(t, again.AlreadyWatched)

	ep, err = shows.GetEpisode(ctx, show.ID, 2, 5)
	require.NoError(t, err)
	require.NotNil(t, ep.DateWatched)
	assert.Equal(t, firstWatched, *ep.DateWatched)
}

func TestMarkEpisodeWatched_MissingTargets(t *testing.T) {
	applier, shows, _ := newApplier(t)
	ctx := context.Background()

	show, err := shows.Create(ctx, testUserID, "Breaking Bad", intPtr(2008), nil, nil)
	require.NoError(t, err)
	seasonID, err := shows.AddSeason(ctx, show.ID, 1)
	require.NoError(t, err)
	_, err = shows.AddEpisode(ctx, seasonID, 1, "Pilot")
	require.NoError(t, err)

	t.Run("unknown show", func(t *testing.T) {
		result := applier.MarkEpisodeWatched(ctx, testUserID, 9999, 1, 1)
		assert.False(t, result.Success)
		assert.Equal(t, "show 9999 not found", result.Error)
	})

	t.Run("unknown season", func(t *testing.T) {
		result := applier.MarkEpisodeWatched(ctx, testUserID, show.ID, 3, 1)
		assert.False(t, result.Success)
		assert.Contains(t, result.Error, "season 3 not found")
	})

	t.Run("unknown episode", func(t *testing.T) {
		result := applier.MarkEpisodeWatched(ctx, testUserID, show.ID, 1, 8)
		assert.False(t, result.Success)
		assert.Contains(t, result.Error, "episode S01E08 not found")
	})
}

func TestMarkMovieWatched(t *testing.T) {
	applier, _, movies := newApplier(t)
	ctx := context.Background()

	movie, err := movies.Create(ctx, testUserID, "The Matrix", intPtr(1999), nil, nil)
	require.NoError(t, err)

	result := applier.MarkMovieWatched(ctx, testUserID, movie.ID)
	assert.True(t, result.Success)
	assert.False(t, result.AlreadyWatched)

	updated, err := movies.GetByID(ctx, testUserID, movie.ID)
	require.NoError(t, err)
	assert.Equal(t, models.MovieStatusWatched, updated.Status)
	require.NotNil(t, updated.WatchedDate)
	firstWatched := *updated.WatchedDate

	again := applier.MarkMovieWatched(ctx, testUserID, movie.ID)
	assert.True(t, again.Success)
	assert.True(t, again.AlreadyWatched)

	updated, err = movies.GetByID(ctx, testUserID, movie.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.WatchedDate)
	assert.Equal(t, firstWatched, *updated.WatchedDate)
}

func TestMarkMovieWatched_UnknownMovie(t *testing.T) {
	applier, _, _ := newApplier(t)

	result := applier.MarkMovieWatched(context.Background(), testUserID, 4242)
	assert.False(t, result.Success)
	assert.Equal(t, "movie 4242 not found", result.Error)
}
