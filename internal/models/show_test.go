// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifelog/medialog/internal/models"
	"github.com/lifelog/medialog/internal/testdb"
)

func TestShowStore_EpisodeLifecycle(t *testing.T) {
	db := testdb.Open(t, "models")
	store := models.NewShowStore(db.Conn())

	ctx := context.Background()

	show, err := store.Create(ctx, testUserID, "Severance", intPtr(2022), int64Ptr(95396), nil)
	require.NoError(t, err)
	assert.Zero(t, show.TotalEpisodes)

	seasonID, err := store.AddSeason(ctx, show.ID, 1)
	require.NoError(t, err)

	// Adding the same season again returns the same row.
	again, err := store.AddSeason(ctx, show.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, seasonID, again)

	ep1, err := store.AddEpisode(ctx, seasonID, 1, "Good News About Hell")
	require.NoError(t, err)
	ep2, err := store.AddEpisode(ctx, seasonID, 2, "Half Loop")
	require.NoError(t, err)
	assert.NotEqual(t, ep1, ep2)

	episode, err := store.GetEpisode(ctx, show.ID, 1, 2)
	require.NoError(t, err)
	assert.Equal(t, ep2, episode.ID)
	assert.False(t, episode.Watched)

	_, err = store.GetEpisode(ctx, show.ID, 2, 1)
	assert.ErrorIs(t, err, models.ErrSeasonNotFound)

	_, err = store.GetEpisode(ctx, show.ID, 1, 9)
	assert.ErrorIs(t, err, models.ErrEpisodeNotFound)
}

func TestShowStore_MarkEpisodeWatchedIsIdempotent(t *testing.T) {
	db := testdb.Open(t, "models")
	store := models.NewShowStore(db.Conn())

	ctx := context.Background()

	show, err := store.Create(ctx, testUserID, "Andor", intPtr(2022), nil, nil)
	require.NoError(t, err)
	seasonID, err := store.AddSeason(ctx, show.ID, 1)
	require.NoError(t, err)
	epID, err := store.AddEpisode(ctx, seasonID, 1, "Kassa")
	require.NoError(t, err)

	require.NoError(t, store.MarkEpisodeWatched(ctx, epID))

	episode, err := store.GetEpisode(ctx, show.ID, 1, 1)
	require.NoError(t, err)
	assert.True(t, episode.Watched)
	require.NotNil(t, episode.DateWatched)
	firstWatched := *episode.DateWatched

	// Marking again keeps the original watch date.
	require.NoError(t, store.MarkEpisodeWatched(ctx, epID))

	episode, err = store.GetEpisode(ctx, show.ID, 1, 1)
	require.NoError(t, err)
	require.NotNil(t, episode.DateWatched)
	assert.Equal(t, firstWatched, *episode.DateWatched)
}

func TestShowStore_RecountEpisodes(t *testing.T) {
	db := testdb.Open(t, "models")
	store := models.NewShowStore(db.Conn())

	ctx := context.Background()

	show, err := store.Create(ctx, testUserID, "The Bear", intPtr(2022), nil, nil)
	require.NoError(t, err)
	seasonID, err := store.AddSeason(ctx, show.ID, 1)
	require.NoError(t, err)

	var episodeIDs []int64
	for i := 1; i <= 3; i++ {
		id, err := store.AddEpisode(ctx, seasonID, i, "")
		require.NoError(t, err)
		episodeIDs = append(episodeIDs, id)
	}

	require.NoError(t, store.MarkEpisodeWatched(ctx, episodeIDs[0]))
	require.NoError(t, store.MarkEpisodeWatched(ctx, episodeIDs[2]))

	recounted, err := store.RecountEpisodes(ctx, show.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, recounted.TotalEpisodes)
	assert.Equal(t, 2, recounted.WatchedEpisodes)
	assert.LessOrEqual(t, recounted.WatchedEpisodes, recounted.TotalEpisodes)
}
