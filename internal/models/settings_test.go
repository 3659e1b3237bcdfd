// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifelog/medialog/internal/models"
	"github.com/lifelog/medialog/internal/testdb"
)

func TestSettingsStore_GetCreatesDefaults(t *testing.T) {
	db := testdb.Open(t, "models")
	store := models.NewSettingsStore(db.Conn())

	ctx := context.Background()

	settings, err := store.Get(ctx, testUserID)
	require.NoError(t, err)
	assert.True(t, settings.PlexAutoMarkWatched)
	assert.False(t, settings.HasAudibleAuth())
	assert.Zero(t, settings.AudibleSyncCount)

	// A second Get returns the same row, not a reset one.
	require.NoError(t, store.SetPlexAutoMarkWatched(ctx, testUserID, false))

	settings, err = store.Get(ctx, testUserID)
	require.NoError(t, err)
	assert.False(t, settings.PlexAutoMarkWatched)
}

func TestSettingsStore_AudibleAuthRoundTrip(t *testing.T) {
	db := testdb.Open(t, "models")
	store := models.NewSettingsStore(db.Conn())

	ctx := context.Background()

	expires := time.Now().UTC().Add(time.Hour).Truncate(time.Second)
	require.NoError(t, store.SetAudibleAuth(ctx, testUserID, "enc-access", "enc-refresh", "uk", &expires))

	settings, err := store.Get(ctx, testUserID)
	require.NoError(t, err)
	require.True(t, settings.HasAudibleAuth())
	assert.Equal(t, "enc-access", *settings.AudibleAccessToken)
	assert.Equal(t, "enc-refresh", *settings.AudibleRefreshToken)
	assert.Equal(t, "uk", settings.AudibleCountryCode)

	require.NoError(t, store.UpdateAudibleAccessToken(ctx, testUserID, "enc-access-2", nil))

	settings, err = store.Get(ctx, testUserID)
	require.NoError(t, err)
	assert.Equal(t, "enc-access-2", *settings.AudibleAccessToken)
	assert.Equal(t, "enc-refresh", *settings.AudibleRefreshToken, "refresh token untouched")
}

func TestSettingsStore_RecordSyncAttempt(t *testing.T) {
	db := testdb.Open(t, "models")
	store := models.NewSettingsStore(db.Conn())

	ctx := context.Background()

	today := "2026-08-29"
	next := time.Now().UTC().Add(6 * time.Hour)

	require.NoError(t, store.RecordSyncAttempt(ctx, testUserID, today, next))
	require.NoError(t, store.RecordSyncAttempt(ctx, testUserID, today, next))

	settings, err := store.Get(ctx, testUserID)
	require.NoError(t, err)
	assert.Equal(t, 2, settings.AudibleSyncCount)
	assert.Equal(t, today, settings.AudibleSyncCountDate)
	require.NotNil(t, settings.AudibleNextSyncAt)

	// A new day resets the counter to 1.
	require.NoError(t, store.RecordSyncAttempt(ctx, testUserID, "2026-08-30", next))

	settings, err = store.Get(ctx, testUserID)
	require.NoError(t, err)
	assert.Equal(t, 1, settings.AudibleSyncCount)
	assert.Equal(t, "2026-08-30", settings.AudibleSyncCountDate)
}
