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

func intPtr(v int) *int { return &v }

func TestConflictStore_UpsertDedupesPending(t *testing.T) {
	db := testdb.Open(t, "models")
	store := models.NewConflictStore(db.Conn())

	ctx := context.Background()

	matches := []models.PotentialMatch{
		{InternalID: 1, Title: "Dune", Score: 0.95},
		{InternalID: 2, Title: "Dune", Score: 0.95},
	}

	first, err := store.Upsert(ctx, testUserID, models.ProviderPlexMovie, "guid-dune", "Dune", intPtr(2021), models.ConflictMultipleMatches, matches)
	require.NoError(t, err)
	assert.False(t, first.Resolved)
	assert.Len(t, first.PotentialMatches, 2)

	// Re-raising the same pending conflict refreshes the row instead of
	// stacking a second one.
	second, err := store.Upsert(ctx, testUserID, models.ProviderPlexMovie, "guid-dune", "Dune", intPtr(2021), models.ConflictMultipleMatches, matches[:1])
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Len(t, second.PotentialMatches, 1)

	pending, err := store.ListPending(ctx, testUserID)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestConflictStore_Resolve(t *testing.T) {
	db := testdb.Open(t, "models")
	store := models.NewConflictStore(db.Conn())

	ctx := context.Background()

	conflict, err := store.Upsert(ctx, testUserID, models.ProviderPlexShow, "guid-foo", "Foo", nil, models.ConflictNoMatch, nil)
	require.NoError(t, err)

	resolved, err := store.Resolve(ctx, testUserID, conflict.ID, models.ResolutionSelect, int64Ptr(11))
	require.NoError(t, err)
	assert.True(t, resolved.Resolved)
	require.NotNil(t, resolved.ResolutionAction)
	assert.Equal(t, models.ResolutionSelect, *resolved.ResolutionAction)
	require.NotNil(t, resolved.ResolvedInternalID)
	assert.Equal(t, int64(11), *resolved.ResolvedInternalID)
	assert.NotNil(t, resolved.ResolvedAt)

	// Second resolution is rejected, not silently reapplied.
	_, err = store.Resolve(ctx, testUserID, conflict.ID, models.ResolutionIgnore, nil)
	assert.ErrorIs(t, err, models.ErrConflictAlreadyResolved)

	_, err = store.Resolve(ctx, testUserID, 99999, models.ResolutionIgnore, nil)
	assert.ErrorIs(t, err, models.ErrConflictNotFound)
}

func TestConflictStore_ReRaiseAfterResolve(t *testing.T) {
	db := testdb.Open(t, "models")
	store := models.NewConflictStore(db.Conn())

	ctx := context.Background()

	first, err := store.Upsert(ctx, testUserID, models.ProviderAudibleBook, "B0RERAISE", "Some Book", nil, models.ConflictNoMatch, nil)
	require.NoError(t, err)

	_, err = store.Resolve(ctx, testUserID, first.ID, models.ResolutionIgnore, nil)
	require.NoError(t, err)

	// An ignore is not permanent: the same external item can come back as a
	// fresh pending conflict on the next sync.
	second, err := store.Upsert(ctx, testUserID, models.ProviderAudibleBook, "B0RERAISE", "Some Book", nil, models.ConflictNoMatch, nil)
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.False(t, second.Resolved)

	pending, err := store.GetPending(ctx, testUserID, models.ProviderAudibleBook, "B0RERAISE")
	require.NoError(t, err)
	assert.Equal(t, second.ID, pending.ID)
}

func TestConflictStore_GetPending(t *testing.T) {
	db := testdb.Open(t, "models")
	store := models.NewConflictStore(db.Conn())

	ctx := context.Background()

	_, err := store.GetPending(ctx, testUserID, models.ProviderPlexShow, "nothing")
	assert.ErrorIs(t, err, models.ErrConflictNotFound)

	created, err := store.Upsert(ctx, testUserID, models.ProviderPlexShow, "guid-pending", "Bar", intPtr(2020), models.ConflictAmbiguous, nil)
	require.NoError(t, err)

	found, err := store.GetPending(ctx, testUserID, models.ProviderPlexShow, "guid-pending")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.Equal(t, models.ConflictAmbiguous, found.ConflictType)
}
