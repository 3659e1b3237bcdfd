// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package handlers_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lifelog/medialog/internal/api/handlers"
	"github.com/lifelog/medialog/internal/audible"
	"github.com/lifelog/medialog/internal/database"
	"github.com/lifelog/medialog/internal/domain"
	"github.com/lifelog/medialog/internal/metrics"
	"github.com/lifelog/medialog/internal/models"
	"github.com/lifelog/medialog/internal/services/audiblesync"
	"github.com/lifelog/medialog/internal/services/matching"
	"github.com/lifelog/medialog/internal/services/plexsync"
	"github.com/lifelog/medialog/internal/services/progress"
	"github.com/lifelog/medialog/internal/testdb"
)

func intPtr(v int) *int { return &v }

type handlerFixture struct {
	db        *database.DB
	settings  *models.SettingsStore
	mappings  *models.ExternalMappingStore
	conflicts *models.ConflictStore
	activity  *models.ActivityLogStore
	shows     *models.ShowStore
	movies    *models.MovieStore
	books     *models.BookStore
}

func newHandlerFixture(t *testing.T) *handlerFixture {
	t.Helper()

	db := testdb.Open(t, "handlers")
	conn := db.Conn()
	return &handlerFixture{
		db:        db,
		settings:  models.NewSettingsStore(conn),
		mappings:  models.NewExternalMappingStore(conn),
		conflicts: models.NewConflictStore(conn),
		activity:  models.NewActivityLogStore(conn),
		shows:     models.NewShowStore(conn),
		movies:    models.NewMovieStore(conn),
		books:     models.NewBookStore(conn),
	}
}

func (f *handlerFixture) plexSync() *plexsync.Service {
	return plexsync.NewService(
		f.settings,
		f.activity,
		matching.NewShowMatcher(f.mappings, f.conflicts, f.shows, nil),
		matching.NewMovieMatcher(f.mappings, f.conflicts, f.movies, nil),
		progress.NewApplier(f.shows, f.movies),
		nil,
		true,
	)
}

// audibleSync builds a sync service that is switched off, for exercising the
// configuration-error surface without a remote.
func (f *handlerFixture) audibleSyncDisabled() *audiblesync.Service {
	return audiblesync.NewService(
		audible.NewClient("", ""),
		f.settings,
		f.books,
		matching.NewBookMatcher(f.mappings, f.conflicts, f.books),
		f.activity,
		nil,
		metrics.NewCollector(prometheus.NewRegistry()),
		1,
		false,
	)
}

func routerFor(routes func(chi.Router), pattern string) *chi.Mux {
	r := chi.NewRouter()
	r.Route(pattern, routes)
	return r
}

func doJSON(t *testing.T, h http.Handler, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w
}

func TestHealthHandler(t *testing.T) {
	t.Parallel()

	r := routerFor(handlers.NewHealthHandler().Routes, "/healthz")
	w := doJSON(t, r, http.MethodGet, "/healthz", nil)

	assert.Equal(t, http.StatusOK, w.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestPlexWebhook_AcknowledgesProcessedEvents(t *testing.T) {
	f := newHandlerFixture(t)
	r := routerFor(handlers.NewWebhooksHandler(f.plexSync()).Routes, "/api/webhooks")

	payload := `{"event":"media.scrobble","Metadata":{"type":"movie","ratingKey":"42","guid":"plex://movie/x","title":"The Matrix","year":1999}}`

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/plex", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	// No catalog entry exists, so the pipeline raises a conflict; that is
	// still a processed event and must be acknowledged with 200.
	assert.Equal(t, http.StatusOK, w.Code)

	var outcome plexsync.Outcome
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &outcome))
	assert.Equal(t, plexsync.ActionConflictCreated, outcome.Action)
	assert.NotZero(t, outcome.ConflictID)
}

func TestPlexWebhook_MultipartPayload(t *testing.T) {
	f := newHandlerFixture(t)
	r := routerFor(handlers.NewWebhooksHandler(f.plexSync()).Routes, "/api/webhooks")

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	require.NoError(t, writer.WriteField("payload", `{"event":"media.play"}`))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/plex", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)

	var outcome plexsync.Outcome
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &outcome))
	assert.Equal(t, plexsync.ActionEventNotScrobble, outcome.Action)
}

func TestPlexWebhook_MissingPayload(t *testing.T) {
	f := newHandlerFixture(t)
	r := routerFor(handlers.NewWebhooksHandler(f.plexSync()).Routes, "/api/webhooks")

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	require.NoError(t, writer.WriteField("thumb", "ignored"))
	require.NoError(t, writer.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/plex", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPlexWebhook_DisabledIntegration(t *testing.T) {
	f := newHandlerFixture(t)

	disabled := plexsync.NewService(f.settings, f.activity, nil, nil, nil, nil, false)
	r := routerFor(handlers.NewWebhooksHandler(disabled).Routes, "/api/webhooks")

	payload := `{"event":"media.scrobble","Metadata":{"type":"movie","ratingKey":"42","guid":"plex://movie/x","title":"The Matrix","year":1999}}`

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/plex", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestAudibleAuth_NotConfigured(t *testing.T) {
	f := newHandlerFixture(t)

	handler := handlers.NewSyncHandler(f.audibleSyncDisabled())
	auth := routerFor(handler.AuthRoutes, "/api/audible")
	sync := routerFor(handler.Routes, "/api/sync")

	w := doJSON(t, auth, http.MethodPost, "/api/audible/auth", map[string]string{
		"email":    "reader@example.com",
		"password": "hunter2",
	})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	w = doJSON(t, sync, http.MethodPost, "/api/sync/audible", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestConflicts_ResolveSelect(t *testing.T) {
	f := newHandlerFixture(t)
	ctx := context.Background()

	movie, err := f.movies.Create(ctx, domain.DefaultUserID, "Dune", intPtr(2021), nil, nil)
	require.NoError(t, err)

	conflict, err := f.conflicts.Upsert(ctx, domain.DefaultUserID, models.ProviderPlexMovie, "dune-key", "Dune", intPtr(2021), models.ConflictMultipleMatches, nil)
	require.NoError(t, err)

	resolver := matching.NewResolver(f.mappings, f.conflicts)
	r := routerFor(handlers.NewConflictsHandler(f.conflicts, resolver).Routes, "/api/conflicts")

	w := doJSON(t, r, http.MethodPost, "/api/conflicts/"+itoa(conflict.ID)+"/resolve", map[string]any{
		"action":     "select",
		"internalId": movie.ID,
	})
	assert.Equal(t, http.StatusOK, w.Code)

	// The manual mapping now routes future events for this rating key.
	mapping, err := f.mappings.GetByExternalID(ctx, domain.DefaultUserID, models.ProviderPlexMovie, "dune-key")
	require.NoError(t, err)
	require.NotNil(t, mapping.InternalID)
	assert.Equal(t, movie.ID, *mapping.InternalID)
	assert.Equal(t, models.MatchMethodManual, mapping.Method)

	// Resolving again is a stale-queue error.
	again := doJSON(t, r, http.MethodPost, "/api/conflicts/"+itoa(conflict.ID)+"/resolve", map[string]any{
		"action":     "select",
		"internalId": movie.ID,
	})
	assert.Equal(t, http.StatusConflict, again.Code)
}

func TestConflicts_ResolveValidation(t *testing.T) {
	f := newHandlerFixture(t)
	ctx := context.Background()

	conflict, err := f.conflicts.Upsert(ctx, domain.DefaultUserID, models.ProviderPlexShow, "k1", "Foo", nil, models.ConflictNoMatch, nil)
	require.NoError(t, err)

	resolver := matching.NewResolver(f.mappings, f.conflicts)
	r := routerFor(handlers.NewConflictsHandler(f.conflicts, resolver).Routes, "/api/conflicts")

	t.Run("unknown action", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, "/api/conflicts/"+itoa(conflict.ID)+"/resolve", map[string]any{"action": "defer"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("select without internalId", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, "/api/conflicts/"+itoa(conflict.ID)+"/resolve", map[string]any{"action": "select"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown conflict", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, "/api/conflicts/99999/resolve", map[string]any{"action": "ignore"})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("invalid id param", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPost, "/api/conflicts/zero/resolve", map[string]any{"action": "ignore"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestSettings_TokensAreRedacted(t *testing.T) {
	f := newHandlerFixture(t)
	ctx := context.Background()

	require.NoError(t, f.settings.SetAudibleAuth(ctx, domain.DefaultUserID, "aa:bb:cc", "dd:ee:ff", "us", nil))

	r := routerFor(handlers.NewSettingsHandler(f.settings).Routes, "/api/settings")
	w := doJSON(t, r, http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusOK, w.Code)

	assert.NotContains(t, w.Body.String(), "aa:bb:cc")
	assert.NotContains(t, w.Body.String(), "dd:ee:ff")

	var resp struct {
		AudibleAuthorized  bool   `json:"audibleAuthorized"`
		AudibleAccessToken string `json:"audibleAccessToken"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.AudibleAuthorized)
	assert.True(t, domain.IsRedactedValue(resp.AudibleAccessToken))
}

func TestSettings_Update(t *testing.T) {
	f := newHandlerFixture(t)
	ctx := context.Background()

	require.NoError(t, f.settings.SetAudibleAuth(ctx, domain.DefaultUserID, "aa:bb:cc", "dd:ee:ff", "us", nil))
	r := routerFor(handlers.NewSettingsHandler(f.settings).Routes, "/api/settings")

	t.Run("toggles auto mark", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPut, "/api/settings", map[string]any{"plexAutoMarkWatched": false})
		require.Equal(t, http.StatusOK, w.Code)

		settings, err := f.settings.Get(ctx, domain.DefaultUserID)
		require.NoError(t, err)
		assert.False(t, settings.PlexAutoMarkWatched)
	})

	t.Run("accepts redacted token echo", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPut, "/api/settings", map[string]any{
			"plexAutoMarkWatched": true,
			"audibleAccessToken":  strings.Repeat("*", 8),
		})
		require.Equal(t, http.StatusOK, w.Code)

		// The stored token is untouched.
		settings, err := f.settings.Get(ctx, domain.DefaultUserID)
		require.NoError(t, err)
		require.NotNil(t, settings.AudibleAccessToken)
		assert.Equal(t, "aa:bb:cc", *settings.AudibleAccessToken)
	})

	t.Run("rejects raw token writes", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPut, "/api/settings", map[string]any{"audibleAccessToken": "new-token"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestActivity_ListPaging(t *testing.T) {
	f := newHandlerFixture(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := f.activity.Append(ctx, &models.ActivityLogEntry{
			UserID:      domain.DefaultUserID,
			EventType:   "media.scrobble",
			ExternalRef: "ref",
			Status:      models.ActivityStatusSuccess,
			ActionTaken: "marked_watched",
		})
		require.NoError(t, err)
	}

	r := routerFor(handlers.NewActivityHandler(f.activity).Routes, "/api/activity")

	w := doJSON(t, r, http.MethodGet, "/api/activity?limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var entries []models.ActivityLogEntry
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &entries))
	assert.Len(t, entries, 2)
}

func TestMappings_ListAndRelink(t *testing.T) {
	f := newHandlerFixture(t)
	ctx := context.Background()

	first, err := f.movies.Create(ctx, domain.DefaultUserID, "Dune", intPtr(1984), nil, nil)
	require.NoError(t, err)
	second, err := f.movies.Create(ctx, domain.DefaultUserID, "Dune", intPtr(2021), nil, nil)
	require.NoError(t, err)

	mapping, _, err := f.mappings.Create(ctx, domain.DefaultUserID, models.ProviderPlexMovie, "dune-key", &first.ID, 1.0, models.MatchMethodIDExact)
	require.NoError(t, err)

	r := routerFor(handlers.NewMappingsHandler(f.mappings).Routes, "/api/mappings")

	t.Run("list filters by provider", func(t *testing.T) {
		w := doJSON(t, r, http.MethodGet, "/api/mappings?provider=plex_movie", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var mappings []models.ExternalMapping
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &mappings))
		assert.Len(t, mappings, 1)
	})

	t.Run("rejects unknown provider", func(t *testing.T) {
		w := doJSON(t, r, http.MethodGet, "/api/mappings?provider=netflix", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("relink repoints the mapping", func(t *testing.T) {
		w := doJSON(t, r, http.MethodPut, "/api/mappings/"+itoa(mapping.ID), map[string]any{"internalId": second.ID})
		require.Equal(t, http.StatusOK, w.Code)

		updated, err := f.mappings.GetByID(ctx, domain.DefaultUserID, mapping.ID)
		require.NoError(t, err)
		require.NotNil(t, updated.InternalID)
		assert.Equal(t, second.ID, *updated.InternalID)
		assert.Equal(t, models.MatchMethodManual, updated.Method)
	})
}

func itoa(v int64) string {
	return strconv.FormatInt(v, 10)
}
