// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package audiblesync pulls the full Audible library snapshot and reconciles
// it against the local book catalog. Unlike the webhook pipeline this is a
// pull-based batch job: every item is matched independently, and progress is
// only written when the remote snapshot actually differs from stored state.
package audiblesync

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/avast/retry-go"
	"github.com/rs/zerolog/log"

	"github.com/lifelog/medialog/internal/audible"
	"github.com/lifelog/medialog/internal/crypto"
	"github.com/lifelog/medialog/internal/metrics"
	"github.com/lifelog/medialog/internal/models"
	"github.com/lifelog/medialog/internal/services/matching"
)

var (
	// ErrRateLimited means the per-day quota is spent or the cooldown has
	// not elapsed. No remote call is made in either case.
	ErrRateLimited = errors.New("audible sync rate limit reached")
	// ErrNotAuthenticated means no tokens are on file for the user.
	ErrNotAuthenticated = errors.New("audible account not authenticated")
	// ErrNotConfigured means the integration is switched off or the host is
	// missing the encryption key that protects its tokens.
	ErrNotConfigured = errors.New("audible sync is not configured")
)

// Result summarizes one sync run.
type Result struct {
	BooksProcessed int      `json:"booksProcessed"`
	BooksUpdated   int      `json:"booksUpdated"`
	NewMappings    int      `json:"newMappings"`
	Conflicts      int      `json:"conflicts"`
	Errors         []string `json:"errors,omitempty"`
}

type Service struct {
	client         *audible.Client
	settings       *models.SettingsStore
	books          *models.BookStore
	matcher        *matching.BookMatcher
	activity       *models.ActivityLogStore
	encryptor      *crypto.Encryptor
	metrics        *metrics.Collector
	dailySyncLimit int
	enabled        bool
}

func NewService(
	client *audible.Client,
	settings *models.SettingsStore,
	books *models.BookStore,
	matcher *matching.BookMatcher,
	activity *models.ActivityLogStore,
	encryptor *crypto.Encryptor,
	collector *metrics.Collector,
	dailySyncLimit int,
	enabled bool,
) *Service {
	if dailySyncLimit < 1 {
		dailySyncLimit = 1
	}
	return &Service{
		client:         client,
		settings:       settings,
		books:          books,
		matcher:        matcher,
		activity:       activity,
		encryptor:      encryptor,
		metrics:        collector,
		dailySyncLimit: dailySyncLimit,
		enabled:        enabled,
	}
}

// configured rejects any operation before the integration is usable: the
// toggle must be on and tokens must be encryptable at rest.
func (s *Service) configured() error {
	if !s.enabled {
		return ErrNotConfigured
	}
	if s.encryptor == nil {
		return fmt.Errorf("%w: encryption key missing", ErrNotConfigured)
	}
	return nil
}

// Authenticate runs the initial Audible login and stores the returned tokens
// encrypted at rest. The remote service already hands us opaque encrypted
// tokens; we wrap them in our own envelope so a database dump alone is never
// enough to replay them.
func (s *Service) Authenticate(ctx context.Context, userID int64, email, password, countryCode string) error {
	if err := s.configured(); err != nil {
		return err
	}

	resp, err := s.client.Authenticate(ctx, audible.AuthRequest{
		Email:       email,
		Password:    password,
		CountryCode: countryCode,
	})
	if err != nil {
		return err
	}

	encAccess, err := s.encryptor.Encrypt(resp.AccessToken)
	if err != nil {
		return fmt.Errorf("encrypt access token: %w", err)
	}
	encRefresh, err := s.encryptor.Encrypt(resp.RefreshToken)
	if err != nil {
		return fmt.Errorf("encrypt refresh token: %w", err)
	}

	expiresAt := parseExpiry(resp.ExpiresAt)
	if countryCode == "" {
		countryCode = "us"
	}
	if err := s.settings.SetAudibleAuth(ctx, userID, encAccess, encRefresh, countryCode, expiresAt); err != nil {
		return fmt.Errorf("store audible auth: %w", err)
	}

	log.Info().Int64("userID", userID).Str("countryCode", countryCode).Msg("Audible account authenticated")
	return nil
}

// Sync fetches the remote library and reconciles every item. The rate limit
// is checked before any remote call; a spent quota never costs an API hit.
func (s *Service) Sync(ctx context.Context, userID int64) (*Result, error) {
	if err := s.configured(); err != nil {
		return nil, err
	}

	start := time.Now()

	settings, err := s.settings.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !settings.HasAudibleAuth() {
		return nil, ErrNotAuthenticated
	}
	if err := s.checkRateLimit(settings); err != nil {
		return nil, err
	}

	remote, err := s.fetchLibrary(ctx, userID, settings)

	// The attempt counts against the quota whether or not the fetch
	// succeeded; a failing remote still consumed a remote call.
	today := time.Now().UTC().Format("2006-01-02")
	nextAt := time.Now().UTC().Add(24 * time.Hour / time.Duration(s.dailySyncLimit))
	if recErr := s.settings.RecordSyncAttempt(ctx, userID, today, nextAt); recErr != nil {
		log.Error().Err(recErr).Int64("userID", userID).Msg("Failed to record sync attempt")
	}

	if err != nil {
		s.logRun(ctx, userID, models.ActivityStatusFailed, nil, err.Error(), time.Since(start))
		s.metrics.SyncRuns.WithLabelValues("failed").Inc()
		return nil, err
	}

	result := s.reconcile(ctx, userID, remote)

	status := models.ActivityStatusSuccess
	if len(result.Errors) > 0 {
		status = models.ActivityStatusFailed
	}
	s.logRun(ctx, userID, status, result, strings.Join(result.Errors, "; "), time.Since(start))
	s.metrics.SyncRuns.WithLabelValues(string(status)).Inc()

	log.Info().
		Int64("userID", userID).
		Int("processed", result.BooksProcessed).
		Int("updated", result.BooksUpdated).
		Int("newMappings", result.NewMappings).
		Int("conflicts", result.Conflicts).
		Int("errors", len(result.Errors)).
		Dur("elapsed", time.Since(start)).
		Msg("Audible library sync finished")

	return result, nil
}

func (s *Service) checkRateLimit(settings *models.Settings) error {
	today := time.Now().UTC().Format("2006-01-02")
	if settings.AudibleSyncCountDate == today && settings.AudibleSyncCount >= s.dailySyncLimit {
		return fmt.Errorf("%w: %d of %d syncs used today", ErrRateLimited, settings.AudibleSyncCount, s.dailySyncLimit)
	}
	if settings.AudibleNextSyncAt != nil && time.Now().UTC().Before(*settings.AudibleNextSyncAt) {
		return fmt.Errorf("%w: next sync allowed at %s", ErrRateLimited, settings.AudibleNextSyncAt.UTC().Format(time.RFC3339))
	}
	return nil
}

// fetchLibrary fetches the full remote snapshot, refreshing the access token
// exactly once on an auth failure and retrying the whole fetch. A second
// auth failure is fatal.
func (s *Service) fetchLibrary(ctx context.Context, userID int64, settings *models.Settings) ([]audible.Book, error) {
	accessToken, err := s.encryptor.Decrypt(*settings.AudibleAccessToken)
	if err != nil {
		return nil, fmt.Errorf("decrypt access token: %w", err)
	}
	refreshToken, err := s.encryptor.Decrypt(*settings.AudibleRefreshToken)
	if err != nil {
		return nil, fmt.Errorf("decrypt refresh token: %w", err)
	}

	var books []audible.Book
	err = retry.Do(
		func() error {
			fetched, fetchErr := s.client.FetchLibrary(ctx, accessToken, refreshToken, settings.AudibleCountryCode)
			if fetchErr != nil {
				return fetchErr
			}
			books = fetched
			return nil
		},
		retry.Attempts(2),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return errors.Is(err, audible.ErrUnauthorized)
		}),
		retry.OnRetry(func(_ uint, _ error) {
			log.Warn().Int64("userID", userID).Msg("Audible token expired, refreshing and retrying fetch")
			refreshed, refreshErr := s.client.RefreshToken(ctx, refreshToken, settings.AudibleCountryCode)
			if refreshErr != nil {
				log.Error().Err(refreshErr).Int64("userID", userID).Msg("Audible token refresh failed")
				return
			}
			accessToken = refreshed.AccessToken
			if encAccess, encErr := s.encryptor.Encrypt(refreshed.AccessToken); encErr == nil {
				if storeErr := s.settings.UpdateAudibleAccessToken(ctx, userID, encAccess, parseExpiry(refreshed.ExpiresAt)); storeErr != nil {
					log.Error().Err(storeErr).Int64("userID", userID).Msg("Failed to persist refreshed access token")
				}
			}
		}),
	)
	if err != nil {
		return nil, err
	}
	return books, nil
}

// reconcile runs match-or-map plus a progress diff for every remote item.
// Item failures are collected, never fatal: one broken book must not abort
// the rest of the library.
func (s *Service) reconcile(ctx context.Context, userID int64, remote []audible.Book) *Result {
	result := &Result{}

	for i := range remote {
		item := &remote[i]
		result.BooksProcessed++

		updated, mapped, conflicted, err := s.syncBook(ctx, userID, item)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s (%s): %v", item.Title, item.ASIN, err))
			log.Error().Err(err).Str("asin", item.ASIN).Str("title", item.Title).Msg("Failed to sync audible book")
			continue
		}
		if updated {
			result.BooksUpdated++
		}
		if mapped {
			result.NewMappings++
		}
		if conflicted {
			result.Conflicts++
		}
	}

	return result
}

func (s *Service) syncBook(ctx context.Context, userID int64, item *audible.Book) (updated, mapped, conflicted bool, err error) {
	match, err := s.matcher.FindOrCreateMapping(ctx, userID, matching.ExternalBook{
		ASIN:   item.ASIN,
		Title:  item.Title,
		Author: strings.Join(item.Authors, ", "),
		ISBN:   item.ISBN,
		Year:   releaseYear(item.ReleaseDate),
	})
	if err != nil {
		return false, false, false, err
	}
	if match.Created {
		s.metrics.MatchesCreated.WithLabelValues(string(match.Method)).Inc()
	}
	if match.NeedsConflict {
		s.metrics.ConflictsRaised.WithLabelValues(string(match.ConflictType)).Inc()
		return false, match.Created, true, nil
	}
	if match.InternalID == nil {
		return false, match.Created, false, errors.New("mapping has no internal book")
	}

	book, err := s.books.GetByID(ctx, userID, *match.InternalID)
	if err != nil {
		return false, match.Created, false, err
	}

	progress := models.BookProgress{
		PercentComplete: item.PercentComplete,
		PositionSeconds: item.PositionSeconds,
		IsFinished:      item.IsFinished,
	}
	if !progress.Changed(book) {
		return false, match.Created, false, nil
	}

	if _, err := s.books.UpdateProgress(ctx, userID, book.ID, progress); err != nil {
		return false, match.Created, false, err
	}
	return true, match.Created, false, nil
}

func (s *Service) logRun(ctx context.Context, userID int64, status models.ActivityStatus, result *Result, errMsg string, elapsed time.Duration) {
	action := "library_synced"
	if result != nil {
		action = fmt.Sprintf("library_synced processed=%d updated=%d mappings=%d conflicts=%d", result.BooksProcessed, result.BooksUpdated, result.NewMappings, result.Conflicts)
	}
	_, err := s.activity.Append(ctx, &models.ActivityLogEntry{
		UserID:       userID,
		EventType:    "audible.sync",
		ExternalRef:  "audible",
		Status:       status,
		ActionTaken:  action,
		ErrorMessage: errMsg,
		DurationMs:   elapsed.Milliseconds(),
	})
	if err != nil {
		log.Error().Err(err).Int64("userID", userID).Msg("Failed to record sync activity")
	}
}

// releaseYear pulls the year out of the remote release_date, which arrives
// as either a full date or a bare year.
func releaseYear(releaseDate string) *int {
	if len(releaseDate) < 4 {
		return nil
	}
	year, err := strconv.Atoi(releaseDate[:4])
	if err != nil || year <= 0 {
		return nil
	}
	return &year
}

func parseExpiry(value string) *time.Time {
	if value == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05.999999", "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, value); err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}
