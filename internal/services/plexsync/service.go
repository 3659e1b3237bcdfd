// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package plexsync orchestrates inbound Plex webhook events through the
// validate, dedupe, match, apply, log pipeline. Every terminal state writes
// one activity-log entry; the log doubles as the dedupe oracle for repeats.
package plexsync

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/lifelog/medialog/internal/metrics"
	"github.com/lifelog/medialog/internal/models"
	"github.com/lifelog/medialog/internal/plex"
	"github.com/lifelog/medialog/internal/services/matching"
	"github.com/lifelog/medialog/internal/services/progress"
)

// DuplicateWindow guards against Plex firing the same scrobble repeatedly.
const DuplicateWindow = 5 * time.Minute

// ErrDisabled means Plex webhook ingestion is switched off in the host
// configuration. Events are rejected before any state is touched.
var ErrDisabled = errors.New("plex webhook ingestion is not enabled")

// Action strings recorded in the activity log.
const (
	ActionEventNotScrobble = "event_not_scrobble"
	ActionNotSupportedType = "not_supported_type"
	ActionValidationFailed = "validation_failed"
	ActionIgnoredDuplicate = "ignored_duplicate"
	ActionAutoMarkDisabled = "auto_mark_disabled"
	ActionConflictCreated  = "conflict_created"
	ActionMarkedWatched    = "marked_watched"
	ActionAlreadyWatched   = "already_watched"
	ActionApplyFailed      = "apply_failed"
)

// Outcome is the terminal state of one processed webhook event.
type Outcome struct {
	Status     models.ActivityStatus `json:"status"`
	Action     string                `json:"action"`
	Error      string                `json:"error,omitempty"`
	ConflictID int64                 `json:"conflictId,omitempty"`
}

type Service struct {
	settings     *models.SettingsStore
	activity     *models.ActivityLogStore
	showMatcher  *matching.ShowMatcher
	movieMatcher *matching.MovieMatcher
	applier      *progress.Applier
	metrics      *metrics.Collector
	enabled      bool
}

func NewService(
	settings *models.SettingsStore,
	activity *models.ActivityLogStore,
	showMatcher *matching.ShowMatcher,
	movieMatcher *matching.MovieMatcher,
	applier *progress.Applier,
	collector *metrics.Collector,
	enabled bool,
) *Service {
	return &Service{
		settings:     settings,
		activity:     activity,
		showMatcher:  showMatcher,
		movieMatcher: movieMatcher,
		applier:      applier,
		metrics:      collector,
		enabled:      enabled,
	}
}

// ProcessWebhook runs one webhook payload through the pipeline. The returned
// error only reports infrastructure failures (the integration being disabled,
// the activity log being unwritable); every event-level failure is captured
// in the Outcome and acknowledged upstream so Plex does not retry-storm.
func (s *Service) ProcessWebhook(ctx context.Context, userID int64, hook *plex.Webhook) (*Outcome, error) {
	if !s.enabled {
		return nil, ErrDisabled
	}

	start := time.Now()

	entry := &models.ActivityLogEntry{
		UserID:    userID,
		EventType: hook.Event,
	}

	outcome := s.process(ctx, userID, hook, entry)

	entry.Status = outcome.Status
	entry.ActionTaken = outcome.Action
	entry.ErrorMessage = outcome.Error
	entry.DurationMs = time.Since(start).Milliseconds()

	if _, err := s.activity.Append(ctx, entry); err != nil {
		log.Error().Err(err).Str("eventType", hook.Event).Msg("failed to write activity log entry")
		return outcome, err
	}

	if s.metrics != nil {
		s.metrics.WebhookEvents.WithLabelValues(string(outcome.Status)).Inc()
	}

	log.Debug().
		Str("eventType", hook.Event).
		Str("status", string(outcome.Status)).
		Str("action", outcome.Action).
		Int64("durationMs", entry.DurationMs).
		Msg("webhook processed")

	return outcome, nil
}

func (s *Service) process(ctx context.Context, userID int64, hook *plex.Webhook, entry *models.ActivityLogEntry) *Outcome {
	if hook.Event != plex.EventScrobble {
		return &Outcome{Status: models.ActivityStatusIgnored, Action: ActionEventNotScrobble}
	}

	switch hook.Metadata.Type {
	case plex.MetadataTypeEpisode:
		return s.processEpisode(ctx, userID, hook, entry)
	case plex.MetadataTypeMovie:
		return s.processMovie(ctx, userID, hook, entry)
	default:
		return &Outcome{Status: models.ActivityStatusIgnored, Action: ActionNotSupportedType}
	}
}

func (s *Service) processEpisode(ctx context.Context, userID int64, hook *plex.Webhook, entry *models.ActivityLogEntry) *Outcome {
	event, err := hook.EpisodeEvent()
	if err != nil {
		return &Outcome{Status: models.ActivityStatusFailed, Action: ActionValidationFailed, Error: err.Error()}
	}

	entry.ExternalRef = event.ShowRatingKey
	entry.Season = &event.Season
	entry.Episode = &event.Episode

	dup, err := s.activity.HasRecentEvent(ctx, userID, hook.Event, event.ShowRatingKey, &event.Season, &event.Episode, DuplicateWindow)
	if err != nil {
		return &Outcome{Status: models.ActivityStatusFailed, Error: err.Error()}
	}
	if dup {
		return &Outcome{Status: models.ActivityStatusDuplicate, Action: ActionIgnoredDuplicate}
	}

	if outcome := s.configGate(ctx, userID); outcome != nil {
		return outcome
	}

	var year *int
	if event.Year > 0 {
		year = &event.Year
	}

	result, err := s.showMatcher.FindOrCreateMapping(ctx, userID, matching.ExternalShow{
		RatingKey: event.ShowRatingKey,
		GUID:      event.ShowGUID,
		Title:     event.ShowTitle,
		Year:      year,
	})
	if err != nil {
		return &Outcome{Status: models.ActivityStatusFailed, Error: err.Error()}
	}
	s.recordMatch(result)

	if result.NeedsConflict {
		return &Outcome{Status: models.ActivityStatusSuccess, Action: ActionConflictCreated, ConflictID: result.ConflictID}
	}
	if result.InternalID == nil {
		return &Outcome{Status: models.ActivityStatusFailed, Error: "mapping has no internal show"}
	}

	applied := s.applier.MarkEpisodeWatched(ctx, userID, *result.InternalID, event.Season, event.Episode)
	return applyOutcome(applied)
}

func (s *Service) processMovie(ctx context.Context, userID int64, hook *plex.Webhook, entry *models.ActivityLogEntry) *Outcome {
	event, err := hook.MovieEvent()
	if err != nil {
		return &Outcome{Status: models.ActivityStatusFailed, Action: ActionValidationFailed, Error: err.Error()}
	}

	entry.ExternalRef = event.RatingKey

	dup, err := s.activity.HasRecentEvent(ctx, userID, hook.Event, event.RatingKey, nil, nil, DuplicateWindow)
	if err != nil {
		return &Outcome{Status: models.ActivityStatusFailed, Error: err.Error()}
	}
	if dup {
		return &Outcome{Status: models.ActivityStatusDuplicate, Action: ActionIgnoredDuplicate}
	}

	if outcome := s.configGate(ctx, userID); outcome != nil {
		return outcome
	}

	var year *int
	if event.Year > 0 {
		year = &event.Year
	}

	result, err := s.movieMatcher.FindOrCreateMapping(ctx, userID, matching.ExternalMovie{
		RatingKey: event.RatingKey,
		GUID:      event.GUID,
		Title:     event.Title,
		Year:      year,
	})
	if err != nil {
		return &Outcome{Status: models.ActivityStatusFailed, Error: err.Error()}
	}
	s.recordMatch(result)

	if result.NeedsConflict {
		return &Outcome{Status: models.ActivityStatusSuccess, Action: ActionConflictCreated, ConflictID: result.ConflictID}
	}
	if result.InternalID == nil {
		return &Outcome{Status: models.ActivityStatusFailed, Error: "mapping has no internal movie"}
	}

	applied := s.applier.MarkMovieWatched(ctx, userID, *result.InternalID)
	return applyOutcome(applied)
}

// recordMatch counts newly persisted mappings and raised conflicts.
func (s *Service) recordMatch(result *matching.Result) {
	if s.metrics == nil {
		return
	}
	if result.Created {
		s.metrics.MatchesCreated.WithLabelValues(string(result.Method)).Inc()
	}
	if result.NeedsConflict {
		s.metrics.ConflictsRaised.WithLabelValues(string(result.ConflictType)).Inc()
	}
}

// configGate terminates processing when the user's auto-mark automation is
// off; state is never mutated with automation disabled.
func (s *Service) configGate(ctx context.Context, userID int64) *Outcome {
	settings, err := s.settings.Get(ctx, userID)
	if err != nil {
		return &Outcome{Status: models.ActivityStatusFailed, Error: err.Error()}
	}
	if !settings.PlexAutoMarkWatched {
		return &Outcome{Status: models.ActivityStatusIgnored, Action: ActionAutoMarkDisabled}
	}
	return nil
}

func applyOutcome(applied progress.ApplyResult) *Outcome {
	switch {
	case applied.AlreadyWatched:
		return &Outcome{Status: models.ActivityStatusSuccess, Action: ActionAlreadyWatched}
	case applied.Success:
		return &Outcome{Status: models.ActivityStatusSuccess, Action: ActionMarkedWatched}
	default:
		return &Outcome{Status: models.ActivityStatusFailed, Action: ActionApplyFailed, Error: applied.Error}
	}
}
