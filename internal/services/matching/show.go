// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package matching

import (
	"context"
	"errors"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/lifelog/medialog/internal/models"
	"github.com/lifelog/medialog/internal/plex"
	"github.com/lifelog/medialog/internal/tmdb"
)

// TVFinder bridges secondary identifiers (TVDB/IMDB) to TMDB series ids.
type TVFinder interface {
	FindTVID(ctx context.Context, externalID, source string) (int64, error)
}

// ShowMatcher resolves Plex shows against the internal show catalog.
type ShowMatcher struct {
	mappings  *models.ExternalMappingStore
	conflicts *models.ConflictStore
	shows     *models.ShowStore
	tmdb      TVFinder
}

func NewShowMatcher(mappings *models.ExternalMappingStore, conflicts *models.ConflictStore, shows *models.ShowStore, tmdb TVFinder) *ShowMatcher {
	return &ShowMatcher{
		mappings:  mappings,
		conflicts: conflicts,
		shows:     shows,
		tmdb:      tmdb,
	}
}

// ExternalShow is the identity of a Plex show as seen in a webhook.
type ExternalShow struct {
	RatingKey string
	GUID      string
	Title     string
	Year      *int
}

// FindOrCreateMapping resolves an external show to an internal show id,
// creating a mapping or conflict as a side effect. Repeated calls for the
// same rating key are idempotent.
func (m *ShowMatcher) FindOrCreateMapping(ctx context.Context, userID int64, external ExternalShow) (*Result, error) {
	if existing, err := lookupExisting(ctx, m.mappings, m.conflicts, userID, models.ProviderPlexShow, external.RatingKey); existing != nil || err != nil {
		return existing, err
	}

	if show := m.matchByIdentifiers(ctx, userID, external); show != nil {
		confidence := ConfidenceIDExact
		if show.resolved {
			confidence = ConfidenceIDResolved
		}
		return m.createMapping(ctx, userID, external.RatingKey, show.id, confidence)
	}

	candidates, err := m.fuzzyCandidates(ctx, userID, external)
	if err != nil {
		return nil, err
	}

	return m.decide(ctx, userID, external, candidates)
}

type identifierMatch struct {
	id       int64
	resolved bool // true when bridged through a secondary id lookup
}

// matchByIdentifiers attempts the strong-identifier strategies. Lookup
// failures degrade to a miss so matching can fall through to fuzzy title
// scoring; they must never abort the resolution.
func (m *ShowMatcher) matchByIdentifiers(ctx context.Context, userID int64, external ExternalShow) *identifierMatch {
	ids := plex.ExtractIdentifiers(external.GUID)
	if !ids.HasAny() {
		return nil
	}

	if ids.TMDBID != 0 {
		if show, err := m.shows.GetByTMDBID(ctx, userID, ids.TMDBID); err == nil {
			return &identifierMatch{id: show.ID}
		} else if !errors.Is(err, models.ErrShowNotFound) {
			log.Error().Err(err).Int64("tmdbId", ids.TMDBID).Msg("show lookup by tmdb id failed")
		}
	}

	if ids.TVDBID != 0 && m.tmdb != nil {
		tmdbID, err := m.tmdb.FindTVID(ctx, strconv.FormatInt(ids.TVDBID, 10), tmdb.SourceTVDB)
		if err != nil {
			log.Warn().Err(err).Int64("tvdbId", ids.TVDBID).Msg("tvdb to tmdb resolution failed, falling through")
		} else if show, err := m.shows.GetByTMDBID(ctx, userID, tmdbID); err == nil {
			return &identifierMatch{id: show.ID, resolved: true}
		}
	}

	if ids.IMDBID != "" && m.tmdb != nil {
		tmdbID, err := m.tmdb.FindTVID(ctx, ids.IMDBID, tmdb.SourceIMDB)
		if err != nil {
			log.Warn().Err(err).Str("imdbId", ids.IMDBID).Msg("imdb to tmdb resolution failed, falling through")
		} else if show, err := m.shows.GetByTMDBID(ctx, userID, tmdbID); err == nil {
			return &identifierMatch{id: show.ID, resolved: true}
		}
	}

	return nil
}

func (m *ShowMatcher) fuzzyCandidates(ctx context.Context, userID int64, external ExternalShow) ([]candidate, error) {
	shows, err := m.shows.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	candidates := make([]candidate, 0)
	for _, show := range shows {
		score := Similarity(external.Title, show.Title)
		if score <= SimilarityThreshold {
			continue
		}
		candidates = append(candidates, candidate{
			internalID: show.ID,
			title:      show.Title,
			year:       show.Year,
			score:      score,
			confidence: confidenceFor(external.Title, external.Year, show.Title, show.Year),
		})
	}

	return rankCandidates(candidates), nil
}

func (m *ShowMatcher) decide(ctx context.Context, userID int64, external ExternalShow, candidates []candidate) (*Result, error) {
	decision := decideFuzzy(candidates, AutoMatchThresholdVideo)

	if decision.autoMatch != nil {
		return m.createFuzzyMapping(ctx, userID, external.RatingKey, decision.autoMatch)
	}

	conflict, err := m.conflicts.Upsert(ctx, userID, models.ProviderPlexShow, external.RatingKey, external.Title, external.Year, decision.conflict, decision.matches)
	if err != nil {
		return nil, err
	}

	return resultFromConflict(conflict), nil
}

func (m *ShowMatcher) createMapping(ctx context.Context, userID int64, externalID string, internalID int64, confidence float64) (*Result, error) {
	mapping, created, err := m.mappings.Create(ctx, userID, models.ProviderPlexShow, externalID, &internalID, confidence, models.MatchMethodIDExact)
	if err != nil {
		return nil, err
	}
	return resultFromMapping(mapping, created), nil
}

func (m *ShowMatcher) createFuzzyMapping(ctx context.Context, userID int64, externalID string, match *candidate) (*Result, error) {
	mapping, created, err := m.mappings.Create(ctx, userID, models.ProviderPlexShow, externalID, &match.internalID, match.confidence, models.MatchMethodFuzzyTitleYear)
	if err != nil {
		return nil, err
	}
	return resultFromMapping(mapping, created), nil
}
