// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package matching

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"

	"github.com/lifelog/medialog/internal/models"
	"github.com/lifelog/medialog/internal/plex"
	"github.com/lifelog/medialog/internal/tmdb"
)

// MovieFinder bridges IMDB identifiers to TMDB movie ids.
type MovieFinder interface {
	FindMovieID(ctx context.Context, externalID, source string) (int64, error)
}

// MovieMatcher resolves Plex movies against the internal movie catalog.
type MovieMatcher struct {
	mappings  *models.ExternalMappingStore
	conflicts *models.ConflictStore
	movies    *models.MovieStore
	tmdb      MovieFinder
}

func NewMovieMatcher(mappings *models.ExternalMappingStore, conflicts *models.ConflictStore, movies *models.MovieStore, tmdb MovieFinder) *MovieMatcher {
	return &MovieMatcher{
		mappings:  mappings,
		conflicts: conflicts,
		movies:    movies,
		tmdb:      tmdb,
	}
}

// ExternalMovie is the identity of a Plex movie as seen in a webhook.
type ExternalMovie struct {
	RatingKey string
	GUID      string
	Title     string
	Year      *int
}

// FindOrCreateMapping resolves an external movie to an internal movie id,
// creating a mapping or conflict as a side effect.
func (m *MovieMatcher) FindOrCreateMapping(ctx context.Context, userID int64, external ExternalMovie) (*Result, error) {
	if existing, err := lookupExisting(ctx, m.mappings, m.conflicts, userID, models.ProviderPlexMovie, external.RatingKey); existing != nil || err != nil {
		return existing, err
	}

	if match := m.matchByIdentifiers(ctx, userID, external); match != nil {
		confidence := ConfidenceIDExact
		if match.resolved {
			confidence = ConfidenceIDResolved
		}
		mapping, created, err := m.mappings.Create(ctx, userID, models.ProviderPlexMovie, external.RatingKey, &match.id, confidence, models.MatchMethodIDExact)
		if err != nil {
			return nil, err
		}
		return resultFromMapping(mapping, created), nil
	}

	candidates, err := m.fuzzyCandidates(ctx, userID, external)
	if err != nil {
		return nil, err
	}

	decision := decideFuzzy(candidates, AutoMatchThresholdVideo)

	if decision.autoMatch != nil {
		mapping, created, err := m.mappings.Create(ctx, userID, models.ProviderPlexMovie, external.RatingKey, &decision.autoMatch.internalID, decision.autoMatch.confidence, models.MatchMethodFuzzyTitleYear)
		if err != nil {
			return nil, err
		}
		return resultFromMapping(mapping, created), nil
	}

	conflict, err := m.conflicts.Upsert(ctx, userID, models.ProviderPlexMovie, external.RatingKey, external.Title, external.Year, decision.conflict, decision.matches)
	if err != nil {
		return nil, err
	}

	return resultFromConflict(conflict), nil
}

func (m *MovieMatcher) matchByIdentifiers(ctx context.Context, userID int64, external ExternalMovie) *identifierMatch {
	ids := plex.ExtractIdentifiers(external.GUID)
	if !ids.HasAny() {
		return nil
	}

	if ids.TMDBID != 0 {
		if movie, err := m.movies.GetByTMDBID(ctx, userID, ids.TMDBID); err == nil {
			return &identifierMatch{id: movie.ID}
		} else if !errors.Is(err, models.ErrMovieNotFound) {
			log.Error().Err(err).Int64("tmdbId", ids.TMDBID).Msg("movie lookup by tmdb id failed")
		}
	}

	if ids.IMDBID != "" && m.tmdb != nil {
		tmdbID, err := m.tmdb.FindMovieID(ctx, ids.IMDBID, tmdb.SourceIMDB)
		if err != nil {
			log.Warn().Err(err).Str("imdbId", ids.IMDBID).Msg("imdb to tmdb resolution failed, falling through")
		} else if movie, err := m.movies.GetByTMDBID(ctx, userID, tmdbID); err == nil {
			return &identifierMatch{id: movie.ID, resolved: true}
		}
	}

	return nil
}

func (m *MovieMatcher) fuzzyCandidates(ctx context.Context, userID int64, external ExternalMovie) ([]candidate, error) {
	movies, err := m.movies.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	candidates := make([]candidate, 0)
	for _, movie := range movies {
		score := Similarity(external.Title, movie.Title)
		if score <= SimilarityThreshold {
			continue
		}
		candidates = append(candidates, candidate{
			internalID: movie.ID,
			title:      movie.Title,
			year:       movie.Year,
			score:      score,
			confidence: confidenceFor(external.Title, external.Year, movie.Title, movie.Year),
		})
	}

	return rankCandidates(candidates), nil
}
