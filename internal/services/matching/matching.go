// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package matching resolves external media identities against the internal
// catalog. Each provider has a matcher implementing the same tiered strategy:
// existing mapping, pending conflict, strong external identifier, then fuzzy
// title matching with a confidence-gated decision between auto-mapping and
// raising a conflict for manual review.
package matching

import (
	"context"
	"errors"
	"sort"

	"github.com/lifelog/medialog/internal/models"
)

// Confidence tiers per matching strategy.
const (
	ConfidenceIDExact       = 1.0  // provider-native identifier
	ConfidenceIDResolved    = 0.95 // secondary id bridged through a lookup
	ConfidenceISBNExact     = 1.0
	ConfidenceTitleYear     = 1.0  // exact title, year within tolerance
	ConfidenceTitleNearYear = 0.95 // fuzzy title, year within tolerance
	ConfidenceTitleOnly     = 0.75

	// AutoMatchThresholdVideo gates automatic mapping for shows and movies;
	// books accept slightly weaker single matches because author similarity
	// contributes signal titles alone lack.
	AutoMatchThresholdVideo = 0.90
	AutoMatchThresholdBook  = 0.85

	maxPotentialMatches = 5
	yearTolerance       = 1
)

// Result is the outcome of resolving one external item. Created reports
// whether this resolution persisted a new mapping (as opposed to returning
// an existing one).
type Result struct {
	InternalID    *int64
	Confidence    float64
	Method        models.MatchMethod
	Created       bool
	NeedsConflict bool
	ConflictID    int64
	ConflictType  models.ConflictType
}

func resultFromMapping(m *models.ExternalMapping, created bool) *Result {
	return &Result{
		InternalID: m.InternalID,
		Confidence: m.Confidence,
		Method:     m.Method,
		Created:    created,
	}
}

func resultFromConflict(c *models.Conflict) *Result {
	return &Result{
		NeedsConflict: true,
		ConflictID:    c.ID,
		ConflictType:  c.ConflictType,
	}
}

// candidate is one scored catalog entry during fuzzy matching.
type candidate struct {
	internalID int64
	title      string
	year       *int
	score      float64
	confidence float64
}

// confidenceFor assigns the tiered confidence for a fuzzy candidate given the
// external item's title and optional year.
func confidenceFor(externalTitle string, externalYear *int, candTitle string, candYear *int) float64 {
	titleExact := NormalizeTitle(externalTitle) == NormalizeTitle(candTitle)

	yearClose := false
	if externalYear != nil && candYear != nil {
		delta := *externalYear - *candYear
		if delta < 0 {
			delta = -delta
		}
		yearClose = delta <= yearTolerance
	}

	switch {
	case titleExact && yearClose:
		return ConfidenceTitleYear
	case yearClose:
		return ConfidenceTitleNearYear
	default:
		return ConfidenceTitleOnly
	}
}

// rankCandidates orders by score descending, breaking ties by internal id
// ascending so the ordering is deterministic, and keeps the top entries.
func rankCandidates(candidates []candidate) []candidate {
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].internalID < candidates[j].internalID
	})

	if len(candidates) > maxPotentialMatches {
		candidates = candidates[:maxPotentialMatches]
	}
	return candidates
}

func toPotentialMatches(candidates []candidate) []models.PotentialMatch {
	matches := make([]models.PotentialMatch, 0, len(candidates))
	for _, c := range candidates {
		matches = append(matches, models.PotentialMatch{
			InternalID: c.internalID,
			Title:      c.title,
			Score:      c.score,
		})
	}
	return matches
}

// fuzzyDecision applies the shared decision rules to a ranked candidate set:
// zero candidates raise no_match, a lone candidate above the threshold is
// auto-mapped, and everything else becomes a conflict for manual review.
type fuzzyDecision struct {
	autoMatch *candidate
	conflict  models.ConflictType
	matches   []models.PotentialMatch
}

func decideFuzzy(candidates []candidate, threshold float64) fuzzyDecision {
	switch {
	case len(candidates) == 0:
		return fuzzyDecision{conflict: models.ConflictNoMatch, matches: nil}
	case len(candidates) == 1 && candidates[0].confidence >= threshold:
		return fuzzyDecision{autoMatch: &candidates[0]}
	case len(candidates) == 1:
		return fuzzyDecision{conflict: models.ConflictAmbiguous, matches: toPotentialMatches(candidates)}
	default:
		return fuzzyDecision{conflict: models.ConflictMultipleMatches, matches: toPotentialMatches(candidates)}
	}
}

// lookupExisting implements the idempotence guard shared by every matcher:
// an existing mapping short-circuits re-matching, and a pending conflict is
// surfaced instead of duplicated.
func lookupExisting(ctx context.Context, mappings *models.ExternalMappingStore, conflicts *models.ConflictStore, userID int64, provider models.Provider, externalID string) (*Result, error) {
	mapping, err := mappings.GetByExternalID(ctx, userID, provider, externalID)
	if err == nil {
		return resultFromMapping(mapping, false), nil
	}
	if !errors.Is(err, models.ErrMappingNotFound) {
		return nil, err
	}

	conflict, err := conflicts.GetPending(ctx, userID, provider, externalID)
	if err == nil {
		return resultFromConflict(conflict), nil
	}
	if !errors.Is(err, models.ErrConflictNotFound) {
		return nil, err
	}

	return nil, nil
}
