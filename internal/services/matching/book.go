// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package matching

import (
	"context"
	"errors"

	"github.com/lifelog/medialog/internal/models"
)

// BookMatcher resolves Audible library items against the internal book
// catalog. Books have no GUID bridging; the strong identifier is the ISBN.
type BookMatcher struct {
	mappings  *models.ExternalMappingStore
	conflicts *models.ConflictStore
	books     *models.BookStore
}

func NewBookMatcher(mappings *models.ExternalMappingStore, conflicts *models.ConflictStore, books *models.BookStore) *BookMatcher {
	return &BookMatcher{
		mappings:  mappings,
		conflicts: conflicts,
		books:     books,
	}
}

// ExternalBook is the identity of an Audible library item.
type ExternalBook struct {
	ASIN   string
	Title  string
	Author string
	ISBN   *string
	Year   *int
}

// FindOrCreateMapping resolves an external audiobook to an internal book id,
// creating a mapping or conflict as a side effect.
func (m *BookMatcher) FindOrCreateMapping(ctx context.Context, userID int64, external ExternalBook) (*Result, error) {
	if existing, err := lookupExisting(ctx, m.mappings, m.conflicts, userID, models.ProviderAudibleBook, external.ASIN); existing != nil || err != nil {
		return existing, err
	}

	if external.ISBN != nil && *external.ISBN != "" {
		book, err := m.books.GetByISBN(ctx, userID, *external.ISBN)
		if err == nil {
			mapping, created, err := m.mappings.Create(ctx, userID, models.ProviderAudibleBook, external.ASIN, &book.ID, ConfidenceISBNExact, models.MatchMethodIDExact)
			if err != nil {
				return nil, err
			}
			return resultFromMapping(mapping, created), nil
		}
		if !errors.Is(err, models.ErrBookNotFound) {
			return nil, err
		}
	}

	candidates, err := m.fuzzyCandidates(ctx, userID, external)
	if err != nil {
		return nil, err
	}

	decision := decideFuzzy(candidates, AutoMatchThresholdBook)

	if decision.autoMatch != nil {
		mapping, created, err := m.mappings.Create(ctx, userID, models.ProviderAudibleBook, external.ASIN, &decision.autoMatch.internalID, decision.autoMatch.confidence, models.MatchMethodFuzzyTitleYear)
		if err != nil {
			return nil, err
		}
		return resultFromMapping(mapping, created), nil
	}

	conflict, err := m.conflicts.Upsert(ctx, userID, models.ProviderAudibleBook, external.ASIN, external.Title, external.Year, decision.conflict, decision.matches)
	if err != nil {
		return nil, err
	}

	return resultFromConflict(conflict), nil
}

func (m *BookMatcher) fuzzyCandidates(ctx context.Context, userID int64, external ExternalBook) ([]candidate, error) {
	books, err := m.books.List(ctx, userID)
	if err != nil {
		return nil, err
	}

	candidates := make([]candidate, 0)
	for _, book := range books {
		titleScore := Similarity(external.Title, book.Title)
		if titleScore <= SimilarityThreshold {
			continue
		}
		// combined title+author similarity orders candidates and feeds the
		// confidence tier, since books carry no year to corroborate
		score := CombinedSimilarity(external.Title, external.Author, book.Title, book.Author)
		candidates = append(candidates, candidate{
			internalID: book.ID,
			title:      book.Title,
			score:      score,
			confidence: bookConfidence(external.Title, book.Title, score),
		})
	}

	return rankCandidates(candidates), nil
}

// bookConfidence tiers a fuzzy book candidate. An exact title whose combined
// title+author score agrees clears the auto-match threshold; an exact title
// with an unknown or diverging author sits right at it; anything fuzzier
// needs manual review.
func bookConfidence(externalTitle, candTitle string, combinedScore float64) float64 {
	titleExact := NormalizeTitle(externalTitle) == NormalizeTitle(candTitle)

	switch {
	case titleExact && combinedScore >= AutoMatchThresholdBook:
		return ConfidenceTitleNearYear
	case titleExact:
		return AutoMatchThresholdBook
	default:
		return ConfidenceTitleOnly
	}
}
