// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package matching

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTitle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  string
	}{
		{"lowercases", "The Matrix", "the matrix"},
		{"strips punctuation", "Dune: Part Two!", "dune part two"},
		{"collapses whitespace", "  The   Bear  ", "the bear"},
		{"keeps digits", "Se7en (1995)", "se7en 1995"},
		{"unicode letters survive", "Amélie", "amélie"},
		{"empty", "", ""},
		{"only punctuation", "?!...", ""},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, NormalizeTitle(tt.input))
		})
	}
}

func TestSimilarity(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 1.0, Similarity("The Matrix", "the matrix!"))
	assert.Equal(t, 0.0, Similarity("", "anything"))
	assert.Equal(t, 0.0, Similarity("anything", "..."))

	// Close titles score high, unrelated titles score low.
	near := Similarity("The Office US", "The Office UK")
	assert.Greater(t, near, 0.8)

	far := Similarity("Breaking Bad", "The Great British Bake Off")
	assert.Less(t, far, SimilarityThreshold)
}

func TestCombinedSimilarity(t *testing.T) {
	t.Parallel()

	// With no author on either side, title similarity stands alone.
	assert.Equal(t, 1.0, CombinedSimilarity("Dune", "", "Dune", "Frank Herbert"))

	// Matching authors lift the combined score toward the title score.
	both := CombinedSimilarity("Dune", "Frank Herbert", "Dune", "Frank Herbert")
	assert.Equal(t, 1.0, both)

	// A diverging author drags down an exact title.
	diverging := CombinedSimilarity("Dune", "Frank Herbert", "Dune", "Brian Herbert")
	assert.Less(t, diverging, 1.0)
	assert.Greater(t, diverging, 0.5)
}

func TestRankCandidates(t *testing.T) {
	t.Parallel()

	ranked := rankCandidates([]candidate{
		{internalID: 3, score: 0.8},
		{internalID: 1, score: 0.95},
		{internalID: 2, score: 0.95},
		{internalID: 4, score: 0.7},
		{internalID: 5, score: 0.9},
		{internalID: 6, score: 0.65},
		{internalID: 7, score: 0.99},
	})

	assert.Len(t, ranked, maxPotentialMatches)
	assert.Equal(t, int64(7), ranked[0].internalID)
	// Equal scores break ties by internal id ascending.
	assert.Equal(t, int64(1), ranked[1].internalID)
	assert.Equal(t, int64(2), ranked[2].internalID)
}

func TestConfidenceFor(t *testing.T) {
	t.Parallel()

	year2021, year2022, year1984 := 2021, 2022, 1984

	tests := []struct {
		name          string
		externalTitle string
		externalYear  *int
		candTitle     string
		candYear      *int
		want          float64
	}{
		{"exact title and year", "Dune", &year2021, "Dune", &year2021, ConfidenceTitleYear},
		{"exact title, year off by one", "Dune", &year2021, "Dune", &year2022, ConfidenceTitleYear},
		{"fuzzy title, year close", "Dune Part One", &year2021, "Dune", &year2021, ConfidenceTitleNearYear},
		{"exact title, wrong year", "Dune", &year2021, "Dune", &year1984, ConfidenceTitleOnly},
		{"no year signal", "Dune", nil, "Dune", &year2021, ConfidenceTitleOnly},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, confidenceFor(tt.externalTitle, tt.externalYear, tt.candTitle, tt.candYear))
		})
	}
}
