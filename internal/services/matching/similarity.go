// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package matching

import (
	"strings"
	"unicode"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// SimilarityThreshold is the minimum title similarity for a catalog entry to
// be considered a fuzzy candidate at all.
const SimilarityThreshold = 0.6

// NormalizeTitle lowercases and strips punctuation so "The Matrix!" and
// "the matrix" compare equal.
func NormalizeTitle(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	lastSpace := true
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case !lastSpace:
			b.WriteRune(' ')
			lastSpace = true
		}
	}

	return strings.TrimSpace(b.String())
}

// Similarity scores two titles in [0, 1] using normalized Levenshtein
// distance over the cleaned-up strings.
func Similarity(a, b string) float64 {
	na, nb := NormalizeTitle(a), NormalizeTitle(b)
	if na == "" || nb == "" {
		return 0
	}
	if na == nb {
		return 1
	}

	dist := fuzzy.LevenshteinDistance(na, nb)
	longest := len([]rune(na))
	if l := len([]rune(nb)); l > longest {
		longest = l
	}

	return 1 - float64(dist)/float64(longest)
}

// CombinedSimilarity averages title and author similarity when an author is
// available on both sides; otherwise it is the title similarity alone. Used
// for candidate ordering on book matches.
func CombinedSimilarity(title, author, otherTitle, otherAuthor string) float64 {
	titleSim := Similarity(title, otherTitle)
	if author == "" || otherAuthor == "" {
		return titleSim
	}
	return (titleSim + Similarity(author, otherAuthor)) / 2
}
