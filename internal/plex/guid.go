// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package plex

import (
	"regexp"
	"strconv"
)

// Identifiers are the cross-reference ids extractable from a Plex GUID.
// Zero/empty fields mean the id was not present.
type Identifiers struct {
	TMDBID int64
	TVDBID int64
	IMDBID string
}

var (
	tmdbGUIDRe = regexp.MustCompile(`themoviedb://(\d+)`)
	tvdbGUIDRe = regexp.MustCompile(`thetvdb://(\d+)`)
	imdbGUIDRe = regexp.MustCompile(`imdb://(tt\d+)`)
)

// ExtractIdentifiers pulls external ids out of a Plex GUID string. Plex GUID
// formats vary by agent (com.plexapp.agents.themoviedb://603?lang=en,
// plex://movie/... with merged Guid entries); the substring match covers all
// of them.
func ExtractIdentifiers(guid string) Identifiers {
	var ids Identifiers

	if m := tmdbGUIDRe.FindStringSubmatch(guid); m != nil {
		if v, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			ids.TMDBID = v
		}
	}
	if m := tvdbGUIDRe.FindStringSubmatch(guid); m != nil {
		if v, err := strconv.ParseInt(m[1], 10, 64); err == nil {
			ids.TVDBID = v
		}
	}
	if m := imdbGUIDRe.FindStringSubmatch(guid); m != nil {
		ids.IMDBID = m[1]
	}

	return ids
}

// HasAny reports whether any identifier was extracted.
func (i Identifiers) HasAny() bool {
	return i.TMDBID != 0 || i.TVDBID != 0 || i.IMDBID != ""
}
