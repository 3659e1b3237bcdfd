// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package plex parses inbound Plex webhook payloads into typed events.
package plex

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strings"
)

const (
	EventScrobble = "media.scrobble"

	MetadataTypeEpisode = "episode"
	MetadataTypeMovie   = "movie"

	maxPayloadBytes = 10 << 20 // Plex payloads include thumbnail parts
)

var ErrNoPayload = errors.New("no payload found in request")

// Webhook models the top-level Plex webhook payload.
type Webhook struct {
	Event    string   `json:"event"`
	User     bool     `json:"user"`
	Owner    bool     `json:"owner"`
	Metadata Metadata `json:"Metadata"`
}

// Metadata contains the media item the event refers to. Fields are sparse:
// which ones Plex fills depends on Metadata.Type.
type Metadata struct {
	Type                 string `json:"type"`
	RatingKey            string `json:"ratingKey"`
	GUID                 string `json:"guid"`
	Title                string `json:"title"`
	Year                 int    `json:"year,omitempty"`
	GrandparentRatingKey string `json:"grandparentRatingKey,omitempty"`
	GrandparentTitle     string `json:"grandparentTitle,omitempty"`
	GrandparentGUID      string `json:"grandparentGuid,omitempty"`
	ParentIndex          int    `json:"parentIndex,omitempty"`
	Index                int    `json:"index,omitempty"`
}

// EpisodeEvent is a validated episode scrobble.
type EpisodeEvent struct {
	ShowRatingKey string
	ShowTitle     string
	ShowGUID      string
	Season        int
	Episode       int
	Year          int
}

// MovieEvent is a validated movie scrobble.
type MovieEvent struct {
	RatingKey string
	Title     string
	GUID      string
	Year      int
}

// ParseRequest extracts the webhook payload from an inbound request. Plex
// delivers multipart/form-data with a "payload" JSON field; raw JSON bodies
// are accepted too for manual testing.
func ParseRequest(r *http.Request) (*Webhook, error) {
	contentType := r.Header.Get("Content-Type")
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = contentType
	}

	var raw []byte
	if strings.HasPrefix(mediaType, "multipart/") {
		if err := r.ParseMultipartForm(maxPayloadBytes); err != nil {
			return nil, fmt.Errorf("parse multipart form: %w", err)
		}
		payload := r.FormValue("payload")
		if payload == "" {
			return nil, ErrNoPayload
		}
		raw = []byte(payload)
	} else {
		decoder := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxPayloadBytes))
		var hook Webhook
		if err := decoder.Decode(&hook); err != nil {
			return nil, fmt.Errorf("decode webhook body: %w", err)
		}
		return &hook, nil
	}

	var hook Webhook
	if err := json.Unmarshal(raw, &hook); err != nil {
		return nil, fmt.Errorf("decode webhook payload: %w", err)
	}

	return &hook, nil
}

// EpisodeEvent validates the payload as an episode scrobble and returns the
// typed event. The error names the first missing field.
func (w *Webhook) EpisodeEvent() (*EpisodeEvent, error) {
	m := w.Metadata
	switch {
	case m.GrandparentRatingKey == "":
		return nil, errors.New("missing grandparentRatingKey")
	case m.GrandparentTitle == "":
		return nil, errors.New("missing grandparentTitle")
	case m.ParentIndex <= 0:
		return nil, errors.New("missing or invalid parentIndex")
	case m.Index <= 0:
		return nil, errors.New("missing or invalid index")
	case m.GUID == "" && m.GrandparentGUID == "":
		return nil, errors.New("missing guid")
	}

	guid := m.GrandparentGUID
	if guid == "" {
		guid = m.GUID
	}

	return &EpisodeEvent{
		ShowRatingKey: m.GrandparentRatingKey,
		ShowTitle:     m.GrandparentTitle,
		ShowGUID:      guid,
		Season:        m.ParentIndex,
		Episode:       m.Index,
		Year:          m.Year,
	}, nil
}

// MovieEvent validates the payload as a movie scrobble and returns the typed
// event.
func (w *Webhook) MovieEvent() (*MovieEvent, error) {
	m := w.Metadata
	switch {
	case m.RatingKey == "":
		return nil, errors.New("missing ratingKey")
	case m.Title == "":
		return nil, errors.New("missing title")
	case m.GUID == "":
		return nil, errors.New("missing guid")
	}

	return &MovieEvent{
		RatingKey: m.RatingKey,
		Title:     m.Title,
		GUID:      m.GUID,
		Year:      m.Year,
	}, nil
}
