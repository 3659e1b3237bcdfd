// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package tmdb is a minimal TMDB client used to bridge TVDB/IMDB identifiers
// to TMDB ids during matching.
package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lifelog/medialog/pkg/httphelpers"
)

const (
	SourceTVDB = "tvdb_id"
	SourceIMDB = "imdb_id"
)

var ErrNotFound = errors.New("tmdb: no results for external id")

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewClient(baseURL, apiKey string) *Client {
	if baseURL == "" {
		baseURL = "https://api.themoviedb.org/3"
	}

	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

type findResponse struct {
	TVResults []struct {
		ID int64 `json:"id"`
	} `json:"tv_results"`
	MovieResults []struct {
		ID int64 `json:"id"`
	} `json:"movie_results"`
}

// FindTVID resolves a TVDB or IMDB identifier to a TMDB series id.
func (c *Client) FindTVID(ctx context.Context, externalID, source string) (int64, error) {
	result, err := c.find(ctx, externalID, source)
	if err != nil {
		return 0, err
	}
	if len(result.TVResults) == 0 {
		return 0, ErrNotFound
	}
	return result.TVResults[0].ID, nil
}

// FindMovieID resolves an IMDB identifier to a TMDB movie id.
func (c *Client) FindMovieID(ctx context.Context, externalID, source string) (int64, error) {
	result, err := c.find(ctx, externalID, source)
	if err != nil {
		return 0, err
	}
	if len(result.MovieResults) == 0 {
		return 0, ErrNotFound
	}
	return result.MovieResults[0].ID, nil
}

func (c *Client) find(ctx context.Context, externalID, source string) (*findResponse, error) {
	endpoint := fmt.Sprintf("%s/find/%s?%s", c.baseURL, url.PathEscape(externalID), url.Values{
		"external_source": {source},
		"api_key":         {c.apiKey},
	}.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tmdb find request: %w", err)
	}
	defer httphelpers.DrainAndClose(resp)

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("tmdb find: unexpected status %d", resp.StatusCode)
	}

	var result findResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("tmdb find: decode response: %w", err)
	}

	return &result, nil
}
