// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package audible is the client for the remote Audible integration service,
// an opaque HTTP microservice that wraps Audible authentication and library
// access. Tokens cross this boundary already encrypted; the remote service
// holds the only key that can use them against Audible.
package audible

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/lifelog/medialog/pkg/httphelpers"
)

var (
	// ErrUnauthorized means the remote service rejected the tokens; the caller
	// should refresh and retry once.
	ErrUnauthorized = errors.New("audible: token expired or invalid")
	// ErrDisabled means no service URL is configured.
	ErrDisabled = errors.New("audible: integration not configured")
)

type Client struct {
	baseURL    string
	apiSecret  string
	httpClient *http.Client
}

func NewClient(baseURL, apiSecret string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiSecret:  apiSecret,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
}

// AuthRequest carries user credentials for the initial Audible login.
type AuthRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	CountryCode string `json:"country_code"`
}

// AuthResponse returns encrypted tokens from a successful login.
type AuthResponse struct {
	Success      bool   `json:"success"`
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	DeviceSerial string `json:"device_serial"`
	ExpiresAt    string `json:"expires_at"`
	Error        string `json:"error,omitempty"`
}

// Book is one remote library item.
type Book struct {
	ASIN             string   `json:"asin"`
	Title            string   `json:"title"`
	Authors          []string `json:"authors"`
	Narrators        []string `json:"narrators"`
	RuntimeLengthMin int      `json:"runtime_length_min"`
	CoverURL         string   `json:"cover_url"`
	ReleaseDate      string   `json:"release_date"`
	PercentComplete  float64  `json:"percent_complete"`
	PositionSeconds  int64    `json:"position_seconds"`
	IsFinished       bool     `json:"is_finished"`
	ISBN             *string  `json:"isbn"`
}

type libraryRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	CountryCode  string `json:"country_code"`
}

type libraryResponse struct {
	Success    bool   `json:"success"`
	Books      []Book `json:"books"`
	TotalCount int    `json:"total_count"`
	Error      string `json:"error,omitempty"`
	NeedsAuth  bool   `json:"needs_auth,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
	CountryCode  string `json:"country_code"`
}

// RefreshResponse returns a fresh encrypted access token.
type RefreshResponse struct {
	Success     bool   `json:"success"`
	AccessToken string `json:"access_token"`
	ExpiresAt   string `json:"expires_at"`
	Error       string `json:"error,omitempty"`
}

// Authenticate performs the initial Audible login and returns encrypted
// tokens for storage.
func (c *Client) Authenticate(ctx context.Context, req AuthRequest) (*AuthResponse, error) {
	if req.CountryCode == "" {
		req.CountryCode = "us"
	}

	var resp AuthResponse
	if err := c.post(ctx, "/api/auth", req, &resp); err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("audible auth failed: %s", resp.Error)
	}

	return &resp, nil
}

// FetchLibrary retrieves the full remote library snapshot. Token rejection is
// reported as ErrUnauthorized so the caller can apply its refresh-once policy.
func (c *Client) FetchLibrary(ctx context.Context, accessToken, refreshToken, countryCode string) ([]Book, error) {
	if countryCode == "" {
		countryCode = "us"
	}

	var resp libraryResponse
	err := c.post(ctx, "/api/library", libraryRequest{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		CountryCode:  countryCode,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		if resp.NeedsAuth {
			return nil, ErrUnauthorized
		}
		return nil, fmt.Errorf("audible library fetch failed: %s", resp.Error)
	}

	return resp.Books, nil
}

// RefreshToken exchanges the stored refresh token for a new access token.
func (c *Client) RefreshToken(ctx context.Context, refreshToken, countryCode string) (*RefreshResponse, error) {
	if countryCode == "" {
		countryCode = "us"
	}

	var resp RefreshResponse
	err := c.post(ctx, "/api/refresh-token", refreshRequest{
		RefreshToken: refreshToken,
		CountryCode:  countryCode,
	}, &resp)
	if err != nil {
		return nil, err
	}
	if !resp.Success {
		return nil, fmt.Errorf("audible token refresh failed: %s", resp.Error)
	}

	return &resp, nil
}

func (c *Client) post(ctx context.Context, path string, body any, out any) error {
	if c.baseURL == "" {
		return ErrDisabled
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiSecret != "" {
		req.Header.Set("X-API-Secret", c.apiSecret)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("audible service request %s: %w", path, err)
	}
	defer httphelpers.DrainAndClose(resp)

	if resp.StatusCode == http.StatusUnauthorized {
		// body may still carry needs_auth detail; decode best-effort
		_ = json.NewDecoder(resp.Body).Decode(out)
		return ErrUnauthorized
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("audible service %s: decode response: %w", path, err)
	}

	return nil
}
