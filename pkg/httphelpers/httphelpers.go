// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package httphelpers holds small shared helpers for outbound HTTP clients.
package httphelpers

import (
	"io"
	"net/http"
)

// DrainAndClose consumes whatever is left of the response body and closes it
// so the underlying connection can be reused. Safe on nil responses.
func DrainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
