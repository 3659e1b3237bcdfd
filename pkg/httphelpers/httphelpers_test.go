// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package httphelpers_test

import (
	"io"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lifelog/medialog/pkg/httphelpers"
)

type trackingBody struct {
	io.Reader
	closed bool
}

func (b *trackingBody) Close() error {
	b.closed = true
	return nil
}

func TestDrainAndClose(t *testing.T) {
	t.Parallel()

	body := &trackingBody{Reader: strings.NewReader("leftover response data")}
	resp := &http.Response{Body: body}

	httphelpers.DrainAndClose(resp)

	assert.True(t, body.closed)

	n, _ := body.Read(make([]byte, 1))
	assert.Zero(t, n, "body should be fully drained")
}

func TestDrainAndClose_NilSafe(t *testing.T) {
	t.Parallel()

	assert.NotPanics(t, func() {
		httphelpers.DrainAndClose(nil)
		httphelpers.DrainAndClose(&http.Response{})
	})
}
