// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/lifelog/medialog/internal/domain"
)

func TestRedactString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "", domain.RedactString(""))
	assert.Equal(t, "********", domain.RedactString("aa:bb:cc"))

	// Length is preserved so a client can echo the mask back unchanged.
	token := "1f2e3d:abcdef0123:9876543210fedcba"
	assert.Len(t, domain.RedactString(token), len(token))
}

func TestIsRedactedValue(t *testing.T) {
	t.Parallel()

	tests := []struct {
		value string
		want  bool
	}{
		{"", false},
		{"*", true},
		{"********", true},
		{"**a**", false},
		{"aa:bb:cc", false},
		{" ****", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, domain.IsRedactedValue(tt.value), "value %q", tt.value)
	}
}
