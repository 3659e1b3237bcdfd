// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import "strings"

// RedactString masks a secret for API responses and logs. The mask keeps the
// original length so clients can round-trip it through settings forms.
func RedactString(s string) string {
	if s == "" {
		return ""
	}
	return strings.Repeat("*", len(s))
}

// IsRedactedValue reports whether a value is a RedactString mask echoed back
// by a client. Such values must never be stored as the new secret.
func IsRedactedValue(value string) bool {
	if value == "" {
		return false
	}
	for _, r := range value {
		if r != '*' {
			return false
		}
	}
	return true
}
