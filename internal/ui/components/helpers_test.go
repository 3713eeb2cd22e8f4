// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"
	"testing"
)

// =============================================================================
// TEXT HELPER TESTS
// =============================================================================

func TestTruncate(t *testing.T) {
	tests := []struct {
		name  string
		input string
		width int
		want  string
	}{
		{"fits", "hello", 10, "hello"},
		{"exact fit", "hello", 5, "hello"},
		{"truncated", "hello world", 8, "hello w…"},
		{"zero width", "hello", 0, ""},
		{"negative width", "hello", -1, ""},
		{"empty", "", 5, ""},
		{"wide runes", "日本語テスト", 7, "日本語…"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Truncate(tt.input, tt.width); got != tt.want {
				t.Errorf("Truncate(%q, %d) = %q, want %q", tt.input, tt.width, got, tt.want)
			}
		})
	}
}

func TestWordWrap(t *testing.T) {
	tests := []struct {
		name  string
		input string
		width int
		want  string
	}{
		{"fits on one line", "short text", 20, "short text"},
		{"wraps at word boundary", "one two three", 7, "one two\nthree"},
		{"preserves line breaks", "a\nb", 10, "a\nb"},
		{"empty input", "", 10, ""},
		{"zero width passthrough", "anything at all", 0, "anything at all"},
		{"collapses runs of spaces", "a   b", 10, "a b"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := wordWrap(tt.input, tt.width); got != tt.want {
				t.Errorf("wordWrap(%q, %d) = %q, want %q", tt.input, tt.width, got, tt.want)
			}
		})
	}
}

func TestWordWrapHardBreaksLongWords(t *testing.T) {
	long := strings.Repeat("x", 25)

	got := wordWrap(long, 10)

	for i, line := range strings.Split(got, "\n") {
		if len(line) > 10 {
			t.Errorf("Line %d exceeds width: %q", i, line)
		}
	}
	if strings.ReplaceAll(got, "\n", "") != long {
		t.Error("Hard break lost characters")
	}
}

func TestMaxLineWidth(t *testing.T) {
	if got := maxLineWidth("ab\nabcd\na"); got != 4 {
		t.Errorf("Expected max width 4, got %d", got)
	}
	if got := maxLineWidth(""); got != 0 {
		t.Errorf("Expected max width 0 for empty input, got %d", got)
	}
}
