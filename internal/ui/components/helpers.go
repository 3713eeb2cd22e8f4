// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strings"

	"github.com/mattn/go-runewidth"
)

// =============================================================================
// TEXT HELPERS
// =============================================================================

// Truncate shortens s to the given display width, appending an ellipsis
// when anything was cut. Width is measured in terminal cells, so wide
// runes count double.
func Truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	if runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, "…")
}

// wordWrap wraps text to the given display width, preserving existing
// line breaks. Words longer than the width are hard-broken.
func wordWrap(text string, width int) string {
	if width <= 0 {
		return text
	}

	var out []string
	for _, line := range strings.Split(text, "\n") {
		out = append(out, wrapLine(line, width)...)
	}
	return strings.Join(out, "\n")
}

func wrapLine(line string, width int) []string {
	words := strings.Fields(line)
	if len(words) == 0 {
		return []string{""}
	}

	var lines []string
	var current strings.Builder
	currentWidth := 0

	for _, word := range words {
		wordWidth := runewidth.StringWidth(word)

		for wordWidth > width {
			// Hard-break oversized words (long URLs, hashes).
			head := runewidth.Truncate(word, width, "")
			lines = append(lines, head)
			word = strings.TrimPrefix(word, head)
			wordWidth = runewidth.StringWidth(word)
		}

		switch {
		case currentWidth == 0:
			current.WriteString(word)
			currentWidth = wordWidth
		case currentWidth+1+wordWidth <= width:
			current.WriteByte(' ')
			current.WriteString(word)
			currentWidth += 1 + wordWidth
		default:
			lines = append(lines, current.String())
			current.Reset()
			current.WriteString(word)
			currentWidth = wordWidth
		}
	}

	if current.Len() > 0 {
		lines = append(lines, current.String())
	}
	return lines
}

// maxLineWidth returns the widest line's display width.
func maxLineWidth(text string) int {
	max := 0
	for _, line := range strings.Split(text, "\n") {
		if w := runewidth.StringWidth(line); w > max {
			max = w
		}
	}
	return max
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
