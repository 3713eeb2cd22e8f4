// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package components provides the visual UI components for the polychat TUI.
package components

import (
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/jeranaias/polychat-tui/internal/ui/styles"
)

// =============================================================================
// MARKDOWN RENDERER
// =============================================================================

// MarkdownRenderer renders assistant markdown for terminal display. It caches
// the underlying glamour renderer per width since rebuilding it is expensive
// and the width only changes on terminal resize.
type MarkdownRenderer struct {
	renderer *glamour.TermRenderer
	width    int
}

// NewMarkdownRenderer creates a renderer wrapping at the given width.
func NewMarkdownRenderer(width int) *MarkdownRenderer {
	m := &MarkdownRenderer{}
	m.SetWidth(width)
	return m
}

// SetWidth rebuilds the renderer for a new wrap width.
func (m *MarkdownRenderer) SetWidth(width int) {
	if width < 20 {
		width = 20
	}
	if m.renderer != nil && m.width == width {
		return
	}

	renderer, err := glamour.NewTermRenderer(
		glamour.WithStandardStyle(styles.GlamourStyle()),
		glamour.WithWordWrap(width),
		glamour.WithEmoji(),
	)
	if err != nil {
		// Fall back to plain text rendering.
		renderer = nil
	}

	m.renderer = renderer
	m.width = width
}

// Render renders markdown content. When glamour is unavailable or fails,
// the content falls back to chroma-highlighted code blocks over plain text
// so responses stay readable.
func (m *MarkdownRenderer) Render(content string) string {
	if m.renderer != nil {
		if rendered, err := m.renderer.Render(content); err == nil {
			// Glamour pads with leading/trailing blank lines; the message
			// bubble supplies its own spacing.
			return strings.Trim(rendered, "\n")
		}
	}
	return HighlightCodeBlocks(content, m.width)
}
