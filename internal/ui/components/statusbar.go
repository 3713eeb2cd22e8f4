// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/polychat-tui/internal/catalog"
	"github.com/jeranaias/polychat-tui/internal/chat"
	"github.com/jeranaias/polychat-tui/internal/ui/styles"
)

// =============================================================================
// STATUS BAR
// =============================================================================

// StatusBar renders the bottom status line: model, option toggles, session
// state and a usage counter.
type StatusBar struct {
	width int
}

// NewStatusBar creates a status bar for the given terminal width.
func NewStatusBar(width int) *StatusBar {
	return &StatusBar{width: width}
}

// SetWidth updates the available terminal width.
func (s *StatusBar) SetWidth(width int) {
	s.width = width
}

// Render renders the status line for the selected session.
func (s *StatusBar) Render(sess chat.Session, def catalog.Definition) string {
	left := strings.Join(s.leftSegments(sess, def), " · ")
	right := stateIndicator(sess.State)

	gap := s.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		left = Truncate(left, s.width-lipgloss.Width(right)-4)
		gap = s.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
		if gap < 1 {
			gap = 1
		}
	}

	return styles.StatusBarStyle.
		Width(s.width).
		Render(left + strings.Repeat(" ", gap) + right)
}

func (s *StatusBar) leftSegments(sess chat.Session, def catalog.Definition) []string {
	segs := []string{def.Name}

	if sess.Options.Search.IsEnabled {
		segs = append(segs, fmt.Sprintf("search:%d", sess.Options.Search.MaxResults))
	}
	if sess.Options.Reasoning.IsEnabled && def.SupportsReasoning {
		segs = append(segs, "reasoning")
	}
	if sess.Options.Prompt.IsEnabled {
		segs = append(segs, "prompt")
	}

	if def.Limits != nil {
		segs = append(segs, fmt.Sprintf("%d/%d msgs",
			len(sess.Messages), def.Limits.MaxChatLength))
	}
	return segs
}

// stateIndicator maps the session state to a short status word.
func stateIndicator(state chat.State) string {
	switch state.(type) {
	case chat.Loading:
		return "waiting"
	case chat.Reasoning:
		return "reasoning"
	case chat.Streaming:
		return "streaming"
	case chat.Failed:
		return "error"
	default:
		return "ready"
	}
}
