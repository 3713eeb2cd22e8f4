// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"

	"github.com/jeranaias/polychat-tui/internal/chat"
	"github.com/jeranaias/polychat-tui/internal/ui/styles"
)

// =============================================================================
// TAB BAR
// =============================================================================

const (
	maxTabLabelWidth = 22
	untitledTabLabel = "New chat"
)

// TabBar renders one tab per chat session across the top of the screen.
// Tabs past the available width collapse into a "+N" overflow marker.
type TabBar struct {
	width int
}

// NewTabBar creates a tab bar for the given terminal width.
func NewTabBar(width int) *TabBar {
	return &TabBar{width: width}
}

// SetWidth updates the available terminal width.
func (t *TabBar) SetWidth(width int) {
	t.width = width
}

// Render renders the tab row. selectedID marks the active tab.
func (t *TabBar) Render(sessions []chat.Session, selectedID string) string {
	if len(sessions) == 0 {
		return ""
	}

	var rendered []string
	used := 0
	shown := 0

	for _, sess := range sessions {
		tab := t.renderTab(sess, sess.ID == selectedID)
		w := lipgloss.Width(tab)
		// Reserve room for a potential overflow marker.
		if used+w > t.width-6 && shown > 0 {
			break
		}
		rendered = append(rendered, tab)
		used += w
		shown++
	}

	if hidden := len(sessions) - shown; hidden > 0 {
		rendered = append(rendered, styles.TabStyle.Render(
			"+"+strconv.Itoa(hidden)))
	}

	return lipgloss.JoinHorizontal(lipgloss.Bottom, rendered...)
}

func (t *TabBar) renderTab(sess chat.Session, active bool) string {
	label := tabLabel(sess)

	if sess.State.InFlight() {
		label = "● " + label
	}

	if active {
		return styles.ActiveTabStyle.Render(label)
	}
	return styles.TabStyle.Render(label)
}

// tabLabel returns the display label for a session, truncated to the
// tab width budget.
func tabLabel(sess chat.Session) string {
	title := strings.TrimSpace(sess.Title)
	if title == "" {
		title = untitledTabLabel
	}
	if runewidth.StringWidth(title) > maxTabLabelWidth {
		title = Truncate(title, maxTabLabelWidth)
	}
	return title
}
