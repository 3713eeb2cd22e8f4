// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// =============================================================================
// THEME SELECTION
// =============================================================================

// ApplyTheme applies the configured theme to the adaptive color system.
// "dark" and "light" force the corresponding palette; "auto" (or anything
// else) queries the terminal background.
func ApplyTheme(theme string) {
	switch strings.ToLower(theme) {
	case "dark":
		lipgloss.SetHasDarkBackground(true)
	case "light":
		lipgloss.SetHasDarkBackground(false)
	default:
		lipgloss.SetHasDarkBackground(termenv.HasDarkBackground())
	}
}

// GlamourStyle returns the glamour style name matching the active palette.
func GlamourStyle() string {
	if lipgloss.HasDarkBackground() {
		return "dark"
	}
	return "light"
}

// =============================================================================
// SHARED STYLES
// =============================================================================

var (
	// HeaderStyle renders the tab bar background.
	HeaderStyle = lipgloss.NewStyle().
			Background(SurfaceDim).
			Padding(0, 1)

	// TabStyle renders an inactive chat tab.
	TabStyle = lipgloss.NewStyle().
			Foreground(TextSecondary).
			Padding(0, 1)

	// ActiveTabStyle renders the selected chat tab.
	ActiveTabStyle = lipgloss.NewStyle().
			Foreground(TextPrimary).
			Background(SelectionBg).
			Bold(true).
			Padding(0, 1)

	// StatusBarStyle renders the bottom status line.
	StatusBarStyle = lipgloss.NewStyle().
			Foreground(TextSecondary).
			Background(SurfaceDim).
			Padding(0, 1)

	// ErrorBannerStyle renders the failed-request banner.
	ErrorBannerStyle = lipgloss.NewStyle().
				Foreground(Rose).
				Background(RoseDeep).
				Padding(0, 1).
				Bold(true)

	// HintStyle renders dimmed key hints.
	HintStyle = lipgloss.NewStyle().
			Foreground(TextMuted)

	// InputBorderStyle frames the message input.
	InputBorderStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(Overlay)

	// InputFocusedBorderStyle frames the input while focused.
	InputFocusedBorderStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(FocusRing)
)
