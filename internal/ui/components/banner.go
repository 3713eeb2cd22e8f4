// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"github.com/jeranaias/polychat-tui/internal/ui/styles"
)

// =============================================================================
// ERROR BANNER
// =============================================================================

// ErrorBanner renders a failed request's message above the input, with a
// retry hint. Single line; the message is truncated to fit.
func ErrorBanner(message string, width int) string {
	const hint = "  (ctrl+r to retry)"
	text := Truncate(message, width-len(hint)-2) + hint
	return styles.ErrorBannerStyle.
		Width(width).
		Render(text)
}
