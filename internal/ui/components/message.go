// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package components

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/polychat-tui/internal/chat"
	"github.com/jeranaias/polychat-tui/internal/ui/styles"
)

// =============================================================================
// MESSAGE RENDERING
// =============================================================================

// MessageView renders chat messages as terminal bubbles. User messages sit
// right-aligned in a bordered bubble; assistant messages render through the
// markdown pipeline with an optional metadata footer.
type MessageView struct {
	markdown   *MarkdownRenderer
	width      int
	showTokens bool
}

// NewMessageView creates a message renderer for the given terminal width.
func NewMessageView(markdown *MarkdownRenderer, showTokens bool) *MessageView {
	return &MessageView{
		markdown:   markdown,
		width:      80,
		showTokens: showTokens,
	}
}

// SetWidth updates the available terminal width.
func (v *MessageView) SetWidth(width int) {
	v.width = width
	v.markdown.SetWidth(bubbleContentWidth(width))
}

// Render renders a single message. streaming marks the newest assistant
// message while its response is still arriving; it gets a trailing cursor
// instead of a metadata footer.
func (v *MessageView) Render(msg chat.Message, streaming bool) string {
	if msg.Role == chat.RoleUser {
		return v.renderUser(msg)
	}
	return v.renderAssistant(msg, streaming)
}

func (v *MessageView) renderUser(msg chat.Message) string {
	contentWidth := bubbleContentWidth(v.width)
	wrapped := wordWrap(msg.Content, contentWidth)

	bubble := lipgloss.NewStyle().
		Foreground(styles.UserBubbleFg).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(styles.UserBubbleBorder).
		Padding(0, 1).
		Width(minInt(maxLineWidth(wrapped)+2, contentWidth+2)).
		Render(wrapped)

	label := lipgloss.NewStyle().
		Foreground(styles.TextMuted).
		Italic(true).
		Render(msg.Role.DisplayName())

	block := label + "\n" + bubble
	return lipgloss.NewStyle().
		Width(v.width).
		Align(lipgloss.Right).
		Render(block)
}

func (v *MessageView) renderAssistant(msg chat.Message, streaming bool) string {
	content := msg.Content
	if streaming {
		content += "▌"
	}

	rendered := v.markdown.Render(content)

	var b strings.Builder
	b.WriteString(lipgloss.NewStyle().
		Foreground(styles.TextMuted).
		Italic(true).
		Render(msg.Role.DisplayName()))
	b.WriteString("\n")

	bubble := lipgloss.NewStyle().
		Foreground(styles.AssistantBubbleFg).
		Border(lipgloss.RoundedBorder()).
		BorderForeground(styles.AssistantBubbleBorder).
		Padding(0, 1).
		MaxWidth(v.width).
		Render(rendered)
	b.WriteString(bubble)

	if sources := v.renderSources(msg.SourceURLs); sources != "" {
		b.WriteString("\n")
		b.WriteString(sources)
	}

	if !streaming {
		if footer := v.renderFooter(msg.Metadata); footer != "" {
			b.WriteString("\n")
			b.WriteString(footer)
		}
	}

	return b.String()
}

// renderSources renders the cited web sources as a numbered list.
func (v *MessageView) renderSources(urls []string) string {
	if len(urls) == 0 {
		return ""
	}

	linkStyle := lipgloss.NewStyle().Foreground(styles.LinkColor).Underline(true)
	mutedStyle := lipgloss.NewStyle().Foreground(styles.TextMuted)

	var b strings.Builder
	b.WriteString(mutedStyle.Render("Sources:"))
	for i, u := range urls {
		b.WriteString("\n")
		b.WriteString(mutedStyle.Render(fmt.Sprintf("  [%d] ", i+1)))
		b.WriteString(linkStyle.Render(Truncate(u, v.width-8)))
	}
	return b.String()
}

// renderFooter renders the completion metadata line, e.g.
// "reasoned for 2.1s · 128 tokens (17 in / 111 out)".
func (v *MessageView) renderFooter(meta *chat.Metadata) string {
	if meta == nil {
		return ""
	}

	var parts []string
	if meta.ReasonedFor > 0 {
		parts = append(parts, fmt.Sprintf("reasoned for %s", formatDuration(meta.ReasonedFor)))
	}
	if v.showTokens && meta.Usage.Total > 0 {
		token := fmt.Sprintf("%d tokens (%d in / %d out)",
			meta.Usage.Total, meta.Usage.Input, meta.Usage.Output)
		if meta.Usage.Reasoning > 0 {
			token += fmt.Sprintf(", %d reasoning", meta.Usage.Reasoning)
		}
		parts = append(parts, token)
	}
	if len(parts) == 0 {
		return ""
	}

	return lipgloss.NewStyle().
		Foreground(styles.TextMuted).
		Render(strings.Join(parts, " · "))
}

// RenderReasoning renders the in-progress reasoning text as a dimmed panel
// above the input while the model thinks.
func (v *MessageView) RenderReasoning(text string) string {
	contentWidth := bubbleContentWidth(v.width)

	header := lipgloss.NewStyle().
		Foreground(styles.ReasoningFg).
		Italic(true).
		Render("Reasoning…")

	body := lipgloss.NewStyle().
		Foreground(styles.TextMuted).
		Italic(true).
		Render(wordWrap(text, contentWidth))

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(styles.ReasoningBorder).
		Padding(0, 1).
		MaxWidth(v.width).
		Render(header + "\n" + body)
}

// bubbleContentWidth leaves room for the border and padding plus a margin
// so bubbles never touch the terminal edge.
func bubbleContentWidth(width int) int {
	w := width - 8
	if w < 20 {
		w = 20
	}
	return w
}

func formatDuration(d time.Duration) string {
	s := d.Seconds()
	if s < 10 {
		return fmt.Sprintf("%.1fs", s)
	}
	return fmt.Sprintf("%.0fs", s)
}
