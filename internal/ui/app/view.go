// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package app provides the terminal chat interface.
package app

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/polychat-tui/internal/chat"
	"github.com/jeranaias/polychat-tui/internal/ui/components"
	"github.com/jeranaias/polychat-tui/internal/ui/styles"
)

// =============================================================================
// VIEW
// =============================================================================

// View renders the full screen: tab bar, conversation viewport, optional
// error banner, input box, status bar and hint line.
func (m *Model) View() string {
	if !m.ready {
		return "Starting…"
	}

	sess := m.selected()
	def, err := m.store.ModelDefinition(sess.ID)
	if err != nil {
		def = m.store.Models()[0]
	}

	var b strings.Builder
	b.WriteString(m.tabs.Render(m.store.Sessions(), sess.ID))
	b.WriteString("\n")
	b.WriteString(m.viewport.View())
	b.WriteString("\n")

	b.WriteString(m.renderNotice(sess))
	b.WriteString("\n")

	inputStyle := styles.InputFocusedBorderStyle
	if sess.State.InFlight() {
		inputStyle = styles.InputBorderStyle
	}
	b.WriteString(inputStyle.Width(m.width - 2).Render(m.input.View()))
	b.WriteString("\n")

	b.WriteString(m.status.Render(sess, def))
	b.WriteString("\n")
	b.WriteString(m.renderHints(sess))

	if m.showHelp {
		return m.overlayHelp(b.String())
	}
	return b.String()
}

// renderNotice fills the reserved line between transcript and input: the
// error banner when the last request failed, the chat-limit notice when the
// model's cap disables sending, blank otherwise.
func (m *Model) renderNotice(sess chat.Session) string {
	if m.editingPrompt {
		return styles.HintStyle.Render(
			"Editing custom system prompt: enter saves, empty disables, esc cancels.")
	}
	if failed, ok := sess.State.(chat.Failed); ok {
		return components.ErrorBanner(failed.Message, m.width)
	}
	if m.flash != "" {
		return styles.HintStyle.Render(components.Truncate(m.flash, m.width))
	}
	if m.store.LimitReached(sess.ID) {
		return styles.HintStyle.Render(
			"Chat length limit reached for this model. Start a new chat to continue.")
	}
	return ""
}

// renderHints renders the footer hint line: spinner plus key help while a
// request runs, key help alone otherwise.
func (m *Model) renderHints(sess chat.Session) string {
	hints := m.help.ShortHelpView(m.keys.ShortHelp())
	if sess.State.InFlight() {
		return m.spinner.View() + " " + hints
	}
	return styles.HintStyle.Render(hints)
}

// overlayHelp places the full key binding table over the screen center.
func (m *Model) overlayHelp(base string) string {
	table := m.help.FullHelpView(m.keys.FullHelp())
	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(styles.FocusRing).
		Padding(1, 2).
		Render(table)
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

// =============================================================================
// VIEWPORT CONTENT
// =============================================================================

// refreshViewport rebuilds the conversation content for the selected
// session. follow pins the viewport to the bottom, used while streaming and
// after sends so new tokens stay in view.
func (m *Model) refreshViewport(follow bool) {
	if !m.ready {
		return
	}

	sess := m.selected()
	wasAtBottom := m.viewport.AtBottom()

	m.viewport.SetContent(m.renderConversation(sess))

	if follow && (wasAtBottom || sess.State.InFlight()) {
		m.viewport.GotoBottom()
	}
}

func (m *Model) renderConversation(sess chat.Session) string {
	if len(sess.Messages) == 0 {
		return m.renderWelcome(sess)
	}

	streamingIdx := -1
	if _, ok := sess.State.(chat.Streaming); ok {
		for i := len(sess.Messages) - 1; i >= 0; i-- {
			if sess.Messages[i].Role == chat.RoleAssistant {
				streamingIdx = i
				break
			}
		}
	}

	blocks := make([]string, 0, len(sess.Messages)+1)
	for i, msg := range sess.Messages {
		blocks = append(blocks, m.messages.Render(msg, i == streamingIdx))
	}

	switch state := sess.State.(type) {
	case chat.Loading:
		blocks = append(blocks, lipgloss.NewStyle().
			Foreground(styles.TextMuted).
			Italic(true).
			Render("Waiting for response…"))
	case chat.Reasoning:
		blocks = append(blocks, m.messages.RenderReasoning(state.Text))
	}

	separator := "\n\n"
	if m.cfg.UI.CompactMode {
		separator = "\n"
	}
	return strings.Join(blocks, separator)
}

// renderWelcome fills an empty chat with the model name and a short hint.
func (m *Model) renderWelcome(sess chat.Session) string {
	name := sess.ModelID
	if def, err := m.store.ModelDefinition(sess.ID); err == nil {
		name = def.Name
	}

	lines := []string{
		styles.HeaderStyle.Render("polychat"),
		"",
		"Chatting with " + name + ".",
		"Type a message and press enter to send.",
		"ctrl+o cycles the model until the first message is sent.",
	}
	body := lipgloss.NewStyle().
		Foreground(styles.TextSecondary).
		Render(strings.Join(lines, "\n"))

	return lipgloss.Place(m.viewport.Width, m.viewport.Height,
		lipgloss.Center, lipgloss.Center, body)
}
