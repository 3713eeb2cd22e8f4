// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package app provides the terminal chat interface.
//
// This file defines the main Bubble Tea model: the component tree, its
// construction and the store wiring.
package app

import (
	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/jeranaias/polychat-tui/internal/chat"
	"github.com/jeranaias/polychat-tui/internal/config"
	"github.com/jeranaias/polychat-tui/internal/ui/components"
	"github.com/jeranaias/polychat-tui/internal/ui/styles"
)

// =============================================================================
// MODEL
// =============================================================================

const inputHeight = 3

// Model is the root Bubble Tea model. It is a view over chat.Store
// snapshots: every mutation goes through the store, and the store's change
// notifications drive re-renders.
type Model struct {
	store *chat.Store
	cfg   *config.Config
	keys  KeyMap

	viewport  viewport.Model
	input     textarea.Model
	spinner   spinner.Model
	help      help.Model
	coalescer *RenderCoalescer

	markdown *components.MarkdownRenderer
	messages *components.MessageView
	tabs     *components.TabBar
	status   *components.StatusBar

	width  int
	height int
	ready  bool

	showHelp bool

	// editingPrompt repurposes the textarea as the custom system prompt
	// editor; draftBackup holds the message draft to restore on exit.
	editingPrompt bool
	draftBackup   string

	// flash is a transient notice (export result), cleared on the next
	// key press.
	flash string

	// inputSessionID tracks which session's draft the textarea holds, so
	// chat switches save and restore drafts through the store.
	inputSessionID string
}

// New creates the root model over the given store and config.
func New(store *chat.Store, cfg *config.Config) *Model {
	input := textarea.New()
	input.Placeholder = "Type a message…"
	input.CharLimit = 0
	input.SetHeight(inputHeight)
	input.ShowLineNumbers = false
	// Enter sends; ctrl+j inserts a literal newline into the draft.
	input.KeyMap.InsertNewline = key.NewBinding(key.WithKeys("ctrl+j"))
	input.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.MiniDot
	sp.Style = lipgloss.NewStyle().Foreground(styles.Purple)

	markdown := components.NewMarkdownRenderer(80)

	m := &Model{
		store:     store,
		cfg:       cfg,
		keys:      DefaultKeyMap(),
		input:     input,
		spinner:   sp,
		help:      help.New(),
		coalescer: NewRenderCoalescer(),
		markdown:  markdown,
		messages:  components.NewMessageView(markdown, cfg.UI.ShowTokens),
		tabs:      components.NewTabBar(80),
		status:    components.NewStatusBar(80),
	}

	sess := store.Selected()
	m.inputSessionID = sess.ID
	m.input.SetValue(sess.InputValue)
	return m
}

// Init starts the spinner tick.
func (m *Model) Init() tea.Cmd {
	return m.spinner.Tick
}

// selected returns the selected session snapshot.
func (m *Model) selected() chat.Session {
	return m.store.Selected()
}

// resize propagates a new terminal size through the component tree.
func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height

	m.tabs.SetWidth(width)
	m.status.SetWidth(width)
	m.messages.SetWidth(m.contentWidth())
	m.input.SetWidth(width - 4)

	vpHeight := height - m.chromeHeight()
	if vpHeight < 3 {
		vpHeight = 3
	}

	if !m.ready {
		m.viewport = viewport.New(width, vpHeight)
		m.ready = true
	} else {
		m.viewport.Width = width
		m.viewport.Height = vpHeight
	}

	m.refreshViewport(true)
}

// contentWidth is the width messages render at: the terminal width, capped
// by the configured markdown width so text stays readable on wide screens.
func (m *Model) contentWidth() int {
	if mw := m.cfg.UI.MarkdownWidth; mw > 0 && m.width > mw {
		return mw
	}
	return m.width
}

// chromeHeight is everything on screen except the viewport: tab bar, the
// reserved notice line, input box with its border, status bar and the hint
// line.
func (m *Model) chromeHeight() int {
	return 1 + 1 + (inputHeight + 2) + 1 + 1
}

// syncInput saves the current draft and loads the selected session's draft
// after a chat switch, close, or send.
func (m *Model) syncInput() {
	sess := m.selected()
	if sess.ID != m.inputSessionID {
		if m.inputSessionID != "" {
			m.store.SetInputValue(m.inputSessionID, m.input.Value())
		}
		m.inputSessionID = sess.ID
	}
	m.input.SetValue(sess.InputValue)
	m.input.CursorEnd()
}

// applyConfig re-applies a live-reloaded config: theme, markdown pipeline
// and token display.
func (m *Model) applyConfig(cfg *config.Config) {
	m.cfg = cfg
	styles.ApplyTheme(cfg.UI.Theme)
	m.markdown = components.NewMarkdownRenderer(m.contentWidth())
	m.messages = components.NewMessageView(m.markdown, cfg.UI.ShowTokens)
	m.messages.SetWidth(m.contentWidth())
	m.refreshViewport(false)
}
