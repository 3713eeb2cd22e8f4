// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package app provides the terminal chat interface.
package app

import (
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/polychat-tui/internal/chat"
	"github.com/jeranaias/polychat-tui/internal/config"
	"github.com/jeranaias/polychat-tui/internal/export"
)

// =============================================================================
// UPDATE LOOP
// =============================================================================

const abortReason = "User aborted request"

// Update is the Bubble Tea message handler.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil

	case StoreChangedMsg:
		return m.handleStoreChanged()

	case refreshTickMsg:
		return m.handleRefreshTick()

	case ConfigReloadedMsg:
		m.applyConfig(msg.Config)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		return m, cmd

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

// handleStoreChanged coalesces change notifications into repaints. Changes
// past the frame budget schedule a tick so the trailing tokens still paint.
func (m *Model) handleStoreChanged() (tea.Model, tea.Cmd) {
	m.coalescer.Mark()

	if m.coalescer.ShouldRender() {
		m.refreshViewport(true)
		return m, nil
	}
	return m, refreshTick()
}

func (m *Model) handleRefreshTick() (tea.Model, tea.Cmd) {
	if m.coalescer.ShouldRender() {
		m.refreshViewport(true)
		return m, nil
	}
	if m.coalescer.Pending() > 0 {
		return m, refreshTick()
	}
	return m, nil
}

// refreshTick schedules a deferred repaint check one frame from now.
func refreshTick() tea.Cmd {
	return tea.Tick(33*time.Millisecond, func(at time.Time) tea.Msg {
		return refreshTickMsg{at: at}
	})
}

// =============================================================================
// KEY HANDLING
// =============================================================================

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	sess := m.selected()
	m.flash = ""

	if m.editingPrompt {
		return m.handlePromptKey(msg, sess)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		return m, nil

	case key.Matches(msg, m.keys.Send):
		m.sendDraft(sess)
		return m, nil

	case key.Matches(msg, m.keys.Abort):
		if sess.State.InFlight() {
			m.store.AbortRequest(sess.ID, abortReason)
		} else if m.showHelp {
			m.showHelp = false
		}
		return m, nil

	case key.Matches(msg, m.keys.Retry):
		m.store.RetryRequest(sess.ID, "")
		return m, nil

	case key.Matches(msg, m.keys.Regenerate):
		m.regenerateLast(sess)
		return m, nil

	case key.Matches(msg, m.keys.NewChat):
		m.store.CreateChat()
		m.syncInput()
		m.refreshViewport(true)
		return m, nil

	case key.Matches(msg, m.keys.CloseChat):
		m.store.DeleteChat(sess.ID)
		m.syncInput()
		m.refreshViewport(true)
		return m, nil

	case key.Matches(msg, m.keys.NextChat):
		m.cycleChat(1)
		return m, nil

	case key.Matches(msg, m.keys.PrevChat):
		m.cycleChat(-1)
		return m, nil

	case key.Matches(msg, m.keys.CycleModel):
		m.cycleModel(sess)
		return m, nil

	case key.Matches(msg, m.keys.Search):
		m.toggleOption(sess, chat.OptionSearch)
		return m, nil

	case key.Matches(msg, m.keys.Reasoning):
		m.toggleOption(sess, chat.OptionReasoning)
		return m, nil

	case key.Matches(msg, m.keys.Prompt):
		m.beginPromptEdit(sess)
		return m, nil

	case key.Matches(msg, m.keys.Export):
		m.exportChat(sess)
		return m, nil

	case key.Matches(msg, m.keys.PageUp):
		m.viewport.HalfViewUp()
		return m, nil

	case key.Matches(msg, m.keys.PageDown):
		m.viewport.HalfViewDown()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// sendDraft pushes the textarea draft into the store and sends it. Blank
// drafts, in-flight sessions and exhausted chats are silent no-ops in the
// store; the textarea reflects whatever the store kept.
func (m *Model) sendDraft(sess chat.Session) {
	m.store.SetInputValue(sess.ID, m.input.Value())
	m.store.SendMessage(sess.ID)

	if after, err := m.store.Session(sess.ID); err == nil {
		m.input.SetValue(after.InputValue)
		m.input.CursorEnd()
	}
	m.refreshViewport(true)
}

// cycleChat selects the next or previous chat in tab order, wrapping.
func (m *Model) cycleChat(dir int) {
	sessions := m.store.Sessions()
	if len(sessions) < 2 {
		return
	}

	selected := m.store.SelectedID()
	for i, sess := range sessions {
		if sess.ID == selected {
			next := (i + dir + len(sessions)) % len(sessions)
			m.store.SelectChat(sessions[next].ID)
			break
		}
	}
	m.syncInput()
	m.refreshViewport(true)
}

// cycleModel advances the session to the next catalog model. The store
// rejects the change once the chat has messages; the rejection shows up as
// an unchanged status bar.
func (m *Model) cycleModel(sess chat.Session) {
	models := m.store.Models()
	if len(models) < 2 {
		return
	}

	for i, def := range models {
		if def.ID == sess.ModelID {
			next := models[(i+1)%len(models)]
			m.store.SetModelDefinition(sess.ID, next.ID)
			return
		}
	}
}

// regenerateLast redoes the newest assistant reply: the history is cut back
// to the last user message and that turn is re-sent. No-op while a request
// is in flight or before the first user message.
func (m *Model) regenerateLast(sess chat.Session) {
	for i := len(sess.Messages) - 1; i >= 0; i-- {
		if sess.Messages[i].Role == chat.RoleUser {
			m.store.RetryRequest(sess.ID, sess.Messages[i].ID)
			return
		}
	}
}

// beginPromptEdit repurposes the textarea for the session's custom system
// prompt, stashing the message draft until the edit ends.
func (m *Model) beginPromptEdit(sess chat.Session) {
	m.editingPrompt = true
	m.draftBackup = m.input.Value()
	m.input.SetValue(sess.Options.Prompt.Value)
	m.input.Placeholder = "Custom system prompt…"
	m.input.CursorEnd()
}

// handlePromptKey routes keys while the prompt editor is open: enter
// commits (an empty prompt disables the option), esc cancels, everything
// else edits the prompt text.
func (m *Model) handlePromptKey(msg tea.KeyMsg, sess chat.Session) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Send):
		value := strings.TrimSpace(m.input.Value())
		enabled := value != ""
		m.store.UpdateOption(sess.ID, chat.OptionPrompt, chat.OptionPatch{
			IsEnabled: &enabled,
			Value:     &value,
		})
		if enabled {
			m.flash = "Custom system prompt set."
		} else {
			m.flash = "Custom system prompt cleared."
		}
		m.endPromptEdit()
		return m, nil

	case key.Matches(msg, m.keys.Abort):
		m.endPromptEdit()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *Model) endPromptEdit() {
	m.editingPrompt = false
	m.input.SetValue(m.draftBackup)
	m.input.Placeholder = "Type a message…"
	m.input.CursorEnd()
	m.draftBackup = ""
}

// exportChat writes the selected chat's transcript under the config
// directory, in the configured format, and flashes the result on the
// notice line.
func (m *Model) exportChat(sess chat.Session) {
	if len(sess.Messages) == 0 {
		m.flash = "Nothing to export yet."
		return
	}

	opts := export.DefaultOptions()
	if dir, err := config.Dir(); err == nil {
		opts.OutputDir = filepath.Join(dir, "exports")
	}

	var exporter export.Exporter
	if strings.EqualFold(m.cfg.UI.ExportFormat, "json") {
		exporter = export.NewJSONExporter(opts)
	} else {
		exporter = export.NewMarkdownExporter(opts)
	}

	path, err := export.ToFile(sess, exporter, opts)
	if err != nil {
		m.flash = "Export failed: " + err.Error()
		return
	}
	m.flash = "Exported to " + path
}

// toggleOption flips an option's enabled flag. The prompt option is not
// toggled here; its editor commits value and flag together.
func (m *Model) toggleOption(sess chat.Session, key chat.OptionKey) {
	var enabled bool
	switch key {
	case chat.OptionSearch:
		enabled = !sess.Options.Search.IsEnabled
	case chat.OptionReasoning:
		enabled = !sess.Options.Reasoning.IsEnabled
	default:
		return
	}
	m.store.UpdateOption(sess.ID, key, chat.OptionPatch{IsEnabled: &enabled})
}
