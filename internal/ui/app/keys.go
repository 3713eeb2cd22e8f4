// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package app provides the terminal chat interface.
//
// This file defines keyboard bindings for the interface, along with help
// text generation for the footer hint line.
package app

import (
	"github.com/charmbracelet/bubbles/key"
)

// =============================================================================
// KEY MAP DEFINITION
// =============================================================================

// KeyMap defines all keyboard bindings for the chat interface.
type KeyMap struct {
	Send       key.Binding
	Abort      key.Binding
	Retry      key.Binding
	Regenerate key.Binding
	NewChat    key.Binding
	CloseChat  key.Binding
	NextChat   key.Binding
	PrevChat   key.Binding
	CycleModel key.Binding
	Search     key.Binding
	Reasoning  key.Binding
	Prompt     key.Binding
	Export     key.Binding
	PageUp     key.Binding
	PageDown   key.Binding
	Help       key.Binding
	Quit       key.Binding
}

// DefaultKeyMap returns the default key bindings for the chat interface.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Send: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "send"),
		),
		Abort: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "abort"),
		),
		Retry: key.NewBinding(
			key.WithKeys("ctrl+r"),
			key.WithHelp("C-r", "retry"),
		),
		Regenerate: key.NewBinding(
			key.WithKeys("ctrl+g"),
			key.WithHelp("C-g", "regenerate"),
		),
		NewChat: key.NewBinding(
			key.WithKeys("ctrl+n"),
			key.WithHelp("C-n", "new chat"),
		),
		CloseChat: key.NewBinding(
			key.WithKeys("ctrl+w"),
			key.WithHelp("C-w", "close chat"),
		),
		NextChat: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "next chat"),
		),
		PrevChat: key.NewBinding(
			key.WithKeys("shift+tab"),
			key.WithHelp("S-tab", "prev chat"),
		),
		CycleModel: key.NewBinding(
			key.WithKeys("ctrl+o"),
			key.WithHelp("C-o", "model"),
		),
		Search: key.NewBinding(
			key.WithKeys("ctrl+s"),
			key.WithHelp("C-s", "search"),
		),
		Reasoning: key.NewBinding(
			key.WithKeys("ctrl+t"),
			key.WithHelp("C-t", "reasoning"),
		),
		Prompt: key.NewBinding(
			key.WithKeys("ctrl+p"),
			key.WithHelp("C-p", "edit prompt"),
		),
		Export: key.NewBinding(
			key.WithKeys("ctrl+e"),
			key.WithHelp("C-e", "export"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup", "ctrl+u"),
			key.WithHelp("PgUp", "scroll up"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown", "ctrl+d"),
			key.WithHelp("PgDn", "scroll down"),
		),
		Help: key.NewBinding(
			key.WithKeys("ctrl+h"),
			key.WithHelp("C-h", "help"),
		),
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c"),
			key.WithHelp("C-c", "quit"),
		),
	}
}

// ShortHelp returns the bindings shown in the footer hint line.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Send, k.Abort, k.NewChat, k.NextChat, k.Help}
}

// FullHelp returns all bindings, grouped for the help overlay.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Send, k.Abort, k.Retry, k.Regenerate},
		{k.NewChat, k.CloseChat, k.NextChat, k.PrevChat},
		{k.CycleModel, k.Search, k.Reasoning, k.Prompt, k.Export},
		{k.PageUp, k.PageDown, k.Help, k.Quit},
	}
}
