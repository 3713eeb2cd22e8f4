// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"github.com/jeranaias/polychat-tui/internal/stream"
)

// =============================================================================
// CHAT OPTIONS
// =============================================================================

// Options is the per-chat option set. Edits while a request is in flight
// never affect that request: options are snapshotted into the request at
// send time and apply to the next send only.
type Options struct {
	Search    stream.SearchOption    `json:"search"`
	Reasoning stream.ReasoningOption `json:"reasoning"`
	Prompt    stream.PromptOption    `json:"prompt"`
}

// snapshot returns the option set bound to an outgoing request.
func (o Options) snapshot() stream.Options {
	return stream.Options{
		Search:    o.Search,
		Reasoning: o.Reasoning,
		Prompt:    o.Prompt,
	}
}

// =============================================================================
// OPTION PATCHES
// =============================================================================

// OptionKey names one of the chat options for UpdateOption.
type OptionKey string

const (
	OptionSearch    OptionKey = "search"
	OptionReasoning OptionKey = "reasoning"
	OptionPrompt    OptionKey = "prompt"
)

// OptionPatch is a partial update for one option. Nil fields are left
// unchanged, so a patch shallow-merges into the option's current data.
type OptionPatch struct {
	// IsEnabled toggles the option.
	IsEnabled *bool

	// MaxResults applies to the search option only.
	MaxResults *int

	// Value applies to the prompt option only.
	Value *string
}

// apply merges the patch into the named option.
// Returns false when the key does not name a known option.
func (o *Options) apply(key OptionKey, patch OptionPatch) bool {
	switch key {
	case OptionSearch:
		if patch.IsEnabled != nil {
			o.Search.IsEnabled = *patch.IsEnabled
		}
		if patch.MaxResults != nil {
			o.Search.MaxResults = *patch.MaxResults
		}
	case OptionReasoning:
		if patch.IsEnabled != nil {
			o.Reasoning.IsEnabled = *patch.IsEnabled
		}
	case OptionPrompt:
		if patch.IsEnabled != nil {
			o.Prompt.IsEnabled = *patch.IsEnabled
		}
		if patch.Value != nil {
			o.Prompt.Value = *patch.Value
		}
	default:
		return false
	}
	return true
}
