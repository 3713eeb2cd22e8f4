// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import "time"

// =============================================================================
// EVENT TYPES
// =============================================================================

// Event is one incremental unit emitted while a response streams in.
//
// The concrete types are TextEvent, ReasoningEvent, EndEvent and ErrorEvent.
// The interface is sealed so every consumer can switch over the full set;
// EndEvent and ErrorEvent are terminal, the channel closes after either.
type Event interface {
	event()
}

// TextEvent carries an incremental fragment of the answer text.
type TextEvent struct {
	Value string
}

// ReasoningEvent carries an incremental fragment of reasoning ("thinking")
// text. Only emitted for reasoning-capable models with the option enabled.
type ReasoningEvent struct {
	Value string
}

// EndEvent is the terminal success event.
type EndEvent struct {
	// ReasonedFor is how long the model spent on the reasoning stream
	// before the first answer fragment arrived. Zero when the model did
	// not reason.
	ReasonedFor time.Duration

	// Usage is the token accounting reported by the provider.
	Usage TokenUsage

	// SourceURLs lists the web sources cited by the response, populated
	// when the search option was enabled.
	SourceURLs []string
}

// ErrorEvent is the terminal failure event.
type ErrorEvent struct {
	Message string
}

func (TextEvent) event()      {}
func (ReasoningEvent) event() {}
func (EndEvent) event()       {}
func (ErrorEvent) event()     {}

// =============================================================================
// TOKEN USAGE
// =============================================================================

// TokenUsage holds the per-request token counts reported by the provider.
type TokenUsage struct {
	Input     int `json:"input"`
	Output    int `json:"output"`
	Reasoning int `json:"reasoning"`
	Total     int `json:"total"`
}
