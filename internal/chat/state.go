// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

// =============================================================================
// SESSION STATE
// =============================================================================

// State is the lifecycle state of a chat session.
//
// The set of states is sealed: Idle, Loading, Reasoning, Streaming and
// Failed. Transitions are driven by the store and the request loop:
//
//	idle --send--> loading
//	loading --reasoning event--> reasoning
//	loading/reasoning --text event--> streaming
//	loading/reasoning/streaming --end--> idle
//	loading/reasoning/streaming --error--> failed
//	loading/reasoning/streaming --abort--> idle
//	failed --retry--> loading
//
// Consumers switch exhaustively over the concrete types so a new state is a
// compile-time-checked change everywhere state is inspected.
type State interface {
	// InFlight reports whether a request is running for the session.
	InFlight() bool

	state()
}

// Idle means the session is waiting for user input.
type Idle struct{}

// Loading means a request was sent and no event has arrived yet.
type Loading struct{}

// Reasoning means the model is streaming reasoning ("thinking") text.
// The accumulated reasoning text lives on the state, never mixed into
// message content.
type Reasoning struct {
	Text string
}

// Streaming means answer text is streaming into the newest assistant message.
type Streaming struct{}

// Failed means the last request ended in an error. Partial assistant content
// already streamed is retained on the session.
type Failed struct {
	Message string
}

func (Idle) state()      {}
func (Loading) state()   {}
func (Reasoning) state() {}
func (Streaming) state() {}
func (Failed) state()    {}

func (Idle) InFlight() bool      { return false }
func (Loading) InFlight() bool   { return true }
func (Reasoning) InFlight() bool { return true }
func (Streaming) InFlight() bool { return true }
func (Failed) InFlight() bool    { return false }
