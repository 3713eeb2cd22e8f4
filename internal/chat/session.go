// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"

	"github.com/google/uuid"
)

// =============================================================================
// SESSION TYPE
// =============================================================================

// Session is one independent conversation with its own model, options and
// message history. Sessions are owned by the Store; the copies handed out
// by its read accessors are snapshots and safe to retain.
type Session struct {
	// ID is the opaque session identifier, assigned at creation.
	ID string `json:"id"`

	// Title is the lazily generated label, empty until the first user
	// message triggers title generation.
	Title string `json:"title"`

	// State is the lifecycle state (see State).
	State State `json:"-"`

	// ModelID references a catalog definition. Fixed once the session
	// has messages.
	ModelID string `json:"model_id"`

	// InputValue is the unsent draft text for the session's input field.
	InputValue string `json:"input_value"`

	// Options is the per-chat option set.
	Options Options `json:"options"`

	// Messages is the ordered conversation, oldest first. Append-only,
	// except the newest assistant message while its content streams in
	// and truncation on retry-from-message.
	Messages []Message `json:"messages"`

	// cancel is the cancellation token for the in-flight request.
	// Non-nil exactly while State.InFlight() is true. Owned by the store.
	cancel context.CancelCauseFunc
}

// newSession creates an idle session bound to the given model.
func newSession(modelID string) *Session {
	return &Session{
		ID:      uuid.NewString(),
		State:   Idle{},
		ModelID: modelID,
	}
}

// =============================================================================
// SESSION HELPERS
// =============================================================================

// lastMessage returns a pointer to the newest message, or nil when empty.
func (s *Session) lastMessage() *Message {
	if len(s.Messages) == 0 {
		return nil
	}
	return &s.Messages[len(s.Messages)-1]
}

// messageIndex returns the index of the message with the given id, or -1.
func (s *Session) messageIndex(id string) int {
	for i := range s.Messages {
		if s.Messages[i].ID == id {
			return i
		}
	}
	return -1
}

// snapshot returns a deep copy of the session without its cancellation
// token. Used by the store's read accessors.
func (s *Session) snapshot() Session {
	out := *s
	out.cancel = nil
	out.Messages = make([]Message, len(s.Messages))
	for i := range s.Messages {
		out.Messages[i] = s.Messages[i].clone()
	}
	return out
}

// HasMessages reports whether the conversation has started.
func (s *Session) HasMessages() bool {
	return len(s.Messages) > 0
}

// DisplayTitle returns the session title or a default label.
func (s *Session) DisplayTitle() string {
	if s.Title != "" {
		return s.Title
	}
	return "New chat"
}
