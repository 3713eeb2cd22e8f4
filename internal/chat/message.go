// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/polychat-tui/internal/stream"
)

// =============================================================================
// ROLE TYPE
// =============================================================================

// Role represents the sender of a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// DisplayName returns a human-readable name for the role.
func (r Role) DisplayName() string {
	switch r {
	case RoleUser:
		return "You"
	case RoleAssistant:
		return "Assistant"
	default:
		return string(r)
	}
}

// =============================================================================
// MESSAGE TYPE
// =============================================================================

// Metadata holds the completion details attached to an assistant message
// once its stream has finished. Set exactly once, at stream completion.
type Metadata struct {
	// ReasonedFor is how long the model reasoned before answering.
	ReasonedFor time.Duration `json:"reasoned_for"`

	// Usage is the token accounting reported by the provider.
	Usage stream.TokenUsage `json:"token_usage"`
}

// Message is a single message in a chat session.
//
// User messages are immutable once created. An assistant message's Content
// is appended to in place while its response streams; it becomes logically
// immutable when the session settles back to idle or failed.
type Message struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chat_id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`

	// Assistant-only fields, set at stream completion.
	SourceURLs []string  `json:"source_urls,omitempty"`
	Metadata   *Metadata `json:"metadata,omitempty"`
}

// NewUserMessage creates a user message for the given chat.
func NewUserMessage(chatID, content string) Message {
	return Message{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Role:      RoleUser,
		Content:   content,
		Timestamp: time.Now(),
	}
}

// NewAssistantMessage creates an assistant message seeded with the first
// streamed text fragment.
func NewAssistantMessage(chatID, seed string) Message {
	return Message{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Role:      RoleAssistant,
		Content:   seed,
		Timestamp: time.Now(),
	}
}

// clone returns a deep copy of the message.
func (m Message) clone() Message {
	out := m
	if m.SourceURLs != nil {
		out.SourceURLs = make([]string, len(m.SourceURLs))
		copy(out.SourceURLs, m.SourceURLs)
	}
	if m.Metadata != nil {
		meta := *m.Metadata
		out.Metadata = &meta
	}
	return out
}
