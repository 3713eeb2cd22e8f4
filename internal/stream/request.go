// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"fmt"

	"github.com/jeranaias/polychat-tui/internal/catalog"
)

// =============================================================================
// REQUEST CONSTANTS
// =============================================================================

const (
	// MaxSystemMessageLength bounds the custom system message length.
	MaxSystemMessageLength = 4096

	// DefaultSearchResults is the web search result cap used when the
	// search option is enabled without an explicit max.
	DefaultSearchResults = 5

	// DefaultSystemMessage is used when the request carries no custom
	// system prompt.
	DefaultSystemMessage = "You are a helpful assistant. Answer clearly and concisely, " +
		"using Markdown formatting where it improves readability."
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// Message is one turn of the conversation sent to the provider.
// Role is "user" or "assistant"; system instructions travel separately.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SearchOption enables provider-side web search for a request.
type SearchOption struct {
	IsEnabled  bool `json:"is_enabled"`
	MaxResults int  `json:"max_results"`
}

// ReasoningOption enables the model's extended reasoning stream.
type ReasoningOption struct {
	IsEnabled bool `json:"is_enabled"`
}

// PromptOption supplies a custom system prompt for a request.
//
// The prompt value is free text from the user and is never trusted to
// override the client's own system-level rules; it is forwarded verbatim
// to the provider as part of the system message.
type PromptOption struct {
	IsEnabled bool   `json:"is_enabled"`
	Value     string `json:"value"`
}

// Options is the per-request option set, snapshotted at send time.
type Options struct {
	Search    SearchOption    `json:"search"`
	Reasoning ReasoningOption `json:"reasoning"`
	Prompt    PromptOption    `json:"prompt"`
}

// Request describes one streamed completion call.
type Request struct {
	// ModelID is the provider model identifier (e.g. "openai/gpt-4.1").
	ModelID string

	// SystemMessage overrides DefaultSystemMessage when non-empty.
	SystemMessage string

	// Messages is the ordered conversation history, oldest first.
	// Must be non-empty and end with the message being answered.
	Messages []Message

	// Options is the option set bound to this request.
	Options Options

	// MaxOutputTokens caps the response length when > 0.
	MaxOutputTokens int

	// Limits are the model's usage caps, enforced by Validate before the
	// request is submitted. Nil means unlimited.
	Limits *catalog.Limits
}

// =============================================================================
// VALIDATION
// =============================================================================

// Validate checks the request against the model's limits before any network
// activity. A nil Limits pointer means the model is unlimited; structural
// checks still apply. Failures are returned as *ValidationError and the
// request must not be retried unchanged.
func (r Request) Validate() error {
	limits := r.Limits
	if r.ModelID == "" {
		return &ValidationError{Field: "modelId", Reason: "must not be empty"}
	}
	if len(r.Messages) == 0 {
		return &ValidationError{Field: "messages", Reason: "must contain at least one message"}
	}
	if len(r.SystemMessage) > MaxSystemMessageLength {
		return &ValidationError{
			Field:  "systemMessage",
			Reason: fmt.Sprintf("exceeds %d characters", MaxSystemMessageLength),
		}
	}

	if limits != nil && limits.MaxChatLength > 0 && len(r.Messages) > limits.MaxChatLength {
		return &ValidationError{
			Field:  "messages",
			Reason: fmt.Sprintf("%d messages exceeds the model's limit of %d", len(r.Messages), limits.MaxChatLength),
		}
	}

	for i, msg := range r.Messages {
		if msg.Role != "user" && msg.Role != "assistant" {
			return &ValidationError{
				Field:  fmt.Sprintf("messages[%d].role", i),
				Reason: fmt.Sprintf("%q is not a valid role", msg.Role),
			}
		}
		if msg.Content == "" {
			return &ValidationError{
				Field:  fmt.Sprintf("messages[%d].content", i),
				Reason: "must not be empty",
			}
		}
		if limits != nil && limits.MaxMessageLength > 0 && len(msg.Content) > limits.MaxMessageLength {
			return &ValidationError{
				Field:  fmt.Sprintf("messages[%d].content", i),
				Reason: fmt.Sprintf("exceeds the model's limit of %d characters", limits.MaxMessageLength),
			}
		}
	}

	if r.Options.Search.MaxResults < 0 {
		return &ValidationError{Field: "options.search.maxResults", Reason: "must not be negative"}
	}
	if r.MaxOutputTokens < 0 {
		return &ValidationError{Field: "maxOutputTokens", Reason: "must not be negative"}
	}

	return nil
}

// systemMessage returns the effective system message for the request:
// the custom prompt when the option is enabled, the request override when
// set, and the built-in default otherwise.
func (r Request) systemMessage() string {
	if r.Options.Prompt.IsEnabled && r.Options.Prompt.Value != "" {
		return r.Options.Prompt.Value
	}
	if r.SystemMessage != "" {
		return r.SystemMessage
	}
	return DefaultSystemMessage
}
