// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package catalog holds the static model definitions the client can chat with.
package catalog

import (
	"errors"
	"fmt"
	"sort"
)

// =============================================================================
// MODEL DEFINITION TYPE
// =============================================================================

// Limits holds the provider/cost-driven caps for a model.
// A nil *Limits on a Definition means the model is unlimited.
type Limits struct {
	// MaxMessageLength is the maximum length of a single message in characters.
	MaxMessageLength int `toml:"max_message_length" json:"max_message_length"`

	// MaxChatLength is the maximum number of messages in one conversation.
	MaxChatLength int `toml:"max_chat_length" json:"max_chat_length"`

	// MaxOutputTokens caps the length of a generated response.
	MaxOutputTokens int `toml:"max_output_tokens" json:"max_output_tokens"`
}

// Definition describes one selectable model.
type Definition struct {
	// ID is the catalog identifier used throughout the client.
	ID string `toml:"id" json:"id"`

	// Name is the human-readable display name.
	Name string `toml:"name" json:"name"`

	// OpenRouterID is the provider model identifier used in API calls.
	OpenRouterID string `toml:"openrouter_id" json:"openrouter_id"`

	// IsDefault marks the model new chats start with.
	IsDefault bool `toml:"is_default" json:"is_default"`

	// SupportsReasoning reports whether the model exposes a separate
	// reasoning stream that can be toggled per chat.
	SupportsReasoning bool `toml:"supports_reasoning" json:"supports_reasoning"`

	// Limits are the usage caps for this model, nil when unlimited.
	Limits *Limits `toml:"limits" json:"limits,omitempty"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrNotFound is returned when a definition id is not in the catalog.
// Lookup failures wrap this sentinel so callers can use errors.Is.
var ErrNotFound = errors.New("model definition not found")

// =============================================================================
// CATALOG
// =============================================================================

// Catalog is a read-only collection of model definitions, loaded once at
// startup. It has no mutation operations.
type Catalog struct {
	definitions []Definition
	byID        map[string]int
}

// New builds a catalog from the given definitions.
// Definition order is preserved for display purposes.
func New(definitions []Definition) (*Catalog, error) {
	if len(definitions) == 0 {
		return nil, errors.New("catalog requires at least one model definition")
	}

	byID := make(map[string]int, len(definitions))
	defaults := 0
	for i, def := range definitions {
		if def.ID == "" {
			return nil, fmt.Errorf("model definition %d has an empty id", i)
		}
		if _, exists := byID[def.ID]; exists {
			return nil, fmt.Errorf("duplicate model definition id %q", def.ID)
		}
		byID[def.ID] = i
		if def.IsDefault {
			defaults++
		}
	}

	if defaults > 1 {
		return nil, errors.New("catalog has more than one default model")
	}

	return &Catalog{
		definitions: definitions,
		byID:        byID,
	}, nil
}

// List returns all definitions in catalog order.
// The returned slice is a copy and safe to retain.
func (c *Catalog) List() []Definition {
	out := make([]Definition, len(c.definitions))
	copy(out, c.definitions)
	return out
}

// Get returns the definition with the given id.
// The error wraps ErrNotFound when the id is unknown.
func (c *Catalog) Get(id string) (Definition, error) {
	i, ok := c.byID[id]
	if !ok {
		return Definition{}, fmt.Errorf("%w: %q", ErrNotFound, id)
	}
	return c.definitions[i], nil
}

// Default returns the definition marked as the default, falling back to the
// first entry when no definition carries the default flag.
func (c *Catalog) Default() Definition {
	for _, def := range c.definitions {
		if def.IsDefault {
			return def
		}
	}
	return c.definitions[0]
}

// IDs returns the sorted catalog ids, useful for validation messages.
func (c *Catalog) IDs() []string {
	ids := make([]string, 0, len(c.definitions))
	for _, def := range c.definitions {
		ids = append(ids, def.ID)
	}
	sort.Strings(ids)
	return ids
}

// =============================================================================
// BUILT-IN DEFINITIONS
// =============================================================================

// BuiltinDefinitions returns the models the client ships with.
// The limits mirror the per-model request schema caps enforced before any
// request is submitted: message length, chat length, and output tokens.
func BuiltinDefinitions() []Definition {
	standard := &Limits{
		MaxMessageLength: 4096,
		MaxChatLength:    10,
		MaxOutputTokens:  10000,
	}

	return []Definition{
		{
			ID:           "gpt-oss-120b",
			Name:         "GPT OSS 120B",
			OpenRouterID: "openai/gpt-oss-120b",
			IsDefault:    true,
			Limits:       standard,
		},
		{
			ID:           "gpt-4.1",
			Name:         "GPT-4.1",
			OpenRouterID: "openai/gpt-4.1",
			Limits:       standard,
		},
		{
			ID:           "claude-sonnet-4",
			Name:         "Claude Sonnet 4",
			OpenRouterID: "anthropic/claude-sonnet-4",
			Limits:       standard,
		},
		{
			ID:           "gemini-2.5-flash",
			Name:         "Gemini 2.5 Flash",
			OpenRouterID: "google/gemini-2.5-flash",
			Limits:       standard,
		},
		{
			ID:                "grok-3-mini",
			Name:              "Grok 3 Mini",
			OpenRouterID:      "x-ai/grok-3-mini",
			SupportsReasoning: true,
			Limits:            standard,
		},
		{
			ID:                "deepseek-r1",
			Name:              "DeepSeek R1",
			OpenRouterID:      "deepseek/deepseek-r1:free",
			SupportsReasoning: true,
			Limits:            standard,
		},
	}
}
