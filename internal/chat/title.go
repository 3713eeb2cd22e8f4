// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"strings"
	"time"

	"github.com/jeranaias/polychat-tui/internal/stream"
)

// =============================================================================
// TITLE GENERATION
// =============================================================================

const (
	// DefaultTitleModelID is the low-latency model used for title
	// generation. Title quality barely depends on model strength, so a
	// free tier model keeps the sub-request cheap.
	DefaultTitleModelID = "deepseek/deepseek-chat-v3.1:free"

	// titleMaxOutputTokens caps the generated title's length.
	titleMaxOutputTokens = 25

	// titleTimeout bounds the whole title sub-request.
	titleTimeout = 30 * time.Second
)

// titleSystemMessage instructs the title model. The rules keep titles
// usable as tab labels.
const titleSystemMessage = `Generate a short chat title which describes the chat based off the users first message.
This will be used to easily identify each chat.

Rules:
  - Always use normal sentence casing.
  - Never include LLM names.
  - Never include punctuation.
  - Never include code.`

// generateTitle streams a chat title for the session's first message and
// applies it incrementally as text arrives. The sub-request runs on its own
// context: aborting the main request must not kill the title, and a slow
// title must not block anything.
//
// Title generation is best effort. Any failure is logged and swallowed;
// the session simply keeps its placeholder title.
func (s *Store) generateTitle(id, input string) {
	ctx, cancel := context.WithTimeout(context.Background(), titleTimeout)
	defer cancel()

	req := stream.Request{
		ModelID:         s.titleModelID,
		SystemMessage:   titleSystemMessage,
		Messages:        []stream.Message{{Role: "user", Content: input}},
		MaxOutputTokens: titleMaxOutputTokens,
	}

	events, err := s.streamer.Stream(ctx, req)
	if err != nil {
		s.logger.Warn("title generation failed", "chat_id", id, "error", err)
		return
	}

	for event := range events {
		switch ev := event.(type) {
		case stream.TextEvent:
			// Only visible text contributes to the title; reasoning
			// and metadata events are ignored.
			s.apply(id, func(sess *Session) {
				sess.Title = sanitizeTitle(sess.Title + ev.Value)
			})
		case stream.ErrorEvent:
			s.logger.Warn("title generation failed", "chat_id", id, "error", ev.Message)
			return
		case stream.EndEvent:
			return
		}
	}
}

// sanitizeTitle normalizes a streamed title for display: collapse newlines
// the model should not emit, trim surrounding quotes and whitespace.
func sanitizeTitle(title string) string {
	title = strings.ReplaceAll(title, "\n", " ")
	title = strings.Trim(title, `"'`)
	return strings.TrimLeft(title, " ")
}
