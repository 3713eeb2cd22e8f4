// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"

	"github.com/jeranaias/polychat-tui/internal/stream"
)

// =============================================================================
// REQUEST LIFECYCLE
// =============================================================================

// runRequest drives one completion request from open to settle. It owns the
// session's state transitions for the request's lifetime: Loading until the
// first event, Reasoning while reasoning tokens arrive, Streaming once
// visible text starts, then Idle (or Failed) at the end.
//
// Every mutation goes through the store's apply path, so a session deleted
// mid-stream simply stops receiving updates. The request context is checked
// before each event lands: after an abort the session has already settled
// to idle and late events must not resurrect it.
func (s *Store) runRequest(ctx context.Context, id string, req stream.Request) {
	events, err := s.streamer.Stream(ctx, req)
	if err != nil {
		s.settleError(ctx, id, userFacingMessage(err))
		return
	}

	for event := range events {
		if ctx.Err() != nil {
			return
		}

		switch ev := event.(type) {
		case stream.ReasoningEvent:
			s.applyReasoning(ctx, id, ev.Value)
		case stream.TextEvent:
			s.applyText(ctx, id, ev.Value)
		case stream.EndEvent:
			s.settleEnd(ctx, id, ev)
			return
		case stream.ErrorEvent:
			s.settleError(ctx, id, ev.Message)
			return
		}
	}

	// Channel closed without a terminal event: the stream goroutine only
	// does this on context cancellation, where the abort path has already
	// settled the session.
}

// applyReasoning accumulates reasoning text on the session state. Reasoning
// output is ephemeral: it lives on the state, never in a message, and is
// discarded once visible text begins.
func (s *Store) applyReasoning(ctx context.Context, id, text string) {
	s.apply(id, func(sess *Session) {
		if ctx.Err() != nil {
			return
		}
		if r, ok := sess.State.(Reasoning); ok {
			r.Text += text
			sess.State = r
			return
		}
		sess.State = Reasoning{Text: text}
	})
}

// applyText appends a chunk of visible assistant text. The first chunk
// after a user message starts a new assistant message; later chunks extend
// it in place.
func (s *Store) applyText(ctx context.Context, id, text string) {
	s.apply(id, func(sess *Session) {
		if ctx.Err() != nil {
			return
		}
		last := sess.lastMessage()
		if last == nil || last.Role != RoleAssistant {
			sess.Messages = append(sess.Messages, NewAssistantMessage(sess.ID, text))
		} else {
			last.Content += text
		}
		sess.State = Streaming{}
	})
}

// settleEnd finalizes a completed response: metadata and source URLs attach
// to the assistant message, the cancellation token is released and the
// session returns to idle.
func (s *Store) settleEnd(ctx context.Context, id string, ev stream.EndEvent) {
	s.apply(id, func(sess *Session) {
		if ctx.Err() != nil {
			return
		}
		if last := sess.lastMessage(); last != nil && last.Role == RoleAssistant {
			last.Metadata = &Metadata{
				ReasonedFor: ev.ReasonedFor,
				Usage:       ev.Usage,
			}
			if len(ev.SourceURLs) > 0 {
				last.SourceURLs = append([]string(nil), ev.SourceURLs...)
			}
		}
		s.releaseLocked(sess)
		sess.State = Idle{}
	})
}

// settleError moves the session to the failed state, keeping whatever
// partial response already landed.
func (s *Store) settleError(ctx context.Context, id, message string) {
	s.apply(id, func(sess *Session) {
		if ctx.Err() != nil {
			return
		}
		s.releaseLocked(sess)
		sess.State = Failed{Message: message}
	})
}

// releaseLocked cancels and clears the session's token so its context
// resources are freed. Caller holds s.mu via apply.
func (s *Store) releaseLocked(sess *Session) {
	if sess.cancel != nil {
		sess.cancel(nil)
		sess.cancel = nil
	}
}

// userFacingMessage maps transport errors to messages fit for the error
// banner.
func userFacingMessage(err error) string {
	switch {
	case errors.Is(err, stream.ErrNotConfigured):
		return "No API key configured. Set OPENROUTER_API_KEY and restart."
	case errors.Is(err, stream.ErrAuthFailed):
		return "Authentication failed. Check your OpenRouter API key."
	case errors.Is(err, stream.ErrRateLimited):
		return "Rate limited by the provider. Wait a moment and retry."
	case errors.Is(err, stream.ErrInsufficientCredits):
		return "Out of provider credits."
	case errors.Is(err, stream.ErrModelNotFound):
		return "The selected model is unavailable."
	}

	var verr *stream.ValidationError
	if errors.As(err, &verr) {
		return verr.Error()
	}
	return "Request failed: " + err.Error()
}
