// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package stream provides the OpenRouter streaming client.
//
// OpenRouter provides access to multiple LLM providers through a single API.
// This package opens cancellable completion streams and converts the
// provider's SSE chunks into a typed event sequence consumed by the chat
// session store.
//
// # Key Types
//
//   - Client: HTTP/SSE streaming client with retry, backoff and rate limiting
//   - Request: one completion call with messages, options and model limits
//   - Event: sealed event sum (TextEvent, ReasoningEvent, EndEvent, ErrorEvent)
//   - ValidationError: out-of-limits payload rejected before any network use
//
// # Usage
//
// Open a stream and consume events until the channel closes:
//
//	events, err := client.Stream(ctx, stream.Request{
//	    ModelID:  "anthropic/claude-sonnet-4",
//	    Messages: []stream.Message{{Role: "user", Content: "Hello"}},
//	})
//	if err != nil { ... }
//	for ev := range events {
//	    switch ev := ev.(type) {
//	    case stream.TextEvent: ...
//	    case stream.ReasoningEvent: ...
//	    case stream.EndEvent: ...
//	    case stream.ErrorEvent: ...
//	    }
//	}
//
// Cancelling the context stops event production promptly; events already
// delivered are final.
package stream
