// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

// sseServer returns an httptest server that writes the given SSE body and a
// client pointed at it.
func sseServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(Config{
		APIKey:  "sk-or-test-key",
		BaseURL: server.URL,
	})
	return server, client
}

func writeSSE(w http.ResponseWriter, lines ...string) {
	w.Header().Set("Content-Type", "text/event-stream")
	for _, line := range lines {
		fmt.Fprintf(w, "data: %s\n\n", line)
	}
}

func validRequest() Request {
	return Request{
		ModelID: "openai/gpt-oss-120b",
		Messages: []Message{
			{Role: "user", Content: "Hello"},
		},
	}
}

// collect drains the event channel with a deadline.
func collect(t *testing.T, events <-chan Event) []Event {
	t.Helper()
	var out []Event
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return out
			}
			out = append(out, ev)
		case <-timeout:
			t.Fatal("timed out draining event channel")
		}
	}
}

// =============================================================================
// CONFIGURATION TESTS
// =============================================================================

func TestStreamRequiresAPIKey(t *testing.T) {
	client := NewClient(Config{})

	if client.IsConfigured() {
		t.Error("IsConfigured() = true with no API key")
	}

	_, err := client.Stream(context.Background(), validRequest())
	if !errors.Is(err, ErrNotConfigured) {
		t.Errorf("Stream() error = %v, want ErrNotConfigured", err)
	}
}

func TestStreamRejectsInvalidRequestBeforeNetwork(t *testing.T) {
	var requests atomic.Int32
	_, client := sseServer(t, func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
	})

	req := validRequest()
	req.Messages = nil

	_, err := client.Stream(context.Background(), req)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Stream() error = %v, want ValidationError", err)
	}
	if requests.Load() != 0 {
		t.Error("invalid request reached the server")
	}
}

// =============================================================================
// STREAMING TESTS
// =============================================================================

func TestStreamDeliversTypedEvents(t *testing.T) {
	var gotPayload chatPayload
	_, client := sseServer(t, func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&gotPayload); err != nil {
			t.Errorf("decoding payload: %v", err)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer sk-or-test-key" {
			t.Errorf("Authorization = %q", auth)
		}

		writeSSE(w,
			`{"choices":[{"delta":{"reasoning":"Let me think"}}]}`,
			`{"choices":[{"delta":{"content":"Hi! "}}]}`,
			`{"choices":[{"delta":{"content":"How can I help?","annotations":[{"type":"url_citation","url_citation":{"url":"https://example.com/a"}},{"type":"url_citation","url_citation":{"url":"https://example.com/a"}}]}}]}`,
			`{"choices":[{"delta":{},"finish_reason":"stop"}],"usage":{"prompt_tokens":5,"completion_tokens":8,"total_tokens":13,"completion_tokens_details":{"reasoning_tokens":2}}}`,
			`[DONE]`,
		)
	})

	events, err := client.Stream(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	got := collect(t, events)
	if len(got) != 4 {
		t.Fatalf("events = %d, want 4 (%+v)", len(got), got)
	}

	if ev, ok := got[0].(ReasoningEvent); !ok || ev.Value != "Let me think" {
		t.Errorf("event[0] = %+v, want reasoning", got[0])
	}
	if ev, ok := got[1].(TextEvent); !ok || ev.Value != "Hi! " {
		t.Errorf("event[1] = %+v, want text", got[1])
	}
	if ev, ok := got[2].(TextEvent); !ok || ev.Value != "How can I help?" {
		t.Errorf("event[2] = %+v, want text", got[2])
	}

	end, ok := got[3].(EndEvent)
	if !ok {
		t.Fatalf("event[3] = %+v, want EndEvent", got[3])
	}
	wantUsage := TokenUsage{Input: 5, Output: 8, Reasoning: 2, Total: 13}
	if end.Usage != wantUsage {
		t.Errorf("usage = %+v, want %+v", end.Usage, wantUsage)
	}
	if end.ReasonedFor <= 0 {
		t.Error("ReasonedFor not measured despite reasoning before text")
	}
	if len(end.SourceURLs) != 1 || end.SourceURLs[0] != "https://example.com/a" {
		t.Errorf("SourceURLs = %v, want the citation deduplicated", end.SourceURLs)
	}

	// Wire payload shape.
	if !gotPayload.Stream {
		t.Error("payload missing stream flag")
	}
	if len(gotPayload.Messages) != 2 || gotPayload.Messages[0].Role != "system" {
		t.Errorf("payload messages = %+v, want system message first", gotPayload.Messages)
	}
	if gotPayload.Messages[0].Content != DefaultSystemMessage {
		t.Error("payload missing the default system message")
	}
	if gotPayload.Usage == nil || !gotPayload.Usage.Include {
		t.Error("payload missing usage accounting request")
	}
}

func TestStreamEndsOnEOFWithoutDone(t *testing.T) {
	_, client := sseServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w, `{"choices":[{"delta":{"content":"partial"}}]}`)
	})

	events, err := client.Stream(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	got := collect(t, events)
	if len(got) != 2 {
		t.Fatalf("events = %d, want text then end", len(got))
	}
	if _, ok := got[1].(EndEvent); !ok {
		t.Errorf("last event = %+v, want EndEvent on EOF", got[1])
	}
}

func TestStreamSkipsMalformedChunks(t *testing.T) {
	_, client := sseServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w,
			`{not json`,
			`{"choices":[{"delta":{"content":"ok"}}]}`,
			`[DONE]`,
		)
	})

	events, err := client.Stream(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	got := collect(t, events)
	if len(got) != 2 {
		t.Fatalf("events = %d, want the good chunk and the end", len(got))
	}
	if ev, ok := got[0].(TextEvent); !ok || ev.Value != "ok" {
		t.Errorf("event[0] = %+v", got[0])
	}
}

func TestStreamErrorChunkTerminatesWithoutEnd(t *testing.T) {
	_, client := sseServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w,
			`{"choices":[{"delta":{"content":"part"}}]}`,
			`{"error":{"code":502,"message":"upstream provider failed"}}`,
		)
	})

	events, err := client.Stream(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	got := collect(t, events)
	if len(got) != 2 {
		t.Fatalf("events = %d, want text then error", len(got))
	}
	ev, ok := got[1].(ErrorEvent)
	if !ok {
		t.Fatalf("last event = %+v, want ErrorEvent", got[1])
	}
	if ev.Message != "upstream provider failed" {
		t.Errorf("error message = %q", ev.Message)
	}
}

func TestStreamCancellationClosesChannel(t *testing.T) {
	release := make(chan struct{})
	_, client := sseServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeSSE(w, `{"choices":[{"delta":{"content":"first"}}]}`)
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}
		<-release
	})
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	events, err := client.Stream(ctx, validRequest())
	if err != nil {
		t.Fatalf("Stream() error = %v", err)
	}

	select {
	case ev := <-events:
		if _, ok := ev.(TextEvent); !ok {
			t.Fatalf("first event = %+v, want text", ev)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for first event")
	}

	cancel()

	// The channel closes promptly with no terminal event.
	timeout := time.After(5 * time.Second)
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if _, terminal := ev.(EndEvent); terminal {
				t.Fatal("received EndEvent after cancellation")
			}
		case <-timeout:
			t.Fatal("channel not closed after cancellation")
		}
	}
}

// =============================================================================
// RETRY AND ERROR MAPPING TESTS
// =============================================================================

func TestStreamDoesNotRetryClientErrors(t *testing.T) {
	var requests atomic.Int32
	_, client := sseServer(t, func(w http.ResponseWriter, r *http.Request) {
		requests.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"code":401,"message":"bad key"}}`))
	})

	_, err := client.Stream(context.Background(), validRequest())
	if !errors.Is(err, ErrAuthFailed) {
		t.Errorf("Stream() error = %v, want ErrAuthFailed", err)
	}
	if got := requests.Load(); got != 1 {
		t.Errorf("requests = %d, want no retry on 4xx", got)
	}
}

func TestStreamRetriesServerErrors(t *testing.T) {
	var requests atomic.Int32
	_, client := sseServer(t, func(w http.ResponseWriter, r *http.Request) {
		if requests.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		writeSSE(w, `[DONE]`)
	})

	events, err := client.Stream(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Stream() error = %v after retryable failure", err)
	}
	collect(t, events)

	if got := requests.Load(); got != 2 {
		t.Errorf("requests = %d, want 2", got)
	}
}

func TestHandleErrorResponse(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		sentinel error
	}{
		{"auth", http.StatusUnauthorized, `{"error":{"code":401,"message":"bad key"}}`, ErrAuthFailed},
		{"credits", http.StatusPaymentRequired, `{"error":{"message":"out of credits"}}`, ErrInsufficientCredits},
		{"model", http.StatusNotFound, `{"error":{"message":"no such model"}}`, ErrModelNotFound},
		{"rate limit", http.StatusTooManyRequests, `{"error":{"message":"slow down"}}`, ErrRateLimited},
		{"auth empty body", http.StatusUnauthorized, ``, ErrAuthFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := handleErrorResponse(tt.status, []byte(tt.body))
			if !errors.Is(err, tt.sentinel) {
				t.Errorf("handleErrorResponse(%d) = %v, want %v", tt.status, err, tt.sentinel)
			}
		})
	}

	t.Run("unmapped status", func(t *testing.T) {
		err := handleErrorResponse(http.StatusInternalServerError, []byte(`{"error":{"message":"boom"}}`))
		var provErr *ProviderError
		if !errors.As(err, &provErr) {
			t.Fatalf("error = %v, want ProviderError", err)
		}
		if provErr.Status != http.StatusInternalServerError || !strings.Contains(provErr.Message, "boom") {
			t.Errorf("ProviderError = %+v", provErr)
		}
	})
}

func TestCalculateBackoff(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, 500 * time.Millisecond},
		{1, time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{10, retryMaxDelay},
	}

	for _, tt := range tests {
		if got := calculateBackoff(tt.attempt); got != tt.want {
			t.Errorf("calculateBackoff(%d) = %v, want %v", tt.attempt, got, tt.want)
		}
	}
}

// =============================================================================
// PAYLOAD TESTS
// =============================================================================

func TestBuildPayloadOptions(t *testing.T) {
	client := NewClient(Config{APIKey: "k"})

	req := validRequest()
	req.MaxOutputTokens = 10000
	req.Options.Reasoning.IsEnabled = true
	req.Options.Search.IsEnabled = true

	payload := client.buildPayload(req)

	if payload.MaxTokens != 10000 {
		t.Errorf("MaxTokens = %d, want 10000", payload.MaxTokens)
	}
	if payload.Reasoning == nil || !payload.Reasoning.Enabled {
		t.Error("reasoning option not propagated")
	}
	if len(payload.Plugins) != 1 || payload.Plugins[0].ID != "web" {
		t.Fatalf("plugins = %+v, want the web plugin", payload.Plugins)
	}
	if payload.Plugins[0].MaxResults != DefaultSearchResults {
		t.Errorf("MaxResults = %d, want default %d", payload.Plugins[0].MaxResults, DefaultSearchResults)
	}

	// Disabled options stay off the wire.
	off := client.buildPayload(validRequest())
	if off.Reasoning != nil || off.Plugins != nil {
		t.Error("disabled options leaked into the payload")
	}
}
