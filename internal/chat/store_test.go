// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jeranaias/polychat-tui/internal/catalog"
	"github.com/jeranaias/polychat-tui/internal/stream"
)

// =============================================================================
// TEST FIXTURES
// =============================================================================

const (
	testModelID      = "test-model"
	testProviderID   = "test/model"
	testTitleModelID = "test/title-model"
)

// fakeStreamer is a scripted Streamer. Each Stream call is recorded; the
// test feeds events through the returned call handle. The forwarding
// goroutine closes the event channel when the request context is
// cancelled, matching the real client's behavior.
type fakeStreamer struct {
	mu        sync.Mutex
	calls     []*fakeCall
	streamErr error
}

type fakeCall struct {
	Req    stream.Request
	ctx    context.Context
	events chan stream.Event
}

func (f *fakeStreamer) Stream(ctx context.Context, req stream.Request) (<-chan stream.Event, error) {
	f.mu.Lock()
	if f.streamErr != nil {
		err := f.streamErr
		f.mu.Unlock()
		return nil, err
	}

	in := make(chan stream.Event, 16)
	out := make(chan stream.Event)
	call := &fakeCall{Req: req, ctx: ctx, events: in}
	f.calls = append(f.calls, call)
	f.mu.Unlock()

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-in:
				if !ok {
					return
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// snapshot returns the recorded calls.
func (f *fakeStreamer) snapshot() []*fakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*fakeCall, len(f.calls))
	copy(out, f.calls)
	return out
}

// waitCall blocks until a recorded call matches.
func (f *fakeStreamer) waitCall(t *testing.T, match func(stream.Request) bool) *fakeCall {
	t.Helper()
	var found *fakeCall
	waitFor(t, func() bool {
		for _, call := range f.snapshot() {
			if match(call.Req) {
				found = call
				return true
			}
		}
		return false
	})
	return found
}

// mainCalls returns the completion calls, filtering out title sub-requests.
func (f *fakeStreamer) mainCalls() []*fakeCall {
	var out []*fakeCall
	for _, call := range f.snapshot() {
		if call.Req.ModelID != testTitleModelID {
			out = append(out, call)
		}
	}
	return out
}

// waitMainCall blocks until the n-th completion call (zero-based) exists.
func (f *fakeStreamer) waitMainCall(t *testing.T, n int) *fakeCall {
	t.Helper()
	waitFor(t, func() bool { return len(f.mainCalls()) > n })
	return f.mainCalls()[n]
}

// send feeds events into the call's stream.
func (c *fakeCall) send(events ...stream.Event) {
	for _, ev := range events {
		c.events <- ev
	}
}

// finish closes the call's stream.
func (c *fakeCall) finish() {
	close(c.events)
}

// waitFor polls until the condition holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}

// testCatalog builds a single-model catalog with the given limits.
func testCatalog(t *testing.T, limits *catalog.Limits) *catalog.Catalog {
	t.Helper()
	cat, err := catalog.New([]catalog.Definition{{
		ID:           testModelID,
		Name:         "Test Model",
		OpenRouterID: testProviderID,
		IsDefault:    true,
		Limits:       limits,
	}, {
		ID:           "alt-model",
		Name:         "Alt Model",
		OpenRouterID: "test/alt-model",
		Limits:       limits,
	}})
	if err != nil {
		t.Fatalf("catalog.New() error = %v", err)
	}
	return cat
}

func standardLimits() *catalog.Limits {
	return &catalog.Limits{
		MaxMessageLength: 4096,
		MaxChatLength:    10,
		MaxOutputTokens:  10000,
	}
}

// newTestStore wires a store against a fresh fake streamer.
func newTestStore(t *testing.T, limits *catalog.Limits) (*Store, *fakeStreamer) {
	t.Helper()
	streamer := &fakeStreamer{}
	store := NewStore(Config{
		Catalog:      testCatalog(t, limits),
		Streamer:     streamer,
		TitleModelID: testTitleModelID,
	})
	return store, streamer
}

// sendWith puts the input on the selected session and sends it, returning
// the session id and the in-flight completion call.
func sendWith(t *testing.T, store *Store, streamer *fakeStreamer, input string) (string, *fakeCall) {
	t.Helper()
	id := store.SelectedID()
	n := len(streamer.mainCalls())
	if err := store.SetInputValue(id, input); err != nil {
		t.Fatalf("SetInputValue() error = %v", err)
	}
	if err := store.SendMessage(id); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	return id, streamer.waitMainCall(t, n)
}

// inFlightToken reads the session's cancellation token under the lock.
func inFlightToken(store *Store, id string) bool {
	store.mu.Lock()
	defer store.mu.Unlock()
	sess := store.findLocked(id)
	return sess != nil && sess.cancel != nil
}

// =============================================================================
// LIFECYCLE TESTS
// =============================================================================

func TestNewStoreStartsWithDefaultSession(t *testing.T) {
	store, _ := newTestStore(t, standardLimits())

	sessions := store.Sessions()
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(sessions))
	}

	sess := sessions[0]
	if sess.ModelID != testModelID {
		t.Errorf("ModelID = %q, want %q", sess.ModelID, testModelID)
	}
	if _, ok := sess.State.(Idle); !ok {
		t.Errorf("State = %T, want Idle", sess.State)
	}
	if store.SelectedID() != sess.ID {
		t.Errorf("SelectedID() = %q, want %q", store.SelectedID(), sess.ID)
	}
	if sess.DisplayTitle() != "New chat" {
		t.Errorf("DisplayTitle() = %q, want %q", sess.DisplayTitle(), "New chat")
	}
}

func TestCreateChatSelectsNewSession(t *testing.T) {
	store, _ := newTestStore(t, standardLimits())

	first := store.SelectedID()
	second := store.CreateChat()

	if second == first {
		t.Fatal("CreateChat() returned the existing session id")
	}
	if store.SelectedID() != second {
		t.Errorf("SelectedID() = %q, want new session %q", store.SelectedID(), second)
	}
	if got := len(store.Sessions()); got != 2 {
		t.Errorf("session count = %d, want 2", got)
	}
}

func TestSelectChat(t *testing.T) {
	store, _ := newTestStore(t, standardLimits())

	first := store.SelectedID()
	store.CreateChat()

	if err := store.SelectChat(first); err != nil {
		t.Fatalf("SelectChat() error = %v", err)
	}
	if store.SelectedID() != first {
		t.Errorf("SelectedID() = %q, want %q", store.SelectedID(), first)
	}

	var notFound *NotFoundError
	if err := store.SelectChat("missing"); !errors.As(err, &notFound) {
		t.Errorf("SelectChat(missing) error = %v, want NotFoundError", err)
	}
}

func TestDeleteChatSelectionMovesToSameIndex(t *testing.T) {
	store, _ := newTestStore(t, standardLimits())

	a := store.SelectedID()
	b := store.CreateChat()
	c := store.CreateChat()

	// Delete the selected middle session: selection lands on the session
	// now occupying that index.
	if err := store.SelectChat(b); err != nil {
		t.Fatalf("SelectChat() error = %v", err)
	}
	if err := store.DeleteChat(b); err != nil {
		t.Fatalf("DeleteChat() error = %v", err)
	}
	if store.SelectedID() != c {
		t.Errorf("SelectedID() = %q, want %q", store.SelectedID(), c)
	}

	// Delete the selected last session: selection falls back to the new
	// last index.
	if err := store.DeleteChat(c); err != nil {
		t.Fatalf("DeleteChat() error = %v", err)
	}
	if store.SelectedID() != a {
		t.Errorf("SelectedID() = %q, want %q", store.SelectedID(), a)
	}
}

func TestDeleteChatKeepsUnrelatedSelection(t *testing.T) {
	store, _ := newTestStore(t, standardLimits())

	a := store.SelectedID()
	b := store.CreateChat()

	if err := store.SelectChat(a); err != nil {
		t.Fatalf("SelectChat() error = %v", err)
	}
	if err := store.DeleteChat(b); err != nil {
		t.Fatalf("DeleteChat() error = %v", err)
	}
	if store.SelectedID() != a {
		t.Errorf("SelectedID() = %q, want %q", store.SelectedID(), a)
	}
}

func TestDeleteLastChatReplacesWithDefault(t *testing.T) {
	store, _ := newTestStore(t, standardLimits())

	old := store.SelectedID()
	if err := store.SetInputValue(old, "draft"); err != nil {
		t.Fatalf("SetInputValue() error = %v", err)
	}

	if err := store.DeleteChat(old); err != nil {
		t.Fatalf("DeleteChat() error = %v", err)
	}

	sessions := store.Sessions()
	if len(sessions) != 1 {
		t.Fatalf("expected 1 session after deleting the last one, got %d", len(sessions))
	}

	fresh := sessions[0]
	if fresh.ID == old {
		t.Error("expected a fresh session, got the deleted one back")
	}
	if fresh.InputValue != "" || len(fresh.Messages) != 0 {
		t.Error("replacement session is not freshly defaulted")
	}
	if fresh.ModelID != testModelID {
		t.Errorf("replacement ModelID = %q, want default %q", fresh.ModelID, testModelID)
	}
	if store.SelectedID() != fresh.ID {
		t.Error("replacement session is not selected")
	}
}

func TestDeleteChatAbortsInFlightRequest(t *testing.T) {
	store, streamer := newTestStore(t, standardLimits())

	id, call := sendWith(t, store, streamer, "Hello")

	if err := store.DeleteChat(id); err != nil {
		t.Fatalf("DeleteChat() error = %v", err)
	}

	waitFor(t, func() bool { return call.ctx.Err() != nil })
	if cause := context.Cause(call.ctx); !IsAbort(cause) {
		t.Errorf("cancellation cause = %v, want AbortError", cause)
	}
}

// =============================================================================
// FIELD MUTATOR TESTS
// =============================================================================

func TestSetModelDefinition(t *testing.T) {
	store, streamer := newTestStore(t, standardLimits())
	id := store.SelectedID()

	if err := store.SetModelDefinition(id, "alt-model"); err != nil {
		t.Fatalf("SetModelDefinition() error = %v", err)
	}
	if got := store.Selected().ModelID; got != "alt-model" {
		t.Errorf("ModelID = %q, want %q", got, "alt-model")
	}

	if err := store.SetModelDefinition(id, "nope"); !errors.Is(err, catalog.ErrNotFound) {
		t.Errorf("SetModelDefinition(unknown) error = %v, want ErrNotFound", err)
	}

	// The model locks once the conversation has started.
	_, call := sendWith(t, store, streamer, "Hello")
	call.send(stream.EndEvent{})
	waitFor(t, func() bool { return !store.Selected().State.InFlight() })

	if err := store.SetModelDefinition(id, testModelID); !errors.Is(err, ErrModelLocked) {
		t.Errorf("SetModelDefinition(after message) error = %v, want ErrModelLocked", err)
	}
	if got := store.Selected().ModelID; got != "alt-model" {
		t.Errorf("ModelID changed despite lock, got %q", got)
	}
}

func TestUpdateOption(t *testing.T) {
	store, _ := newTestStore(t, standardLimits())
	id := store.SelectedID()

	enabled := true
	maxResults := 3
	if err := store.UpdateOption(id, OptionSearch, OptionPatch{IsEnabled: &enabled}); err != nil {
		t.Fatalf("UpdateOption() error = %v", err)
	}
	if err := store.UpdateOption(id, OptionSearch, OptionPatch{MaxResults: &maxResults}); err != nil {
		t.Fatalf("UpdateOption() error = %v", err)
	}

	opts := store.Selected().Options
	if !opts.Search.IsEnabled || opts.Search.MaxResults != 3 {
		t.Errorf("Search option = %+v, want enabled with MaxResults 3", opts.Search)
	}

	prompt := "Speak like a pirate"
	if err := store.UpdateOption(id, OptionPrompt, OptionPatch{IsEnabled: &enabled, Value: &prompt}); err != nil {
		t.Fatalf("UpdateOption() error = %v", err)
	}
	opts = store.Selected().Options
	if !opts.Prompt.IsEnabled || opts.Prompt.Value != prompt {
		t.Errorf("Prompt option = %+v, want enabled with value set", opts.Prompt)
	}

	var notFound *NotFoundError
	if err := store.UpdateOption(id, OptionKey("bogus"), OptionPatch{}); !errors.As(err, &notFound) {
		t.Errorf("UpdateOption(bogus) error = %v, want NotFoundError", err)
	}
}

// =============================================================================
// SEND TESTS
// =============================================================================

func TestSendMessageIgnoresBlankInput(t *testing.T) {
	store, streamer := newTestStore(t, standardLimits())
	id := store.SelectedID()

	if err := store.SetInputValue(id, "   \n\t"); err != nil {
		t.Fatalf("SetInputValue() error = %v", err)
	}
	if err := store.SendMessage(id); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	sess := store.Selected()
	if len(sess.Messages) != 0 {
		t.Errorf("blank send appended %d messages", len(sess.Messages))
	}
	if len(streamer.snapshot()) != 0 {
		t.Error("blank send contacted the streamer")
	}
}

func TestSendMessageIgnoredWhileInFlight(t *testing.T) {
	store, streamer := newTestStore(t, standardLimits())

	id, _ := sendWith(t, store, streamer, "first")

	if err := store.SetInputValue(id, "second"); err != nil {
		t.Fatalf("SetInputValue() error = %v", err)
	}
	if err := store.SendMessage(id); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	if got := len(streamer.mainCalls()); got != 1 {
		t.Errorf("completion calls = %d, want 1", got)
	}
	if got := store.Selected().InputValue; got != "second" {
		t.Errorf("InputValue = %q, want the rejected draft preserved", got)
	}
}

func TestSendMessageClearsInputSynchronously(t *testing.T) {
	store, streamer := newTestStore(t, standardLimits())
	id := store.SelectedID()

	if err := store.SetInputValue(id, "Hello"); err != nil {
		t.Fatalf("SetInputValue() error = %v", err)
	}
	if err := store.SendMessage(id); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	// Immediately after SendMessage returns, without waiting on the
	// stream, the draft is gone and the user message is appended.
	sess := store.Selected()
	if sess.InputValue != "" {
		t.Errorf("InputValue = %q, want empty", sess.InputValue)
	}
	if len(sess.Messages) != 1 || sess.Messages[0].Role != RoleUser {
		t.Fatalf("messages = %+v, want exactly the user message", sess.Messages)
	}
	if sess.Messages[0].Content != "Hello" {
		t.Errorf("user message content = %q, want %q", sess.Messages[0].Content, "Hello")
	}
	if _, ok := sess.State.(Loading); !ok {
		t.Errorf("State = %T, want Loading", sess.State)
	}

	streamer.waitMainCall(t, 0)
}

func TestSendMessageSnapshotsOptions(t *testing.T) {
	store, streamer := newTestStore(t, standardLimits())
	id := store.SelectedID()

	enabled := true
	if err := store.UpdateOption(id, OptionReasoning, OptionPatch{IsEnabled: &enabled}); err != nil {
		t.Fatalf("UpdateOption() error = %v", err)
	}

	_, call := sendWith(t, store, streamer, "Hello")

	if !call.Req.Options.Reasoning.IsEnabled {
		t.Error("request missing the reasoning option set before send")
	}
	if call.Req.ModelID != testProviderID {
		t.Errorf("request ModelID = %q, want provider id %q", call.Req.ModelID, testProviderID)
	}
	if call.Req.MaxOutputTokens != 10000 {
		t.Errorf("request MaxOutputTokens = %d, want 10000", call.Req.MaxOutputTokens)
	}

	// Toggling after send must not reach the in-flight request.
	disabled := false
	if err := store.UpdateOption(id, OptionReasoning, OptionPatch{IsEnabled: &disabled}); err != nil {
		t.Fatalf("UpdateOption() error = %v", err)
	}
	if !call.Req.Options.Reasoning.IsEnabled {
		t.Error("in-flight request saw an option edit made after send")
	}
}

func TestSendMessageFiresTitleGenerationOnce(t *testing.T) {
	store, streamer := newTestStore(t, standardLimits())

	id, call := sendWith(t, store, streamer, "What is a monad")

	titleCall := streamer.waitCall(t, func(req stream.Request) bool {
		return req.ModelID == testTitleModelID
	})
	if len(titleCall.Req.Messages) != 1 || titleCall.Req.Messages[0].Content != "What is a monad" {
		t.Errorf("title request messages = %+v", titleCall.Req.Messages)
	}
	if titleCall.Req.SystemMessage == "" {
		t.Error("title request missing its system message")
	}

	titleCall.send(stream.TextEvent{Value: "Monads explained"}, stream.EndEvent{})
	waitFor(t, func() bool { return store.Selected().Title == "Monads explained" })

	// Settle the first request, then send again: no second title call.
	call.send(stream.TextEvent{Value: "ok"}, stream.EndEvent{})
	waitFor(t, func() bool { return !store.Selected().State.InFlight() })

	if err := store.SetInputValue(id, "And a functor"); err != nil {
		t.Fatalf("SetInputValue() error = %v", err)
	}
	if err := store.SendMessage(id); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	streamer.waitMainCall(t, 1)

	titleCalls := 0
	for _, c := range streamer.snapshot() {
		if c.Req.ModelID == testTitleModelID {
			titleCalls++
		}
	}
	if titleCalls != 1 {
		t.Errorf("title calls = %d, want 1", titleCalls)
	}
}

func TestSendMessageChatLengthBoundary(t *testing.T) {
	limits := standardLimits()
	limits.MaxChatLength = 1
	store, streamer := newTestStore(t, limits)

	// With a limit of one message, the first send is the last allowed one.
	id, call := sendWith(t, store, streamer, "only message")
	call.send(stream.EndEvent{})
	waitFor(t, func() bool { return !store.Selected().State.InFlight() })

	if err := store.SetInputValue(id, "one too many"); err != nil {
		t.Fatalf("SetInputValue() error = %v", err)
	}
	if store.CanSend(id) {
		t.Error("CanSend() = true past the chat length limit")
	}
	if !store.LimitReached(id) {
		t.Error("LimitReached() = false past the chat length limit")
	}
	if err := store.SendMessage(id); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	if got := len(streamer.mainCalls()); got != 1 {
		t.Errorf("completion calls = %d, want 1; the over-limit send reached the streamer", got)
	}
	if got := len(store.Selected().Messages); got != 1 {
		t.Errorf("messages = %d, want 1", got)
	}
}

func TestSendMessageRejectsOversizedMessage(t *testing.T) {
	limits := standardLimits()
	limits.MaxMessageLength = 8
	store, streamer := newTestStore(t, limits)
	id := store.SelectedID()

	if err := store.SetInputValue(id, "this is far too long"); err != nil {
		t.Fatalf("SetInputValue() error = %v", err)
	}
	if err := store.SendMessage(id); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	if len(streamer.snapshot()) != 0 {
		t.Error("oversized send contacted the streamer")
	}
	if got := len(store.Selected().Messages); got != 0 {
		t.Errorf("messages = %d, want 0", got)
	}
}

// =============================================================================
// ABORT TESTS
// =============================================================================

func TestAbortRequestSettlesImmediately(t *testing.T) {
	store, streamer := newTestStore(t, standardLimits())

	id, call := sendWith(t, store, streamer, "Hello")

	if !inFlightToken(store, id) {
		t.Fatal("expected a cancellation token while in flight")
	}

	if err := store.AbortRequest(id, "User aborted request"); err != nil {
		t.Fatalf("AbortRequest() error = %v", err)
	}

	// The session settles without waiting for the stream to acknowledge.
	sess := store.Selected()
	if _, ok := sess.State.(Idle); !ok {
		t.Errorf("State = %T, want Idle", sess.State)
	}
	if inFlightToken(store, id) {
		t.Error("cancellation token not cleared by abort")
	}

	waitFor(t, func() bool { return call.ctx.Err() != nil })
	cause := context.Cause(call.ctx)
	if !IsAbort(cause) {
		t.Fatalf("cancellation cause = %v, want AbortError", cause)
	}
	var abortErr *AbortError
	errors.As(cause, &abortErr)
	if abortErr.Reason != "User aborted request" {
		t.Errorf("abort reason = %q, want %q", abortErr.Reason, "User aborted request")
	}

	// Late events from the dead stream must not resurrect the session.
	call.send(stream.TextEvent{Value: "too late"})
	time.Sleep(50 * time.Millisecond)
	sess = store.Selected()
	if len(sess.Messages) != 1 {
		t.Errorf("messages = %d after late event, want 1", len(sess.Messages))
	}
	if _, ok := sess.State.(Idle); !ok {
		t.Errorf("State = %T after late event, want Idle", sess.State)
	}
}

func TestAbortRequestIdempotentWhenIdle(t *testing.T) {
	store, _ := newTestStore(t, standardLimits())
	id := store.SelectedID()

	for i := 0; i < 2; i++ {
		if err := store.AbortRequest(id, "User aborted request"); err != nil {
			t.Fatalf("AbortRequest() #%d error = %v", i+1, err)
		}
		sess := store.Selected()
		if _, ok := sess.State.(Idle); !ok {
			t.Errorf("State = %T after abort #%d, want Idle", sess.State, i+1)
		}
	}
}

// =============================================================================
// RETRY TESTS
// =============================================================================

// runTurns completes the given user turns on the selected session, each
// answered with a one-chunk assistant reply.
func runTurns(t *testing.T, store *Store, streamer *fakeStreamer, turns []string) string {
	t.Helper()
	id := store.SelectedID()
	for i, turn := range turns {
		_, call := sendWith(t, store, streamer, turn)
		call.send(
			stream.TextEvent{Value: "reply"},
			stream.EndEvent{},
		)
		waitFor(t, func() bool { return !store.Selected().State.InFlight() })
		if got := len(store.Selected().Messages); got != (i+1)*2 {
			t.Fatalf("messages = %d after turn %d, want %d", got, i+1, (i+1)*2)
		}
	}
	return id
}

func TestRetryRequestResendsFullHistory(t *testing.T) {
	store, streamer := newTestStore(t, standardLimits())
	id := runTurns(t, store, streamer, []string{"first"})

	if err := store.RetryRequest(id, ""); err != nil {
		t.Fatalf("RetryRequest() error = %v", err)
	}

	sess := store.Selected()
	if _, ok := sess.State.(Loading); !ok {
		t.Errorf("State = %T, want Loading", sess.State)
	}
	if got := len(sess.Messages); got != 2 {
		t.Errorf("messages = %d, want history untouched at 2", got)
	}

	call := streamer.waitMainCall(t, 1)
	if got := len(call.Req.Messages); got != 2 {
		t.Errorf("retry request messages = %d, want 2", got)
	}
}

func TestRetryRequestTruncatesFromMessage(t *testing.T) {
	store, streamer := newTestStore(t, standardLimits())
	id := runTurns(t, store, streamer, []string{"first", "second"})

	sess := store.Selected()
	if len(sess.Messages) != 4 {
		t.Fatalf("messages = %d, want 4", len(sess.Messages))
	}
	second := sess.Messages[1]

	if err := store.RetryRequest(id, second.ID); err != nil {
		t.Fatalf("RetryRequest() error = %v", err)
	}

	sess = store.Selected()
	if got := len(sess.Messages); got != 2 {
		t.Fatalf("messages = %d after truncating retry, want 2", got)
	}
	if sess.Messages[1].ID != second.ID {
		t.Error("truncation removed the retry anchor message")
	}
	if _, ok := sess.State.(Loading); !ok {
		t.Errorf("State = %T, want Loading", sess.State)
	}

	call := streamer.waitMainCall(t, 2)
	if got := len(call.Req.Messages); got != 2 {
		t.Errorf("retry request messages = %d, want the 2 surviving messages", got)
	}
}

func TestRetryRequestUnknownMessage(t *testing.T) {
	store, streamer := newTestStore(t, standardLimits())
	id := runTurns(t, store, streamer, []string{"first"})

	var notFound *NotFoundError
	if err := store.RetryRequest(id, "missing"); !errors.As(err, &notFound) {
		t.Fatalf("RetryRequest(missing) error = %v, want NotFoundError", err)
	}
	if got := len(store.Selected().Messages); got != 2 {
		t.Errorf("messages = %d, want history untouched at 2", got)
	}
}

func TestRetryRequestIgnoredWhileInFlight(t *testing.T) {
	store, streamer := newTestStore(t, standardLimits())

	id, _ := sendWith(t, store, streamer, "Hello")

	if err := store.RetryRequest(id, ""); err != nil {
		t.Fatalf("RetryRequest() error = %v", err)
	}
	if got := len(streamer.mainCalls()); got != 1 {
		t.Errorf("completion calls = %d, want 1", got)
	}
}

func TestRetryRequestFromMessageIgnoredWhileInFlight(t *testing.T) {
	store, streamer := newTestStore(t, standardLimits())
	id := runTurns(t, store, streamer, []string{"first"})

	store.SetInputValue(id, "second")
	if err := store.SendMessage(id); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	call := streamer.waitMainCall(t, 1)
	call.send(stream.TextEvent{Value: "part 1"})
	waitFor(t, func() bool { return len(store.Selected().Messages) == 4 })

	firstUser := store.Selected().Messages[0]
	if err := store.RetryRequest(id, firstUser.ID); err != nil {
		t.Fatalf("RetryRequest() error = %v", err)
	}

	sess := store.Selected()
	if got := len(sess.Messages); got != 4 {
		t.Fatalf("messages = %d, want history untouched at 4", got)
	}
	if !sess.State.InFlight() {
		t.Errorf("State = %T, want the active stream left in flight", sess.State)
	}
	if got := len(streamer.mainCalls()); got != 2 {
		t.Errorf("completion calls = %d, want 2", got)
	}

	// The active stream keeps extending its own assistant message.
	call.send(stream.TextEvent{Value: " part 2"}, stream.EndEvent{})
	waitFor(t, func() bool { return !store.Selected().State.InFlight() })

	sess = store.Selected()
	if got := len(sess.Messages); got != 4 {
		t.Fatalf("messages = %d after stream settled, want 4", got)
	}
	if got := sess.Messages[3].Content; got != "part 1 part 2" {
		t.Errorf("messages[3].Content = %q, want %q", got, "part 1 part 2")
	}
}

// =============================================================================
// INVARIANT TESTS
// =============================================================================

func TestCancellationTokenMatchesInFlightState(t *testing.T) {
	store, streamer := newTestStore(t, standardLimits())

	id := store.SelectedID()
	if inFlightToken(store, id) {
		t.Error("idle session holds a cancellation token")
	}

	_, call := sendWith(t, store, streamer, "Hello")
	if !store.Selected().State.InFlight() || !inFlightToken(store, id) {
		t.Error("in-flight session missing state or token")
	}

	call.send(stream.TextEvent{Value: "Hi"}, stream.EndEvent{})
	waitFor(t, func() bool { return !store.Selected().State.InFlight() })
	if inFlightToken(store, id) {
		t.Error("settled session still holds a cancellation token")
	}
}
