// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/jeranaias/polychat-tui/internal/catalog"
	"github.com/jeranaias/polychat-tui/internal/stream"
)

// =============================================================================
// STREAMER CONTRACT
// =============================================================================

// Streamer opens a cancellable completion stream. Implemented by
// stream.Client; tests substitute a scripted fake.
type Streamer interface {
	Stream(ctx context.Context, req stream.Request) (<-chan stream.Event, error)
}

// =============================================================================
// STORE
// =============================================================================

// Config holds the store's collaborators.
type Config struct {
	// Catalog is the read-only model catalog.
	Catalog *catalog.Catalog

	// Streamer opens completion streams.
	Streamer Streamer

	// TitleModelID is the provider id of the low-latency model used for
	// chat title generation. Empty uses DefaultTitleModelID.
	TitleModelID string

	// Logger receives the swallowed-failure logs (title generation).
	// Nil uses slog.Default().
	Logger *slog.Logger

	// OnChange is invoked after every store mutation, outside the store
	// lock. Used by the TUI to schedule a re-render. May be nil.
	OnChange func()
}

// Store owns the collection of chat sessions and drives each session's
// request lifecycle. It is the single authority for session state: every
// mutation flows through one serialized apply path, so event arrivals from
// different sessions' streams never race on shared fields.
//
// Mutators accept a session id and touch only that session's record, which
// bounds the blast radius of any one request's failure to its own session.
type Store struct {
	mu sync.Mutex

	catalog      *catalog.Catalog
	streamer     Streamer
	titleModelID string
	logger       *slog.Logger
	onChange     func()

	sessions   []*Session
	selectedID string
}

// NewStore creates a store holding one fresh default session, selected.
// The store is never empty: deleting the last session recreates a default.
func NewStore(cfg Config) *Store {
	titleModelID := cfg.TitleModelID
	if titleModelID == "" {
		titleModelID = DefaultTitleModelID
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	s := &Store{
		catalog:      cfg.Catalog,
		streamer:     cfg.Streamer,
		titleModelID: titleModelID,
		logger:       logger,
		onChange:     cfg.OnChange,
	}

	first := newSession(s.catalog.Default().ID)
	s.sessions = []*Session{first}
	s.selectedID = first.ID

	return s
}

// =============================================================================
// INTERNAL MUTATION PATH
// =============================================================================

// findLocked returns the session with the given id. Caller holds s.mu.
func (s *Store) findLocked(id string) *Session {
	for _, sess := range s.sessions {
		if sess.ID == id {
			return sess
		}
	}
	return nil
}

// indexLocked returns the position of the session with the given id, or -1.
func (s *Store) indexLocked(id string) int {
	for i, sess := range s.sessions {
		if sess.ID == id {
			return i
		}
	}
	return -1
}

// apply runs fn against the named session under the store lock and fires
// the change notification afterwards. Returns false when the session no
// longer exists, which makes late stream callbacks on a deleted chat a
// harmless no-op.
func (s *Store) apply(id string, fn func(*Session)) bool {
	s.mu.Lock()
	sess := s.findLocked(id)
	if sess == nil {
		s.mu.Unlock()
		return false
	}
	fn(sess)
	onChange := s.onChange
	s.mu.Unlock()

	if onChange != nil {
		onChange()
	}
	return true
}

// notify fires the change notification outside the lock.
func (s *Store) notify() {
	s.mu.Lock()
	onChange := s.onChange
	s.mu.Unlock()
	if onChange != nil {
		onChange()
	}
}

// =============================================================================
// READ ACCESSORS
// =============================================================================

// Sessions returns snapshots of all sessions in creation order.
func (s *Store) Sessions() []Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Session, len(s.sessions))
	for i, sess := range s.sessions {
		out[i] = sess.snapshot()
	}
	return out
}

// Session returns a snapshot of the session with the given id.
func (s *Store) Session(id string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.findLocked(id)
	if sess == nil {
		return Session{}, &NotFoundError{Kind: "chat", ID: id}
	}
	return sess.snapshot(), nil
}

// SelectedID returns the id of the currently selected session.
// Exactly one session is selected at all times.
func (s *Store) SelectedID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.selectedID
}

// Selected returns a snapshot of the currently selected session.
func (s *Store) Selected() Session {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sess := s.findLocked(s.selectedID); sess != nil {
		return sess.snapshot()
	}
	// Unreachable while the store invariants hold; return the first
	// session rather than panic.
	return s.sessions[0].snapshot()
}

// Models returns the catalog definitions available for new chats, in
// catalog order.
func (s *Store) Models() []catalog.Definition {
	return s.catalog.List()
}

// ModelDefinition resolves a session's catalog definition.
func (s *Store) ModelDefinition(id string) (catalog.Definition, error) {
	sess, err := s.Session(id)
	if err != nil {
		return catalog.Definition{}, err
	}
	return s.catalog.Get(sess.ModelID)
}

// =============================================================================
// SESSION LIFECYCLE OPERATIONS
// =============================================================================

// CreateChat allocates a new session with the default model, empty messages
// and options, selects it, and returns its id. CreateChat cannot fail.
func (s *Store) CreateChat() string {
	s.mu.Lock()
	sess := newSession(s.catalog.Default().ID)
	s.sessions = append(s.sessions, sess)
	s.selectedID = sess.ID
	s.mu.Unlock()

	s.notify()
	return sess.ID
}

// SelectChat makes the session with the given id the selected one.
func (s *Store) SelectChat(id string) error {
	s.mu.Lock()
	if s.findLocked(id) == nil {
		s.mu.Unlock()
		return &NotFoundError{Kind: "chat", ID: id}
	}
	s.selectedID = id
	s.mu.Unlock()

	s.notify()
	return nil
}

// DeleteChat removes the session with the given id. An in-flight request is
// aborted first so no orphaned callback can mutate a removed session. When
// the deleted session was selected, selection moves to the session now at
// the same index (or the new last index). Deleting the only session
// replaces it with a fresh default session, selected.
func (s *Store) DeleteChat(id string) error {
	s.mu.Lock()

	index := s.indexLocked(id)
	if index < 0 {
		s.mu.Unlock()
		return &NotFoundError{Kind: "chat", ID: id}
	}

	sess := s.sessions[index]
	if sess.cancel != nil {
		sess.cancel(&AbortError{Reason: "chat deleted"})
		sess.cancel = nil
	}

	s.sessions = append(s.sessions[:index], s.sessions[index+1:]...)

	if len(s.sessions) == 0 {
		replacement := newSession(s.catalog.Default().ID)
		s.sessions = []*Session{replacement}
		s.selectedID = replacement.ID
	} else if s.selectedID == id {
		newIndex := index
		if newIndex >= len(s.sessions) {
			newIndex = len(s.sessions) - 1
		}
		s.selectedID = s.sessions[newIndex].ID
	}

	s.mu.Unlock()
	s.notify()
	return nil
}

// =============================================================================
// FIELD MUTATORS
// =============================================================================

// SetInputValue replaces the session's unsent draft text.
func (s *Store) SetInputValue(id, value string) error {
	if !s.apply(id, func(sess *Session) {
		sess.InputValue = value
	}) {
		return &NotFoundError{Kind: "chat", ID: id}
	}
	return nil
}

// SetModelDefinition changes the session's model. The model is mutable only
// while the conversation is empty; afterwards ErrModelLocked is returned.
func (s *Store) SetModelDefinition(id, definitionID string) error {
	if _, err := s.catalog.Get(definitionID); err != nil {
		return err
	}

	var locked bool
	if !s.apply(id, func(sess *Session) {
		if sess.HasMessages() {
			locked = true
			return
		}
		sess.ModelID = definitionID
	}) {
		return &NotFoundError{Kind: "chat", ID: id}
	}
	if locked {
		return ErrModelLocked
	}
	return nil
}

// UpdateOption shallow-merges the patch into the named option. The change
// affects the next request only; an in-flight request keeps the options it
// was sent with.
func (s *Store) UpdateOption(id string, key OptionKey, patch OptionPatch) error {
	var unknownKey bool
	if !s.apply(id, func(sess *Session) {
		unknownKey = !sess.Options.apply(key, patch)
	}) {
		return &NotFoundError{Kind: "chat", ID: id}
	}
	if unknownKey {
		return &NotFoundError{Kind: "option", ID: string(key)}
	}
	return nil
}

// =============================================================================
// SEND / ABORT / RETRY
// =============================================================================

// CanSend reports whether a send would currently be accepted for the
// session: non-empty trimmed input, no request in flight, and the model's
// chat-length limit not yet reached.
func (s *Store) CanSend(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.findLocked(id)
	if sess == nil {
		return false
	}
	if sess.State.InFlight() {
		return false
	}
	if strings.TrimSpace(sess.InputValue) == "" {
		return false
	}
	return !s.limitReachedLocked(sess)
}

// LimitReached reports whether the model's chat-length limit blocks further
// sends for the session.
func (s *Store) LimitReached(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := s.findLocked(id)
	if sess == nil {
		return false
	}
	return s.limitReachedLocked(sess)
}

// limitReachedLocked applies the chat-length policy: the about-to-be-sent
// message counts toward the limit, so a send is allowed only while
// len(messages)+1 <= MaxChatLength. Caller holds s.mu.
func (s *Store) limitReachedLocked(sess *Session) bool {
	def, err := s.catalog.Get(sess.ModelID)
	if err != nil || def.Limits == nil || def.Limits.MaxChatLength <= 0 {
		return false
	}
	return len(sess.Messages)+1 > def.Limits.MaxChatLength
}

// SendMessage sends the session's current input as a new user message and
// starts streaming the reply.
//
// The call is a silent no-op when the trimmed input is empty, a request is
// already in flight, or the model's limits are exceeded: callers are
// expected to have disabled the affordance, and the store re-validates.
// The input is cleared synchronously the moment the send is accepted,
// before any network activity. The session's first send also fires the
// best-effort title generation sub-request.
func (s *Store) SendMessage(id string) error {
	s.mu.Lock()

	sess := s.findLocked(id)
	if sess == nil {
		s.mu.Unlock()
		return &NotFoundError{Kind: "chat", ID: id}
	}

	trimmed := strings.TrimSpace(sess.InputValue)
	if trimmed == "" || sess.State.InFlight() {
		s.mu.Unlock()
		return nil
	}

	def, err := s.catalog.Get(sess.ModelID)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if s.limitReachedLocked(sess) {
		s.mu.Unlock()
		return nil
	}
	if def.Limits != nil && def.Limits.MaxMessageLength > 0 && len(trimmed) > def.Limits.MaxMessageLength {
		s.mu.Unlock()
		return nil
	}

	firstMessage := !sess.HasMessages()

	sess.InputValue = ""
	sess.Messages = append(sess.Messages, NewUserMessage(sess.ID, trimmed))
	sess.State = Loading{}

	req := s.buildRequestLocked(sess, def)
	ctx := s.armCancelLocked(sess)

	onChange := s.onChange
	s.mu.Unlock()

	if onChange != nil {
		onChange()
	}

	if firstMessage {
		go s.generateTitle(id, trimmed)
	}
	go s.runRequest(ctx, id, req)

	return nil
}

// AbortRequest cancels the session's in-flight request with the given
// reason and settles the session to idle immediately, without waiting for
// the stream to acknowledge. A session with no request in flight is left
// untouched; aborting twice is a no-op both times.
func (s *Store) AbortRequest(id, reason string) error {
	s.mu.Lock()

	sess := s.findLocked(id)
	if sess == nil {
		s.mu.Unlock()
		return &NotFoundError{Kind: "chat", ID: id}
	}

	if sess.cancel == nil {
		s.mu.Unlock()
		return nil
	}

	sess.cancel(&AbortError{Reason: reason})
	sess.cancel = nil
	sess.State = Idle{}

	onChange := s.onChange
	s.mu.Unlock()

	if onChange != nil {
		onChange()
	}
	return nil
}

// RetryRequest re-issues the session's request. With fromMessageID set, the
// conversation is first truncated to just after that message, regenerating
// everything from that point; otherwise the full current history is resent
// unchanged. A session with a request already in flight is left untouched.
func (s *Store) RetryRequest(id, fromMessageID string) error {
	s.mu.Lock()

	sess := s.findLocked(id)
	if sess == nil {
		s.mu.Unlock()
		return &NotFoundError{Kind: "chat", ID: id}
	}

	// The in-flight check must precede the truncation: a retry during an
	// active stream is a complete no-op, never a history edit the stream
	// would then graft fragments onto.
	if sess.State.InFlight() || len(sess.Messages) == 0 {
		s.mu.Unlock()
		return nil
	}

	if fromMessageID != "" {
		index := sess.messageIndex(fromMessageID)
		if index < 0 {
			s.mu.Unlock()
			return &NotFoundError{Kind: "message", ID: fromMessageID}
		}
		sess.Messages = sess.Messages[:index+1]
	}

	def, err := s.catalog.Get(sess.ModelID)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	sess.State = Loading{}
	req := s.buildRequestLocked(sess, def)
	ctx := s.armCancelLocked(sess)

	onChange := s.onChange
	s.mu.Unlock()

	if onChange != nil {
		onChange()
	}

	go s.runRequest(ctx, id, req)
	return nil
}

// =============================================================================
// REQUEST ASSEMBLY
// =============================================================================

// buildRequestLocked snapshots the session into an outgoing request: the
// message history, the option set and the model's limits as they are right
// now. Later edits to the session never reach this request. Caller holds
// s.mu.
func (s *Store) buildRequestLocked(sess *Session, def catalog.Definition) stream.Request {
	messages := make([]stream.Message, 0, len(sess.Messages))
	for _, msg := range sess.Messages {
		messages = append(messages, stream.Message{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	var maxOutput int
	if def.Limits != nil {
		maxOutput = def.Limits.MaxOutputTokens
	}

	return stream.Request{
		ModelID:         def.OpenRouterID,
		Messages:        messages,
		Options:         sess.Options.snapshot(),
		MaxOutputTokens: maxOutput,
		Limits:          def.Limits,
	}
}

// armCancelLocked replaces the session's cancellation token with a fresh
// one and returns the request context. Caller holds s.mu.
func (s *Store) armCancelLocked(sess *Session) context.Context {
	if sess.cancel != nil {
		// A lingering token here means the previous request already
		// settled without clearing it; release its resources.
		sess.cancel(&AbortError{Reason: "superseded"})
	}
	ctx, cancel := context.WithCancelCause(context.Background())
	sess.cancel = cancel
	return ctx
}
