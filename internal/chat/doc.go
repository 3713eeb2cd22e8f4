// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package chat owns the multi-session chat state machine.
//
// The store holds every chat session and is the only writer to session
// state. Stream events, user actions and title updates all funnel through
// one serialized apply path, so concurrent requests on different sessions
// never interfere and late events on deleted or aborted sessions land
// nowhere.
//
// # Key Types
//
//   - Store: session collection plus all mutating operations
//   - Session: one conversation (messages, options, model, request state)
//   - State: sealed union of Idle, Loading, Reasoning, Streaming, Failed
//   - Message: one user or assistant turn, with response metadata
//   - Streamer: the transport contract, implemented by stream.Client
//
// # Lifecycle
//
// A send moves the session from Idle to Loading, then to Reasoning and/or
// Streaming as events arrive, and back to Idle (or Failed) when the stream
// settles. Aborting settles the session immediately; the in-flight request
// notices its cancelled context and goes quiet.
//
// # Usage
//
//	store := chat.NewStore(chat.Config{
//		Catalog:  cat,
//		Streamer: client,
//		OnChange: func() { program.Send(refreshMsg{}) },
//	})
//	id := store.SelectedID()
//	store.SetInputValue(id, "Hello!")
//	store.SendMessage(id)
package chat
