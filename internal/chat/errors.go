// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package chat

import (
	"errors"
	"fmt"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ErrModelLocked indicates an attempt to change a session's model after its
// first message. The model is fixed once a conversation has started.
var ErrModelLocked = errors.New("model cannot change once the chat has messages")

// NotFoundError reports an operation that referenced a chat or message id
// not present in the store. All ids originate from the store itself, so
// this is a programming-contract violation rather than a runtime condition
// to recover from.
type NotFoundError struct {
	// Kind is what was looked up: "chat", "message" or "option".
	Kind string
	ID   string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no %s with ID %q found", e.Kind, e.ID)
}

// AbortError is the cancellation cause attached to a request's context when
// the user or the system aborts it. It marks an intentional stop, never a
// failure: the request loop settles the session to idle without surfacing
// an error state.
type AbortError struct {
	Reason string
}

// Error implements the error interface.
func (e *AbortError) Error() string {
	if e.Reason == "" {
		return "request aborted"
	}
	return "request aborted: " + e.Reason
}

// IsAbort reports whether err is (or wraps) an AbortError.
func IsAbort(err error) bool {
	var abortErr *AbortError
	return errors.As(err, &abortErr)
}
