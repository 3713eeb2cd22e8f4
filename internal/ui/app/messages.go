// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package app

import (
	"time"

	"github.com/jeranaias/polychat-tui/internal/config"
)

// =============================================================================
// MESSAGE TYPES
// =============================================================================

// StoreChangedMsg is delivered whenever the chat store mutates. The store's
// OnChange hook sends it into the program from whatever goroutine settled
// the change, so the UI re-reads its snapshot on the main loop.
type StoreChangedMsg struct{}

// ConfigReloadedMsg is delivered when the config watcher picks up an edited
// config file.
type ConfigReloadedMsg struct {
	Config *config.Config
}

// refreshTickMsg drives the render coalescer while a response streams.
type refreshTickMsg struct {
	at time.Time
}
