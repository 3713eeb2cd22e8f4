// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package app provides the terminal chat interface.
//
// This file implements render coalescing for smooth, flicker-free output
// during response streaming. Store change notifications arrive per token,
// far faster than the terminal can usefully repaint; the coalescer batches
// them down to a capped frame rate.
package app

import (
	"sync"
	"time"
)

// =============================================================================
// RENDER COALESCER
// =============================================================================

// RenderCoalescer batches store change notifications for rendering.
// Changes are marked dirty and flushed either when:
// 1. The pending count threshold is reached (e.g. 15 changes)
// 2. Enough time has passed since the last flush (e.g. 33ms for 30fps)
//
// Thread-safety: Mark is called from streaming goroutines while ShouldRender
// runs on the main Bubble Tea loop, so all state is mutex-protected.
type RenderCoalescer struct {
	mu        sync.Mutex
	pending   int
	lastFlush time.Time

	batchSize    int
	minFlushWait time.Duration
}

// NewRenderCoalescer creates a coalescer with the default settings:
// 15 pending changes per batch, max 30 repaints per second.
func NewRenderCoalescer() *RenderCoalescer {
	const (
		defaultBatchSize = 15
		defaultMaxFPS    = 30
	)
	return NewRenderCoalescerWithConfig(defaultBatchSize, defaultMaxFPS)
}

// NewRenderCoalescerWithConfig creates a coalescer with custom settings.
func NewRenderCoalescerWithConfig(batchSize, maxFPS int) *RenderCoalescer {
	if batchSize <= 0 {
		batchSize = 15
	}
	if maxFPS <= 0 || maxFPS > 60 {
		maxFPS = 30
	}
	return &RenderCoalescer{
		batchSize:    batchSize,
		minFlushWait: time.Duration(1000/maxFPS) * time.Millisecond,
		lastFlush:    time.Now(),
	}
}

// Mark records one store change. Called from streaming goroutines.
func (c *RenderCoalescer) Mark() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending++
}

// ShouldRender reports whether a repaint is due, and resets the pending
// count when it is. Called from the main Bubble Tea loop.
func (c *RenderCoalescer) ShouldRender() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.pending == 0 {
		return false
	}
	if c.pending < c.batchSize && time.Since(c.lastFlush) < c.minFlushWait {
		return false
	}

	c.pending = 0
	c.lastFlush = time.Now()
	return true
}

// ForceRender flushes regardless of thresholds. Used when a stream settles
// so the final state paints immediately.
func (c *RenderCoalescer) ForceRender() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	had := c.pending > 0
	c.pending = 0
	c.lastFlush = time.Now()
	return had
}

// Pending returns the number of unrendered changes.
func (c *RenderCoalescer) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending
}
