// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/jeranaias/polychat-tui/internal/chat"
)

// =============================================================================
// JSON EXPORTER
// =============================================================================

// JSONExporter exports chat transcripts to pretty-printed JSON.
type JSONExporter struct {
	options *Options
}

// NewJSONExporter creates a JSON exporter.
func NewJSONExporter(opts *Options) *JSONExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &JSONExporter{options: opts}
}

// jsonDocument is the export envelope.
type jsonDocument struct {
	Title      string         `json:"title"`
	ModelID    string         `json:"model_id"`
	Messages   []chat.Message `json:"messages"`
	TokenTotal int            `json:"token_total,omitempty"`
	ExportedAt time.Time      `json:"exported_at"`
	Generator  string         `json:"generator"`
}

// Export renders the session as a JSON document.
func (e *JSONExporter) Export(sess chat.Session) ([]byte, error) {
	if len(sess.Messages) == 0 {
		return nil, fmt.Errorf("chat has no messages")
	}

	doc := jsonDocument{
		Title:      sess.DisplayTitle(),
		ModelID:    sess.ModelID,
		Messages:   sess.Messages,
		ExportedAt: time.Now(),
		Generator:  "polychat-tui",
	}
	if e.options.IncludeMetadata {
		doc.TokenTotal = tokenTotal(sess)
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal transcript: %w", err)
	}
	return append(out, '\n'), nil
}

// FileExtension returns the JSON extension.
func (e *JSONExporter) FileExtension() string {
	return ".json"
}
