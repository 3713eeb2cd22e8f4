// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/jeranaias/polychat-tui/internal/chat"
)

// =============================================================================
// MARKDOWN EXPORTER
// =============================================================================

// MarkdownExporter exports chat transcripts to Markdown.
type MarkdownExporter struct {
	options *Options
}

// NewMarkdownExporter creates a Markdown exporter.
func NewMarkdownExporter(opts *Options) *MarkdownExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &MarkdownExporter{options: opts}
}

// Export renders the session as a Markdown document. Assistant content is
// passed through untouched since it is already Markdown.
func (e *MarkdownExporter) Export(sess chat.Session) ([]byte, error) {
	if len(sess.Messages) == 0 {
		return nil, fmt.Errorf("chat has no messages")
	}

	var sb strings.Builder

	if e.options.IncludeMetadata {
		sb.WriteString("---\n")
		sb.WriteString(fmt.Sprintf("title: %s\n", escapeYAML(sess.DisplayTitle())))
		sb.WriteString(fmt.Sprintf("model: %s\n", sess.ModelID))
		sb.WriteString(fmt.Sprintf("started: %s\n", sess.Messages[0].Timestamp.Format(time.RFC3339)))
		sb.WriteString(fmt.Sprintf("messages: %d\n", len(sess.Messages)))
		if total := tokenTotal(sess); total > 0 {
			sb.WriteString(fmt.Sprintf("tokens: %d\n", total))
		}
		sb.WriteString(fmt.Sprintf("exported: %s\n", time.Now().Format(time.RFC3339)))
		sb.WriteString("generator: polychat-tui\n")
		sb.WriteString("---\n\n")
	}

	sb.WriteString("# " + sess.DisplayTitle() + "\n\n")

	for _, msg := range sess.Messages {
		sb.WriteString("## " + msg.Role.DisplayName())
		if e.options.IncludeTimestamps {
			sb.WriteString(" (" + msg.Timestamp.Format("2006-01-02 15:04:05") + ")")
		}
		sb.WriteString("\n\n")
		sb.WriteString(msg.Content)
		sb.WriteString("\n")

		if len(msg.SourceURLs) > 0 {
			sb.WriteString("\nSources:\n")
			for _, u := range msg.SourceURLs {
				sb.WriteString("- <" + u + ">\n")
			}
		}
		sb.WriteString("\n")
	}

	return []byte(sb.String()), nil
}

// FileExtension returns the Markdown extension.
func (e *MarkdownExporter) FileExtension() string {
	return ".md"
}

// escapeYAML quotes a value when it could break the frontmatter.
func escapeYAML(s string) string {
	if strings.ContainsAny(s, ":#\"'\n") {
		return `"` + strings.ReplaceAll(s, `"`, `\"`) + `"`
	}
	return s
}
