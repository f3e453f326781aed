// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package export

import (
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/jeranaias/modelexplorer/internal/markdown"
	"github.com/jeranaias/modelexplorer/internal/model"
)

// =============================================================================
// HTML EXPORTER
// =============================================================================

// HTMLExporter writes a self-contained HTML page. Message text is parsed
// with the same Markdown subset the terminal renders and every piece of
// text is escaped, so the page never contains markup from a message.
type HTMLExporter struct {
	options *Options
}

// NewHTMLExporter creates an HTML exporter.
func NewHTMLExporter(opts *Options) *HTMLExporter {
	if opts == nil {
		opts = DefaultOptions()
	}
	return &HTMLExporter{options: opts}
}

// Export implements Exporter.
func (e *HTMLExporter) Export(conv *model.Conversation) ([]byte, error) {
	if err := validate(conv); err != nil {
		return nil, err
	}

	title := html.EscapeString(conv.Title)

	var sb strings.Builder
	sb.WriteString("<!DOCTYPE html>\n<html lang=\"en\">\n<head>\n")
	sb.WriteString("<meta charset=\"UTF-8\">\n")
	sb.WriteString("<meta name=\"viewport\" content=\"width=device-width, initial-scale=1.0\">\n")
	fmt.Fprintf(&sb, "<title>%s</title>\n", title)
	fmt.Fprintf(&sb, "<style>%s</style>\n", pageCSS)
	sb.WriteString("</head>\n<body>\n<main>\n")

	fmt.Fprintf(&sb, "<h1>%s</h1>\n", title)
	if e.options.IncludeMetadata {
		fmt.Fprintf(&sb, "<p class=\"meta\">%d messages &middot; created %s &middot; exported %s</p>\n",
			len(conv.Messages),
			conv.CreatedAt.Format("2006-01-02 15:04"),
			e.options.now().Format("2006-01-02 15:04"))
	}

	for _, msg := range conv.Messages {
		e.writeMessage(&sb, msg)
	}

	sb.WriteString("</main>\n</body>\n</html>\n")
	return []byte(sb.String()), nil
}

// FileExtension implements Exporter.
func (e *HTMLExporter) FileExtension() string { return ".html" }

// MimeType implements Exporter.
func (e *HTMLExporter) MimeType() string { return "text/html; charset=utf-8" }

func (e *HTMLExporter) writeMessage(sb *strings.Builder, msg model.Message) {
	fmt.Fprintf(sb, "<section class=\"msg %s\">\n", html.EscapeString(string(msg.Role)))
	fmt.Fprintf(sb, "<h2>%s", roleLabel(msg.Role))
	if e.options.IncludeTimestamps && !msg.Timestamp.IsZero() {
		fmt.Fprintf(sb, " <time datetime=\"%s\">%s</time>",
			msg.Timestamp.Format(time.RFC3339), msg.Timestamp.Format("15:04:05"))
	}
	sb.WriteString("</h2>\n")

	if msg.Content == "" {
		sb.WriteString("<p class=\"empty\">(no content)</p>\n")
	}
	for _, b := range markdown.Parse(msg.Content) {
		writeBlock(sb, b)
	}
	sb.WriteString("</section>\n")
}

func writeBlock(sb *strings.Builder, b markdown.Block) {
	switch b.Kind {
	case markdown.KindHeading:
		// h1 and h2 are taken by the page and the message headings.
		level := b.Level + 2
		if level > 6 {
			level = 6
		}
		fmt.Fprintf(sb, "<h%d>%s</h%d>\n", level, inlineHTML(b.Text), level)
	case markdown.KindCode:
		if b.Lang != "" {
			fmt.Fprintf(sb, "<pre><code class=\"language-%s\">%s</code></pre>\n",
				html.EscapeString(b.Lang), html.EscapeString(b.Text))
		} else {
			fmt.Fprintf(sb, "<pre><code>%s</code></pre>\n", html.EscapeString(b.Text))
		}
	case markdown.KindBulletList, markdown.KindNumberedList:
		tag := "ul"
		if b.Kind == markdown.KindNumberedList {
			tag = "ol"
		}
		fmt.Fprintf(sb, "<%s>\n", tag)
		for _, item := range b.Items {
			fmt.Fprintf(sb, "<li>%s</li>\n", inlineHTML(item))
		}
		fmt.Fprintf(sb, "</%s>\n", tag)
	default:
		text := inlineHTML(b.Text)
		fmt.Fprintf(sb, "<p>%s</p>\n", strings.ReplaceAll(text, "\n", "<br>\n"))
	}
}

func inlineHTML(text string) string {
	var sb strings.Builder
	for _, span := range markdown.Inline(text) {
		escaped := html.EscapeString(span.Text)
		switch span.Style {
		case markdown.StyleBold:
			fmt.Fprintf(&sb, "<strong>%s</strong>", escaped)
		case markdown.StyleItalic:
			fmt.Fprintf(&sb, "<em>%s</em>", escaped)
		case markdown.StyleCode:
			fmt.Fprintf(&sb, "<code>%s</code>", escaped)
		default:
			sb.WriteString(escaped)
		}
	}
	return sb.String()
}

const pageCSS = `
:root { color-scheme: light dark; --bg: #fafafa; --fg: #1f2328; --muted: #6e7781; --card: #ffffff; --code: #f3f4f6; --accent: #7c3aed; --user: #0891b2; }
@media (prefers-color-scheme: dark) { :root { --bg: #0d1117; --fg: #e6edf3; --muted: #8b949e; --card: #161b22; --code: #0b0f14; --accent: #a78bfa; --user: #22d3ee; } }
body { margin: 0; background: var(--bg); color: var(--fg); font: 16px/1.6 system-ui, -apple-system, "Segoe UI", sans-serif; }
main { max-width: 860px; margin: 0 auto; padding: 2rem 1rem; }
h1 { margin: 0 0 .25rem; }
.meta { color: var(--muted); margin-top: 0; }
.msg { background: var(--card); border-radius: 8px; padding: .75rem 1.25rem; margin: 1rem 0; border-left: 4px solid var(--accent); }
.msg.user { border-left-color: var(--user); }
.msg h2 { font-size: 1rem; margin: .25rem 0 .5rem; }
.msg h2 time { color: var(--muted); font-weight: normal; font-size: .85rem; margin-left: .5rem; }
pre { background: var(--code); padding: .75rem; border-radius: 6px; overflow-x: auto; }
code { font-family: ui-monospace, SFMono-Regular, Menlo, Consolas, monospace; font-size: .9em; }
.empty { color: var(--muted); font-style: italic; }
`
