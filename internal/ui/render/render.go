// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package render turns parsed markdown and transcript messages into styled
// terminal text.
package render

import (
	"strconv"
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	chromaStyles "github.com/alecthomas/chroma/v2/styles"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/termenv"

	"github.com/jeranaias/modelexplorer/internal/markdown"
	"github.com/jeranaias/modelexplorer/internal/model"
	"github.com/jeranaias/modelexplorer/internal/ui/styles"
)

const (
	// DefaultCodeTheme is the chroma style for fenced code.
	DefaultCodeTheme = "monokai"

	// DefaultWidth is used until the terminal size is known.
	DefaultWidth = 80

	minWidth = 20
)

// Renderer renders blocks at a fixed width. It is not safe for concurrent
// use; SetWidth and rendering must happen on one goroutine.
type Renderer struct {
	theme     *styles.Theme
	width     int
	codeTheme string
}

// New creates a renderer. width <= 0 selects DefaultWidth and an empty
// codeTheme selects DefaultCodeTheme.
func New(theme *styles.Theme, width int, codeTheme string) *Renderer {
	if codeTheme == "" {
		codeTheme = DefaultCodeTheme
	}
	r := &Renderer{theme: theme, codeTheme: codeTheme}
	r.SetWidth(width)
	return r
}

// SetWidth changes the wrap width.
func (r *Renderer) SetWidth(width int) {
	if width <= 0 {
		width = DefaultWidth
	}
	if width < minWidth {
		width = minWidth
	}
	r.width = width
}

// Width returns the wrap width.
func (r *Renderer) Width() int {
	return r.width
}

// =============================================================================
// MARKDOWN
// =============================================================================

// Markdown parses and renders text.
func (r *Renderer) Markdown(text string) string {
	return r.Blocks(markdown.Parse(text))
}

// Blocks renders blocks separated by blank lines.
func (r *Renderer) Blocks(blocks []markdown.Block) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		parts = append(parts, r.Block(b))
	}
	return strings.Join(parts, "\n\n")
}

// Block renders one block.
func (r *Renderer) Block(b markdown.Block) string {
	switch b.Kind {
	case markdown.KindHeading:
		style := r.theme.Heading
		if b.Level > 2 {
			style = r.theme.SubHeading
		}
		return style.Width(r.width).Render(b.Text)

	case markdown.KindBulletList:
		lines := make([]string, len(b.Items))
		for i, item := range b.Items {
			lines[i] = r.listItem(r.theme.Bullet.Render("•"), 2, item)
		}
		return strings.Join(lines, "\n")

	case markdown.KindNumberedList:
		lines := make([]string, len(b.Items))
		for i, item := range b.Items {
			marker := strconv.Itoa(i+1) + "."
			lines[i] = r.listItem(r.theme.Bullet.Render(marker), len(marker)+1, item)
		}
		return strings.Join(lines, "\n")

	case markdown.KindCode:
		return r.code(b.Text, b.Lang)

	default:
		return r.theme.Renderer.NewStyle().Width(r.width).Render(r.Inline(b.Text))
	}
}

// listItem renders marker and text with wrapped lines hanging under the
// text rather than the marker.
func (r *Renderer) listItem(marker string, markerWidth int, text string) string {
	body := r.theme.Renderer.NewStyle().Width(r.width - markerWidth).Render(r.Inline(text))
	lines := strings.Split(body, "\n")
	indent := strings.Repeat(" ", markerWidth)
	for i := range lines {
		if i == 0 {
			lines[i] = marker + " " + lines[i]
		} else {
			lines[i] = indent + lines[i]
		}
	}
	return strings.Join(lines, "\n")
}

// Inline renders bold, italic and code spans.
func (r *Renderer) Inline(text string) string {
	var sb strings.Builder
	for _, span := range markdown.Inline(text) {
		switch span.Style {
		case markdown.StyleBold:
			sb.WriteString(r.theme.Bold.Render(span.Text))
		case markdown.StyleItalic:
			sb.WriteString(r.theme.Italic.Render(span.Text))
		case markdown.StyleCode:
			sb.WriteString(r.theme.InlineCode.Render(span.Text))
		default:
			sb.WriteString(span.Text)
		}
	}
	return sb.String()
}

// =============================================================================
// CODE
// =============================================================================

// code renders a fenced block in a bordered box. Lines wider than the box
// are truncated before highlighting so escape sequences are never cut.
func (r *Renderer) code(body, lang string) string {
	// Border and padding take four columns.
	inner := r.width - 4
	lines := strings.Split(body, "\n")
	for i, line := range lines {
		line = strings.ReplaceAll(line, "\t", "    ")
		lines[i] = runewidth.Truncate(line, inner, "…")
	}
	content := r.highlight(strings.Join(lines, "\n"), lang)
	if lang != "" {
		content = r.theme.CodeLang.Render(lang) + "\n" + content
	}
	return r.theme.CodeBox.Render(content)
}

func (r *Renderer) highlight(code, lang string) string {
	if r.theme.Colorless() || code == "" {
		return code
	}

	lexer := lexers.Get(lang)
	if lexer == nil {
		lexer = lexers.Analyse(code)
	}
	if lexer == nil {
		lexer = lexers.Fallback
	}
	lexer = chroma.Coalesce(lexer)

	style := chromaStyles.Get(r.codeTheme)
	if style == nil {
		style = chromaStyles.Fallback
	}

	formatter := formatters.Get(formatterFor(r.theme.Profile))
	if formatter == nil {
		formatter = formatters.Fallback
	}

	iterator, err := lexer.Tokenise(nil, code)
	if err != nil {
		return code
	}
	var buf strings.Builder
	if err := formatter.Format(&buf, style, iterator); err != nil {
		return code
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

func formatterFor(p termenv.Profile) string {
	switch p {
	case termenv.TrueColor:
		return "terminal16m"
	case termenv.ANSI:
		return "terminal16"
	default:
		return "terminal256"
	}
}

// =============================================================================
// TRANSCRIPT
// =============================================================================

// Message renders one transcript entry with its role label. An empty
// assistant message is the in-flight placeholder.
func (r *Renderer) Message(msg model.Message) string {
	var label string
	switch msg.Role {
	case model.RoleUser:
		label = r.theme.UserLabel.Render("You")
	case model.RoleSystem:
		label = r.theme.Muted.Render("System")
	default:
		label = r.theme.AssistantLabel.Render("Assistant")
	}

	if msg.Role == model.RoleAssistant && msg.Content == "" {
		return label + "\n" + r.theme.Thinking.Render("Thinking…")
	}
	if msg.Role == model.RoleUser {
		return label + "\n" + r.theme.Renderer.NewStyle().Width(r.width).Render(msg.Content)
	}
	return label + "\n" + r.Markdown(msg.Content)
}

// Transcript renders messages separated by blank lines.
func (r *Renderer) Transcript(messages []model.Message) string {
	parts := make([]string, len(messages))
	for i, msg := range messages {
		parts[i] = r.Message(msg)
	}
	return strings.Join(parts, "\n\n")
}
