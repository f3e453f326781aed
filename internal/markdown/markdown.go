// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package markdown

import (
	"regexp"
	"strings"
)

// =============================================================================
// BLOCK TYPES
// =============================================================================

// Kind identifies the type of a Block.
type Kind int

const (
	KindParagraph Kind = iota
	KindCode
	KindBulletList
	KindNumberedList
	KindHeading
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindParagraph:
		return "paragraph"
	case KindCode:
		return "code"
	case KindBulletList:
		return "bulletList"
	case KindNumberedList:
		return "numberedList"
	case KindHeading:
		return "heading"
	default:
		return "unknown"
	}
}

// Block is one structural element of a markdown document.
//
// Text holds the paragraph text, the heading text or the code body depending
// on Kind. Lang is the fence language tag (empty when none was given), Items
// the list entries and Level the heading depth.
type Block struct {
	Kind  Kind
	Text  string
	Lang  string
	Items []string
	Level int
}

// Paragraph returns a paragraph block.
func Paragraph(text string) Block {
	return Block{Kind: KindParagraph, Text: text}
}

// Code returns a fenced code block.
func Code(body, lang string) Block {
	return Block{Kind: KindCode, Text: body, Lang: lang}
}

// BulletList returns an unordered list block.
func BulletList(items ...string) Block {
	return Block{Kind: KindBulletList, Items: items}
}

// NumberedList returns an ordered list block.
func NumberedList(items ...string) Block {
	return Block{Kind: KindNumberedList, Items: items}
}

// Heading returns a heading block.
func Heading(level int, text string) Block {
	return Block{Kind: KindHeading, Level: level, Text: text}
}

// =============================================================================
// BLOCK PARSER
// =============================================================================

const fence = "```"

var numberedItem = regexp.MustCompile(`^\d+\.\s+(.+)`)

// parser holds the accumulator state for a single Parse call.
type parser struct {
	blocks []Block

	paragraph string

	inCode    bool
	codeLang  string
	codeLines strings.Builder

	bullets  []string
	numbered []string
}

// Parse splits text into an ordered sequence of blocks.
//
// The parse is line oriented and never fails: anything that is not a fence,
// heading or list item becomes paragraph text. Parse keeps no state between
// calls, so re-parsing a growing buffer always yields the full block list for
// the current text.
func Parse(text string) []Block {
	p := &parser{}
	for _, line := range strings.Split(text, "\n") {
		p.line(line)
	}
	p.finish()
	return p.blocks
}

func (p *parser) line(line string) {
	if strings.HasPrefix(line, fence) {
		if p.inCode {
			p.emitCode()
			return
		}
		p.flushParagraph()
		p.flushLists()
		p.inCode = true
		p.codeLang = strings.TrimSpace(strings.TrimPrefix(line, fence))
		return
	}

	if p.inCode {
		p.codeLines.WriteString(line)
		p.codeLines.WriteByte('\n')
		return
	}

	if strings.HasPrefix(line, "#") {
		p.flushParagraph()
		p.flushLists()
		level := len(line) - len(strings.TrimLeft(line, "#"))
		p.blocks = append(p.blocks, Heading(level, strings.TrimSpace(line[level:])))
		return
	}

	trimmed := strings.TrimSpace(line)

	if strings.HasPrefix(trimmed, "- ") || strings.HasPrefix(trimmed, "* ") {
		p.flushParagraph()
		p.flushNumbered()
		p.bullets = append(p.bullets, trimmed[2:])
		return
	}

	if m := numberedItem.FindStringSubmatch(trimmed); m != nil {
		p.flushParagraph()
		p.flushBullets()
		p.numbered = append(p.numbered, m[1])
		return
	}

	p.flushLists()
	if trimmed == "" {
		p.flushParagraph()
		return
	}
	if p.paragraph == "" {
		p.paragraph = line
	} else {
		p.paragraph += " " + line
	}
}

func (p *parser) finish() {
	// An unterminated fence keeps what was streamed so far.
	if p.inCode {
		p.emitCode()
	}
	p.flushLists()
	p.flushParagraph()
}

func (p *parser) emitCode() {
	p.blocks = append(p.blocks, Code(strings.TrimSpace(p.codeLines.String()), p.codeLang))
	p.codeLines.Reset()
	p.codeLang = ""
	p.inCode = false
}

func (p *parser) flushParagraph() {
	text := strings.TrimSpace(p.paragraph)
	p.paragraph = ""
	if text != "" {
		p.blocks = append(p.blocks, Paragraph(text))
	}
}

func (p *parser) flushLists() {
	p.flushBullets()
	p.flushNumbered()
}

func (p *parser) flushBullets() {
	if len(p.bullets) > 0 {
		p.blocks = append(p.blocks, BulletList(p.bullets...))
		p.bullets = nil
	}
}

func (p *parser) flushNumbered() {
	if len(p.numbered) > 0 {
		p.blocks = append(p.blocks, NumberedList(p.numbered...))
		p.numbered = nil
	}
}

// =============================================================================
// HELPERS
// =============================================================================

// PlainText flattens blocks into unstyled text, one block per paragraph.
func PlainText(blocks []Block) string {
	parts := make([]string, 0, len(blocks))
	for _, b := range blocks {
		switch b.Kind {
		case KindBulletList, KindNumberedList:
			parts = append(parts, strings.Join(b.Items, "\n"))
		default:
			parts = append(parts, b.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}
