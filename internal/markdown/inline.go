// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package markdown

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// Style is the inline emphasis of a Span.
type Style int

const (
	StylePlain Style = iota
	StyleBold
	StyleItalic
	StyleCode
)

// Span is a run of inline text sharing one style.
type Span struct {
	Style Style
	Text  string
}

// Inline splits block text into styled spans.
//
// Recognized markers are **bold**, *italic*, _italic_ and `code`. Markers
// without a closing partner are kept as plain text, which matters while a
// response is still streaming in.
func Inline(text string) []Span {
	var spans []Span
	var plain strings.Builder

	emit := func(style Style, s string) {
		if plain.Len() > 0 {
			spans = append(spans, Span{Style: StylePlain, Text: plain.String()})
			plain.Reset()
		}
		spans = append(spans, Span{Style: style, Text: s})
	}

	for i := 0; i < len(text); {
		rest := text[i:]

		switch {
		case rest[0] == '`':
			if end := strings.IndexByte(rest[1:], '`'); end >= 0 {
				emit(StyleCode, rest[1:1+end])
				i += end + 2
				continue
			}
		case strings.HasPrefix(rest, "**"):
			if end := strings.Index(rest[2:], "**"); end > 0 {
				emit(StyleBold, rest[2:2+end])
				i += end + 4
				continue
			}
		case rest[0] == '*' || (rest[0] == '_' && wordBoundary(text, i)):
			marker := rest[0]
			if end := strings.IndexByte(rest[1:], marker); end > 0 && rest[1] != ' ' {
				emit(StyleItalic, rest[1:1+end])
				i += end + 2
				continue
			}
		}

		r, size := utf8.DecodeRuneInString(rest)
		plain.WriteRune(r)
		i += size
	}

	if plain.Len() > 0 {
		spans = append(spans, Span{Style: StylePlain, Text: plain.String()})
	}
	return spans
}

// wordBoundary reports whether position i does not follow a letter or digit,
// so identifiers like snake_case are left alone.
func wordBoundary(text string, i int) bool {
	if i == 0 {
		return true
	}
	r, _ := utf8.DecodeLastRuneInString(text[:i])
	return !unicode.IsLetter(r) && !unicode.IsDigit(r)
}
