// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

// Theme holds the styled components for one output.
type Theme struct {
	Renderer *lipgloss.Renderer
	Profile  termenv.Profile

	// Markdown
	Heading    lipgloss.Style
	SubHeading lipgloss.Style
	Bullet     lipgloss.Style
	Bold       lipgloss.Style
	Italic     lipgloss.Style
	InlineCode lipgloss.Style
	CodeBox    lipgloss.Style
	CodeLang   lipgloss.Style

	// Transcript
	UserLabel      lipgloss.Style
	AssistantLabel lipgloss.Style
	Thinking       lipgloss.Style

	// Chrome
	Header      lipgloss.Style
	StatusOK    lipgloss.Style
	Banner      lipgloss.Style
	BannerTitle lipgloss.Style
	BannerHint  lipgloss.Style
	Error       lipgloss.Style
	Muted       lipgloss.Style
	Prompt      lipgloss.Style
	Spinner     lipgloss.Style
}

// NewTheme builds a theme for w, detecting its color profile from the
// environment.
func NewTheme(w io.Writer) *Theme {
	r := lipgloss.NewRenderer(w)
	return build(r, r.ColorProfile())
}

// NewThemeWithProfile builds a theme that always renders with p. Output is
// not written anywhere; the profile is not detected.
func NewThemeWithProfile(p termenv.Profile) *Theme {
	r := lipgloss.NewRenderer(io.Discard)
	r.SetColorProfile(p)
	r.SetHasDarkBackground(true)
	return build(r, p)
}

func build(r *lipgloss.Renderer, p termenv.Profile) *Theme {
	s := r.NewStyle
	return &Theme{
		Renderer: r,
		Profile:  p,

		Heading:    s().Bold(true).Foreground(Purple),
		SubHeading: s().Bold(true).Foreground(TextSecondary),
		Bullet:     s().Foreground(Cyan),
		Bold:       s().Bold(true),
		Italic:     s().Italic(true),
		InlineCode: s().Foreground(Cyan).Background(SurfaceDim),
		CodeBox: s().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(Overlay).
			Padding(0, 1),
		CodeLang: s().Foreground(TextMuted).Bold(true),

		UserLabel:      s().Bold(true).Foreground(Cyan),
		AssistantLabel: s().Bold(true).Foreground(Purple),
		Thinking:       s().Italic(true).Foreground(TextMuted),

		Header:   s().Bold(true).Foreground(TextPrimary),
		StatusOK: s().Foreground(Emerald),
		Banner: s().
			Background(BannerBg).
			Foreground(TextPrimary).
			Padding(0, 1),
		BannerTitle: s().Bold(true).Foreground(Rose),
		BannerHint:  s().Foreground(Amber),
		Error:       s().Foreground(Rose),
		Muted:       s().Foreground(TextMuted),
		Prompt:      s().Foreground(Cyan).Bold(true),
		Spinner:     s().Foreground(Purple),
	}
}

// Colorless reports whether the theme renders plain text.
func (t *Theme) Colorless() bool {
	return t.Profile == termenv.Ascii
}
