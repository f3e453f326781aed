// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package styles

import (
	"strings"
	"testing"

	"github.com/muesli/termenv"
)

func TestNewThemeWithProfile_Ascii(t *testing.T) {
	th := NewThemeWithProfile(termenv.Ascii)

	if !th.Colorless() {
		t.Fatal("Ascii theme should be colorless")
	}
	got := th.Heading.Render("Title")
	if got != "Title" {
		t.Errorf("Heading.Render() = %q, want plain %q", got, "Title")
	}
}

func TestNewThemeWithProfile_Color(t *testing.T) {
	th := NewThemeWithProfile(termenv.ANSI256)

	if th.Colorless() {
		t.Fatal("ANSI256 theme should not be colorless")
	}
	got := th.Error.Render("boom")
	if !strings.Contains(got, "\x1b[") {
		t.Errorf("Error.Render() = %q, want ANSI escapes", got)
	}
	if !strings.Contains(got, "boom") {
		t.Errorf("Error.Render() = %q, lost its text", got)
	}
}

func TestCodeBoxHasBorder(t *testing.T) {
	th := NewThemeWithProfile(termenv.Ascii)
	got := th.CodeBox.Render("x")
	if !strings.Contains(got, "╭") || !strings.Contains(got, "╯") {
		t.Errorf("CodeBox.Render() = %q, want a rounded border", got)
	}
}
