// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

/*
Package styles holds the color palette and the lipgloss styles shared by the
terminal renderer and the TUI.

Colors are lipgloss AdaptiveColor values so light and dark terminals both get
readable output. A Theme binds every style to one lipgloss.Renderer, which
carries the detected color profile; rendering through a Theme built for the
Ascii profile produces plain text.
*/
package styles
