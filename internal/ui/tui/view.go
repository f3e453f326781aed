// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tui

import (
	"strings"

	"github.com/jeranaias/modelexplorer/internal/ui/styles"
	"github.com/jeranaias/modelexplorer/internal/util"
)

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading…"
	}
	return m.header() + "\n" + m.viewport.View() + "\n" + m.footer()
}

// header is the title line plus the unavailability banner and the last
// error, when there are any.
func (m Model) header() string {
	var b strings.Builder

	title := m.theme.Header.Render(util.TruncateWidth(m.ctrl.ModelName(), m.width/2))
	status := m.ctrl.Availability()
	if status.IsAvailable() {
		title += " " + m.theme.StatusOK.Render(styles.SymbolOK)
	}
	b.WriteString(title)

	if !status.IsAvailable() {
		banner := m.theme.BannerTitle.Render(styles.SymbolWarning+" "+status.Title) + "\n" + status.Message
		if status.Remediable && status.Remediation != "" {
			banner += "\n" + m.theme.BannerHint.Render(status.Remediation)
		}
		b.WriteString("\n")
		b.WriteString(m.theme.Banner.Width(m.width).Render(banner))
	}

	if errMsg := m.ctrl.ErrorMessage(); errMsg != "" {
		b.WriteString("\n")
		b.WriteString(m.theme.Error.Width(m.width).Render(styles.SymbolError + " " + errMsg))
	}
	return b.String()
}

// footer is the prompt and the key help.
func (m Model) footer() string {
	var b strings.Builder
	if m.ctrl.IsLoading() {
		b.WriteString(m.spinner.View() + m.theme.Thinking.Render(" Generating… (esc to stop)"))
	} else {
		b.WriteString(m.input.View())
	}
	b.WriteString("\n")

	help := make([]string, 0, 4)
	for _, k := range m.keys.helpBindings(m.ctrl.IsLoading()) {
		h := k.Help()
		help = append(help, h.Key+" "+h.Desc)
	}
	line := strings.Join(help, " • ")
	if m.notice != "" {
		line = m.notice + "  " + line
	}
	b.WriteString(m.theme.Muted.Render(util.TruncateWidth(line, m.width)))
	return b.String()
}

func lineCount(s string) int {
	if s == "" {
		return 0
	}
	return strings.Count(s, "\n") + 1
}
