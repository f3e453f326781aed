// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/jeranaias/modelexplorer/internal/chat"
	"github.com/jeranaias/modelexplorer/internal/ui/render"
	"github.com/jeranaias/modelexplorer/internal/ui/styles"
)

// Run shows the chat screen until the user quits or ctx is cancelled. A
// response still streaming on exit is cancelled and its partial text kept.
func Run(ctx context.Context, ctrl *chat.Controller, theme *styles.Theme, renderer *render.Renderer) error {
	p := tea.NewProgram(
		New(ctx, ctrl, theme, renderer),
		tea.WithAltScreen(),
		tea.WithContext(ctx),
	)
	_, err := p.Run()
	ctrl.Cancel()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
