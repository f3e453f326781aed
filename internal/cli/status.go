// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// statusReport is the --json form of the status command.
type statusReport struct {
	Model       string `json:"model"`
	Available   bool   `json:"available"`
	Reason      string `json:"reason,omitempty"`
	Title       string `json:"title,omitempty"`
	Message     string `json:"message,omitempty"`
	Remediation string `json:"remediation,omitempty"`
}

func newStatusCommand(app *App) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Check whether the configured model can answer",
		Long: `Check whether the configured model can answer.

Exits 0 when the model is available and 4 when it is not.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := app.NewModel()
			if err != nil {
				return err
			}
			status, probeErr := probe(cmd.Context(), m)

			out := cmd.OutOrStdout()
			if asJSON {
				report := statusReport{Model: m.Name(), Available: status.IsAvailable()}
				if !report.Available {
					report.Reason = status.Reason()
					report.Title = status.Title
					report.Message = status.Message
					report.Remediation = status.Remediation
				}
				if err := writeJSON(out, report); err != nil {
					return err
				}
				return probeErr
			}

			fmt.Fprintf(out, "Model:    %s\n", m.Name())
			if status.IsAvailable() {
				fmt.Fprintln(out, "Status:   available")
				return nil
			}
			fmt.Fprintf(out, "Status:   unavailable (%s)\n", status.Reason())
			fmt.Fprintln(out)
			printUnavailable(out, status)
			return probeErr
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

