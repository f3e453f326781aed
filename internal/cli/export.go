// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/modelexplorer/internal/export"
	"github.com/jeranaias/modelexplorer/internal/storage"
)

type exportOptions struct {
	format       string
	dir          string
	noMetadata   bool
	noTimestamps bool
}

func newExportCommand(app *App) *cobra.Command {
	var opts exportOptions
	cmd := &cobra.Command{
		Use:   "export <id>",
		Short: "Export a conversation as Markdown, JSON or HTML",
		Example: `  modelexplorer export 3f2a > chat.md
  modelexplorer export 3f2a --format html --dir ~/exports`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			exp, err := export.ForFormat(opts.format, &export.Options{
				IncludeMetadata:   !opts.noMetadata,
				IncludeTimestamps: !opts.noTimestamps,
			})
			if err != nil {
				return &UsageError{Message: err.Error()}
			}

			return app.withStore(func(store *storage.ConversationStore) error {
				id, err := resolveID(store, args[0])
				if err != nil {
					return err
				}
				conv, err := store.Get(id)
				if err != nil {
					return err
				}

				if opts.dir == "" {
					data, err := exp.Export(conv)
					if err != nil {
						return err
					}
					_, err = cmd.OutOrStdout().Write(data)
					return err
				}
				path, err := export.WriteFile(conv, exp, opts.dir)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Exported to %s\n", path)
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&opts.format, "format", "f", "markdown", "output format: "+strings.Join(export.Formats, ", "))
	cmd.Flags().StringVarP(&opts.dir, "dir", "d", "", "write a file into this directory instead of stdout")
	cmd.Flags().BoolVar(&opts.noMetadata, "no-metadata", false, "omit the metadata header")
	cmd.Flags().BoolVar(&opts.noTimestamps, "no-timestamps", false, "omit per-message times")
	return cmd
}
