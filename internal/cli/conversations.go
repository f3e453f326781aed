// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/modelexplorer/internal/storage"
	"github.com/jeranaias/modelexplorer/internal/ui/render"
	"github.com/jeranaias/modelexplorer/internal/ui/styles"
	"github.com/jeranaias/modelexplorer/internal/util"
)

// shortIDLength is how much of an ID the listing shows. Any unique prefix
// is accepted where an ID is expected.
const shortIDLength = 8

func newListCommand(app *App) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List saved conversations, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withStore(func(store *storage.ConversationStore) error {
				return printList(cmd.OutOrStdout(), store.Summaries(), asJSON, terminalWidth(cmd.OutOrStdout()))
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func newShowCommand(app *App) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Print a conversation transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withStore(func(store *storage.ConversationStore) error {
				id, err := resolveID(store, args[0])
				if err != nil {
					return err
				}
				conv, err := store.Get(id)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if asJSON {
					return writeJSON(out, conv)
				}
				theme := styles.NewThemeWithProfile(colorProfile(out))
				r := render.New(theme, terminalWidth(out), app.Config.UI.CodeTheme)
				fmt.Fprintf(out, "%s\n%s\n\n", conv.Title, conv.UpdatedAt.Local().Format(time.DateTime))
				if len(conv.Messages) == 0 {
					fmt.Fprintln(out, "(no messages)")
					return nil
				}
				fmt.Fprintln(out, r.Transcript(conv.Messages))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "print as JSON")
	return cmd
}

func newRenameCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <id> <title>",
		Short: "Set a conversation's title",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withStore(func(store *storage.ConversationStore) error {
				id, err := resolveID(store, args[0])
				if err != nil {
					return err
				}
				title := strings.Join(args[1:], " ")
				if err := store.Rename(id, title); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s.\n", shortID(id))
				return nil
			})
		},
	}
}

func newDeleteCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:     "delete <id>...",
		Aliases: []string{"rm"},
		Short:   "Delete conversations",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.withStore(func(store *storage.ConversationStore) error {
				// Resolve every ID before deleting any, so a typo deletes nothing.
				ids := make([]string, 0, len(args))
				for _, arg := range args {
					id, err := resolveID(store, arg)
					if err != nil {
						return err
					}
					ids = append(ids, id)
				}
				for _, id := range ids {
					if err := store.Delete(id); err != nil {
						return err
					}
					fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s.\n", shortID(id))
				}
				return nil
			})
		},
	}
}

func newClearCommand(app *App) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Delete every saved conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !yes {
				return &UsageError{Message: "clear deletes every conversation; pass --yes to confirm"}
			}
			return app.withStore(func(store *storage.ConversationStore) error {
				n := store.Len()
				store.Clear()
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %d conversation(s).\n", n)
				return nil
			})
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "confirm deletion")
	return cmd
}

// withStore opens the store for the duration of fn.
func (a *App) withStore(fn func(*storage.ConversationStore) error) error {
	store, err := a.OpenStore()
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(store)
}

func printList(w io.Writer, summaries []storage.ConversationSummary, asJSON bool, width int) error {
	if asJSON {
		if summaries == nil {
			summaries = []storage.ConversationSummary{}
		}
		return writeJSON(w, summaries)
	}
	if len(summaries) == 0 {
		fmt.Fprintln(w, "No conversations.")
		return nil
	}

	const (
		idWidth    = shortIDLength
		countWidth = 5
		dateWidth  = 16
	)
	titleWidth := width - idWidth - countWidth - dateWidth - 6
	if titleWidth < 10 {
		titleWidth = 10
	}

	fmt.Fprintf(w, "%s  %s  %s  %s\n",
		util.PadRight("ID", idWidth),
		util.PadRight("UPDATED", dateWidth),
		util.PadRight("MSGS", countWidth),
		"TITLE")
	for _, s := range summaries {
		fmt.Fprintf(w, "%s  %s  %s  %s\n",
			util.PadRight(shortID(s.ID), idWidth),
			util.PadRight(s.UpdatedAt.Local().Format("2006-01-02 15:04"), dateWidth),
			util.PadRight(fmt.Sprint(s.MessageCount), countWidth),
			util.TruncateWidth(util.SingleLine(s.Title), titleWidth))
	}
	return nil
}

func shortID(id string) string {
	if len(id) <= shortIDLength {
		return id
	}
	return id[:shortIDLength]
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
