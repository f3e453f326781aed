// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/jeranaias/modelexplorer/internal/session"
)

const probeTimeout = 5 * time.Second

type askOptions struct {
	raw bool
}

func newAskCommand(app *App) *cobra.Command {
	var opts askOptions
	cmd := &cobra.Command{
		Use:   "ask <prompt>",
		Short: "Ask a single question and stream the answer",
		Example: `  modelexplorer ask "What is a goroutine?"
  echo "Summarize this" | modelexplorer ask -
  modelexplorer ask --raw "List three primes" > primes.md`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runAsk(cmd, args, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.raw, "raw", false, "print the response as it streams, without markdown rendering")
	return cmd
}

func (a *App) runAsk(cmd *cobra.Command, args []string, opts askOptions) error {
	prompt, err := readPrompt(cmd, args)
	if err != nil {
		return err
	}

	m, err := a.NewModel()
	if err != nil {
		return err
	}

	// Ctrl+C stops the stream; whatever arrived is still printed.
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	stdout, stderr := cmd.OutOrStdout(), cmd.ErrOrStderr()
	if status, err := probe(ctx, m); err != nil {
		printUnavailable(stderr, status)
		return err
	}

	events := session.New(m, a.Logger).Run(ctx, prompt)

	pretty := !opts.raw && isTerminal(stdout)
	var res outcome
	if pretty {
		fmt.Fprint(stderr, "Thinking…")
		res = consume(events, nil)
		fmt.Fprint(stderr, "\r\033[K")
		if res.text != "" {
			fmt.Fprint(stdout, a.renderMarkdown(res.text, terminalWidth(stdout)))
		}
	} else {
		printer := &deltaPrinter{w: stdout}
		res = consume(events, printer.Print)
		if res.text != "" && !strings.HasSuffix(res.text, "\n") {
			fmt.Fprintln(stdout)
		}
	}

	switch {
	case res.err != "":
		return errors.New(res.err)
	case res.cancelled:
		fmt.Fprintln(stderr, "(cancelled)")
	}
	return nil
}

// readPrompt joins args, reading stdin when the only argument is "-".
func readPrompt(cmd *cobra.Command, args []string) (string, error) {
	if len(args) == 1 && args[0] == "-" {
		data, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return "", fmt.Errorf("failed to read prompt: %w", err)
		}
		args = []string{string(data)}
	}
	prompt := strings.TrimSpace(strings.Join(args, " "))
	if prompt == "" {
		return "", &UsageError{Message: "prompt is empty"}
	}
	return prompt, nil
}

// renderMarkdown renders text with glamour, falling back to the raw text.
func (a *App) renderMarkdown(text string, width int) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		a.Logger.Debug("markdown renderer unavailable", "error", err)
		return text + "\n"
	}
	out, err := r.Render(text)
	if err != nil {
		return text + "\n"
	}
	return out
}
