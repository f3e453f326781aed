// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	"github.com/spf13/cobra"

	"github.com/jeranaias/modelexplorer/internal/chat"
	"github.com/jeranaias/modelexplorer/internal/config"
	"github.com/jeranaias/modelexplorer/internal/llm"
	"github.com/jeranaias/modelexplorer/internal/ui/render"
	"github.com/jeranaias/modelexplorer/internal/ui/styles"
	"github.com/jeranaias/modelexplorer/internal/ui/tui"
)

type chatOptions struct {
	plain        bool
	conversation string
}

func newChatCommand(app *App) *cobra.Command {
	var opts chatOptions
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive chat (default command)",
		Long: `Start an interactive chat with the configured model.

On a terminal the full-screen interface is used. With --plain, or when
input or output is redirected, a line-oriented prompt is used instead.

Plain mode commands:
  /new     start a new conversation
  /clear   delete the current conversation
  /help    show this list
  /quit    exit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runChatWith(cmd, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.plain, "plain", false, "use the line-oriented prompt instead of the full-screen interface")
	cmd.Flags().StringVarP(&opts.conversation, "conversation", "c", "", "resume the conversation with this ID or ID prefix")
	return cmd
}

func (a *App) runChat(cmd *cobra.Command, plain bool) error {
	return a.runChatWith(cmd, chatOptions{plain: plain})
}

func (a *App) runChatWith(cmd *cobra.Command, opts chatOptions) error {
	store, err := a.OpenStore()
	if err != nil {
		return err
	}
	defer store.Close()

	m, err := a.NewModel()
	if err != nil {
		return err
	}
	ctrl := chat.New(store, m, a.Logger)

	if opts.conversation != "" {
		id, err := resolveID(store, opts.conversation)
		if err != nil {
			return err
		}
		if err := ctrl.LoadConversation(id); err != nil {
			return err
		}
	}

	stdout := cmd.OutOrStdout()
	if !opts.plain && isTerminal(cmd.InOrStdin()) && isTerminal(stdout) {
		theme := styles.NewTheme(stdout)
		renderer := render.New(theme, terminalWidth(stdout), a.Config.UI.CodeTheme)
		return tui.Run(cmd.Context(), ctrl, theme, renderer)
	}

	in := newLineReader()
	defer in.Close()

	r := &repl{
		ctrl:     ctrl,
		out:      stdout,
		errOut:   cmd.ErrOrStderr(),
		readLine: in.ReadLine,
		notify:   interruptOnSignal,
	}
	return r.Run(cmd.Context())
}

// =============================================================================
// LINE INPUT
// =============================================================================

// lineReader reads prompts with line editing and persistent history when
// attached to a terminal.
type lineReader struct {
	line        *liner.State
	historyFile string
}

func newLineReader() *lineReader {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)

	dir, err := config.ConfigDir()
	if err != nil {
		dir = os.TempDir()
	}
	r := &lineReader{line: line, historyFile: filepath.Join(dir, "chat_history")}
	if f, err := os.Open(r.historyFile); err == nil {
		line.ReadHistory(f)
		f.Close()
	}
	return r
}

// ReadLine prompts for one line. Ctrl+C and Ctrl+D end input with io.EOF.
func (r *lineReader) ReadLine(prompt string) (string, error) {
	input, err := r.line.Prompt(prompt)
	if err != nil {
		if errors.Is(err, liner.ErrPromptAborted) {
			return "", io.EOF
		}
		return "", err
	}
	if strings.TrimSpace(input) != "" {
		r.line.AppendHistory(input)
	}
	return input, nil
}

// Close saves history and restores the terminal.
func (r *lineReader) Close() {
	if err := os.MkdirAll(filepath.Dir(r.historyFile), 0o700); err == nil {
		if f, err := os.OpenFile(r.historyFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600); err == nil {
			r.line.WriteHistory(f)
			f.Close()
		}
	}
	r.line.Close()
}

// interruptOnSignal calls cancel on Ctrl+C until stop is called.
func interruptOnSignal(cancel func()) (stop func()) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt)
	done := make(chan struct{})
	go func() {
		select {
		case <-sigs:
			cancel()
		case <-done:
		}
	}()
	return func() {
		signal.Stop(sigs)
		close(done)
	}
}

// =============================================================================
// REPL
// =============================================================================

const replPrompt = "> "

// repl is the line-oriented chat loop.
type repl struct {
	ctrl     *chat.Controller
	out      io.Writer
	errOut   io.Writer
	readLine func(prompt string) (string, error)
	// notify arranges for cancel to run on an interrupt while a response
	// streams. It may be nil.
	notify func(cancel func()) (stop func())
}

// Run prompts until input ends, /quit is entered or ctx is cancelled.
func (r *repl) Run(ctx context.Context) error {
	fmt.Fprintf(r.out, "Chatting with %s. Type /help for commands.\n", r.ctrl.ModelName())
	if status := r.refresh(ctx); !status.IsAvailable() {
		printUnavailable(r.errOut, status)
	}

	for ctx.Err() == nil {
		input, err := r.readLine(replPrompt)
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(r.out)
			return nil
		}
		if err != nil {
			return err
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}
		if strings.HasPrefix(input, "/") {
			if quit := r.command(input); quit {
				return nil
			}
			continue
		}
		r.send(ctx, input)
	}
	return nil
}

func (r *repl) refresh(ctx context.Context) llm.AvailabilityStatus {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	return r.ctrl.RefreshAvailability(ctx)
}

// command runs a slash command and reports whether the loop should end.
func (r *repl) command(input string) bool {
	switch strings.Fields(input)[0] {
	case "/quit", "/exit", "/q":
		return true
	case "/new":
		r.ctrl.NewConversation()
		fmt.Fprintln(r.out, "New conversation.")
	case "/clear":
		r.ctrl.ClearChat()
		fmt.Fprintln(r.out, "Chat cleared.")
	case "/help", "/?":
		fmt.Fprintln(r.out, "/new  /clear  /help  /quit")
	default:
		fmt.Fprintf(r.errOut, "Unknown command %s. Type /help for commands.\n", input)
	}
	return false
}

// send streams one exchange to the output.
func (r *repl) send(ctx context.Context, text string) {
	if !r.ctrl.Availability().IsAvailable() {
		// The model may have come up since the last check.
		r.refresh(ctx)
	}

	events, err := r.ctrl.SendMessage(ctx, text)
	if err != nil {
		var llmErr *llm.Error
		if errors.As(err, &llmErr) && llm.IsUnavailable(err) {
			printUnavailable(r.errOut, llmErr.Status)
			r.ctrl.DismissError()
			return
		}
		fmt.Fprintln(r.errOut, "Error:", err)
		return
	}
	if events == nil {
		return
	}

	if r.notify != nil {
		stop := r.notify(r.ctrl.Cancel)
		defer stop()
	}

	printer := &deltaPrinter{w: r.out}
	res := consume(events, printer.Print)
	if res.text != "" && !strings.HasSuffix(res.text, "\n") {
		fmt.Fprintln(r.out)
	}
	switch {
	case res.err != "":
		fmt.Fprintln(r.errOut, "Error:", res.err)
	case res.cancelled:
		fmt.Fprintln(r.errOut, "[Cancelled]")
	}
}
