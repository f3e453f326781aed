// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/jeranaias/modelexplorer/internal/config"
	"github.com/jeranaias/modelexplorer/internal/observability"
)

// App holds the state shared by every command: the resolved config and the
// logger. It is filled in by the root command's PersistentPreRunE.
type App struct {
	Version string

	configFlag string
	logLevel   string
	provider   string
	model      string
	offline    bool
	serverURL  string

	Config     *config.Config
	ConfigPath string
	Logger     observability.Logger

	// logFile is set when logs go to a file rather than stderr.
	logFile *os.File
}

// NewRootCommand builds the command tree.
func NewRootCommand(version string) *cobra.Command {
	root, _ := newRoot(version)
	return root
}

func newRoot(version string) (*cobra.Command, *App) {
	app := &App{Version: version}

	root := &cobra.Command{
		Use:           "modelexplorer",
		Short:         "Chat with a local or hosted language model",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return app.setup(cmd)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runChat(cmd, false)
		},
	}

	root.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &UsageError{Message: err.Error()}
	})

	flags := root.PersistentFlags()
	flags.StringVar(&app.configFlag, "config", "", "config file (default ~/.modelexplorer/config.toml)")
	flags.StringVar(&app.logLevel, "log-level", "", "log level: debug, info, warn, error")
	flags.StringVar(&app.provider, "provider", "", "model provider: ollama, openai, remote")
	flags.StringVar(&app.model, "model", "", "model name")
	flags.BoolVar(&app.offline, "offline", false, "only use a model served on this machine")
	flags.StringVar(&app.serverURL, "server", "", "use the modelexplorer server at `URL` as the model")

	root.AddCommand(
		newChatCommand(app),
		newAskCommand(app),
		newServeCommand(app),
		newListCommand(app),
		newShowCommand(app),
		newRenameCommand(app),
		newExportCommand(app),
		newDeleteCommand(app),
		newClearCommand(app),
		newStatusCommand(app),
	)
	return root, app
}

// Execute runs the command tree with os.Args and returns the exit code.
func Execute(ctx context.Context, version string) int {
	root, app := newRoot(version)
	defer app.close()

	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
	}
	return ExitCode(err)
}

// setup loads the config, applies flag overrides and creates the logger.
func (a *App) setup(cmd *cobra.Command) error {
	var (
		cfg *config.Config
		err error
	)
	if a.configFlag != "" {
		a.ConfigPath = a.configFlag
		cfg, err = config.LoadFromPath(a.configFlag)
	} else {
		if path, pathErr := config.ConfigPath(); pathErr == nil {
			a.ConfigPath = path
		}
		cfg, err = config.Load()
	}
	if err != nil {
		return &ConfigError{Err: err}
	}

	if a.provider != "" {
		cfg.Model.Provider = a.provider
	}
	if a.model != "" {
		cfg.Model.Name = a.model
	}
	if a.logLevel != "" {
		cfg.Log.Level = a.logLevel
	}
	if a.offline {
		cfg.Model.Offline = true
	}
	if a.serverURL != "" {
		cfg.Model.Provider = config.ProviderRemote
		cfg.Remote.URL = a.serverURL
	}
	if err := cfg.Validate(); err != nil {
		return &ConfigError{Err: err}
	}
	a.Config = cfg

	// The full-screen chat owns the terminal, so its logs go to a file.
	var out io.Writer = cmd.ErrOrStderr()
	if usesScreen(cmd) && cfg.Log.File == "" {
		cfg.Log.File = defaultLogFile()
	}
	if cfg.Log.File != "" {
		f, err := openLogFile(cfg.Log.File)
		if err != nil {
			return &ConfigError{Err: err}
		}
		a.logFile = f
		out = f
	}

	a.Logger = observability.NewLogger(observability.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: out,
	})
	a.Logger.Debug("config loaded", "path", a.ConfigPath, "provider", cfg.Model.Provider, "model", cfg.Model.Name)
	return nil
}

func (a *App) close() {
	if a.logFile != nil {
		a.logFile.Close()
		a.logFile = nil
	}
}

// usesScreen reports whether cmd runs the full-screen interface.
func usesScreen(cmd *cobra.Command) bool {
	if !cmd.HasParent() {
		return true
	}
	if cmd.Name() != "chat" {
		return false
	}
	plain, _ := cmd.Flags().GetBool("plain")
	return !plain
}

func defaultLogFile() string {
	dir, err := config.ConfigDir()
	if err != nil {
		return filepath.Join(os.TempDir(), "modelexplorer.log")
	}
	return filepath.Join(dir, "modelexplorer.log")
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}
