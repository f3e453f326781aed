// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/jeranaias/modelexplorer/internal/chat"
	"github.com/jeranaias/modelexplorer/internal/config"
	"github.com/jeranaias/modelexplorer/internal/server"
)

// shutdownTimeout bounds how long in-flight requests get after a signal.
const shutdownTimeout = 10 * time.Second

type serveOptions struct {
	host string
	port int
}

func newServeCommand(app *App) *cobra.Command {
	var opts serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API and web client",
		Long: `Serve the HTTP API and web client.

Endpoints:
  POST   /api/chat                 one complete response as JSON
  POST   /api/stream               server-sent events: content, done, error
  GET    /api/status               model availability
  GET    /api/conversations        saved conversations
  GET    /api/conversations/{id}/export?format=html   download
  GET    /                         web client

Rate limit and log level changes in the config file apply without a
restart.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return app.runServe(cmd, opts)
		},
	}
	cmd.Flags().StringVar(&opts.host, "host", "", "listen host (default from config)")
	cmd.Flags().IntVarP(&opts.port, "port", "p", 0, "listen port (default from config)")
	return cmd
}

func (a *App) runServe(cmd *cobra.Command, opts serveOptions) error {
	cfg := a.Config.Server
	if opts.host != "" {
		cfg.Host = opts.host
	}
	if opts.port != 0 {
		if opts.port < 1 || opts.port > 65535 {
			return &UsageError{Message: fmt.Sprintf("invalid port %d", opts.port)}
		}
		cfg.Port = opts.port
	}

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

	srv := server.New(m, ctrl, store, a.Logger, server.Options{
		Addr:        net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		RateLimit:   cfg.RateLimit,
		RateBurst:   cfg.RateBurst,
		CORSOrigins: cfg.CORSOrigins,
	})

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(cmd.ErrOrStderr(), "Serving %s on http://%s\n", m.Name(), net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(srv.ListenAndServe)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if a.ConfigPath != "" {
		if _, err := os.Stat(a.ConfigPath); err == nil {
			w := config.NewWatcher(a.ConfigPath, a.Logger, func(next *config.Config) {
				srv.SetRateLimit(next.Server.RateLimit, next.Server.RateBurst)
				if a.logLevel == "" {
					a.Logger.SetLevel(next.Log.Level)
				}
			})
			g.Go(func() error {
				// Without reload the server keeps its startup config.
				if err := w.Run(gctx); err != nil {
					a.Logger.Warn("config reload disabled", "error", err)
				}
				return nil
			})
		}
	}

	return g.Wait()
}
