package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/yycdirectory/sync-cli/internal/feed"
	"github.com/yycdirectory/sync-cli/internal/guard"
	"github.com/yycdirectory/sync-cli/internal/metrics"
	"github.com/yycdirectory/sync-cli/internal/server"
	"github.com/yycdirectory/sync-cli/internal/store"
	syncpkg "github.com/yycdirectory/sync-cli/internal/sync"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server exposing the sync endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		// The server starts even without an admin store connection; the
		// guard rejects sync requests with 503 until one is configured.
		var st store.Store
		if cfg.Store.DatabaseURL != "" {
			s, err := store.Open(ctx, cfg.Store)
			if err != nil {
				return eris.Wrap(err, "serve: open store")
			}
			st = s
			defer st.Close() //nolint:errcheck

			if err := st.Migrate(ctx); err != nil {
				return eris.Wrap(err, "serve: migrate")
			}
		} else {
			zap.L().Warn("no store database url configured, sync requests will be rejected")
		}

		client := feed.New(feed.Config{
			BaseURL:   cfg.Feed.BaseURL,
			PageSize:  cfg.Feed.PageSize,
			PageDelay: time.Duration(cfg.Feed.PageDelayMS) * time.Millisecond,
			Timeout:   time.Duration(cfg.Feed.TimeoutSecs) * time.Second,
		})

		reg := metrics.NewRegistry()
		runner := syncpkg.NewRunner(client, st, reg, cfg.Sync)
		g := guard.NewFromConfig(cfg.Guard.WindowSecs, cfg.Guard.MaxRequests, cfg.Guard.Secret,
			func() bool { return st != nil })
		srv := server.New(g, runner, st, reg, cfg.Server.AllowedOrigins)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		httpSrv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: srv.Router(),
		}

		eg, egCtx := errgroup.WithContext(ctx)
		eg.Go(func() error {
			zap.L().Info("starting server", zap.Int("port", port))
			if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return eris.Wrap(err, "server listen")
			}
			return nil
		})
		eg.Go(func() error {
			<-egCtx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return eris.Wrap(httpSrv.Shutdown(shutdownCtx), "server shutdown")
		})

		return eg.Wait()
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
