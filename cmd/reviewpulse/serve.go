package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	httphandler "github.com/ericfisherdev/reviewpulse/internal/adapter/driving/http"
)

type serveCommand struct{}

func (c *serveCommand) Register(parent *cobra.Command) {
	parent.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Long: `Run the HTTP API, the optional scheduled refresh and the GitHub webhook
receiver until interrupted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.Run(cmd.Context())
		},
	})
}

func (c *serveCommand) Run(ctx context.Context) error {
	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.cfg.RefreshInterval > 0 {
		go a.coord.RunSchedule(ctx, a.cfg.RefreshInterval)
	}

	h := httphandler.NewHandler(a.sync, a.coord, a.metrics, a.repos, a.users, a.cfg.WebhookSecret, slog.Default())
	srv := &http.Server{
		Addr:              a.cfg.ListenAddr,
		Handler:           httphandler.NewRouter(h, slog.Default()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		// A synchronous user sync can page through many search results.
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("http server starting", "addr", a.cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	slog.Info("reviewpulse started",
		"listen_addr", a.cfg.ListenAddr,
		"refresh_interval", a.cfg.RefreshInterval,
		"metrics_cache", a.cache != nil,
	)

	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-serveErr:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
