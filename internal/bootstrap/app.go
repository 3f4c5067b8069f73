package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"
)

// RunConfig holds the long-running pieces Run supervises.
type RunConfig struct {
	Server   *http.Server
	Services ServiceContainer
	Logger   *slog.Logger
}

// Run starts the HTTP server and the session mirror and blocks until either
// fails or a shutdown signal arrives. Whichever exits first takes the others
// down with it.
func Run(ctx context.Context, cfg RunConfig) error {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("starting HTTP server", "addr", cfg.Server.Addr)
		if err := cfg.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// The mirror keeps session records consistent with auth-state events from
	// other instances.
	g.Go(func() error {
		if err := cfg.Services.Mirror.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		return ShutdownHTTPServer(context.Background(), cfg.Server, logger)
	})

	return g.Wait()
}
