package app

import (
	"context"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomgate/internal/backend"
	"github.com/vovakirdan/roomgate/internal/config"
	"github.com/vovakirdan/roomgate/internal/session"
	transporthttp "github.com/vovakirdan/roomgate/internal/transport/http"
)

// App wires together the backend, browser sessions and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	backend         *backend.Handle
	pool            *session.Pool
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	h, err := backend.New(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("init backend: %w", err)
	}

	pool := session.NewPool(h.NewAuth, h.Store, cfg.SessionIdleTimeout, logger)
	server := transporthttp.NewServer(pool, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		backend:         h,
		pool:            pool,
		log:             logger,
	}, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	// The pool outlives ctx so in-flight requests keep their sessions until
	// Shutdown has drained them.
	poolCtx, stopPool := context.WithCancel(context.Background())
	poolDone := make(chan struct{})
	go func() {
		a.pool.Run(poolCtx)
		close(poolDone)
	}()

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && err != stdhttp.ErrServerClosed {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	stop := func() {
		stopPool()
		<-poolDone
		a.cleanup()
	}

	select {
	case err := <-serverErr:
		stop()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			stop()
			return err
		}

		stop()
		return <-serverErr
	}
}

// cleanup closes the document store and other resources.
func (a *App) cleanup() {
	if a.backend != nil {
		if err := a.backend.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
