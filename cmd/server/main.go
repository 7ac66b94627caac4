package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/baechuer/account-service/internal/bootstrap"
	"github.com/baechuer/account-service/internal/logger"
)

type httpServer interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
	Close() error
	Addr() string
}

type realServer struct{ *http.Server }

func (r realServer) Addr() string { return r.Server.Addr }

// serverBuilder returns the server and the cleanup that releases what it holds
// (db, redis, broker, background workers).
type serverBuilder func() (httpServer, func(), error)

var shutdownTimeout = 15 * time.Second

// Run serves until a signal or a listener failure and returns the exit code.
// A second signal during the drain closes the server immediately.
func Run(build serverBuilder, sigCh <-chan os.Signal, lg zerolog.Logger) int {
	lg = lg.With().Str("component", "server").Logger()

	srv, cleanup, err := build()
	if err != nil {
		lg.Error().Err(err).Msg("bootstrap failed")
		return 1
	}
	defer cleanup()

	serveErr := serve(srv, lg)

	select {
	case err := <-serveErr:
		lg.Error().Err(err).Msg("listener stopped")
		return 1
	case sig := <-sigCh:
		lg.Info().Str("signal", sig.String()).Dur("timeout", shutdownTimeout).Msg("draining connections")
	}

	drain(srv, sigCh, lg)
	lg.Info().Msg("stopped")
	return 0
}

func serve(srv httpServer, lg zerolog.Logger) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		lg.Info().Str("addr", srv.Addr()).Msg("account-service listening")
		err := srv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	return errCh
}

// drain shuts srv down gracefully, falling back to Close on timeout, failure
// or a repeated signal.
func drain(srv httpServer, sigCh <-chan os.Signal, lg zerolog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- srv.Shutdown(ctx) }()

	select {
	case err := <-done:
		if err == nil {
			return
		}
		lg.Error().Err(err).Msg("graceful shutdown failed, closing")
	case sig := <-sigCh:
		lg.Warn().Str("signal", sig.String()).Msg("second signal, closing")
		cancel()
	}
	_ = srv.Close()
}

func buildFromBootstrap() (httpServer, func(), error) {
	srv, cleanup, err := bootstrap.NewServer()
	if err != nil {
		return nil, nil, err
	}
	return realServer{srv}, cleanup, nil
}

func main() {
	logger.Init()

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	os.Exit(Run(buildFromBootstrap, sigCh, zlog.Logger))
}
