package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kisansahayak/kisan/internal/app/storage"
	httpx "github.com/kisansahayak/kisan/internal/http"
	"github.com/kisansahayak/kisan/internal/service/auth"
	"github.com/kisansahayak/kisan/pkg/config"
	"github.com/kisansahayak/kisan/pkg/logger"
)

func main() {
	cfg, err := config.LoadAPIConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	log := logger.New("api", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log, nil); err != nil {
		log.Error("api server failed", "error", err)
		os.Exit(1)
	}
}

// run serves the API until ctx is done. When ready is non-nil it receives
// the bound listen address once the server accepts connections.
func run(ctx context.Context, cfg config.APIConfig, log *slog.Logger, ready chan<- string) error {
	openCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	store, err := storage.Open(openCtx, cfg, log)
	cancel()
	if err != nil {
		return fmt.Errorf("open user store: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			log.Warn("close user store", "error", err)
		}
	}()

	authSvc, err := auth.New(store, log, cfg)
	if err != nil {
		return fmt.Errorf("configure auth service: %w", err)
	}

	router := httpx.NewRouter(log, authSvc, store.Ping, cfg.AllowedOrigins)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	log.Info("api server starting", "addr", ln.Addr().String(), "env", cfg.Environment, "backend", string(store.Kind))
	if ready != nil {
		ready <- ln.Addr().String()
	}

	errorCh := make(chan error, 1)
	go func() {
		errorCh <- srv.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("graceful shutdown: %w", err)
		}
		log.Info("api server stopped")
		return nil
	case err := <-errorCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	}
}
