package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/osk/fintrack/internal/backend"
	"github.com/osk/fintrack/internal/infrastructure/logging"
)

func main() {
	log := logging.New(logging.ParseLevel(envOr("LOG_LEVEL", "info")), envOr("LOG_FORMAT", "json"))
	logger := log.Logger

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := backend.NewServer(backend.Config{
		Logger: logger,
		Token:  os.Getenv("BACKEND_TOKEN"),
	})

	server := &http.Server{
		Addr:        fmt.Sprintf(":%s", envOr("HTTP_PORT", "9090")),
		Handler:     srv.Router(),
		ReadTimeout: 30 * time.Second,
	}

	go func() {
		logger.Info("starting reference backend", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("server failed", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
