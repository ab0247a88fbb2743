// Command ragmock runs the reference chat backend: canned retrieval answers
// behind the real wire contract, streaming on the general endpoint and
// aggregated JSON on the medical one.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"

	"github.com/jlx1999s/RAGAgent/internal/config"
	"github.com/jlx1999s/RAGAgent/internal/mockrag"
	"github.com/jlx1999s/RAGAgent/internal/server"
	"github.com/jlx1999s/RAGAgent/internal/telemetry"
)

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	shutdown, err := telemetry.InitTracer("ragmock", logger)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		if err := shutdown(context.Background()); err != nil {
			logger.Error("failed to shutdown tracer", slog.String("error", err.Error()))
		}
	}()

	srv := server.New(cfg.Server.Port, logger)
	handler := mockrag.New(logger)
	srv.Router.Route("/api/v1", func(r chi.Router) {
		handler.Routes(r)
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatalf("Server failed: %v", err)
	case <-sigChan:
		logger.Info("shutdown signal received")
	}
}
