package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"kbassist/internal/app"
	"kbassist/internal/config"
	"kbassist/internal/contextutil"
	"kbassist/internal/http"
	"kbassist/internal/service"
)

//go:generate swagger generate spec -o swagger.json

// General API information
//
// This API answers questions from a folder of company documents using retrieval-augmented generation.
//
// swagger:meta
//
// ---
// swagger: '2.0'
// info:
//   title: Knowledge Base Assistant API
//   description: |
//     Indexes a knowledge base folder (one subdirectory per category) and answers questions
//     using only the retrieved content, citing the top source.
//   version: 1.0.0
// schemes:
//   - http
//   - https
// consumes:
//   - application/json
// produces:
//   - application/json

func main() {
	// Load configuration first (needed for log level)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := app.NewLogger(cfg, os.Stdout)
	slog.SetDefault(logger)
	slog.Debug("Logging configured", "level", cfg.LogLevel.String(), "format", cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = contextutil.WithLogger(ctx, logger)

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize assistant: %v", err)
	}
	defer func() {
		_ = application.Close()
	}()

	err = application.Watch(ctx, func(result service.RebuildResult, err error) {
		if err == nil {
			slog.Info("Knowledge base rebuilt after file changes", "chunks", result.Chunks)
		}
	})
	if err != nil {
		slog.Warn("Knowledge base watcher disabled", "error", err)
	}

	router := http.NewRouter(&http.Deps{
		Assistant: application.Assistant,
		KBPath:    cfg.KBPath,
		Extractor: application.Extractor,
	})

	addr := ":" + cfg.APIPort
	server := &nethttp.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("API server shutdown failed", "error", err)
		}
	}()

	slog.Info("Starting API server", "addr", addr)
	slog.Debug("LLM configuration", "provider", cfg.Provider, "base_url", cfg.LLMBaseURL, "model", cfg.LLMModelName)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, nethttp.ErrServerClosed) {
		log.Fatalf("API server failed to start: %v", err)
	}
	slog.Info("API server stopped")
}
