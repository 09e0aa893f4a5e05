package main

import (
	"context"
	"log"
	"log/slog"

	tea "github.com/charmbracelet/bubbletea"

	"kbassist/internal/app"
	"kbassist/internal/config"
	"kbassist/internal/contextutil"
	"kbassist/internal/service"
	"kbassist/internal/tui"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// The terminal belongs to the UI; logs go to LOG_FILE or nowhere.
	logFile, err := app.OpenLogFile(cfg)
	if err != nil {
		log.Fatalf("Failed to open log file: %v", err)
	}
	defer func() {
		_ = logFile.Close()
	}()
	logger := app.NewLogger(cfg, logFile)
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ctx = contextutil.WithLogger(ctx, logger)

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize assistant: %v", err)
	}
	defer func() {
		_ = application.Close()
	}()

	program := tea.NewProgram(tui.New(ctx, application.Assistant), tea.WithAltScreen())

	err = application.Watch(ctx, func(result service.RebuildResult, err error) {
		program.Send(tui.RebuildMsg{Result: result, Err: err})
	})
	if err != nil {
		slog.Warn("Knowledge base watcher disabled", "error", err)
	}

	if _, err := program.Run(); err != nil {
		log.Fatalf("Chat client failed: %v", err)
	}
}
