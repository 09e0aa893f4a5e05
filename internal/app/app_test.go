package app

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"kbassist/internal/config"
	"kbassist/internal/service"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	table, err := config.DefaultKeywordTable()
	if err != nil {
		t.Fatalf("DefaultKeywordTable() error = %v", err)
	}
	dir := t.TempDir()
	return &config.Config{
		KBPath:             filepath.Join(dir, "kb"),
		VectorStorePath:    filepath.Join(dir, "store"),
		Keywords:           table,
		ChunkSize:          1500,
		ChunkOverlap:       300,
		RetrievalK:         10,
		RerankTopK:         3,
		EmbedBatchSize:     32,
		VectorBackend:      config.BackendLocal,
		Provider:           config.ProviderLlamaCpp,
		LLMBaseURL:         "http://127.0.0.1:1",
		LLMModelName:       "chat",
		EmbeddingBaseURL:   "http://127.0.0.1:1",
		EmbeddingModelName: "embed",
		ProviderTimeout:    time.Second,
		WatchDebounce:      time.Second,
		LogLevel:           slog.LevelInfo,
		LogFormat:          "text",
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		provider string
	}{
		{"llama.cpp provider", config.ProviderLlamaCpp},
		{"openai provider", config.ProviderOpenAI},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			cfg.Provider = tt.provider

			a, err := New(context.Background(), cfg)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			defer a.Close()

			status, err := a.Assistant.Status(context.Background())
			if err != nil {
				t.Fatalf("Status() error = %v", err)
			}
			if status.Loaded {
				t.Error("a fresh app should have no knowledge base loaded")
			}
			if _, err := a.Assistant.Ask(context.Background(), "anything"); err != service.ErrStoreAbsent {
				t.Errorf("Ask() error = %v, want ErrStoreAbsent", err)
			}
		})
	}
}

func TestNew_CorruptStoreTreatedAsAbsent(t *testing.T) {
	cfg := testConfig(t)
	if err := os.MkdirAll(cfg.VectorStorePath, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(cfg.VectorStorePath, "index.gob"), []byte("not gob"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	if _, err := a.Assistant.Ask(context.Background(), "anything"); err != service.ErrStoreAbsent {
		t.Errorf("Ask() error = %v, want ErrStoreAbsent", err)
	}
}

func TestApp_Watch(t *testing.T) {
	cfg := testConfig(t)
	a, err := New(context.Background(), cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := a.Watch(ctx, nil); err != nil {
		t.Errorf("Watch() disabled should not fail: %v", err)
	}

	a.Config.WatchKB = true
	if err := a.Watch(ctx, nil); err == nil {
		t.Error("Watch() should fail when the knowledge base root is missing")
	}

	if err := os.MkdirAll(cfg.KBPath, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := a.Watch(ctx, nil); err != nil {
		t.Errorf("Watch() error = %v", err)
	}
}

func TestNewLogger(t *testing.T) {
	cfg := testConfig(t)

	var buf bytes.Buffer
	cfg.LogFormat = "json"
	NewLogger(cfg, &buf).Info("hello", "k", "v")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("json log line expected, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "hello" || entry["k"] != "v" {
		t.Errorf("entry = %v", entry)
	}

	buf.Reset()
	cfg.LogFormat = "text"
	cfg.LogLevel = slog.LevelWarn
	logger := NewLogger(cfg, &buf)
	logger.Info("dropped")
	logger.Warn("kept")
	if strings.Contains(buf.String(), "dropped") || !strings.Contains(buf.String(), "msg=kept") {
		t.Errorf("text output = %q", buf.String())
	}
}

func TestOpenLogFile(t *testing.T) {
	cfg := testConfig(t)

	w, err := OpenLogFile(cfg)
	if err != nil {
		t.Fatalf("OpenLogFile() error = %v", err)
	}
	if _, err := w.Write([]byte("discarded")); err != nil {
		t.Errorf("Write() error = %v", err)
	}
	_ = w.Close()

	cfg.LogFile = filepath.Join(t.TempDir(), "chat.log")
	w, err = OpenLogFile(cfg)
	if err != nil {
		t.Fatalf("OpenLogFile() error = %v", err)
	}
	_, _ = w.Write([]byte("line\n"))
	_ = w.Close()

	data, err := os.ReadFile(cfg.LogFile)
	if err != nil || string(data) != "line\n" {
		t.Errorf("log file = %q, %v", data, err)
	}
}
