// Package app wires configuration, providers and storage into an Assistant
// shared by the API server and the chat client.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"kbassist/internal/config"
	"kbassist/internal/contextutil"
	"kbassist/internal/extract"
	"kbassist/internal/indexer"
	"kbassist/internal/llm"
	"kbassist/internal/rag"
	"kbassist/internal/service"
	"kbassist/internal/vectorstore"
	"kbassist/internal/watcher"
)

// App holds the components built from a Config.
type App struct {
	Config    *config.Config
	Assistant service.Assistant
	Extractor *extract.Registry

	closers []func() error
}

// New builds the provider clients, the vector store backend and the
// assistant, then loads the persisted knowledge base if there is one.
// A persisted store that cannot be loaded is logged and treated as absent.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := contextutil.LoggerFromContext(ctx)
	a := &App{Config: cfg, Extractor: extract.NewRegistry()}

	if cfg.Provider == config.ProviderLlamaCpp && cfg.LLMAutoload {
		autoloadModels(ctx, cfg)
	}

	embedder, chat := newProviders(cfg)
	policy := llm.NewRetryPolicy(cfg.ProviderTimeout, cfg.ProviderMaxRetries)
	embedder = policy.Embedder(embedder)
	chat = policy.ChatModel(chat)

	backend, err := a.newBackend(cfg, embedder)
	if err != nil {
		return nil, err
	}

	pipeline := rag.NewPipeline(
		rag.NewRetriever(rag.NewCategoryDetector(cfg.Keywords), cfg.RetrievalK),
		rag.NewReranker(embedder, cfg.RerankTopK),
		rag.NewAnswerGenerator(chat),
	)
	chunker := indexer.NewPipeline(a.Extractor, cfg.ChunkSize, cfg.ChunkOverlap)

	a.Assistant = service.NewAssistant(service.Options{
		KBPath:         cfg.KBPath,
		StoreDir:       cfg.VectorStorePath,
		Backend:        cfg.VectorBackend,
		EmbeddingModel: cfg.EmbeddingModelName,
	}, chunker, backend, pipeline)

	if err := a.Assistant.Load(ctx); err != nil {
		logger.WarnContext(ctx, "failed to load persisted knowledge base, starting without one", "error", err)
	}

	logger.InfoContext(ctx, "assistant initialized",
		"provider", cfg.Provider,
		"backend", cfg.VectorBackend,
		"kb_path", cfg.KBPath,
		"store_dir", cfg.VectorStorePath,
	)
	return a, nil
}

// newProviders returns the embedding and chat clients for the configured provider.
func newProviders(cfg *config.Config) (llm.Embedder, llm.ChatModel) {
	if cfg.Provider == config.ProviderOpenAI {
		client := llm.NewOpenAIClient(cfg.LLMAPIKey, cfg.LLMBaseURL, cfg.LLMModelName, cfg.EmbeddingModelName)
		return client, client
	}
	embedder := llm.NewEmbeddingsClient(cfg.EmbeddingBaseURL, cfg.LLMAPIKey, cfg.EmbeddingModelName, cfg.EmbeddingSize)
	chat := llm.NewClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModelName)
	return embedder, chat
}

func (a *App) newBackend(cfg *config.Config, embedder llm.Embedder) (vectorstore.Backend, error) {
	binding := vectorstore.Binding{
		Provider:  cfg.Provider,
		Model:     cfg.EmbeddingModelName,
		Dimension: cfg.EmbeddingSize,
	}

	switch cfg.VectorBackend {
	case config.BackendQdrant:
		backend, err := vectorstore.NewQdrantBackend(cfg.QdrantURL, cfg.QdrantCollection, cfg.QdrantVectorSize, embedder, binding, cfg.EmbedBatchSize)
		if err != nil {
			return nil, fmt.Errorf("failed to create qdrant backend: %w", err)
		}
		a.closers = append(a.closers, backend.Close)
		return backend, nil
	default:
		return vectorstore.NewLocalBackend(embedder, binding, cfg.EmbedBatchSize), nil
	}
}

// autoloadModels asks the llama.cpp router to load the chat and embedding
// models. Failures are logged; the servers may already serve them.
func autoloadModels(ctx context.Context, cfg *config.Config) {
	logger := contextutil.LoggerFromContext(ctx)
	targets := []struct{ baseURL, model string }{
		{cfg.LLMBaseURL, cfg.LLMModelName},
		{cfg.EmbeddingBaseURL, cfg.EmbeddingModelName},
	}
	for _, t := range targets {
		if err := llm.NewModelLoader(t.baseURL).LoadModel(ctx, t.model, nil); err != nil {
			logger.WarnContext(ctx, "failed to autoload model", "model", t.model, "base_url", t.baseURL, "error", err)
		}
	}
}

// Watch starts the knowledge base watcher when WATCH_KB is enabled. It
// returns once the watcher is registered; events are processed until ctx is
// cancelled.
func (a *App) Watch(ctx context.Context, notify watcher.NotifyFunc) error {
	if !a.Config.WatchKB {
		return nil
	}
	w, err := watcher.New(a.Config.KBPath, a.Config.WatchDebounce, a.Assistant, notify)
	if err != nil {
		return err
	}
	go func() {
		if err := w.Run(ctx); err != nil {
			contextutil.LoggerFromContext(ctx).ErrorContext(ctx, "knowledge base watcher stopped", "error", err)
		}
	}()
	return nil
}

// Close releases backend connections.
func (a *App) Close() error {
	var errs []error
	for _, c := range a.closers {
		errs = append(errs, c())
	}
	return errors.Join(errs...)
}

// NewLogger creates the process logger from LOG_LEVEL and LOG_FORMAT.
func NewLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// OpenLogFile opens LOG_FILE for appending. Without LOG_FILE, logs are
// discarded.
func OpenLogFile(cfg *config.Config) (io.WriteCloser, error) {
	if cfg.LogFile == "" {
		return nopWriteCloser{io.Discard}, nil
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return f, nil
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
