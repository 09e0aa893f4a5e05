package vectorstore

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_vector_store.go -package=mocks kbassist/internal/vectorstore Store,Backend,Embedder

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"kbassist/internal/contextutil"
	"kbassist/internal/kb"
)

// Files written into a store directory.
const (
	IndexFile   = "index.gob"
	QdrantFile  = "qdrant.json"
	BindingFile = "embedding.json"
)

var (
	// ErrNoContent is returned when building a store from zero texts.
	ErrNoContent = errors.New("no content to index")
	// ErrNotFound is returned when loading a directory that holds no persisted store.
	ErrNotFound = errors.New("vector store not found")
)

// Embedder turns texts into embedding vectors, one per input text.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// Store is a searchable index of chunks.
type Store interface {
	// SimilaritySearch returns up to k chunks nearest to query, best first.
	// A non-empty categories set restricts eligible chunks before the top k are selected.
	SimilaritySearch(ctx context.Context, query string, k int, categories []string) ([]kb.Chunk, error)

	// Persist writes the store into dir, creating it if needed and overwriting its contents.
	Persist(ctx context.Context, dir string) error

	// Len returns the number of indexed chunks.
	Len() int

	// Release frees backend resources held by a store that is no longer used.
	Release(ctx context.Context) error
}

// Backend builds new stores and loads persisted ones.
type Backend interface {
	Build(ctx context.Context, texts []string, metas []kb.ChunkMeta) (Store, error)
	Load(ctx context.Context, dir string) (Store, error)
}

// Binding identifies the embedding function a store was built with.
type Binding struct {
	Provider  string `json:"provider"`
	Model     string `json:"model"`
	Dimension int    `json:"dimension"`
}

// embedAll embeds texts in batches of batchSize, preserving order.
func embedAll(ctx context.Context, embedder Embedder, texts []string, batchSize int) ([][]float32, error) {
	if batchSize <= 0 {
		batchSize = len(texts)
	}
	logger := contextutil.LoggerFromContext(ctx)

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batchSize {
		end := min(start+batchSize, len(texts))
		batch, err := embedder.EmbedTexts(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("failed to embed chunks %d-%d: %w", start, end-1, err)
		}
		if len(batch) != end-start {
			return nil, fmt.Errorf("embedding count mismatch: expected %d, got %d", end-start, len(batch))
		}
		vectors = append(vectors, batch...)
		logger.DebugContext(ctx, "embedded batch", "start", start, "end", end, "total", len(texts))
	}
	return vectors, nil
}

func validateBuildInput(texts []string, metas []kb.ChunkMeta) error {
	if len(texts) == 0 {
		return ErrNoContent
	}
	if len(texts) != len(metas) {
		return fmt.Errorf("texts and metadata length mismatch: %d != %d", len(texts), len(metas))
	}
	return nil
}

// inCategories reports whether category is eligible under the filter set.
// An empty filter set admits every category.
func inCategories(category string, categories []string) bool {
	if len(categories) == 0 {
		return true
	}
	for _, c := range categories {
		if c == category {
			return true
		}
	}
	return false
}

func mkdirAll(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

// checkBinding compares the persisted embedding binding against the configured one.
// A mismatch is only logged: searching a store built with another embedding
// function gives meaningless results, and preventing that is left to the operator.
func checkBinding(ctx context.Context, dir string, want Binding) {
	logger := contextutil.LoggerFromContext(ctx)

	var got Binding
	if err := readJSON(filepath.Join(dir, BindingFile), &got); err != nil {
		logger.WarnContext(ctx, "embedding binding unavailable", "dir", dir, "error", err)
		return
	}
	if got.Provider != want.Provider || got.Model != want.Model ||
		(want.Dimension > 0 && got.Dimension != want.Dimension) {
		logger.WarnContext(ctx, "vector store was built with a different embedding function",
			"stored_provider", got.Provider, "stored_model", got.Model, "stored_dimension", got.Dimension,
			"provider", want.Provider, "model", want.Model, "dimension", want.Dimension)
	}
}
