package vectorstore

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/google/uuid"

	"kbassist/internal/contextutil"
	"kbassist/internal/kb"
)

// record is one indexed chunk as persisted in index.gob.
type record struct {
	ID     string
	Text   string
	Meta   kb.ChunkMeta
	Vector []float32
}

// indexData is the gob payload of a local store.
type indexData struct {
	Dimension int
	Records   []record
}

// LocalBackend builds in-memory stores searched by brute-force cosine similarity
// and persisted as a gob file.
type LocalBackend struct {
	embedder  Embedder
	binding   Binding
	batchSize int
}

// NewLocalBackend creates a local backend. binding describes the embedder and is
// written next to every persisted index.
func NewLocalBackend(embedder Embedder, binding Binding, batchSize int) *LocalBackend {
	return &LocalBackend{
		embedder:  embedder,
		binding:   binding,
		batchSize: batchSize,
	}
}

// Build embeds texts and returns a store holding them.
func (b *LocalBackend) Build(ctx context.Context, texts []string, metas []kb.ChunkMeta) (Store, error) {
	if err := validateBuildInput(texts, metas); err != nil {
		return nil, err
	}

	vectors, err := embedAll(ctx, b.embedder, texts, b.batchSize)
	if err != nil {
		return nil, err
	}

	data := indexData{Records: make([]record, len(texts))}
	for i := range texts {
		if i == 0 {
			data.Dimension = len(vectors[i])
		} else if len(vectors[i]) != data.Dimension {
			return nil, fmt.Errorf("embedding %d has size %d, expected %d", i, len(vectors[i]), data.Dimension)
		}
		data.Records[i] = record{
			ID:     uuid.New().String(),
			Text:   texts[i],
			Meta:   metas[i],
			Vector: vectors[i],
		}
	}

	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "built local vector store",
		"chunks", len(data.Records), "dimension", data.Dimension)
	return b.newStore(data), nil
}

// Load reads a store persisted by LocalStore.Persist.
func (b *LocalBackend) Load(ctx context.Context, dir string) (Store, error) {
	path := filepath.Join(dir, IndexFile)
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	defer func() {
		_ = file.Close()
	}()

	var data indexData
	if err := gob.NewDecoder(file).Decode(&data); err != nil {
		return nil, fmt.Errorf("failed to decode index: %w", err)
	}

	want := b.binding
	want.Dimension = data.Dimension
	checkBinding(ctx, dir, want)

	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "loaded local vector store",
		"dir", dir, "chunks", len(data.Records), "dimension", data.Dimension)
	return b.newStore(data), nil
}

func (b *LocalBackend) newStore(data indexData) *LocalStore {
	norms := make([]float32, len(data.Records))
	for i, r := range data.Records {
		norms[i] = norm(r.Vector)
	}
	return &LocalStore{
		embedder: b.embedder,
		binding:  b.binding,
		data:     data,
		norms:    norms,
	}
}

// LocalStore is an immutable in-memory store.
type LocalStore struct {
	embedder Embedder
	binding  Binding
	data     indexData
	norms    []float32
}

// Len implements Store.
func (s *LocalStore) Len() int {
	return len(s.data.Records)
}

// Release implements Store. Local stores hold no external resources.
func (s *LocalStore) Release(ctx context.Context) error {
	return nil
}

type scored struct {
	index int
	score float32
}

// SimilaritySearch implements Store. Records outside the category filter are
// skipped during the scan, so a sparse category still fills up to k results.
// Equal scores keep index order.
func (s *LocalStore) SimilaritySearch(ctx context.Context, query string, k int, categories []string) ([]kb.Chunk, error) {
	if k <= 0 {
		return nil, fmt.Errorf("k must be greater than 0")
	}

	vectors, err := s.embedder.EmbedTexts(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("expected 1 query embedding, got %d", len(vectors))
	}
	q := vectors[0]
	if s.data.Dimension > 0 && len(q) != s.data.Dimension {
		return nil, fmt.Errorf("query embedding has size %d, index has %d", len(q), s.data.Dimension)
	}
	qNorm := norm(q)

	results := make([]scored, 0, len(s.data.Records))
	for i, r := range s.data.Records {
		if !inCategories(r.Meta.Category, categories) {
			continue
		}
		results = append(results, scored{index: i, score: cosine(q, r.Vector, qNorm, s.norms[i])})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].score > results[j].score
	})
	if len(results) > k {
		results = results[:k]
	}

	chunks := make([]kb.Chunk, len(results))
	for i, res := range results {
		r := s.data.Records[res.index]
		chunks[i] = kb.Chunk{
			ID:     r.ID,
			Text:   r.Text,
			Meta:   r.Meta,
			Score:  res.score,
			Vector: r.Vector,
		}
	}

	contextutil.LoggerFromContext(ctx).DebugContext(ctx, "local search completed",
		"k", k, "categories", categories, "results", len(chunks))
	return chunks, nil
}

// Persist implements Store. The index is written to a temporary file and renamed into place.
func (s *LocalStore) Persist(ctx context.Context, dir string) error {
	if err := mkdirAll(dir); err != nil {
		return err
	}

	path := filepath.Join(dir, IndexFile)
	file, err := os.Create(path + ".tmp")
	if err != nil {
		return fmt.Errorf("failed to create index file: %w", err)
	}
	if err := gob.NewEncoder(file).Encode(s.data); err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to encode index: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close index file: %w", err)
	}
	if err := os.Rename(path+".tmp", path); err != nil {
		return fmt.Errorf("failed to move index into place: %w", err)
	}

	binding := s.binding
	binding.Dimension = s.data.Dimension
	if err := writeJSON(filepath.Join(dir, BindingFile), binding); err != nil {
		return err
	}

	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "persisted local vector store", "dir", dir, "chunks", s.Len())
	return nil
}

func norm(v []float32) float32 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return float32(math.Sqrt(sum))
}

// cosine returns the cosine similarity of a and b given their precomputed norms.
func cosine(a, b []float32, normA, normB float32) float32 {
	if len(a) != len(b) || normA == 0 || normB == 0 {
		return 0
	}
	var dot float32
	for i := range a {
		dot += a[i] * b[i]
	}
	return dot / (normA * normB)
}
