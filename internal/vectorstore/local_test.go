package vectorstore

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"kbassist/internal/kb"
)

func init() {
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// vocabEmbedder embeds a text as the counts of a fixed vocabulary.
type vocabEmbedder struct {
	vocab []string

	mu      sync.Mutex
	batches []int
	err     error
}

func newVocabEmbedder(vocab ...string) *vocabEmbedder {
	return &vocabEmbedder{vocab: vocab}
}

func (e *vocabEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	e.batches = append(e.batches, len(texts))

	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, len(e.vocab))
		lower := strings.ToLower(text)
		for j, word := range e.vocab {
			vec[j] = float32(strings.Count(lower, word))
		}
		out[i] = vec
	}
	return out, nil
}

func meta(category, filename string) kb.ChunkMeta {
	return kb.ChunkMeta{
		Source:    "/kb/" + category + "/" + filename,
		Category:  category,
		Filename:  filename,
		StartLine: 1,
		EndLine:   2,
	}
}

func TestLocalBackend_Build_Errors(t *testing.T) {
	backend := NewLocalBackend(newVocabEmbedder("a"), Binding{}, 8)
	ctx := context.Background()

	if _, err := backend.Build(ctx, nil, nil); !errors.Is(err, ErrNoContent) {
		t.Errorf("Build() with no texts error = %v, want ErrNoContent", err)
	}
	if _, err := backend.Build(ctx, []string{"a"}, nil); err == nil {
		t.Error("Build() with mismatched metadata should fail")
	}

	failing := newVocabEmbedder("a")
	failing.err = errors.New("provider down")
	if _, err := NewLocalBackend(failing, Binding{}, 8).Build(ctx, []string{"a"}, []kb.ChunkMeta{meta("hr", "x.txt")}); err == nil {
		t.Error("Build() should surface embedding errors")
	}
}

func TestLocalBackend_Build_Batches(t *testing.T) {
	embedder := newVocabEmbedder("a")
	backend := NewLocalBackend(embedder, Binding{}, 2)

	texts := []string{"a", "aa", "aaa", "aaaa", "aaaaa"}
	metas := make([]kb.ChunkMeta, len(texts))
	for i := range metas {
		metas[i] = meta("hr", "x.txt")
	}

	store, err := backend.Build(context.Background(), texts, metas)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if store.Len() != len(texts) {
		t.Errorf("Len() = %d, want %d", store.Len(), len(texts))
	}
	want := []int{2, 2, 1}
	if len(embedder.batches) != len(want) {
		t.Fatalf("embed batches = %v, want %v", embedder.batches, want)
	}
	for i := range want {
		if embedder.batches[i] != want[i] {
			t.Errorf("embed batches = %v, want %v", embedder.batches, want)
		}
	}
}

func buildTestStore(t *testing.T) (Store, *LocalBackend) {
	t.Helper()
	embedder := newVocabEmbedder("vacation", "laptop", "printer")
	backend := NewLocalBackend(embedder, Binding{Provider: "test", Model: "vocab"}, 16)

	texts := []string{
		"vacation vacation policy",
		"vacation laptop",
		"laptop setup guide",
		"printer drivers",
		"laptop laptop laptop",
	}
	metas := []kb.ChunkMeta{
		meta("swav", "policy.txt"),
		meta("swav", "travel.txt"),
		meta("it", "laptop.md"),
		meta("it", "printer.md"),
		meta("it", "fleet.md"),
	}
	store, err := backend.Build(context.Background(), texts, metas)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	return store, backend
}

func TestLocalStore_SimilaritySearch(t *testing.T) {
	store, _ := buildTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name       string
		query      string
		k          int
		categories []string
		wantFiles  []string
	}{
		{
			name:      "nearest first",
			query:     "vacation",
			k:         2,
			wantFiles: []string{"policy.txt", "travel.txt"},
		},
		{
			name:      "k larger than store",
			query:     "printer",
			k:         50,
			wantFiles: []string{"printer.md", "policy.txt", "travel.txt", "laptop.md", "fleet.md"},
		},
		{
			name:       "filter applies before top k",
			query:      "laptop",
			k:          1,
			categories: []string{"swav"},
			wantFiles:  []string{"travel.txt"},
		},
		{
			name:       "multiple categories",
			query:      "vacation",
			k:          10,
			categories: []string{"it", "swav"},
			wantFiles:  []string{"policy.txt", "travel.txt", "laptop.md", "printer.md", "fleet.md"},
		},
		{
			name:       "unknown category",
			query:      "vacation",
			k:          3,
			categories: []string{"finance"},
			wantFiles:  []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks, err := store.SimilaritySearch(ctx, tt.query, tt.k, tt.categories)
			if err != nil {
				t.Fatalf("SimilaritySearch() error = %v", err)
			}
			got := make([]string, len(chunks))
			for i, c := range chunks {
				got[i] = c.Meta.Filename
				if len(c.Vector) == 0 {
					t.Errorf("chunk %s has no stored vector", c.Meta.Filename)
				}
			}
			if strings.Join(got, ",") != strings.Join(tt.wantFiles, ",") {
				t.Errorf("SimilaritySearch() = %v, want %v", got, tt.wantFiles)
			}
			for i := 1; i < len(chunks); i++ {
				if chunks[i].Score > chunks[i-1].Score {
					t.Errorf("results not sorted by score: %v", chunks)
				}
			}
		})
	}

	if _, err := store.SimilaritySearch(ctx, "vacation", 0, nil); err == nil {
		t.Error("SimilaritySearch() with k=0 should fail")
	}
}

func TestLocalStore_PersistLoad(t *testing.T) {
	store, backend := buildTestStore(t)
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "vector_store")

	if err := store.Persist(ctx, dir); err != nil {
		t.Fatalf("Persist() error = %v", err)
	}
	for _, name := range []string{IndexFile, BindingFile} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("Persist() did not write %s: %v", name, err)
		}
	}

	loaded, err := backend.Load(ctx, dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if loaded.Len() != store.Len() {
		t.Errorf("Load() Len = %d, want %d", loaded.Len(), store.Len())
	}

	for _, query := range []string{"vacation", "laptop printer"} {
		want, _ := store.SimilaritySearch(ctx, query, 3, nil)
		got, err := loaded.SimilaritySearch(ctx, query, 3, nil)
		if err != nil {
			t.Fatalf("SimilaritySearch() after load error = %v", err)
		}
		if len(got) != len(want) {
			t.Fatalf("loaded results = %d, want %d", len(got), len(want))
		}
		for i := range want {
			if got[i].ID != want[i].ID || got[i].Text != want[i].Text || got[i].Meta != want[i].Meta || got[i].Score != want[i].Score {
				t.Errorf("loaded result %d = %+v, want %+v", i, got[i], want[i])
			}
		}
	}

	// Persisting again overwrites in place.
	if err := loaded.Persist(ctx, dir); err != nil {
		t.Errorf("second Persist() error = %v", err)
	}
	if err := loaded.Release(ctx); err != nil {
		t.Errorf("Release() error = %v", err)
	}
}

func TestLocalBackend_Load_Missing(t *testing.T) {
	backend := NewLocalBackend(newVocabEmbedder("a"), Binding{}, 8)
	ctx := context.Background()

	if _, err := backend.Load(ctx, filepath.Join(t.TempDir(), "absent")); !errors.Is(err, ErrNotFound) {
		t.Errorf("Load() of missing dir error = %v, want ErrNotFound", err)
	}

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, IndexFile), []byte("garbage"), 0644); err != nil {
		t.Fatalf("Failed to write index: %v", err)
	}
	if _, err := backend.Load(ctx, dir); err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("Load() of corrupt index error = %v, want decode error", err)
	}
}

func TestLocalStore_EqualScoresKeepIndexOrder(t *testing.T) {
	backend := NewLocalBackend(newVocabEmbedder("same"), Binding{}, 8)
	texts := []string{"same", "same", "same"}
	metas := []kb.ChunkMeta{meta("a", "1.txt"), meta("a", "2.txt"), meta("a", "3.txt")}

	store, err := backend.Build(context.Background(), texts, metas)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	chunks, err := store.SimilaritySearch(context.Background(), "same", 3, nil)
	if err != nil {
		t.Fatalf("SimilaritySearch() error = %v", err)
	}
	for i, want := range []string{"1.txt", "2.txt", "3.txt"} {
		if chunks[i].Meta.Filename != want {
			t.Errorf("result %d = %s, want %s", i, chunks[i].Meta.Filename, want)
		}
	}
}

func TestCosine(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	c := []float32{2, 0}

	if got := cosine(a, b, norm(a), norm(b)); got != 0 {
		t.Errorf("cosine(orthogonal) = %v, want 0", got)
	}
	if got := cosine(a, c, norm(a), norm(c)); got != 1 {
		t.Errorf("cosine(parallel) = %v, want 1", got)
	}
	if got := cosine(a, []float32{0, 0}, norm(a), 0); got != 0 {
		t.Errorf("cosine(zero) = %v, want 0", got)
	}
	if got := cosine(a, []float32{1}, 1, 1); got != 0 {
		t.Errorf("cosine(mismatched) = %v, want 0", got)
	}
}
