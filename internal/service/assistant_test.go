package service_test

import (
	"context"
	"errors"
	"hash/fnv"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"kbassist/internal/config"
	"kbassist/internal/extract"
	"kbassist/internal/indexer"
	llmmocks "kbassist/internal/llm/mocks"
	"kbassist/internal/rag"
	"kbassist/internal/service"
	"kbassist/internal/storage"
	"kbassist/internal/vectorstore"
)

func init() {
	// Set default logger to discard output for cleaner test output
	slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

const testDim = 32

// bagOfWords embeds texts by hashing lowercase words into a fixed number of buckets.
type bagOfWords struct {
	calls int
}

func (b *bagOfWords) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	b.calls++
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec := make([]float32, testDim)
		for _, word := range strings.Fields(strings.ToLower(text)) {
			h := fnv.New32a()
			_, _ = h.Write([]byte(strings.Trim(word, ".,?!#")))
			vec[h.Sum32()%testDim]++
		}
		out[i] = vec
	}
	return out, nil
}

type failingEmbedder struct{}

func (failingEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	return nil, errors.New("embedding service unavailable")
}

type fixture struct {
	kbDir    string
	storeDir string
	opts     service.Options
	model    *llmmocks.MockChatModel
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("Failed to create directory: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write file: %v", err)
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		kbDir:    filepath.Join(root, "knowledge-base"),
		storeDir: filepath.Join(root, "vector_store"),
		model:    llmmocks.NewMockChatModel(gomock.NewController(t)),
	}
	f.opts = service.Options{
		KBPath:         f.kbDir,
		StoreDir:       f.storeDir,
		Backend:        config.BackendLocal,
		EmbeddingModel: "bag-of-words",
	}
	writeFile(t, filepath.Join(f.kbDir, "swav", "leave.txt"),
		"Employees get 20 vacation days per year.\nSee https://hr.example.com/leave for the form.")
	writeFile(t, filepath.Join(f.kbDir, "engineering", "deploy.md"),
		"# Deploy\nRun make deploy to ship the API.")
	return f
}

func (f *fixture) assistant(embedder vectorstore.Embedder) service.Assistant {
	table := config.KeywordTable{Categories: []config.CategoryKeywords{
		{Name: "swav", Keywords: []string{"vacation", "leave"}},
		{Name: "engineering", Keywords: []string{"deploy", "api"}},
	}}
	backend := vectorstore.NewLocalBackend(embedder, vectorstore.Binding{Provider: "test", Model: "bag-of-words", Dimension: testDim}, 8)
	pipeline := rag.NewPipeline(
		rag.NewRetriever(rag.NewCategoryDetector(table), 10),
		rag.NewReranker(embedder, 3),
		rag.NewAnswerGenerator(f.model),
	)
	return service.NewAssistant(f.opts, indexer.NewPipeline(extract.NewRegistry(), 1500, 300), backend, pipeline)
}

func TestAssistant_Rebuild(t *testing.T) {
	f := newFixture(t)
	a := f.assistant(&bagOfWords{})
	ctx := context.Background()

	result, err := a.Rebuild(ctx)
	if err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	if len(result.Categories) != 2 || result.Categories[0] != "engineering" || result.Categories[1] != "swav" {
		t.Errorf("Rebuild() categories = %v, want [engineering swav]", result.Categories)
	}
	if result.Chunks != 2 || result.Documents != 2 || result.Links != 1 {
		t.Errorf("Rebuild() = %+v, want 2 chunks, 2 documents, 1 link", result)
	}
	if result.Build == nil || result.Build.IndexVersion == "" || result.Build.Backend != config.BackendLocal {
		t.Errorf("Rebuild() build record = %+v", result.Build)
	}

	for _, name := range []string{vectorstore.IndexFile, vectorstore.BindingFile, storage.MetadataFile} {
		if _, err := os.Stat(filepath.Join(f.storeDir, name)); err != nil {
			t.Errorf("store directory missing %s: %v", name, err)
		}
	}
	if _, err := os.Stat(f.storeDir + ".staging"); !os.IsNotExist(err) {
		t.Error("staging directory should not remain after rebuild")
	}

	status, err := a.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if !status.Loaded || status.Chunks != 2 || status.Documents != 2 || status.Links != 1 {
		t.Errorf("Status() = %+v", status)
	}
	if len(status.StaleDocuments) != 0 {
		t.Errorf("Status() stale = %v, want none", status.StaleDocuments)
	}
	if status.LastBuild == nil || status.LastBuild.Chunks != 2 {
		t.Errorf("Status() last build = %+v", status.LastBuild)
	}

	links, err := a.Links(ctx)
	if err != nil {
		t.Fatalf("Links() error = %v", err)
	}
	if len(links) != 1 || links[0] != "https://hr.example.com/leave" {
		t.Errorf("Links() = %v", links)
	}
}

func TestAssistant_Rebuild_Errors(t *testing.T) {
	tests := []struct {
		name     string
		setup    func(t *testing.T, f *fixture)
		embedder vectorstore.Embedder
		check    func(error) bool
	}{
		{
			name: "missing knowledge base",
			setup: func(t *testing.T, f *fixture) {
				_ = os.RemoveAll(f.kbDir)
			},
			check: func(err error) bool { return errors.Is(err, service.ErrEmptyKnowledgeBase) },
		},
		{
			name: "only unsupported files",
			setup: func(t *testing.T, f *fixture) {
				_ = os.RemoveAll(f.kbDir)
				writeFile(t, filepath.Join(f.kbDir, "hr", "sheet.csv"), "a,b")
				writeFile(t, filepath.Join(f.kbDir, "hr", "~$lock.docx"), "x")
			},
			check: func(err error) bool { return errors.Is(err, service.ErrEmptyKnowledgeBase) },
		},
		{
			name: "only empty documents",
			setup: func(t *testing.T, f *fixture) {
				_ = os.RemoveAll(f.kbDir)
				writeFile(t, filepath.Join(f.kbDir, "hr", "empty.txt"), "  \n\n ")
			},
			check: func(err error) bool { return errors.Is(err, service.ErrEmptyContent) },
		},
		{
			name:     "embedding failure",
			embedder: failingEmbedder{},
			check: func(err error) bool {
				var pe *service.ProviderError
				return errors.As(err, &pe) && pe.Stage == rag.StageIndex
			},
		},
		{
			name: "store directory not writable",
			setup: func(t *testing.T, f *fixture) {
				blocker := filepath.Join(t.TempDir(), "blocker")
				writeFile(t, blocker, "not a directory")
				f.opts.StoreDir = filepath.Join(blocker, "store")
			},
			check: func(err error) bool {
				var pe *service.PersistenceError
				return errors.As(err, &pe) && pe.Op == "save"
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			if tt.setup != nil {
				tt.setup(t, f)
			}
			var embedder vectorstore.Embedder = &bagOfWords{}
			if tt.embedder != nil {
				embedder = tt.embedder
			}
			a := f.assistant(embedder)

			_, err := a.Rebuild(context.Background())
			if err == nil || !tt.check(err) {
				t.Fatalf("Rebuild() error = %v", err)
			}
			if _, err := a.Ask(context.Background(), "How many vacation days?"); !errors.Is(err, service.ErrStoreAbsent) {
				t.Errorf("Ask() after failed rebuild error = %v, want ErrStoreAbsent", err)
			}
		})
	}
}

func TestAssistant_Ask(t *testing.T) {
	f := newFixture(t)
	a := f.assistant(&bagOfWords{})
	ctx := context.Background()

	if _, err := a.Ask(ctx, "How many vacation days?"); !errors.Is(err, service.ErrStoreAbsent) {
		t.Fatalf("Ask() before rebuild error = %v, want ErrStoreAbsent", err)
	}

	if _, err := a.Rebuild(ctx); err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}

	f.model.EXPECT().
		ChatWithMessages(gomock.Any(), gomock.Any(), gomock.Any()).
		Return("- 20 days per year", nil).
		Times(1)

	answer, err := a.Ask(ctx, "How many vacation days?")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if answer.Text != "- 20 days per year\n\n---\n**Source Referenced:** swav/leave.txt" {
		t.Errorf("Ask() text = %q", answer.Text)
	}
	if len(answer.Categories) != 1 || answer.Categories[0] != "swav" {
		t.Errorf("Ask() categories = %v, want [swav]", answer.Categories)
	}
	for _, s := range answer.Sources {
		if s.Category != "swav" {
			t.Errorf("Ask() source outside detected category: %+v", s)
		}
	}

	again, err := a.Ask(ctx, "  how many VACATION days?")
	if err != nil {
		t.Fatalf("Ask() cached error = %v", err)
	}
	if !again.Cached || again.Text != answer.Text {
		t.Errorf("Ask() second call = %+v, want cached answer", again)
	}
	if got := len(a.History()); got != 4 {
		t.Errorf("History() length = %d, want 4", got)
	}

	var ve *service.ValidationError
	if _, err := a.Ask(ctx, " "); !errors.As(err, &ve) || ve.Field != "question" {
		t.Errorf("Ask(blank) error = %v, want ValidationError on question", err)
	}
}

func TestAssistant_Ask_NoKeywordSearchesAllCategories(t *testing.T) {
	f := newFixture(t)
	a := f.assistant(&bagOfWords{})
	ctx := context.Background()

	if _, err := a.Rebuild(ctx); err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	f.model.EXPECT().
		ChatWithMessages(gomock.Any(), gomock.Any(), gomock.Any()).
		Return("Not in the documents.", nil)

	answer, err := a.Ask(ctx, "Who maintains this wiki?")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if len(answer.Categories) != 0 {
		t.Errorf("Ask() categories = %v, want none", answer.Categories)
	}
	seen := map[string]bool{}
	for _, s := range answer.Sources {
		seen[s.Category] = true
	}
	if !seen["swav"] || !seen["engineering"] {
		t.Errorf("Ask() sources = %+v, want chunks from swav and engineering", answer.Sources)
	}
}

func TestAssistant_Rebuild_ReplacesPersistedStore(t *testing.T) {
	f := newFixture(t)
	a := f.assistant(&bagOfWords{})
	ctx := context.Background()

	if _, err := a.Rebuild(ctx); err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	// Leftover from an interrupted swap.
	writeFile(t, filepath.Join(f.storeDir+".previous", "stale"), "x")

	writeFile(t, filepath.Join(f.kbDir, "engineering", "rollback.md"), "# Rollback\nRun make rollback.")
	result, err := a.Rebuild(ctx)
	if err != nil {
		t.Fatalf("second Rebuild() error = %v", err)
	}
	if result.Documents != 3 {
		t.Errorf("Rebuild() documents = %d, want 3", result.Documents)
	}
	for _, dir := range []string{f.storeDir + ".previous", f.storeDir + ".staging"} {
		if _, err := os.Stat(dir); !os.IsNotExist(err) {
			t.Errorf("%s should not remain after rebuild", dir)
		}
	}

	reloaded := f.assistant(&bagOfWords{})
	if err := reloaded.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	status, err := reloaded.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if !status.Loaded || status.Documents != 3 {
		t.Errorf("Status() after reload = %+v, want 3 documents loaded", status)
	}
}

func TestAssistant_Ask_ProviderErrorNotCached(t *testing.T) {
	f := newFixture(t)
	a := f.assistant(&bagOfWords{})
	ctx := context.Background()

	if _, err := a.Rebuild(ctx); err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}

	gomock.InOrder(
		f.model.EXPECT().ChatWithMessages(gomock.Any(), gomock.Any(), gomock.Any()).Return("", errors.New("503")),
		f.model.EXPECT().ChatWithMessages(gomock.Any(), gomock.Any(), gomock.Any()).Return("recovered", nil),
	)

	_, err := a.Ask(ctx, "How do I deploy?")
	var pe *service.ProviderError
	if !errors.As(err, &pe) || pe.Stage != rag.StageGenerate {
		t.Fatalf("Ask() error = %v, want ProviderError at generate", err)
	}
	if len(a.History()) != 0 {
		t.Error("failed question must not reach the conversation")
	}

	answer, err := a.Ask(ctx, "How do I deploy?")
	if err != nil {
		t.Fatalf("Ask() retry error = %v", err)
	}
	if answer.Cached {
		t.Error("retry after a failure must not be served from cache")
	}
}

func TestAssistant_RebuildInvalidatesCache(t *testing.T) {
	f := newFixture(t)
	a := f.assistant(&bagOfWords{})
	ctx := context.Background()

	f.model.EXPECT().ChatWithMessages(gomock.Any(), gomock.Any(), gomock.Any()).Return("answer", nil).Times(2)

	if _, err := a.Rebuild(ctx); err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	if _, err := a.Ask(ctx, "How do I deploy?"); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}

	// A failed rebuild keeps the store and the cache.
	_ = os.RemoveAll(f.kbDir)
	if _, err := a.Rebuild(ctx); !errors.Is(err, service.ErrEmptyKnowledgeBase) {
		t.Fatalf("Rebuild() error = %v, want ErrEmptyKnowledgeBase", err)
	}
	status, err := a.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if !status.Loaded || status.CachedAnswers != 1 {
		t.Errorf("Status() after failed rebuild = %+v, want loaded with 1 cached answer", status)
	}
	if len(status.StaleDocuments) != 2 {
		t.Errorf("Status() stale = %v, want both deleted documents", status.StaleDocuments)
	}

	writeFile(t, filepath.Join(f.kbDir, "engineering", "deploy.md"), "# Deploy\nUse the pipeline to deploy.")
	if _, err := a.Rebuild(ctx); err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	answer, err := a.Ask(ctx, "How do I deploy?")
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if answer.Cached {
		t.Error("rebuild should invalidate the cache")
	}
	if len(a.History()) != 4 {
		t.Errorf("History() length = %d, want 4; rebuild keeps the conversation", len(a.History()))
	}
}

func TestAssistant_Clear(t *testing.T) {
	f := newFixture(t)
	a := f.assistant(&bagOfWords{})
	ctx := context.Background()

	f.model.EXPECT().ChatWithMessages(gomock.Any(), gomock.Any(), gomock.Any()).Return("answer", nil)

	if _, err := a.Rebuild(ctx); err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}
	if _, err := a.Ask(ctx, "How do I deploy?"); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}

	if err := a.Clear(ctx); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
	if _, err := os.Stat(f.storeDir); !os.IsNotExist(err) {
		t.Error("Clear() should remove the store directory")
	}
	if len(a.History()) != 0 {
		t.Error("Clear() should reset the conversation")
	}
	if _, err := a.Ask(ctx, "How do I deploy?"); !errors.Is(err, service.ErrStoreAbsent) {
		t.Errorf("Ask() after Clear() error = %v, want ErrStoreAbsent", err)
	}

	status, err := a.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if status.Loaded || status.CachedAnswers != 0 || status.LastBuild != nil {
		t.Errorf("Status() after Clear() = %+v", status)
	}

	// Clearing twice is harmless.
	if err := a.Clear(ctx); err != nil {
		t.Errorf("second Clear() error = %v", err)
	}
}

func TestAssistant_Load(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	fresh := f.assistant(&bagOfWords{})
	if err := fresh.Load(ctx); err != nil {
		t.Fatalf("Load() on empty directory error = %v", err)
	}
	if status, _ := fresh.Status(ctx); status.Loaded {
		t.Fatal("Load() without a persisted store should leave the session empty")
	}

	if _, err := fresh.Rebuild(ctx); err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}

	restarted := f.assistant(&bagOfWords{})
	if err := restarted.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	status, err := restarted.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if !status.Loaded || status.Chunks != 2 {
		t.Errorf("Status() after Load() = %+v, want 2 loaded chunks", status)
	}
}

func TestAssistant_Load_Corrupt(t *testing.T) {
	f := newFixture(t)
	writeFile(t, filepath.Join(f.storeDir, vectorstore.IndexFile), "garbage")

	a := f.assistant(&bagOfWords{})
	err := a.Load(context.Background())
	var pe *service.PersistenceError
	if !errors.As(err, &pe) || pe.Op != "load" {
		t.Fatalf("Load() error = %v, want PersistenceError on load", err)
	}
	if _, err := a.Ask(context.Background(), "anything"); !errors.Is(err, service.ErrStoreAbsent) {
		t.Errorf("Ask() after failed Load() error = %v, want ErrStoreAbsent", err)
	}
}

func TestAssistant_Status_Stale(t *testing.T) {
	f := newFixture(t)
	a := f.assistant(&bagOfWords{})
	ctx := context.Background()

	if _, err := a.Rebuild(ctx); err != nil {
		t.Fatalf("Rebuild() error = %v", err)
	}

	leave := filepath.Join(f.kbDir, "swav", "leave.txt")
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(leave, future, future); err != nil {
		t.Fatalf("Chtimes() error = %v", err)
	}

	status, err := a.Status(ctx)
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if len(status.StaleDocuments) != 1 || status.StaleDocuments[0] != leave {
		t.Errorf("Status() stale = %v, want [%s]", status.StaleDocuments, leave)
	}
	if len(status.Categories) != 2 {
		t.Errorf("Status() categories = %v", status.Categories)
	}
}
