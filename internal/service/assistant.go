package service

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_assistant.go -package=mocks kbassist/internal/service Assistant

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"kbassist/internal/contextutil"
	"kbassist/internal/indexer"
	"kbassist/internal/kb"
	"kbassist/internal/llm"
	"kbassist/internal/rag"
	"kbassist/internal/storage"
	"kbassist/internal/vectorstore"
)

// Assistant owns the question-answering session and exposes it to the
// presentation layers.
type Assistant interface {
	// Load installs the store persisted in the store directory, if any.
	Load(ctx context.Context) error
	// Rebuild re-indexes the whole knowledge base and replaces the current store.
	Rebuild(ctx context.Context) (RebuildResult, error)
	// Clear deletes the persisted store and resets the session.
	Clear(ctx context.Context) error
	// Ask answers a question from the knowledge base.
	Ask(ctx context.Context, question string) (rag.Answer, error)
	// History returns the conversation so far.
	History() []llm.Message
	// Status reports what is loaded and how fresh it is.
	Status(ctx context.Context) (Status, error)
	// Links returns the hyperlinks discovered during the last build.
	Links(ctx context.Context) ([]string, error)
}

// Options configures an Assistant.
type Options struct {
	KBPath         string // Knowledge base root
	StoreDir       string // Directory holding the persisted store and metadata
	Backend        string // Backend name recorded in build records
	EmbeddingModel string // Embedding model name, part of the index version
}

// RebuildResult summarizes a successful rebuild.
type RebuildResult struct {
	Categories []string             `json:"categories"`
	Documents  int                  `json:"documents"`
	Chunks     int                  `json:"chunks"`
	Links      int                  `json:"links"`
	Stats      indexer.BuildStats   `json:"stats"`
	Build      *storage.BuildRecord `json:"build"`
}

// Status describes the session and the persisted knowledge base.
type Status struct {
	SessionID      string               `json:"session_id"`
	Loaded         bool                 `json:"loaded"`
	Chunks         int                  `json:"chunks"`
	Categories     []string             `json:"categories"`
	Documents      int                  `json:"documents"`
	Links          int                  `json:"links"`
	CachedAnswers  int                  `json:"cached_answers"`
	LastBuild      *storage.BuildRecord `json:"last_build,omitempty"`
	StaleDocuments []string             `json:"stale_documents"`
}

// assistant implements Assistant.
type assistant struct {
	opts     Options
	chunker  *indexer.Pipeline
	backend  vectorstore.Backend
	pipeline *rag.Pipeline
	session  *rag.Session

	// rebuildMu serializes rebuild and clear; askMu allows one question at a
	// time and keeps store swaps out of in-flight questions.
	rebuildMu sync.Mutex
	askMu     sync.Mutex
}

// NewAssistant creates an Assistant with a fresh session and no store loaded.
func NewAssistant(opts Options, chunker *indexer.Pipeline, backend vectorstore.Backend, pipeline *rag.Pipeline) Assistant {
	return &assistant{
		opts:     opts,
		chunker:  chunker,
		backend:  backend,
		pipeline: pipeline,
		session:  rag.NewSession(),
	}
}

// Load installs the persisted store. A missing store is not an error; any
// other failure is returned as *PersistenceError and the session stays without a store.
func (a *assistant) Load(ctx context.Context) error {
	logger := contextutil.LoggerFromContext(ctx)

	store, err := a.backend.Load(ctx, a.opts.StoreDir)
	if err != nil {
		if errors.Is(err, vectorstore.ErrNotFound) {
			logger.InfoContext(ctx, "no persisted knowledge base found", "dir", a.opts.StoreDir)
			return nil
		}
		return &PersistenceError{Op: "load", Err: err}
	}

	a.install(ctx, store)
	logger.InfoContext(ctx, "loaded existing knowledge base", "dir", a.opts.StoreDir, "chunks", store.Len())
	return nil
}

func (a *assistant) Rebuild(ctx context.Context) (RebuildResult, error) {
	a.rebuildMu.Lock()
	defer a.rebuildMu.Unlock()

	logger := contextutil.LoggerFromContext(ctx)
	start := time.Now()

	categories, err := kb.Scan(ctx, a.opts.KBPath)
	if err != nil {
		return RebuildResult{}, WrapError(err, "failed to scan knowledge base")
	}
	if len(categories) == 0 {
		logger.WarnContext(ctx, "knowledge base has no documents", "path", a.opts.KBPath)
		return RebuildResult{}, ErrEmptyKnowledgeBase
	}

	batch, stats, err := a.chunker.Chunk(ctx, categories)
	if err != nil {
		return RebuildResult{}, WrapError(err, "failed to chunk documents")
	}
	if batch.Len() == 0 {
		logger.WarnContext(ctx, "knowledge base has no content", "documents", stats.DocsProcessed)
		return RebuildResult{}, ErrEmptyContent
	}

	store, err := a.backend.Build(ctx, batch.Texts, batch.Metas)
	if err != nil {
		if errors.Is(err, vectorstore.ErrNoContent) {
			return RebuildResult{}, ErrEmptyContent
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return RebuildResult{}, ctxErr
		}
		return RebuildResult{}, &ProviderError{Stage: rag.StageIndex, Err: err}
	}

	build := &storage.BuildRecord{
		BuiltAt:            time.Now().UTC(),
		Backend:            a.opts.Backend,
		Documents:          stats.DocsProcessed,
		EmptyDocuments:     stats.DocsWith0Chunks,
		ExtractionFailures: stats.ExtractionFailures,
		Chunks:             stats.Chunks,
		Links:              len(batch.Links),
		ChunkerVersion:     stats.ChunkerVersion,
		IndexVersion:       stats.IndexVersion(a.opts.EmbeddingModel),
		Duration:           time.Since(start),
	}
	snap := storage.Snapshot{
		Documents: documentRecords(batch),
		Links:     batch.Links,
		Build:     build,
	}

	if err := a.persist(ctx, store, snap); err != nil {
		if relErr := store.Release(ctx); relErr != nil {
			logger.WarnContext(ctx, "failed to release unused store", "error", relErr)
		}
		return RebuildResult{}, &PersistenceError{Op: "save", Err: err}
	}

	a.install(ctx, store)

	result := RebuildResult{
		Categories: categories.Names(),
		Documents:  len(snap.Documents),
		Chunks:     batch.Len(),
		Links:      len(batch.Links),
		Stats:      stats,
		Build:      build,
	}
	logger.InfoContext(ctx, "knowledge base rebuilt",
		"categories", len(result.Categories),
		"documents", result.Documents,
		"chunks", result.Chunks,
		"links", result.Links,
		"index_version", build.IndexVersion,
		"duration", time.Since(start),
	)
	return result, nil
}

// persist writes store and metadata into a staging directory next to the
// store directory and then moves it into place.
func (a *assistant) persist(ctx context.Context, store vectorstore.Store, snap storage.Snapshot) error {
	dir := filepath.Clean(a.opts.StoreDir)
	staging := dir + ".staging"

	if err := os.RemoveAll(staging); err != nil {
		return fmt.Errorf("failed to clear staging directory: %w", err)
	}
	if err := store.Persist(ctx, staging); err != nil {
		_ = os.RemoveAll(staging)
		return err
	}
	if err := storage.WriteSnapshot(ctx, staging, snap); err != nil {
		_ = os.RemoveAll(staging)
		return err
	}

	// The previous store stays on disk until the new one is in place.
	previous := dir + ".previous"
	if err := os.RemoveAll(previous); err != nil {
		_ = os.RemoveAll(staging)
		return fmt.Errorf("failed to clear previous store: %w", err)
	}
	hadPrevious := true
	if err := os.Rename(dir, previous); err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			_ = os.RemoveAll(staging)
			return fmt.Errorf("failed to move previous store aside: %w", err)
		}
		hadPrevious = false
	}
	if err := os.Rename(staging, dir); err != nil {
		if hadPrevious {
			_ = os.Rename(previous, dir)
		}
		_ = os.RemoveAll(staging)
		return fmt.Errorf("failed to move store into place: %w", err)
	}
	if hadPrevious {
		if err := os.RemoveAll(previous); err != nil {
			contextutil.LoggerFromContext(ctx).WarnContext(ctx, "failed to remove previous store", "dir", previous, "error", err)
		}
	}
	return nil
}

// install swaps store into the session, clears the cache and releases the
// previous store.
func (a *assistant) install(ctx context.Context, store vectorstore.Store) {
	a.askMu.Lock()
	prev := a.session.SwapStore(store)
	a.session.Cache().Clear()
	a.askMu.Unlock()

	if prev != nil {
		if err := prev.Release(ctx); err != nil {
			contextutil.LoggerFromContext(ctx).WarnContext(ctx, "failed to release previous store", "error", err)
		}
	}
}

func (a *assistant) Clear(ctx context.Context) error {
	a.rebuildMu.Lock()
	defer a.rebuildMu.Unlock()

	if err := os.RemoveAll(a.opts.StoreDir); err != nil {
		return &PersistenceError{Op: "clear", Err: err}
	}

	a.askMu.Lock()
	prev := a.session.SwapStore(nil)
	a.session.Reset()
	a.askMu.Unlock()

	if prev != nil {
		if err := prev.Release(ctx); err != nil {
			contextutil.LoggerFromContext(ctx).WarnContext(ctx, "failed to release cleared store", "error", err)
		}
	}
	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "knowledge base cleared", "dir", a.opts.StoreDir)
	return nil
}

func (a *assistant) Ask(ctx context.Context, question string) (rag.Answer, error) {
	a.askMu.Lock()
	defer a.askMu.Unlock()

	answer, err := a.pipeline.Ask(ctx, a.session, question)
	switch {
	case err == nil:
		return answer, nil
	case errors.Is(err, rag.ErrStoreAbsent):
		return rag.Answer{}, ErrStoreAbsent
	case errors.Is(err, rag.ErrEmptyQuestion):
		return rag.Answer{}, &ValidationError{Field: "question", Message: "cannot be empty"}
	default:
		return rag.Answer{}, err
	}
}

func (a *assistant) History() []llm.Message {
	return a.session.History()
}

// Status reports the loaded store and compares the recorded modification
// times with the filesystem. A missing or deleted document counts as stale.
func (a *assistant) Status(ctx context.Context) (Status, error) {
	status := Status{
		SessionID:      a.session.ID,
		CachedAnswers:  a.session.Cache().Len(),
		Categories:     []string{},
		StaleDocuments: []string{},
	}
	if store := a.session.Store(); store != nil {
		status.Loaded = true
		status.Chunks = store.Len()
	}

	snap, err := a.readSnapshot(ctx)
	if err != nil {
		return Status{}, err
	}
	if snap == nil {
		return status, nil
	}

	seen := make(map[string]bool)
	for _, doc := range snap.Documents {
		if !seen[doc.Category] {
			seen[doc.Category] = true
			status.Categories = append(status.Categories, doc.Category)
		}
		info, err := os.Stat(doc.Path)
		if err != nil || !info.ModTime().Equal(doc.ModTime) {
			status.StaleDocuments = append(status.StaleDocuments, doc.Path)
		}
	}
	sort.Strings(status.Categories)
	status.Documents = len(snap.Documents)
	status.Links = len(snap.Links)
	status.LastBuild = snap.Build
	return status, nil
}

func (a *assistant) Links(ctx context.Context) ([]string, error) {
	snap, err := a.readSnapshot(ctx)
	if err != nil {
		return nil, err
	}
	if snap == nil {
		return []string{}, nil
	}
	return snap.Links, nil
}

// readSnapshot returns nil without error when no metadata has been persisted.
func (a *assistant) readSnapshot(ctx context.Context) (*storage.Snapshot, error) {
	snap, err := storage.ReadSnapshot(ctx, a.opts.StoreDir)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		contextutil.LoggerFromContext(ctx).WarnContext(ctx, "failed to read knowledge base metadata", "error", err)
		return nil, &PersistenceError{Op: "load", Err: err}
	}
	return snap, nil
}

// documentRecords lists every document that contributed chunks, sorted by path.
func documentRecords(batch *indexer.Batch) []storage.DocumentRecord {
	counts := batch.ChunkCounts()
	categories := make(map[string]string, len(counts))
	for _, m := range batch.Metas {
		categories[m.Source] = m.Category
	}

	records := make([]storage.DocumentRecord, 0, len(batch.FileTimes))
	for path, modTime := range batch.FileTimes {
		records = append(records, storage.DocumentRecord{
			Path:       path,
			Category:   categories[path],
			Filename:   filepath.Base(path),
			ModTime:    modTime,
			ChunkCount: counts[path],
		})
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].Path < records[j].Path
	})
	return records
}
