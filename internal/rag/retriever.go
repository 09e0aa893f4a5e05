package rag

import (
	"context"

	"kbassist/internal/contextutil"
	"kbassist/internal/kb"
	"kbassist/internal/vectorstore"
)

// Retriever runs the category-filtered similarity search for a question.
type Retriever struct {
	detector *CategoryDetector
	k        int
}

// NewRetriever creates a retriever returning up to k candidates per question.
func NewRetriever(detector *CategoryDetector, k int) *Retriever {
	return &Retriever{detector: detector, k: k}
}

// Retrieve returns the nearest chunks for question together with the detected
// categories. With no detected category the whole store is searched.
func (r *Retriever) Retrieve(ctx context.Context, store vectorstore.Store, question string) ([]kb.Chunk, []string, error) {
	logger := contextutil.LoggerFromContext(ctx)

	categories := r.detector.Detect(question)
	logger.DebugContext(ctx, "categories detected", "categories", categories)

	chunks, err := store.SimilaritySearch(ctx, question, r.k, categories)
	if err != nil {
		return nil, categories, err
	}

	logger.InfoContext(ctx, "vector search completed", "results_count", len(chunks), "k_requested", r.k, "categories", categories)
	return chunks, categories, nil
}
