package rag

import (
	"context"
	"fmt"
	"sort"

	"kbassist/internal/contextutil"
	"kbassist/internal/kb"
	"kbassist/internal/llm"
)

// Reranker reorders retrieved chunks by the dot product between the question
// embedding and each chunk embedding and keeps the best topK.
//
// Chunks that carry their stored vector are scored with it; the others are
// embedded together with the question in a single provider call. Stored vectors
// must be the embedder's raw output, not normalized copies.
type Reranker struct {
	embedder llm.Embedder
	topK     int
}

// NewReranker creates a reranker keeping topK chunks.
func NewReranker(embedder llm.Embedder, topK int) *Reranker {
	return &Reranker{embedder: embedder, topK: topK}
}

// Rerank returns at most topK chunks, best first. Equal scores keep their input order.
// The input slice is not modified.
func (r *Reranker) Rerank(ctx context.Context, question string, candidates []kb.Chunk) ([]kb.Chunk, error) {
	if len(candidates) == 0 {
		return []kb.Chunk{}, nil
	}
	logger := contextutil.LoggerFromContext(ctx)

	texts := []string{question}
	var missing []int
	for i, c := range candidates {
		if len(c.Vector) == 0 {
			missing = append(missing, i)
			texts = append(texts, c.Text)
		}
	}

	vectors, err := r.embedder.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to embed rerank input: %w", err)
	}
	if len(vectors) != len(texts) {
		return nil, fmt.Errorf("embedding count mismatch: expected %d, got %d", len(texts), len(vectors))
	}

	queryVector := vectors[0]
	chunkVectors := make([][]float32, len(candidates))
	for i, c := range candidates {
		chunkVectors[i] = c.Vector
	}
	for j, idx := range missing {
		chunkVectors[idx] = vectors[j+1]
	}

	reranked := make([]kb.Chunk, len(candidates))
	for i, c := range candidates {
		if len(chunkVectors[i]) != len(queryVector) {
			return nil, fmt.Errorf("vector dimension mismatch for chunk %s: %d != %d", c.ID, len(chunkVectors[i]), len(queryVector))
		}
		c.Vector = chunkVectors[i]
		c.Score = dot(queryVector, c.Vector)
		reranked[i] = c
	}

	sort.SliceStable(reranked, func(a, b int) bool {
		return reranked[a].Score > reranked[b].Score
	})
	if len(reranked) > r.topK {
		reranked = reranked[:r.topK]
	}

	logger.DebugContext(ctx, "rerank completed",
		"candidates", len(candidates),
		"embedded", len(missing),
		"kept", len(reranked),
	)
	return reranked, nil
}

func dot(a, b []float32) float32 {
	var sum float32
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}
