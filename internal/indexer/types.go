package indexer

import (
	"time"

	"kbassist/internal/kb"
)

// Batch is the output of one chunking pass over the knowledge base.
// Texts and Metas are parallel slices.
type Batch struct {
	Texts []string
	Metas []kb.ChunkMeta

	// Links are the absolute hyperlinks found across all documents, deduplicated and sorted.
	// Documents that yielded no chunks still contribute links.
	Links []string

	// FileTimes maps each document that contributed at least one chunk to its modification time.
	FileTimes map[string]time.Time
}

// Len returns the number of chunks in the batch.
func (b *Batch) Len() int {
	return len(b.Texts)
}

// ChunkCounts returns the number of chunks contributed by each document.
func (b *Batch) ChunkCounts() map[string]int {
	counts := make(map[string]int, len(b.FileTimes))
	for _, m := range b.Metas {
		counts[m.Source]++
	}
	return counts
}
