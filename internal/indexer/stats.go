package indexer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
)

// ChunkerVersion identifies the chunking implementation.
// Update this when chunking logic changes significantly.
const ChunkerVersion = "v2.0"

// BuildStats describes one chunking pass.
type BuildStats struct {
	// DocsProcessed is the total number of documents visited.
	DocsProcessed int `json:"docs_processed"`
	// DocsWith0Chunks is the number of documents that produced no chunks.
	DocsWith0Chunks int `json:"docs_with_0_chunks"`
	// ExtractionFailures is the number of documents whose extraction failed.
	ExtractionFailures int `json:"extraction_failures"`
	// Chunks is the number of chunks produced.
	Chunks int `json:"chunks"`
	// ChunkLength summarizes chunk lengths in runes.
	ChunkLength LengthStats `json:"chunk_length"`

	ChunkerVersion string `json:"chunker_version"`
	ChunkSize      int    `json:"chunk_size"`
	ChunkOverlap   int    `json:"chunk_overlap"`
}

// LengthStats contains min, max, mean and p95 of a set of lengths.
type LengthStats struct {
	Min  int     `json:"min"`
	Max  int     `json:"max"`
	Mean float64 `json:"mean"`
	P95  int     `json:"p95"`
}

// IndexVersion returns a short hash identifying the index build parameters
// (chunker version, chunking parameters and embedding model).
func (s BuildStats) IndexVersion(embeddingModel string) string {
	input := fmt.Sprintf("%s|%s|chunkSize=%d|chunkOverlap=%d",
		s.ChunkerVersion, embeddingModel, s.ChunkSize, s.ChunkOverlap)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])[:16]
}

// computeLengthStats computes min, max, mean, and p95 from lengths.
func computeLengthStats(lengths []int) LengthStats {
	if len(lengths) == 0 {
		return LengthStats{}
	}

	sorted := make([]int, len(lengths))
	copy(sorted, lengths)
	sort.Ints(sorted)

	sum := 0
	for _, n := range lengths {
		sum += n
	}
	mean := float64(sum) / float64(len(lengths))

	p95Index := int(math.Ceil(float64(len(sorted)) * 0.95))
	if p95Index >= len(sorted) {
		p95Index = len(sorted) - 1
	}

	return LengthStats{
		Min:  sorted[0],
		Max:  sorted[len(sorted)-1],
		Mean: math.Round(mean*100) / 100,
		P95:  sorted[p95Index],
	}
}
