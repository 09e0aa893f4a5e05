package indexer

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
	"unicode/utf8"

	"kbassist/internal/contextutil"
	"kbassist/internal/extract"
	"kbassist/internal/kb"
)

// Pipeline turns scanned knowledge base documents into a chunk batch.
type Pipeline struct {
	registry *extract.Registry
	splitter Splitter
}

// NewPipeline creates a chunking pipeline with the given chunk size and overlap (in runes).
func NewPipeline(registry *extract.Registry, chunkSize, chunkOverlap int) *Pipeline {
	return &Pipeline{
		registry: registry,
		splitter: Splitter{Size: chunkSize, Overlap: chunkOverlap},
	}
}

// Chunk extracts and splits every document in categories.
// Extraction failures are logged and the document is treated as empty;
// documents yielding no chunks are counted but never fail the pass.
// Only context cancellation returns an error.
func (p *Pipeline) Chunk(ctx context.Context, categories kb.Categories) (*Batch, BuildStats, error) {
	logger := contextutil.LoggerFromContext(ctx)

	batch := &Batch{FileTimes: make(map[string]time.Time)}
	stats := BuildStats{
		ChunkerVersion: ChunkerVersion,
		ChunkSize:      p.splitter.Size,
		ChunkOverlap:   p.splitter.Overlap,
	}
	links := make(map[string]struct{})

	for _, category := range categories.Names() {
		for _, path := range categories[category] {
			if err := ctx.Err(); err != nil {
				return nil, BuildStats{}, err
			}
			stats.DocsProcessed++

			res := p.registry.Extract(ctx, path)
			if !res.OK() {
				stats.ExtractionFailures++
				logger.WarnContext(ctx, "failed to extract document", "path", path, "error", res.Err)
			}
			for _, l := range res.Links {
				links[l] = struct{}{}
			}

			n := p.chunkDocument(ctx, batch, category, path, res.Text)
			if n == 0 {
				stats.DocsWith0Chunks++
				logger.DebugContext(ctx, "document produced no chunks", "path", path)
				continue
			}

			if info, err := os.Stat(path); err == nil {
				batch.FileTimes[path] = info.ModTime()
			} else {
				logger.WarnContext(ctx, "failed to stat document", "path", path, "error", err)
				batch.FileTimes[path] = time.Time{}
			}
		}
	}

	batch.Links = make([]string, 0, len(links))
	for l := range links {
		batch.Links = append(batch.Links, l)
	}
	sort.Strings(batch.Links)

	lengths := make([]int, len(batch.Texts))
	for i, t := range batch.Texts {
		lengths[i] = utf8.RuneCountInString(t)
	}
	stats.Chunks = len(batch.Texts)
	stats.ChunkLength = computeLengthStats(lengths)

	logger.InfoContext(ctx, "chunking completed",
		"documents", stats.DocsProcessed,
		"chunks", stats.Chunks,
		"empty_documents", stats.DocsWith0Chunks,
		"extraction_failures", stats.ExtractionFailures,
		"links", len(batch.Links))

	return batch, stats, nil
}

// chunkDocument appends the chunks of one document to batch and returns how many were added.
func (p *Pipeline) chunkDocument(ctx context.Context, batch *Batch, category, path, text string) int {
	if strings.TrimSpace(text) == "" {
		return 0
	}

	filename := filepath.Base(path)
	span := newLineSpan(text)
	added := 0
	for _, chunk := range p.splitter.Split(text) {
		// Provenance follows the untruncated chunk.
		start, end := span.next(utf8.RuneCountInString(chunk))
		chunk = truncateRunes(chunk, kb.MaxChunkRunes)
		if chunk == "" {
			continue
		}
		batch.Texts = append(batch.Texts, chunk)
		batch.Metas = append(batch.Metas, kb.ChunkMeta{
			Source:    path,
			Category:  category,
			Filename:  filename,
			StartLine: start,
			EndLine:   end,
		})
		added++
	}
	contextutil.LoggerFromContext(ctx).DebugContext(ctx, "chunked document", "path", path, "chunks", added)
	return added
}
