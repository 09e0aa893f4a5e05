package kb

import "sort"

// MaxChunkRunes caps the length of any indexed chunk.
const MaxChunkRunes = 8000

// Categories maps a category name (a top-level directory of the knowledge base)
// to the absolute paths of its documents, sorted.
type Categories map[string][]string

// Names returns the category names in sorted order.
func (c Categories) Names() []string {
	names := make([]string, 0, len(c))
	for name := range c {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// DocumentCount returns the total number of documents across categories.
func (c Categories) DocumentCount() int {
	n := 0
	for _, docs := range c {
		n += len(docs)
	}
	return n
}

// ChunkMeta is the provenance attached to every chunk.
//
// StartLine and EndLine are approximate: they are derived from a running
// character offset over the document text and do not account for the text
// that consecutive chunks share through the overlap window.
type ChunkMeta struct {
	Source    string `json:"source"`
	Category  string `json:"category"`
	Filename  string `json:"filename"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

// Tag returns the "category/filename" label used in prompts and citations.
func (m ChunkMeta) Tag() string {
	return m.Category + "/" + m.Filename
}

// Chunk is an indexed text segment returned by the vector store.
type Chunk struct {
	ID     string
	Text   string
	Meta   ChunkMeta
	Score  float32   // Similarity to the query that retrieved it
	Vector []float32 // Stored embedding, when the backend returns it
}
