package storage

import "time"

// DocumentRecord is a knowledge base document that contributed chunks to the index.
type DocumentRecord struct {
	Path       string    // Absolute path
	Category   string    // Top-level knowledge base directory
	Filename   string    // Base name
	ModTime    time.Time // Modification time when indexed
	ChunkCount int
}

// BuildRecord describes one successful index build.
type BuildRecord struct {
	ID                 string        `json:"id"` // UUID
	BuiltAt            time.Time     `json:"built_at"`
	Backend            string        `json:"backend"`
	Documents          int           `json:"documents"`
	EmptyDocuments     int           `json:"empty_documents"`
	ExtractionFailures int           `json:"extraction_failures"`
	Chunks             int           `json:"chunks"`
	Links              int           `json:"links"`
	ChunkerVersion     string        `json:"chunker_version"`
	IndexVersion       string        `json:"index_version"`
	Duration           time.Duration `json:"duration"`
}
