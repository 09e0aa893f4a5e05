package rag

import (
	"errors"
	"fmt"
)

// Answer is the result of asking one question.
type Answer struct {
	// Text is the model's answer followed by the citation footer.
	Text string `json:"answer"`
	// Cached is true when the answer was served from the response cache.
	Cached bool `json:"cached"`
	// Categories are the categories the search was restricted to; empty means all.
	Categories []string `json:"categories"`
	// Sources are the reranked chunks given to the model, best first.
	Sources []Source `json:"sources"`
}

// Source identifies a chunk used as context for an answer.
type Source struct {
	Category  string  `json:"category"`
	Filename  string  `json:"filename"`
	StartLine int     `json:"start_line"`
	EndLine   int     `json:"end_line"`
	Score     float32 `json:"score"`
}

// Pipeline stages reported in ProviderError. StageIndex is used by callers
// that embed chunks while building a store.
const (
	StageIndex    = "index"
	StageRetrieve = "retrieve"
	StageRerank   = "rerank"
	StageGenerate = "generate"
)

var (
	// ErrStoreAbsent is returned when a question is asked before any knowledge base is loaded.
	ErrStoreAbsent = errors.New("no knowledge base loaded")
	// ErrEmptyQuestion is returned for blank questions.
	ErrEmptyQuestion = errors.New("question cannot be empty")
)

// ProviderError wraps a failure of the embedding or language model provider
// during one stage of the pipeline.
type ProviderError struct {
	Stage string
	Err   error
}

func (e *ProviderError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Stage, e.Err)
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}
