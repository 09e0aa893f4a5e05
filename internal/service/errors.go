package service

import (
	"errors"
	"fmt"

	"kbassist/internal/rag"
)

var (
	// ErrEmptyKnowledgeBase is returned by Rebuild when the knowledge base has no supported documents.
	ErrEmptyKnowledgeBase = errors.New("no documents found")
	// ErrEmptyContent is returned by Rebuild when no document yields any chunk.
	ErrEmptyContent = errors.New("no content to process")
	// ErrStoreAbsent is returned by Ask before a knowledge base is built or loaded.
	ErrStoreAbsent = errors.New("no knowledge base loaded")
)

// ProviderError is a failure of the embedding or language model provider.
// It is never cached.
type ProviderError = rag.ProviderError

// ValidationError represents a validation error with a field name.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field %s: %s", e.Field, e.Message)
}

// PersistenceError is a failure to save, load or remove the persisted store.
type PersistenceError struct {
	Op  string // save, load or clear
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("failed to %s knowledge base: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// WrapError wraps an error with additional context.
func WrapError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", msg, err)
}
