package rag

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"kbassist/internal/llm"
	"kbassist/internal/vectorstore"
)

type storeRef struct {
	store vectorstore.Store
}

// Session is the per-user state the pipeline works on: the current store,
// the conversation and the response cache.
type Session struct {
	ID string

	store atomic.Pointer[storeRef]
	cache *ResponseCache

	mu           sync.Mutex
	conversation []llm.Message
}

// NewSession creates a session with no store loaded.
func NewSession() *Session {
	return &Session{
		ID:    uuid.New().String(),
		cache: NewResponseCache(),
	}
}

// Store returns the current store, or nil when none is loaded.
func (s *Session) Store() vectorstore.Store {
	if ref := s.store.Load(); ref != nil {
		return ref.store
	}
	return nil
}

// SwapStore installs store (nil unloads) and returns the previous one.
func (s *Session) SwapStore(store vectorstore.Store) vectorstore.Store {
	var next *storeRef
	if store != nil {
		next = &storeRef{store: store}
	}
	if prev := s.store.Swap(next); prev != nil {
		return prev.store
	}
	return nil
}

// Cache returns the session's response cache.
func (s *Session) Cache() *ResponseCache {
	return s.cache
}

// Append adds turns to the conversation.
func (s *Session) Append(turns ...llm.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversation = append(s.conversation, turns...)
}

// History returns a copy of the conversation.
func (s *Session) History() []llm.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]llm.Message, len(s.conversation))
	copy(out, s.conversation)
	return out
}

// Reset clears the conversation and the response cache.
func (s *Session) Reset() {
	s.mu.Lock()
	s.conversation = nil
	s.mu.Unlock()
	s.cache.Clear()
}
