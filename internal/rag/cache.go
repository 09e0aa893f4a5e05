package rag

import (
	"strings"
	"sync"
)

// ResponseCache maps normalized questions to final answers for the lifetime
// of a session. Entries are only ever removed all at once.
type ResponseCache struct {
	mu      sync.RWMutex
	entries map[string]Answer
}

// NewResponseCache creates an empty cache.
func NewResponseCache() *ResponseCache {
	return &ResponseCache{entries: make(map[string]Answer)}
}

// CacheKey normalizes a question: lowercased and trimmed.
func CacheKey(question string) string {
	return strings.ToLower(strings.TrimSpace(question))
}

// Get returns the answer stored for question.
func (c *ResponseCache) Get(question string) (Answer, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	a, ok := c.entries[CacheKey(question)]
	return a, ok
}

// Put stores the answer for question.
func (c *ResponseCache) Put(question string, answer Answer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[CacheKey(question)] = answer
}

// Clear drops every entry.
func (c *ResponseCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]Answer)
}

// Len returns the number of cached answers.
func (c *ResponseCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
