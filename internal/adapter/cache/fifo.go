// Package cache holds recent aggregation results in memory.
package cache

import (
	"fmt"

	"github.com/guillermoBallester/querylens/internal/core/domain"
	lru "github.com/hashicorp/golang-lru/v2"
)

// DefaultCapacity is the number of results kept when none is configured.
const DefaultCapacity = 5

// FIFO is a bounded store that evicts the oldest insertion first. Reads use
// Peek so they never change eviction order. Safe for concurrent use.
type FIFO struct {
	entries *lru.Cache[string, *domain.AggregationResult]
}

// EvictFunc is called with the key of every entry dropped to make room.
type EvictFunc func(key string)

// NewFIFO creates a FIFO holding at most capacity results. onEvict may be nil.
func NewFIFO(capacity int, onEvict EvictFunc) (*FIFO, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("cache capacity must be positive, got %d", capacity)
	}
	var cb func(string, *domain.AggregationResult)
	if onEvict != nil {
		cb = func(key string, _ *domain.AggregationResult) { onEvict(key) }
	}
	entries, err := lru.NewWithEvict(capacity, cb)
	if err != nil {
		return nil, fmt.Errorf("creating cache: %w", err)
	}
	return &FIFO{entries: entries}, nil
}

// Put stores a copy of result. Putting an existing key replaces the value and
// counts as a fresh insertion.
func (c *FIFO) Put(key string, result *domain.AggregationResult) {
	c.entries.Add(key, result.Clone())
}

// Get returns a copy of the stored result.
func (c *FIFO) Get(key string) (*domain.AggregationResult, error) {
	r, ok := c.entries.Peek(key)
	if !ok {
		return nil, fmt.Errorf("result %q: %w", key, domain.ErrNotFound)
	}
	return r.Clone(), nil
}

// Len returns the number of stored results.
func (c *FIFO) Len() int { return c.entries.Len() }

// keys returns stored keys from oldest to newest.
func (c *FIFO) keys() []string { return c.entries.Keys() }
