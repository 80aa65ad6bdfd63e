// Package cache holds the per-user day-set cache and the invalidation hooks fired on new completions.
package cache

import (
	"context"
	"sync"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"example.com/calmpulse/internal/observability"
)

// DefaultDaySetCapacity bounds the number of users kept in memory.
const DefaultDaySetCapacity = 10000

type daySetEntry struct {
	days []string
	gen  uint64
}

// DaySetCache stores the last known completed day-keys per user id.
//
// Invalidate records a fresh generation for the user outside the LRU so a refresh that started earlier
// (holding an older Token) cannot bring the pre-write day-set back, even after the entry was evicted.
// The invalidation record is bounded by the cache capacity; when it overflows it is reset and every
// token older than the reset is treated as stale.
type DaySetCache struct {
	mu          sync.Mutex
	entries     *lru.Cache[string, daySetEntry]
	gen         atomic.Uint64
	invalidated map[string]uint64
	forgotten   uint64
	limit       int
}

// NewDaySetCache builds a cache holding at most capacity users.
func NewDaySetCache(capacity int) (*DaySetCache, error) {
	if capacity <= 0 {
		capacity = DefaultDaySetCapacity
	}
	entries, err := lru.New[string, daySetEntry](capacity)
	if err != nil {
		return nil, err
	}
	return &DaySetCache{entries: entries, invalidated: make(map[string]uint64), limit: capacity}, nil
}

// Get returns a copy of the cached day-set for userID.
func (c *DaySetCache) Get(userID string) ([]string, bool) {
	c.mu.Lock()
	entry, ok := c.entries.Get(userID)
	c.mu.Unlock()

	if !ok {
		observability.RecordDaySetLookup(false)
		return nil, false
	}
	observability.RecordDaySetLookup(true)
	return append([]string(nil), entry.days...), true
}

// Token returns the generation a caller must present to SetIfFresh after a remote fetch.
func (c *DaySetCache) Token() uint64 {
	return c.gen.Load()
}

// Set stores days for userID unconditionally.
func (c *DaySetCache) Set(userID string, days []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries.Add(userID, daySetEntry{days: append([]string(nil), days...), gen: c.gen.Load()})
}

// SetIfFresh stores days unless userID was invalidated after token was taken.
func (c *DaySetCache) SetIfFresh(userID string, token uint64, days []string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if token < c.forgotten {
		return false
	}
	if gen, ok := c.invalidated[userID]; ok && gen > token {
		return false
	}
	if existing, ok := c.entries.Peek(userID); ok && existing.gen > token {
		return false
	}
	c.entries.Add(userID, daySetEntry{days: append([]string(nil), days...), gen: token})
	return true
}

// Invalidate drops the cached day-set for userID. It never fails.
func (c *DaySetCache) Invalidate(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	gen := c.gen.Add(1)
	c.entries.Remove(userID)
	if len(c.invalidated) >= c.limit {
		c.invalidated = make(map[string]uint64)
		c.forgotten = gen
	}
	c.invalidated[userID] = gen
	return nil
}

// Len reports the number of cached users.
func (c *DaySetCache) Len() int {
	return c.entries.Len()
}
