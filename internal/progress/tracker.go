// Package progress serves a user's completed day-set with a cache-first read path.
package progress

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"example.com/calmpulse/internal/apperror"
	"example.com/calmpulse/internal/calendar"
	"example.com/calmpulse/internal/observability"
	"example.com/calmpulse/internal/streak"
)

// DaySource loads the completed day-keys of a user from the remote store.
type DaySource interface {
	CompletedDays(ctx context.Context, userID string, since time.Time) ([]string, error)
}

// DaySetStore is the per-user cache the tracker reads through.
type DaySetStore interface {
	Get(userID string) ([]string, bool)
	Token() uint64
	SetIfFresh(userID string, token uint64, days []string) bool
	Invalidate(ctx context.Context, userID string) error
}

// Snapshot is one view of a user's progress.
type Snapshot struct {
	UserID  string
	Days    []string
	Summary streak.Summary
	// Stale is set when the days came from the cache and a fresher read may follow.
	Stale bool
	// Error holds a display-ready message when the latest fetch failed.
	Error string
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger overrides the tracker logger.
func WithLogger(logger *log.Logger) Option {
	return func(t *Tracker) {
		t.logger = logger
	}
}

// WithFloor sets the earliest instant fetched from the store.
func WithFloor(floor time.Time) Option {
	return func(t *Tracker) {
		if !floor.IsZero() {
			t.floor = floor
		}
	}
}

// WithRefreshTimeout bounds background refreshes started by Peek.
func WithRefreshTimeout(timeout time.Duration) Option {
	return func(t *Tracker) {
		if timeout > 0 {
			t.refreshTimeout = timeout
		}
	}
}

// Tracker reads day-sets through a DaySetStore, refreshing from a DaySource.
type Tracker struct {
	source         DaySource
	cache          DaySetStore
	floor          time.Time
	refreshTimeout time.Duration
	logger         *log.Logger

	flights singleflight.Group
	wg      sync.WaitGroup
}

// NewTracker constructs a Tracker.
func NewTracker(source DaySource, cache DaySetStore, opts ...Option) *Tracker {
	t := &Tracker{
		source:         source,
		cache:          cache,
		floor:          calendar.EpochFloor,
		refreshTimeout: 10 * time.Second,
		logger:         log.New(log.Writer(), "[progress] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Cached returns the cached snapshot for userID, marked stale.
func (t *Tracker) Cached(userID string) (Snapshot, bool) {
	days, ok := t.cache.Get(userID)
	if !ok {
		return Snapshot{}, false
	}
	return newSnapshot(userID, days, true), true
}

// Refresh fetches the day-set from the store and stores it unless an invalidation raced the fetch.
// On failure the cache is left untouched and the cached snapshot (if any) is returned alongside the error.
func (t *Tracker) Refresh(ctx context.Context, userID string) (Snapshot, error) {
	token := t.cache.Token()
	// Callers holding different tokens must not share a fetch: one that started before an
	// invalidation would hand pre-write data to a caller that arrived after it.
	key := fmt.Sprintf("%s#%d", userID, token)

	v, err, _ := t.flights.Do(key, func() (interface{}, error) {
		days, err := t.source.CompletedDays(ctx, userID, t.floor)
		observability.RecordProgressFetch(err)
		if err != nil {
			return nil, err
		}
		days = streak.Normalize(days)
		if !t.cache.SetIfFresh(userID, token, days) {
			t.logger.Printf("discarded day-set fetched before invalidation (user=%s)", userID)
		}
		return days, nil
	})
	if err != nil {
		snapshot, _ := t.Cached(userID)
		snapshot.UserID = userID
		snapshot.Error = apperror.Display(err)
		return snapshot, fmt.Errorf("fetch completed days: %w", err)
	}

	return newSnapshot(userID, v.([]string), false), nil
}

// Load emits the cached snapshot immediately when there is one, then fetches and emits again.
// A failed fetch emits the cached snapshot (if any) with a display error and returns the error.
func (t *Tracker) Load(ctx context.Context, userID string, emit func(Snapshot)) error {
	cached, hadCache := t.Cached(userID)
	if hadCache {
		emit(cached)
	}

	snapshot, err := t.Refresh(ctx, userID)
	if err != nil {
		emit(snapshot)
		return err
	}
	emit(snapshot)
	return nil
}

// Peek returns the cached snapshot at once and refreshes it in the background. Without a cached
// entry it fetches synchronously.
func (t *Tracker) Peek(ctx context.Context, userID string) (Snapshot, error) {
	if cached, ok := t.Cached(userID); ok {
		t.refreshAsync(context.WithoutCancel(ctx), userID)
		return cached, nil
	}
	return t.Refresh(ctx, userID)
}

func (t *Tracker) refreshAsync(parent context.Context, userID string) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ctx, cancel := context.WithTimeout(parent, t.refreshTimeout)
		defer cancel()
		if _, err := t.Refresh(ctx, userID); err != nil {
			t.logger.Printf("background refresh failed (user=%s): %v", userID, err)
		}
	}()
}

// Invalidate drops the cached day-set for userID so the next read refetches.
func (t *Tracker) Invalidate(ctx context.Context, userID string) error {
	return t.cache.Invalidate(ctx, userID)
}

// Wait blocks until background refreshes have finished.
func (t *Tracker) Wait() {
	t.wg.Wait()
}

func newSnapshot(userID string, days []string, stale bool) Snapshot {
	return Snapshot{
		UserID:  userID,
		Days:    days,
		Summary: streak.Summarize(days),
		Stale:   stale,
	}
}
