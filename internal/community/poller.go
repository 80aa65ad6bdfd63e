// Package community keeps a periodically refreshed snapshot of the public completion feed.
package community

import (
	"context"
	"log"
	"sync"
	"time"

	"example.com/calmpulse/internal/apperror"
	"example.com/calmpulse/internal/domain"
	"example.com/calmpulse/internal/observability"
)

// DefaultInterval matches the refresh cadence of the community screen.
const DefaultInterval = 30 * time.Second

// Source produces a fresh community snapshot.
type Source interface {
	CommunitySnapshot(ctx context.Context) (domain.CommunitySnapshot, error)
}

// Option customises the Poller.
type Option func(*Poller)

// WithLogger overrides the poller logger.
func WithLogger(logger *log.Logger) Option {
	return func(p *Poller) {
		p.logger = logger
	}
}

// WithInterval overrides the refresh interval.
func WithInterval(interval time.Duration) Option {
	return func(p *Poller) {
		if interval > 0 {
			p.interval = interval
		}
	}
}

// WithTimeout bounds a single refresh.
func WithTimeout(timeout time.Duration) Option {
	return func(p *Poller) {
		if timeout > 0 {
			p.timeout = timeout
		}
	}
}

// Poller refreshes the community snapshot on a ticker. The latest successful snapshot is kept when a
// refresh fails; its Error field then carries the display message of the failure.
type Poller struct {
	source   Source
	interval time.Duration
	timeout  time.Duration
	logger   *log.Logger

	mu       sync.RWMutex
	latest   domain.CommunitySnapshot
	loaded   bool
	shutdown chan struct{}
}

// NewPoller constructs a Poller.
func NewPoller(source Source, opts ...Option) *Poller {
	p := &Poller{
		source:   source,
		interval: DefaultInterval,
		timeout:  10 * time.Second,
		logger:   log.New(log.Writer(), "[community] ", log.LstdFlags),
		shutdown: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run refreshes immediately and then on every tick until ctx is cancelled.
func (p *Poller) Run(ctx context.Context) {
	defer close(p.shutdown)

	p.RefreshNow(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.RefreshNow(ctx)
		}
	}
}

// Wait blocks until Run has returned.
func (p *Poller) Wait() {
	<-p.shutdown
}

// RefreshNow loads a snapshot synchronously and stores it. Last writer wins.
func (p *Poller) RefreshNow(ctx context.Context) domain.CommunitySnapshot {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	start := time.Now()
	snapshot, err := p.source.CommunitySnapshot(ctx)
	observability.RecordCommunityRefresh(time.Since(start), err)

	p.mu.Lock()
	defer p.mu.Unlock()

	if err != nil {
		p.logger.Printf("community refresh failed: %v", err)
		p.latest.Error = apperror.Display(err)
		return p.latest
	}
	p.latest = snapshot
	p.loaded = true
	return p.latest
}

// Current returns the stored snapshot, refreshing first when none was loaded yet or the stored one
// belongs to a day other than today.
func (p *Poller) Current(ctx context.Context, today string) domain.CommunitySnapshot {
	latest, loaded := p.Latest()
	if loaded && latest.Day == today {
		return latest
	}
	return p.RefreshNow(ctx)
}

// Latest returns the last stored snapshot and whether any refresh has succeeded.
func (p *Poller) Latest() (domain.CommunitySnapshot, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest, p.loaded
}
