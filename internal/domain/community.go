package domain

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"example.com/calmpulse/internal/calendar"
)

// CommunityCounts are the three public completion totals.
type CommunityCounts struct {
	Today int `json:"today"`
	Month int `json:"month"`
	Total int `json:"total"`
}

// CommunitySnapshot is one refresh of the public feed.
type CommunitySnapshot struct {
	Day         string                `json:"day"`
	Month       string                `json:"month"`
	Entries     []CommunityCompletion `json:"entries"`
	Counts      CommunityCounts       `json:"counts"`
	RefreshedAt time.Time             `json:"refreshed_at"`
	Error       string                `json:"error,omitempty"`
}

// CommunitySnapshot reads today's public entries and the three counts concurrently. Only entries
// with the full target duration are considered.
func (s *Service) CommunitySnapshot(ctx context.Context) (CommunitySnapshot, error) {
	day := s.clock.Today()
	month := calendar.MonthKey(day)
	snapshot := CommunitySnapshot{Day: day, Month: month}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		entries, err := s.feed.ListByDay(gctx, day, s.targetSec)
		if err != nil {
			return fmt.Errorf("list completions: %w", err)
		}
		snapshot.Entries = entries
		return nil
	})
	g.Go(func() error {
		n, err := s.feed.CountByDay(gctx, day, s.targetSec)
		if err != nil {
			return fmt.Errorf("count today: %w", err)
		}
		snapshot.Counts.Today = n
		return nil
	})
	g.Go(func() error {
		n, err := s.feed.CountByMonth(gctx, month, s.targetSec)
		if err != nil {
			return fmt.Errorf("count month: %w", err)
		}
		snapshot.Counts.Month = n
		return nil
	})
	g.Go(func() error {
		n, err := s.feed.CountAll(gctx, s.targetSec)
		if err != nil {
			return fmt.Errorf("count total: %w", err)
		}
		snapshot.Counts.Total = n
		return nil
	})
	if err := g.Wait(); err != nil {
		return CommunitySnapshot{}, err
	}

	if snapshot.Entries == nil {
		snapshot.Entries = []CommunityCompletion{}
	}
	snapshot.RefreshedAt = s.clock.Now().UTC()
	return snapshot, nil
}
