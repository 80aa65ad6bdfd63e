package media

import (
	"context"
	"errors"
	"fmt"
	"log"

	"golang.org/x/sync/errgroup"

	"example.com/calmpulse/internal/calendar"
)

const fallbackMeditation = "meditations/001"

// StoryIDs lists the bedtime stories offered by the app.
var StoryIDs = []int{1, 2, 3, 4}

// Asset is a resolved audio file.
type Asset struct {
	PublicID string `json:"public_id"`
	URL      string `json:"url"`
}

// Story is a resolved story slot; URL is empty when the file is missing.
type Story struct {
	ID  int    `json:"id"`
	URL string `json:"url,omitempty"`
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithLookback sets how many previous days are tried for a dated meditation.
func WithLookback(days int) ResolverOption {
	return func(r *Resolver) {
		if days >= 0 {
			r.lookback = days
		}
	}
}

// WithResolverLogger overrides the resolver logger.
func WithResolverLogger(logger *log.Logger) ResolverOption {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// Resolver picks the day's audio assets.
type Resolver struct {
	locator  AssetLocator
	clock    *calendar.Clock
	lookback int
	logger   *log.Logger
}

// NewResolver constructs a Resolver.
func NewResolver(locator AssetLocator, clock *calendar.Clock, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		locator:  locator,
		clock:    clock,
		lookback: 0,
		logger:   log.New(log.Writer(), "[media] ", log.LstdFlags),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// MeditationCandidates lists the public ids tried, in order: the dated asset for today and the
// lookback days before it, the weekday rotation slot, then the first slot.
func (r *Resolver) MeditationCandidates() []string {
	now := r.clock.Now()
	today := r.clock.CivilDate(now)

	candidates := make([]string, 0, r.lookback+3)
	for i := 0; i <= r.lookback; i++ {
		candidates = append(candidates, "meditations/"+today.AddDate(0, 0, -i).Format(calendar.DayLayout))
	}
	weekday := fmt.Sprintf("meditations/%03d", r.clock.Weekday(now)+1)
	candidates = append(candidates, weekday)
	if weekday != fallbackMeditation {
		candidates = append(candidates, fallbackMeditation)
	}
	return candidates
}

// MeditationURL resolves today's meditation. Missing assets move on to the next candidate; any other
// lookup failure stops the chain.
func (r *Resolver) MeditationURL(ctx context.Context) (Asset, error) {
	for _, publicID := range r.MeditationCandidates() {
		url, err := r.locator.Locate(ctx, publicID)
		if err == nil {
			return Asset{PublicID: publicID, URL: url}, nil
		}
		if !errors.Is(err, ErrAssetNotFound) {
			return Asset{}, err
		}
		r.logger.Printf("meditation audio missing (%s), trying next", publicID)
	}
	return Asset{}, fmt.Errorf("%w: no meditation audio available", ErrAssetNotFound)
}

// StoryURL resolves one story by id.
func (r *Resolver) StoryURL(ctx context.Context, id int) (Asset, error) {
	publicID := fmt.Sprintf("stories/story%d", id)
	url, err := r.locator.Locate(ctx, publicID)
	if err != nil {
		return Asset{}, err
	}
	return Asset{PublicID: publicID, URL: url}, nil
}

// StoryURLs resolves every story concurrently. Missing stories keep an empty URL.
func (r *Resolver) StoryURLs(ctx context.Context) ([]Story, error) {
	stories := make([]Story, len(StoryIDs))

	g, gctx := errgroup.WithContext(ctx)
	for i, id := range StoryIDs {
		stories[i].ID = id
		g.Go(func() error {
			asset, err := r.StoryURL(gctx, id)
			if errors.Is(err, ErrAssetNotFound) {
				r.logger.Printf("story audio missing (%d)", id)
				return nil
			}
			if err != nil {
				return err
			}
			stories[i].URL = asset.URL
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stories, nil
}
