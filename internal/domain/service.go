// Package domain defines the business logic for session logging, progress and the community feed.
package domain

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"example.com/calmpulse/internal/calendar"
	"example.com/calmpulse/internal/observability"
)

var (
	// ErrInvalidInput is returned when a request is missing required fields.
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound is returned when a record cannot be located.
	ErrNotFound = errors.New("not found")
)

// SessionRepository persists per-day session records.
type SessionRepository interface {
	UpsertSession(ctx context.Context, write SessionWrite) (*Session, error)
	CompletedSessions(ctx context.Context, userID string, since time.Time) ([]Session, error)
	ListSessions(ctx context.Context, userID string, cursor *Cursor, limit int) ([]Session, *Cursor, error)
}

// CompletionFeed persists and queries public completion entries.
type CompletionFeed interface {
	UpsertCompletion(ctx context.Context, completion CommunityCompletion) error
	ListByDay(ctx context.Context, day string, durationSec int) ([]CommunityCompletion, error)
	CountByDay(ctx context.Context, day string, durationSec int) (int, error)
	CountByMonth(ctx context.Context, month string, durationSec int) (int, error)
	CountAll(ctx context.Context, durationSec int) (int, error)
}

// ProfileRepository persists editable account fields.
type ProfileRepository interface {
	GetProfile(ctx context.Context, userID string) (*Profile, error)
	UpsertProfile(ctx context.Context, write ProfileWrite) (*Profile, error)
}

// Invalidator drops cached progress for a user.
type Invalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

type noopInvalidator struct{}

func (noopInvalidator) Invalidate(context.Context, string) error { return nil }

// ServiceOption configures optional behaviour for the Service.
type ServiceOption func(*Service)

// WithTargetDuration overrides the full-session length in seconds.
func WithTargetDuration(seconds int) ServiceOption {
	return func(s *Service) {
		if seconds > 0 {
			s.targetSec = seconds
		}
	}
}

// WithFloor overrides the earliest instant progress is read from.
func WithFloor(floor time.Time) ServiceOption {
	return func(s *Service) {
		if !floor.IsZero() {
			s.floor = floor
		}
	}
}

// WithInvalidator sets the cache layer notified after every completion.
func WithInvalidator(inv Invalidator) ServiceOption {
	return func(s *Service) {
		if inv != nil {
			s.invalidator = inv
		}
	}
}

// WithLogger overrides the logger used for non-fatal failures.
func WithLogger(logger *log.Logger) ServiceOption {
	return func(s *Service) {
		s.logger = logger
	}
}

// Service orchestrates session, progress and community workflows.
type Service struct {
	sessions    SessionRepository
	feed        CompletionFeed
	profiles    ProfileRepository
	clock       *calendar.Clock
	invalidator Invalidator
	logger      *log.Logger
	targetSec   int
	floor       time.Time
}

// NewService constructs a Service.
func NewService(sessions SessionRepository, feed CompletionFeed, profiles ProfileRepository, clock *calendar.Clock, opts ...ServiceOption) *Service {
	s := &Service{
		sessions:    sessions,
		feed:        feed,
		profiles:    profiles,
		clock:       clock,
		invalidator: noopInvalidator{},
		logger:      log.New(log.Writer(), "[domain] ", log.LstdFlags),
		targetSec:   DefaultTargetDuration,
		floor:       calendar.EpochFloor,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// TargetDuration returns the full-session length in seconds.
func (s *Service) TargetDuration() int {
	return s.targetSec
}

// Clock exposes the civil clock used for day-keys.
func (s *Service) Clock() *calendar.Clock {
	return s.clock
}

// Floor returns the earliest instant progress is read from.
func (s *Service) Floor() time.Time {
	return s.floor
}

// StartSession records that userID started today's session.
func (s *Service) StartSession(ctx context.Context, userID string) (*Session, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}

	day := s.clock.Today()
	session, err := s.sessions.UpsertSession(ctx, SessionWrite{
		ID:          SessionID(userID, day),
		UserID:      userID,
		Status:      SessionStarted,
		Day:         day,
		Month:       calendar.MonthKey(day),
		MarkStarted: true,
	})
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}

	observability.RecordSessionStarted()
	return session, nil
}

// CompleteSessionInput captures a completion reported by the player.
type CompleteSessionInput struct {
	UserID     string
	ElapsedSec int
}

// CompletionResult describes what a completion wrote.
type CompletionResult struct {
	Session    *Session
	Full       bool
	Published  bool
	PublicName string
}

// CompleteSession records the player's elapsed time for today's session. Only a session that reaches the
// target duration is marked completed: it then counts as a streak day, gets a public completion entry and
// the user's cached progress is invalidated before returning. A shorter session stays started with its
// partial duration and touches nothing else.
//
// The two upserts of a full completion are independent: if the public write fails the session stays
// completed and the returned error says so. Both are idempotent and may be retried by the caller.
func (s *Service) CompleteSession(ctx context.Context, input CompleteSessionInput) (*CompletionResult, error) {
	if strings.TrimSpace(input.UserID) == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if input.ElapsedSec <= 0 {
		return nil, fmt.Errorf("%w: elapsed_sec must be > 0", ErrInvalidInput)
	}

	elapsed := min(input.ElapsedSec, s.targetSec)
	full := elapsed >= s.targetSec
	day := s.clock.Today()
	month := calendar.MonthKey(day)

	write := SessionWrite{
		ID:          SessionID(input.UserID, day),
		UserID:      input.UserID,
		Status:      SessionStarted,
		Day:         day,
		Month:       month,
		DurationSec: &elapsed,
	}
	if full {
		write.Status = SessionCompleted
		write.MarkEnded = true
	}

	session, err := s.sessions.UpsertSession(ctx, write)
	if err != nil {
		return nil, fmt.Errorf("record completion: %w", err)
	}

	result := &CompletionResult{Session: session, Full: full}
	if !full {
		observability.RecordSessionCompleted(false, time.Time{})
		return result, nil
	}

	result.PublicName = s.publicName(ctx, input.UserID)
	endedAt := time.Now().UTC()
	if session.EndedAt != nil {
		endedAt = *session.EndedAt
	}
	publishErr := s.feed.UpsertCompletion(ctx, CommunityCompletion{
		ID:          session.ID,
		UserID:      input.UserID,
		Name:        result.PublicName,
		Day:         day,
		Month:       month,
		DurationSec: elapsed,
		EndedAt:     endedAt,
	})
	result.Published = publishErr == nil

	if err := s.invalidator.Invalidate(ctx, input.UserID); err != nil {
		s.logger.Printf("progress invalidation incomplete (user=%s): %v", input.UserID, err)
	}
	observability.RecordSessionCompleted(true, endedAt)

	if publishErr != nil {
		return result, fmt.Errorf("publish completion: %w", publishErr)
	}
	return result, nil
}

func (s *Service) publicName(ctx context.Context, userID string) string {
	if s.profiles == nil {
		return AnonymousName
	}
	profile, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		s.logger.Printf("profile lookup failed, publishing as %s (user=%s): %v", AnonymousName, userID, err)
		return AnonymousName
	}
	return profile.PublicName()
}

// CompletedDays returns the day-keys of userID's completed sessions since the given instant.
// Rows without a usable day fall back to their ended_at timestamp; rows with neither are dropped.
func (s *Service) CompletedDays(ctx context.Context, userID string, since time.Time) ([]string, error) {
	sessions, err := s.sessions.CompletedSessions(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("load completed sessions: %w", err)
	}

	days := make([]string, 0, len(sessions))
	for _, session := range sessions {
		if day, ok := s.dayOf(session); ok {
			days = append(days, day)
		}
	}
	return days, nil
}

func (s *Service) dayOf(session Session) (string, bool) {
	if _, err := calendar.ParseDayKey(session.Day); err == nil {
		return session.Day, true
	}
	if session.EndedAt != nil && !session.EndedAt.IsZero() {
		return s.clock.DayKey(*session.EndedAt), true
	}
	return "", false
}

// ListSessions pages through userID's session history, newest first.
func (s *Service) ListSessions(ctx context.Context, userID string, cursor *Cursor, limit int) ([]Session, *Cursor, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	return s.sessions.ListSessions(ctx, userID, cursor, limit)
}

// Profile returns userID's profile, or an empty one when none was saved yet.
func (s *Service) Profile(ctx context.Context, userID string) (*Profile, error) {
	profile, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}
	if profile == nil {
		return &Profile{UserID: userID}, nil
	}
	return profile, nil
}

// UpdateProfile merge-upserts the editable profile fields.
func (s *Service) UpdateProfile(ctx context.Context, write ProfileWrite) (*Profile, error) {
	if strings.TrimSpace(write.UserID) == "" {
		return nil, fmt.Errorf("%w: user id is required", ErrInvalidInput)
	}
	if write.Nickname != nil {
		nick := SanitizeNickname(*write.Nickname)
		write.Nickname = &nick
	}
	if write.FirstName != nil {
		first := strings.TrimSpace(*write.FirstName)
		write.FirstName = &first
	}
	if write.LastName != nil {
		last := strings.TrimSpace(*write.LastName)
		write.LastName = &last
	}

	profile, err := s.profiles.UpsertProfile(ctx, write)
	if err != nil {
		return nil, fmt.Errorf("save profile: %w", err)
	}
	return profile, nil
}
