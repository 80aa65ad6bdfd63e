package domain

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"example.com/calmpulse/internal/calendar"
)

func fixedClock(t *testing.T, now time.Time) *calendar.Clock {
	t.Helper()
	clock, err := calendar.LoadClock(calendar.DefaultZone)
	require.NoError(t, err)
	return clock.WithNow(func() time.Time { return now })
}

func newTestService(t *testing.T, now time.Time) (*Service, *memorySessions, *memoryFeed, *memoryProfiles, *countingInvalidator) {
	t.Helper()
	sessions := &memorySessions{rows: map[string]Session{}, now: now}
	feed := &memoryFeed{rows: map[string]CommunityCompletion{}}
	profiles := &memoryProfiles{rows: map[string]Profile{}}
	inv := &countingInvalidator{}
	svc := NewService(sessions, feed, profiles, fixedClock(t, now), WithInvalidator(inv))
	return svc, sessions, feed, profiles, inv
}

func TestCompleteSessionFullWritesBothRecords(t *testing.T) {
	now := time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)
	svc, sessions, feed, profiles, inv := newTestService(t, now)
	nick := "  Calm Owl "
	profiles.rows["u1"] = Profile{UserID: "u1", Nickname: &nick}

	result, err := svc.CompleteSession(context.Background(), CompleteSessionInput{UserID: "u1", ElapsedSec: 900})
	require.NoError(t, err)
	require.True(t, result.Full)
	require.True(t, result.Published)
	require.Equal(t, "Calm Owl", result.PublicName)

	stored := sessions.rows["u1_2025-03-10"]
	require.Equal(t, SessionCompleted, stored.Status)
	require.Equal(t, 900, stored.DurationSec)
	require.Equal(t, "2025-03", stored.Month)

	entry, ok := feed.rows["u1_2025-03-10"]
	require.True(t, ok)
	require.Equal(t, "Calm Owl", entry.Name)
	require.Equal(t, 900, entry.DurationSec)
	require.Equal(t, []string{"u1"}, inv.calls())
}

func TestCompleteSessionPartialIsNotAStreakDay(t *testing.T) {
	now := time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)
	svc, sessions, feed, _, inv := newTestService(t, now)

	result, err := svc.CompleteSession(context.Background(), CompleteSessionInput{UserID: "u1", ElapsedSec: 1})
	require.NoError(t, err)
	require.False(t, result.Full)
	require.False(t, result.Published)

	stored := sessions.rows["u1_2025-03-10"]
	require.Equal(t, SessionStarted, stored.Status)
	require.Equal(t, 1, stored.DurationSec)
	require.Nil(t, stored.EndedAt)
	require.Empty(t, feed.rows)
	require.Empty(t, inv.calls(), "day-set is unchanged")

	days, err := svc.CompletedDays(context.Background(), "u1", calendar.EpochFloor)
	require.NoError(t, err)
	require.Empty(t, days)
}

func TestCompleteSessionPartialAfterFullKeepsDuration(t *testing.T) {
	now := time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)
	svc, sessions, _, _, _ := newTestService(t, now)

	_, err := svc.CompleteSession(context.Background(), CompleteSessionInput{UserID: "u1", ElapsedSec: 900})
	require.NoError(t, err)
	_, err = svc.CompleteSession(context.Background(), CompleteSessionInput{UserID: "u1", ElapsedSec: 5})
	require.NoError(t, err)

	stored := sessions.rows["u1_2025-03-10"]
	require.Equal(t, SessionCompleted, stored.Status)
	require.Equal(t, 900, stored.DurationSec)

	days, err := svc.CompletedDays(context.Background(), "u1", calendar.EpochFloor)
	require.NoError(t, err)
	require.Equal(t, []string{"2025-03-10"}, days)
}

func TestCompleteSessionClampsElapsedToTarget(t *testing.T) {
	now := time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)
	svc, sessions, feed, _, _ := newTestService(t, now)

	_, err := svc.CompleteSession(context.Background(), CompleteSessionInput{UserID: "u1", ElapsedSec: 4000})
	require.NoError(t, err)
	require.Equal(t, DefaultTargetDuration, sessions.rows["u1_2025-03-10"].DurationSec)
	require.Equal(t, AnonymousName, feed.rows["u1_2025-03-10"].Name)
}

func TestCompleteSessionUsesParisDay(t *testing.T) {
	// 23:30 UTC on the 10th is already the 11th in Paris.
	now := time.Date(2025, time.March, 10, 23, 30, 0, 0, time.UTC)
	svc, sessions, _, _, _ := newTestService(t, now)

	_, err := svc.CompleteSession(context.Background(), CompleteSessionInput{UserID: "u1", ElapsedSec: 900})
	require.NoError(t, err)
	_, ok := sessions.rows["u1_2025-03-11"]
	require.True(t, ok)
}

func TestCompleteSessionInvalidatesEvenWhenFeedWriteFails(t *testing.T) {
	now := time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)
	svc, sessions, feed, _, inv := newTestService(t, now)
	feed.err = errors.New("feed offline")

	result, err := svc.CompleteSession(context.Background(), CompleteSessionInput{UserID: "u1", ElapsedSec: 900})
	require.Error(t, err)
	require.Contains(t, err.Error(), "feed offline")
	require.NotNil(t, result)
	require.False(t, result.Published)
	require.Equal(t, SessionCompleted, sessions.rows["u1_2025-03-10"].Status)
	require.Equal(t, []string{"u1"}, inv.calls())
}

func TestCompleteSessionLeavesCacheAloneWhenSessionWriteFails(t *testing.T) {
	now := time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)
	svc, sessions, feed, _, inv := newTestService(t, now)
	sessions.err = errors.New("permission denied")

	_, err := svc.CompleteSession(context.Background(), CompleteSessionInput{UserID: "u1", ElapsedSec: 900})
	require.Error(t, err)
	require.Empty(t, feed.rows)
	require.Empty(t, inv.calls())
}

func TestCompleteSessionRejectsInvalidInput(t *testing.T) {
	now := time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)
	svc, _, _, _, _ := newTestService(t, now)

	_, err := svc.CompleteSession(context.Background(), CompleteSessionInput{UserID: " ", ElapsedSec: 900})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.CompleteSession(context.Background(), CompleteSessionInput{UserID: "u1", ElapsedSec: 0})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestStartSessionNeverRegressesCompletedDay(t *testing.T) {
	now := time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)
	svc, sessions, _, _, _ := newTestService(t, now)

	_, err := svc.CompleteSession(context.Background(), CompleteSessionInput{UserID: "u1", ElapsedSec: 900})
	require.NoError(t, err)

	session, err := svc.StartSession(context.Background(), "u1")
	require.NoError(t, err)
	require.Equal(t, SessionCompleted, session.Status)
	require.Equal(t, SessionCompleted, sessions.rows["u1_2025-03-10"].Status)
}

func TestCompletedDaysRecoversMissingDay(t *testing.T) {
	now := time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)
	svc, sessions, _, _, _ := newTestService(t, now)
	ended := time.Date(2025, time.March, 8, 23, 15, 0, 0, time.UTC)
	sessions.rows["a"] = Session{ID: "a", UserID: "u1", Status: SessionCompleted, Day: "2025-03-07"}
	sessions.rows["b"] = Session{ID: "b", UserID: "u1", Status: SessionCompleted, EndedAt: &ended}
	sessions.rows["c"] = Session{ID: "c", UserID: "u1", Status: SessionCompleted}
	sessions.rows["d"] = Session{ID: "d", UserID: "u2", Status: SessionCompleted, Day: "2025-03-07"}

	days, err := svc.CompletedDays(context.Background(), "u1", calendar.EpochFloor)
	require.NoError(t, err)
	require.ElementsMatch(t, []string{"2025-03-07", "2025-03-09"}, days)
}

func TestCommunitySnapshotCombinesListAndCounts(t *testing.T) {
	now := time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)
	svc, _, feed, _, _ := newTestService(t, now)
	feed.rows["a"] = CommunityCompletion{ID: "a", Name: "A", Day: "2025-03-10", Month: "2025-03", DurationSec: 900}
	feed.rows["b"] = CommunityCompletion{ID: "b", Name: "B", Day: "2025-03-02", Month: "2025-03", DurationSec: 900}
	feed.rows["c"] = CommunityCompletion{ID: "c", Name: "C", Day: "2025-02-27", Month: "2025-02", DurationSec: 900}
	feed.rows["d"] = CommunityCompletion{ID: "d", Name: "D", Day: "2025-03-10", Month: "2025-03", DurationSec: 600}

	snapshot, err := svc.CommunitySnapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, "2025-03-10", snapshot.Day)
	require.Len(t, snapshot.Entries, 1)
	require.Equal(t, "A", snapshot.Entries[0].Name)
	require.Equal(t, CommunityCounts{Today: 1, Month: 2, Total: 3}, snapshot.Counts)
}

func TestCommunitySnapshotFailsWhenAnyReadFails(t *testing.T) {
	now := time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)
	svc, _, feed, _, _ := newTestService(t, now)
	feed.countErr = errors.New("timeout")

	_, err := svc.CommunitySnapshot(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "timeout")
}

func TestUpdateProfileSanitisesNickname(t *testing.T) {
	now := time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)
	svc, _, _, profiles, _ := newTestService(t, now)
	long := "  " + strings.Repeat("x", 80) + "  "

	profile, err := svc.UpdateProfile(context.Background(), ProfileWrite{UserID: "u1", Nickname: &long})
	require.NoError(t, err)
	require.NotNil(t, profile.Nickname)
	require.Len(t, *profile.Nickname, MaxNicknameRunes)

	empty := "   "
	profile, err = svc.UpdateProfile(context.Background(), ProfileWrite{UserID: "u1", Nickname: &empty})
	require.NoError(t, err)
	require.Nil(t, profile.Nickname)
	stored := profiles.rows["u1"]
	require.Equal(t, AnonymousName, stored.PublicName())
}

func TestProfileDefaultsToEmpty(t *testing.T) {
	now := time.Date(2025, time.March, 10, 8, 0, 0, 0, time.UTC)
	svc, _, _, _, _ := newTestService(t, now)

	profile, err := svc.Profile(context.Background(), "u9")
	require.NoError(t, err)
	require.Equal(t, "u9", profile.UserID)
	require.Nil(t, profile.Nickname)
}

type memorySessions struct {
	mu   sync.Mutex
	rows map[string]Session
	now  time.Time
	err  error
}

func (m *memorySessions) UpsertSession(_ context.Context, w SessionWrite) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	row, ok := m.rows[w.ID]
	if !ok {
		row = Session{ID: w.ID, UserID: w.UserID, CreatedAt: m.now}
	}
	wasCompleted := row.Status == SessionCompleted
	if !wasCompleted {
		row.Status = w.Status
	}
	row.Day, row.Month = w.Day, w.Month
	if w.DurationSec != nil && (!wasCompleted || *w.DurationSec > row.DurationSec) {
		row.DurationSec = *w.DurationSec
	}
	now := m.now
	if w.MarkStarted && row.StartedAt == nil {
		row.StartedAt = &now
	}
	if w.MarkEnded {
		row.EndedAt = &now
	}
	row.UpdatedAt = now
	m.rows[w.ID] = row
	return &row, nil
}

func (m *memorySessions) CompletedSessions(_ context.Context, userID string, _ time.Time) ([]Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Session
	for _, row := range m.rows {
		if row.UserID == userID && row.Status == SessionCompleted {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *memorySessions) ListSessions(_ context.Context, userID string, _ *Cursor, limit int) ([]Session, *Cursor, error) {
	rows, _ := m.CompletedSessions(context.Background(), userID, time.Time{})
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil, nil
}

type memoryFeed struct {
	mu       sync.Mutex
	rows     map[string]CommunityCompletion
	err      error
	countErr error
}

func (m *memoryFeed) UpsertCompletion(_ context.Context, c CommunityCompletion) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.rows[c.ID] = c
	return nil
}

func (m *memoryFeed) count(match func(CommunityCompletion) bool) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.countErr != nil {
		return 0, m.countErr
	}
	n := 0
	for _, row := range m.rows {
		if match(row) {
			n++
		}
	}
	return n, nil
}

func (m *memoryFeed) ListByDay(_ context.Context, day string, durationSec int) ([]CommunityCompletion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []CommunityCompletion
	for _, row := range m.rows {
		if row.Day == day && row.DurationSec == durationSec {
			out = append(out, row)
		}
	}
	return out, nil
}

func (m *memoryFeed) CountByDay(_ context.Context, day string, durationSec int) (int, error) {
	return m.count(func(c CommunityCompletion) bool { return c.Day == day && c.DurationSec == durationSec })
}

func (m *memoryFeed) CountByMonth(_ context.Context, month string, durationSec int) (int, error) {
	return m.count(func(c CommunityCompletion) bool { return c.Month == month && c.DurationSec == durationSec })
}

func (m *memoryFeed) CountAll(_ context.Context, durationSec int) (int, error) {
	return m.count(func(c CommunityCompletion) bool { return c.DurationSec == durationSec })
}

type memoryProfiles struct {
	mu   sync.Mutex
	rows map[string]Profile
}

func (m *memoryProfiles) GetProfile(_ context.Context, userID string) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.rows[userID]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (m *memoryProfiles) UpsertProfile(_ context.Context, w ProfileWrite) (*Profile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row := m.rows[w.UserID]
	row.UserID = w.UserID
	if w.FirstName != nil {
		row.FirstName = *w.FirstName
	}
	if w.LastName != nil {
		row.LastName = *w.LastName
	}
	if w.Nickname != nil {
		if *w.Nickname == "" {
			row.Nickname = nil
		} else {
			nick := *w.Nickname
			row.Nickname = &nick
		}
	}
	m.rows[w.UserID] = row
	return &row, nil
}

type countingInvalidator struct {
	mu    sync.Mutex
	users []string
}

func (c *countingInvalidator) Invalidate(_ context.Context, userID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.users = append(c.users, userID)
	return nil
}

func (c *countingInvalidator) calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.users...)
}
