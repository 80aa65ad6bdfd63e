package domain

import "time"

// SessionStatus is the lifecycle state of a daily session record.
type SessionStatus string

const (
	SessionStarted   SessionStatus = "started"
	SessionCompleted SessionStatus = "completed"
)

// DefaultTargetDuration is the length of the daily meditation in seconds.
const DefaultTargetDuration = 15 * 60

// AnonymousName is shown in the community feed for users without a nickname.
const AnonymousName = "Anonymous"

// Session is the per-user, per-day record stored in the sessions table.
type Session struct {
	ID          string
	UserID      string
	Status      SessionStatus
	StartedAt   *time.Time
	EndedAt     *time.Time
	DurationSec int
	Day         string
	Month       string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// SessionWrite is a merge-upsert of a session record. Nil fields leave stored values untouched.
type SessionWrite struct {
	ID          string
	UserID      string
	Status      SessionStatus
	Day         string
	Month       string
	DurationSec *int
	// MarkStarted stamps started_at with the store's clock.
	MarkStarted bool
	// MarkEnded stamps ended_at with the store's clock.
	MarkEnded bool
}

// CommunityCompletion is the public entry written once a session reaches the full target duration.
type CommunityCompletion struct {
	ID          string
	UserID      string
	Name        string
	Day         string
	Month       string
	DurationSec int
	EndedAt     time.Time
}

// Cursor models the session history pagination token.
type Cursor struct {
	EndedAt time.Time
	ID      string
}

// SessionID derives the deterministic per-user-per-day document id.
func SessionID(userID, day string) string {
	return userID + "_" + day
}
