// Package events defines the event payloads shared by the API, the dispatcher and the consumers.
package events

import "time"

// Event type names carried in the event_type header.
const (
	TypeSessionCompleted = "session.completed"
)

// SessionCompleted is emitted whenever a session is upserted as completed, partial or full.
type SessionCompleted struct {
	SessionID   string    `json:"session_id"`
	UserID      string    `json:"user_id"`
	Day         string    `json:"day"`
	Month       string    `json:"month"`
	DurationSec int       `json:"duration_sec"`
	EndedAt     time.Time `json:"ended_at"`
}
