package api

import (
	"time"

	"example.com/calmpulse/internal/domain"
	"example.com/calmpulse/internal/media"
	"example.com/calmpulse/internal/progress"
	"example.com/calmpulse/internal/streak"
)

// CompleteSessionRequest is the payload for POST /v1/sessions/complete.
type CompleteSessionRequest struct {
	ElapsedSec int `json:"elapsed_sec"`
}

// SessionView exposes a session record.
type SessionView struct {
	ID          string     `json:"id"`
	Status      string     `json:"status"`
	Day         string     `json:"day,omitempty"`
	Month       string     `json:"month,omitempty"`
	DurationSec int        `json:"duration_sec"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	EndedAt     *time.Time `json:"ended_at,omitempty"`
}

// CompleteSessionResponse reports what a completion wrote.
type CompleteSessionResponse struct {
	Session    SessionView `json:"session"`
	Full       bool        `json:"full"`
	Published  bool        `json:"published"`
	PublicName string      `json:"public_name,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// ListSessionsResponse packages list results.
type ListSessionsResponse struct {
	Items      []SessionView `json:"items"`
	NextCursor string        `json:"next_cursor,omitempty"`
}

// ProgressResponse carries the streak summary and one calendar layout.
type ProgressResponse struct {
	streak.Summary
	Today string              `json:"today"`
	Week  *progress.WeekView  `json:"week,omitempty"`
	Month *progress.MonthView `json:"month,omitempty"`
	Stale bool                `json:"stale"`
	Error string              `json:"error,omitempty"`
}

// CompletionView is one public feed entry. User ids are not exposed.
type CompletionView struct {
	Name    string    `json:"name"`
	EndedAt time.Time `json:"ended_at"`
}

// CommunityResponse is the public feed for today.
type CommunityResponse struct {
	Day         string                 `json:"day"`
	Counts      domain.CommunityCounts `json:"counts"`
	Entries     []CompletionView       `json:"entries"`
	Viewer      string                 `json:"viewer,omitempty"`
	RefreshedAt time.Time              `json:"refreshed_at"`
	Error       string                 `json:"error,omitempty"`
}

// UpdateProfileRequest is the payload for PUT /v1/profile. Omitted fields are left as they are.
type UpdateProfileRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Nickname  *string `json:"nickname"`
}

// ProfileView exposes the editable profile.
type ProfileView struct {
	FirstName  string     `json:"first_name"`
	LastName   string     `json:"last_name"`
	Nickname   *string    `json:"nickname"`
	PublicName string     `json:"public_name"`
	UpdatedAt  *time.Time `json:"updated_at,omitempty"`
}

// StoriesResponse lists the story slots.
type StoriesResponse struct {
	Items []media.Story `json:"items"`
}

func toSessionView(s domain.Session) SessionView {
	return SessionView{
		ID:          s.ID,
		Status:      string(s.Status),
		Day:         s.Day,
		Month:       s.Month,
		DurationSec: s.DurationSec,
		StartedAt:   s.StartedAt,
		EndedAt:     s.EndedAt,
	}
}

func toProfileView(p domain.Profile) ProfileView {
	view := ProfileView{
		FirstName:  p.FirstName,
		LastName:   p.LastName,
		Nickname:   p.Nickname,
		PublicName: p.PublicName(),
	}
	if !p.UpdatedAt.IsZero() {
		updated := p.UpdatedAt
		view.UpdatedAt = &updated
	}
	return view
}
