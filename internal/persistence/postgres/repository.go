package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"example.com/calmpulse/internal/domain"
	platformevents "example.com/calmpulse/internal/platform/events"
)

// DefaultFeedLimit caps the number of public entries listed for one day.
const DefaultFeedLimit = 200

// Repository provides Postgres-backed persistence for sessions, the public feed, profiles and outbox events.
type Repository struct {
	pool      *pgxpool.Pool
	topic     string
	feedLimit int
}

// Option configures a Repository.
type Option func(*Repository)

// WithTopic overrides the Kafka topic recorded on outbox rows.
func WithTopic(topic string) Option {
	return func(r *Repository) {
		if topic != "" {
			r.topic = topic
		}
	}
}

// NewRepository constructs a Repository.
func NewRepository(pool *pgxpool.Pool, opts ...Option) *Repository {
	r := &Repository{pool: pool, topic: "session_events", feedLimit: DefaultFeedLimit}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

const sessionColumns = `id, user_id, status, started_at, ended_at, duration_sec, day, month, created_at, updated_at`

// UpsertSession merge-writes the session row. Columns the write leaves empty keep their stored value, a
// completed row never goes back to started and its duration never decreases. A write that completes the session also records a
// session.completed outbox event in the same transaction.
func (r *Repository) UpsertSession(ctx context.Context, write domain.SessionWrite) (session *domain.Session, err error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			tx.Rollback(ctx)
		}
	}()

	const stmt = `INSERT INTO sessions (id, user_id, status, started_at, ended_at, duration_sec, day, month, created_at, updated_at)
        VALUES ($1, $2, $3,
                CASE WHEN $4::boolean THEN NOW() END,
                CASE WHEN $5::boolean THEN NOW() END,
                $6::integer, $7::text, $8::text, NOW(), NOW())
        ON CONFLICT (id) DO UPDATE SET
            status = CASE WHEN sessions.status = 'completed' THEN sessions.status ELSE EXCLUDED.status END,
            started_at = COALESCE(EXCLUDED.started_at, sessions.started_at),
            ended_at = COALESCE(EXCLUDED.ended_at, sessions.ended_at),
            duration_sec = CASE WHEN sessions.status = 'completed'
                THEN GREATEST(EXCLUDED.duration_sec, sessions.duration_sec)
                ELSE COALESCE(EXCLUDED.duration_sec, sessions.duration_sec) END,
            day = COALESCE(EXCLUDED.day, sessions.day),
            month = COALESCE(EXCLUDED.month, sessions.month),
            updated_at = NOW()
        RETURNING ` + sessionColumns

	row := tx.QueryRow(ctx, stmt,
		write.ID,
		write.UserID,
		string(write.Status),
		write.MarkStarted,
		write.MarkEnded,
		write.DurationSec,
		nullIfEmpty(write.Day),
		nullIfEmpty(write.Month),
	)
	session, err = scanSession(row)
	if err != nil {
		return nil, err
	}

	if write.Status == domain.SessionCompleted && write.MarkEnded {
		if err = r.insertSessionCompleted(ctx, tx, *session); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(ctx); err != nil {
		return nil, err
	}
	return session, nil
}

func (r *Repository) insertSessionCompleted(ctx context.Context, tx pgx.Tx, session domain.Session) error {
	var endedAt time.Time
	if session.EndedAt != nil {
		endedAt = *session.EndedAt
	}
	body, err := json.Marshal(platformevents.SessionCompleted{
		SessionID:   session.ID,
		UserID:      session.UserID,
		Day:         session.Day,
		Month:       session.Month,
		DurationSec: session.DurationSec,
		EndedAt:     endedAt.UTC(),
	})
	if err != nil {
		return err
	}

	eventType := platformevents.TypeSessionCompleted
	dedupeKey := fmt.Sprintf("%s:%s:%d", session.ID, eventType, endedAt.UnixNano())

	const stmt = `INSERT INTO outbox (user_id, aggregate_type, aggregate_id, event_type, topic, schema_subject, partition_key, payload, dedupe_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
        ON CONFLICT (dedupe_key) DO NOTHING`

	_, err = tx.Exec(ctx, stmt,
		session.UserID,
		"session",
		session.ID,
		eventType,
		r.topic,
		r.topic+"-value",
		session.UserID,
		body,
		dedupeKey,
	)
	return err
}

// CompletedSessions returns the user's completed sessions that ended at or after since.
func (r *Repository) CompletedSessions(ctx context.Context, userID string, since time.Time) ([]domain.Session, error) {
	query := `SELECT ` + sessionColumns + `
        FROM sessions
        WHERE user_id = $1 AND status = 'completed' AND ended_at >= $2
        ORDER BY ended_at`

	rows, err := r.pool.Query(ctx, query, userID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []domain.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, *session)
	}
	return results, rows.Err()
}

// ListSessions returns completed sessions for a user, newest first.
func (r *Repository) ListSessions(ctx context.Context, userID string, cursor *domain.Cursor, limit int) ([]domain.Session, *domain.Cursor, error) {
	args := []interface{}{userID, limit}
	query := `SELECT ` + sessionColumns + `
        FROM sessions WHERE user_id = $1 AND status = 'completed' AND ended_at IS NOT NULL`

	if cursor != nil {
		query += ` AND (ended_at, id) < ($3, $4)`
		args = append(args, cursor.EndedAt, cursor.ID)
	}

	query += ` ORDER BY ended_at DESC, id DESC LIMIT $2`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	results := make([]domain.Session, 0, limit)
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, nil, err
		}
		results = append(results, *session)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	var nextCursor *domain.Cursor
	if len(results) == limit {
		last := results[len(results)-1]
		nextCursor = &domain.Cursor{EndedAt: *last.EndedAt, ID: last.ID}
	}
	return results, nextCursor, nil
}

// UpsertCompletion merge-writes the public completion entry.
func (r *Repository) UpsertCompletion(ctx context.Context, c domain.CommunityCompletion) error {
	const stmt = `INSERT INTO community_completions (id, user_id, name, day, month, duration_sec, ended_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        ON CONFLICT (id) DO UPDATE SET
            name = EXCLUDED.name,
            day = EXCLUDED.day,
            month = EXCLUDED.month,
            duration_sec = EXCLUDED.duration_sec,
            ended_at = EXCLUDED.ended_at,
            updated_at = NOW()`

	_, err := r.pool.Exec(ctx, stmt, c.ID, c.UserID, c.Name, c.Day, c.Month, c.DurationSec, c.EndedAt)
	return err
}

// ListByDay returns the public entries of one day with the given duration, latest first.
func (r *Repository) ListByDay(ctx context.Context, day string, durationSec int) ([]domain.CommunityCompletion, error) {
	const query = `SELECT id, user_id, name, day, month, duration_sec, ended_at
        FROM community_completions
        WHERE day = $1 AND duration_sec = $2
        ORDER BY ended_at DESC
        LIMIT $3`

	rows, err := r.pool.Query(ctx, query, day, durationSec, r.feedLimit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]domain.CommunityCompletion, 0)
	for rows.Next() {
		var c domain.CommunityCompletion
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.Day, &c.Month, &c.DurationSec, &c.EndedAt); err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

// CountByDay counts the public entries of one day.
func (r *Repository) CountByDay(ctx context.Context, day string, durationSec int) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM community_completions WHERE day = $1 AND duration_sec = $2`, day, durationSec)
}

// CountByMonth counts the public entries of one month.
func (r *Repository) CountByMonth(ctx context.Context, month string, durationSec int) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM community_completions WHERE month = $1 AND duration_sec = $2`, month, durationSec)
}

// CountAll counts every public entry.
func (r *Repository) CountAll(ctx context.Context, durationSec int) (int, error) {
	return r.count(ctx, `SELECT COUNT(*) FROM community_completions WHERE duration_sec = $1`, durationSec)
}

func (r *Repository) count(ctx context.Context, query string, args ...interface{}) (int, error) {
	var n int
	if err := r.pool.QueryRow(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// GetProfile returns the stored profile, or nil when the user never saved one.
func (r *Repository) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	const query = `SELECT user_id, first_name, last_name, nickname, updated_at FROM profiles WHERE user_id = $1`

	var p domain.Profile
	err := r.pool.QueryRow(ctx, query, userID).Scan(&p.UserID, &p.FirstName, &p.LastName, &p.Nickname, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

// UpsertProfile merge-writes the profile. Nil fields keep their stored value; an empty nickname clears it.
func (r *Repository) UpsertProfile(ctx context.Context, write domain.ProfileWrite) (*domain.Profile, error) {
	const stmt = `INSERT INTO profiles (user_id, first_name, last_name, nickname, updated_at)
        VALUES ($1, COALESCE($2::text, ''), COALESCE($3::text, ''), NULLIF($4::text, ''), NOW())
        ON CONFLICT (user_id) DO UPDATE SET
            first_name = COALESCE($2::text, profiles.first_name),
            last_name = COALESCE($3::text, profiles.last_name),
            nickname = CASE WHEN $5::boolean THEN NULLIF($4::text, '') ELSE profiles.nickname END,
            updated_at = NOW()
        RETURNING user_id, first_name, last_name, nickname, updated_at`

	var p domain.Profile
	err := r.pool.QueryRow(ctx, stmt,
		write.UserID,
		write.FirstName,
		write.LastName,
		write.Nickname,
		write.Nickname != nil,
	).Scan(&p.UserID, &p.FirstName, &p.LastName, &p.Nickname, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func scanSession(row pgx.Row) (*domain.Session, error) {
	var (
		s        domain.Session
		status   string
		duration *int
		day      *string
		month    *string
	)
	if err := row.Scan(&s.ID, &s.UserID, &status, &s.StartedAt, &s.EndedAt, &duration, &day, &month, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	s.Status = domain.SessionStatus(status)
	if duration != nil {
		s.DurationSec = *duration
	}
	if day != nil {
		s.Day = *day
	}
	if month != nil {
		s.Month = *month
	}
	return &s, nil
}

func nullIfEmpty(value string) interface{} {
	if value == "" {
		return nil
	}
	return value
}
