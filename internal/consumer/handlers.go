package consumer

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"

	platformevents "example.com/calmpulse/internal/platform/events"
)

// Invalidator drops cached progress for one user.
type Invalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

// CacheInvalidationHandler evicts a user's cached progress when another instance records a completion.
type CacheInvalidationHandler struct {
	invalidator Invalidator
	logger      *log.Logger
}

// NewCacheInvalidationHandler constructs a CacheInvalidationHandler.
func NewCacheInvalidationHandler(invalidator Invalidator, logger *log.Logger) *CacheInvalidationHandler {
	if logger == nil {
		logger = log.New(log.Writer(), "[invalidation] ", log.LstdFlags)
	}
	return &CacheInvalidationHandler{invalidator: invalidator, logger: logger}
}

// Handle invalidates on session.completed and ignores other event types.
func (h *CacheInvalidationHandler) Handle(ctx context.Context, msg Message) error {
	if msg.EventType != platformevents.TypeSessionCompleted {
		return nil
	}

	userID := msg.UserID
	if userID == "" {
		var event platformevents.SessionCompleted
		if err := json.Unmarshal(msg.Payload, &event); err != nil {
			// Unreadable payloads cannot be retried into something useful.
			h.logger.Printf("drop unreadable payload (offset=%d): %v", msg.Offset, err)
			return nil
		}
		userID = event.UserID
	}
	if userID == "" {
		return nil
	}

	if err := h.invalidator.Invalidate(ctx, userID); err != nil {
		return fmt.Errorf("invalidate %s: %w", userID, err)
	}
	return nil
}

// AuditLogHandler writes consumed events into session_event_log.
type AuditLogHandler struct {
	pool *pgxpool.Pool
}

// NewAuditLogHandler constructs a handler backed by the provided pool.
func NewAuditLogHandler(pool *pgxpool.Pool) *AuditLogHandler {
	return &AuditLogHandler{pool: pool}
}

// Handle stores the event. Redelivered records are ignored through the (topic, partition, offset) key.
func (h *AuditLogHandler) Handle(ctx context.Context, msg Message) error {
	var event platformevents.SessionCompleted
	if msg.EventType == platformevents.TypeSessionCompleted {
		if err := json.Unmarshal(msg.Payload, &event); err != nil {
			return fmt.Errorf("decode %s: %w", msg.EventType, err)
		}
	}

	userID := msg.UserID
	if userID == "" {
		userID = event.UserID
	}

	_, err := h.pool.Exec(ctx,
		`INSERT INTO session_event_log (topic, partition, record_offset, event_type, user_id, session_id, day, duration_sec, schema_id, schema_subject, payload, received_at)
         VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
         ON CONFLICT (topic, partition, record_offset) DO NOTHING`,
		msg.Topic,
		msg.Partition,
		msg.Offset,
		msg.EventType,
		userID,
		nullIfEmpty(event.SessionID),
		nullIfEmpty(event.Day),
		event.DurationSec,
		msg.SchemaID,
		msg.SchemaSubject,
		msg.Payload,
		msg.Timestamp,
	)
	return err
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}
