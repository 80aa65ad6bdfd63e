package consumer

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"testing"

	"github.com/stretchr/testify/require"

	"example.com/calmpulse/internal/cache"
)

type recordingInvalidator struct {
	users []string
	err   error
}

func (r *recordingInvalidator) Invalidate(_ context.Context, userID string) error {
	r.users = append(r.users, userID)
	return r.err
}

func TestCacheInvalidationHandlerEvictsUser(t *testing.T) {
	days, err := cache.NewDaySetCache(8)
	require.NoError(t, err)
	days.Set("user-1", []string{"2025-03-09"})
	days.Set("user-2", []string{"2025-03-09"})

	h := NewCacheInvalidationHandler(days, log.New(testWriter{t}, "", 0))
	require.NoError(t, h.Handle(context.Background(), Message{EventType: "session.completed", UserID: "user-1"}))

	_, ok := days.Get("user-1")
	require.False(t, ok)
	_, ok = days.Get("user-2")
	require.True(t, ok)
}

func TestCacheInvalidationHandlerFallsBackToPayload(t *testing.T) {
	inv := &recordingInvalidator{}
	h := NewCacheInvalidationHandler(inv, log.New(testWriter{t}, "", 0))

	payload, err := json.Marshal(map[string]any{"user_id": "user-9"})
	require.NoError(t, err)
	require.NoError(t, h.Handle(context.Background(), Message{EventType: "session.completed", Payload: payload}))
	require.Equal(t, []string{"user-9"}, inv.users)

	require.NoError(t, h.Handle(context.Background(), Message{EventType: "session.completed", Payload: json.RawMessage(`not json`)}))
	require.Len(t, inv.users, 1)
}

func TestCacheInvalidationHandlerIgnoresOtherEvents(t *testing.T) {
	inv := &recordingInvalidator{}
	h := NewCacheInvalidationHandler(inv, nil)
	require.NoError(t, h.Handle(context.Background(), Message{EventType: "profile.updated", UserID: "user-1"}))
	require.Empty(t, inv.users)
}

func TestCacheInvalidationHandlerReturnsInvalidatorError(t *testing.T) {
	inv := &recordingInvalidator{err: errors.New("purge failed")}
	h := NewCacheInvalidationHandler(inv, nil)
	err := h.Handle(context.Background(), Message{EventType: "session.completed", UserID: "user-1"})
	require.ErrorContains(t, err, "purge failed")
}
