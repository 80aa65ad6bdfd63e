package cache

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newCache(t *testing.T, capacity int) *DaySetCache {
	t.Helper()
	c, err := NewDaySetCache(capacity)
	require.NoError(t, err)
	return c
}

func TestDaySetCacheIsKeyedByUser(t *testing.T) {
	c := newCache(t, 8)
	c.Set("alice", []string{"2025-01-01"})

	got, ok := c.Get("alice")
	require.True(t, ok)
	require.Equal(t, []string{"2025-01-01"}, got)

	_, ok = c.Get("bob")
	require.False(t, ok)
}

func TestDaySetCacheReturnsCopies(t *testing.T) {
	c := newCache(t, 8)
	days := []string{"2025-01-01"}
	c.Set("alice", days)
	days[0] = "mutated"

	got, _ := c.Get("alice")
	got[0] = "also mutated"

	again, _ := c.Get("alice")
	require.Equal(t, []string{"2025-01-01"}, again)
}

func TestInvalidateRemovesEntry(t *testing.T) {
	c := newCache(t, 8)
	c.Set("alice", []string{"2025-01-01"})
	c.Set("bob", []string{"2025-01-02"})

	require.NoError(t, c.Invalidate(context.Background(), "alice"))

	_, ok := c.Get("alice")
	require.False(t, ok)
	_, ok = c.Get("bob")
	require.True(t, ok)
}

func TestSetIfFreshRejectsRefreshStartedBeforeInvalidation(t *testing.T) {
	c := newCache(t, 8)
	c.Set("alice", []string{"2025-01-01"})

	staleToken := c.Token()
	require.NoError(t, c.Invalidate(context.Background(), "alice"))

	require.False(t, c.SetIfFresh("alice", staleToken, []string{"2025-01-01"}))
	_, ok := c.Get("alice")
	require.False(t, ok)

	freshToken := c.Token()
	require.True(t, c.SetIfFresh("alice", freshToken, []string{"2025-01-01", "2025-01-02"}))
	got, ok := c.Get("alice")
	require.True(t, ok)
	require.Equal(t, []string{"2025-01-01", "2025-01-02"}, got)
}

func TestSetIfFreshRejectsStaleRefreshAfterEvictionChurn(t *testing.T) {
	c := newCache(t, 2)
	c.Set("alice", []string{"2025-01-01"})

	staleToken := c.Token()
	require.NoError(t, c.Invalidate(context.Background(), "alice"))
	for _, user := range []string{"bob", "carol", "dave"} {
		c.Set(user, []string{"2025-01-03"})
	}
	require.Equal(t, 2, c.Len())

	require.False(t, c.SetIfFresh("alice", staleToken, []string{"2025-01-01"}))
	_, ok := c.Get("alice")
	require.False(t, ok)
}

func TestSetIfFreshStaysSafeWhenInvalidationRecordOverflows(t *testing.T) {
	c := newCache(t, 2)

	staleToken := c.Token()
	for _, user := range []string{"alice", "bob", "carol"} {
		require.NoError(t, c.Invalidate(context.Background(), user))
	}

	require.False(t, c.SetIfFresh("alice", staleToken, []string{"2025-01-01"}))
	require.False(t, c.SetIfFresh("erin", staleToken, []string{"2025-01-01"}))
	require.True(t, c.SetIfFresh("alice", c.Token(), []string{"2025-01-01", "2025-01-02"}))
}

func TestSetIfFreshAllowsConcurrentRefreshesWithSameToken(t *testing.T) {
	c := newCache(t, 8)
	token := c.Token()
	require.True(t, c.SetIfFresh("alice", token, []string{"2025-01-01"}))
	require.True(t, c.SetIfFresh("alice", token, []string{"2025-01-01"}))
}

func TestDaySetCacheEvictsLeastRecentlyUsed(t *testing.T) {
	c := newCache(t, 2)
	c.Set("a", []string{"2025-01-01"})
	c.Set("b", []string{"2025-01-01"})
	_, _ = c.Get("a")
	c.Set("c", []string{"2025-01-01"})

	require.Equal(t, 2, c.Len())
	_, ok := c.Get("b")
	require.False(t, ok)
	_, ok = c.Get("a")
	require.True(t, ok)
}

func TestChainJoinsErrorsAndCallsEveryLayer(t *testing.T) {
	first := &recordingInvalidator{err: errors.New("edge down")}
	second := &recordingInvalidator{}

	err := Chain{first, nil, second}.Invalidate(context.Background(), "alice")
	require.ErrorContains(t, err, "edge down")
	require.Equal(t, []string{"alice"}, first.users)
	require.Equal(t, []string{"alice"}, second.users)
}

func TestHTTPInvalidatorPostsUserID(t *testing.T) {
	var gotBody, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	inv := NewHTTPInvalidator(srv.URL+"/", "secret", time.Second)
	require.NoError(t, inv.Invalidate(context.Background(), "user-1"))
	require.Equal(t, "user-1", gotBody)
	require.Equal(t, "Bearer secret", gotAuth)
}

func TestHTTPInvalidatorReportsFailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewHTTPInvalidator(srv.URL, "", time.Second).Invalidate(context.Background(), "user-1")
	var invErr *InvalidationError
	require.ErrorAs(t, err, &invErr)
	require.Equal(t, http.StatusBadGateway, invErr.Status)
}

type recordingInvalidator struct {
	users []string
	err   error
}

func (r *recordingInvalidator) Invalidate(_ context.Context, userID string) error {
	r.users = append(r.users, userID)
	return r.err
}
