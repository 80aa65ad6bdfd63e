package cache

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"
)

// Invalidator drops whatever a cache layer holds for a user.
type Invalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

// NoopInvalidator is a no-op implementation.
type NoopInvalidator struct{}

// Invalidate performs no action.
func (NoopInvalidator) Invalidate(context.Context, string) error { return nil }

// Chain fans an invalidation out to several layers, local first.
type Chain []Invalidator

// Invalidate calls every layer and joins their errors. A failing layer does not stop the rest.
func (c Chain) Invalidate(ctx context.Context, userID string) error {
	var err error
	for _, inv := range c {
		if inv == nil {
			continue
		}
		err = errors.Join(err, inv.Invalidate(ctx, userID))
	}
	return err
}

// HTTPInvalidator asks an edge cache to purge a user's progress pages.
type HTTPInvalidator struct {
	client *http.Client
	url    string
	token  string
}

// NewHTTPInvalidator constructs an HTTPInvalidator.
func NewHTTPInvalidator(endpoint, token string, timeout time.Duration) *HTTPInvalidator {
	return &HTTPInvalidator{
		client: &http.Client{Timeout: timeout},
		url:    strings.TrimRight(endpoint, "/"),
		token:  token,
	}
}

// Invalidate POSTs the user id as plain text to the purge endpoint.
func (h *HTTPInvalidator) Invalidate(ctx context.Context, userID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.url, strings.NewReader(userID))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "text/plain")
	if h.token != "" {
		req.Header.Set("Authorization", "Bearer "+h.token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return &InvalidationError{Status: resp.StatusCode}
	}
	return nil
}

// InvalidationError represents a non-successful purge response.
type InvalidationError struct {
	Status int
}

func (e *InvalidationError) Error() string {
	return "cache invalidation failed with status " + http.StatusText(e.Status)
}
