package auth

import (
	"net/http"
	"strings"

	authlib "example.com/calmpulse/internal/platform/auth"
)

// Middleware enforces bearer-token authentication on incoming requests.
type Middleware struct {
	inner authlib.Middleware
}

// NewMiddleware constructs Middleware with validation config. Health, metrics and media endpoints are
// public; the community feed accepts anonymous callers but reads the viewer from a token when sent.
func NewMiddleware(cfg Config) Middleware {
	skipper := func(r *http.Request) bool {
		return r.URL.Path == "/healthz" ||
			r.URL.Path == "/metrics" ||
			strings.HasPrefix(r.URL.Path, "/v1/media/") ||
			r.Method == http.MethodOptions
	}
	optional := func(r *http.Request) bool {
		return r.URL.Path == "/v1/community"
	}
	return Middleware{inner: authlib.NewMiddleware(cfg, skipper).WithOptional(optional)}
}

// Wrap attaches authentication handling to an http.Handler.
func (m Middleware) Wrap(next http.Handler) http.Handler {
	return m.inner.Wrap(next)
}
