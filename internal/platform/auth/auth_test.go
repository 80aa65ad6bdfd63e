package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var testConfig = Config{Secret: "test-secret", Issuer: "calmpulse.test"}

func TestSignAndParseRoundTrip(t *testing.T) {
	token, err := Sign(Claims{
		Subject: "user-1",
		Name:    " Ada ",
		Email:   "ada@example.com",
		Scopes:  NewScopes("progress:read", "sessions:write"),
	}, testConfig, time.Hour)
	require.NoError(t, err)

	claims, err := Parse(token, testConfig)
	require.NoError(t, err)
	require.Equal(t, "user-1", claims.Subject)
	require.Equal(t, "Ada", claims.Name)
	require.True(t, claims.HasScope("progress:read"))
	require.True(t, claims.HasScope("sessions:write"))
	require.False(t, claims.HasScope("profile:write"))
}

func TestParseRejectsBadTokens(t *testing.T) {
	_, err := Parse("  ", testConfig)
	require.ErrorIs(t, err, ErrMissingToken)

	wrongIssuer, err := Sign(Claims{Subject: "u"}, Config{Secret: testConfig.Secret, Issuer: "other"}, time.Hour)
	require.NoError(t, err)
	_, err = Parse(wrongIssuer, testConfig)
	require.ErrorIs(t, err, ErrInvalidToken)

	expired, err := Sign(Claims{Subject: "u"}, testConfig, -time.Minute)
	require.NoError(t, err)
	_, err = Parse(expired, testConfig)
	require.ErrorIs(t, err, ErrInvalidToken)

	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"iss": testConfig.Issuer,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(testConfig.Secret))
	require.NoError(t, err)
	_, err = Parse(noSubject, testConfig)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseAcceptsScopeArrays(t *testing.T) {
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub":    "u",
		"iss":    testConfig.Issuer,
		"exp":    time.Now().Add(time.Hour).Unix(),
		"scopes": []string{"progress:read", ""},
	}).SignedString([]byte(testConfig.Secret))
	require.NoError(t, err)

	claims, err := Parse(token, testConfig)
	require.NoError(t, err)
	require.Len(t, claims.Scopes, 1)
}

func TestMiddlewareModes(t *testing.T) {
	var seen *Claims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	mw := NewMiddleware(testConfig, func(r *http.Request) bool { return r.URL.Path == "/healthz" }).
		WithOptional(func(r *http.Request) bool { return r.URL.Path == "/v1/community" })
	handler := mw.Wrap(next)

	cases := []struct {
		name   string
		path   string
		header string
		status int
		authed bool
	}{
		{name: "skipped", path: "/healthz", status: http.StatusNoContent},
		{name: "optional anonymous", path: "/v1/community", status: http.StatusNoContent},
		{name: "optional with bad token", path: "/v1/community", header: "Bearer nope", status: http.StatusUnauthorized},
		{name: "protected without token", path: "/v1/progress", status: http.StatusUnauthorized},
		{name: "protected wrong scheme", path: "/v1/progress", header: "Basic abc", status: http.StatusUnauthorized},
		{name: "protected with token", path: "/v1/progress", header: "valid", status: http.StatusNoContent, authed: true},
	}

	token, err := Sign(Claims{Subject: "user-1"}, testConfig, time.Hour)
	require.NoError(t, err)

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			switch tc.header {
			case "":
			case "valid":
				req.Header.Set("Authorization", "Bearer "+token)
			default:
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			require.Equal(t, tc.status, rr.Code)
			if tc.authed {
				require.NotNil(t, seen)
				require.Equal(t, "user-1", seen.Subject)
			} else {
				require.Nil(t, seen)
			}
		})
	}
}
