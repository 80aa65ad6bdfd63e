package auth

// Known OAuth scopes used by the calmpulse API.
const (
	ScopeProgressRead  = "progress:read"
	ScopeSessionsWrite = "sessions:write"
	ScopeProfileWrite  = "profile:write"
)
