// Package apperror turns store and transport failures into short, user-readable strings.
package apperror

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgconn"
)

// MaxDisplayRunes bounds the length of messages surfaced to users.
const MaxDisplayRunes = 160

// ErrStoreUnavailable marks failures caused by a store that is not provisioned for this deployment.
var ErrStoreUnavailable = errors.New("progress store is not provisioned")

const storeUnavailableMessage = "The progress database is not set up for this deployment. Run the migrations (or grant the service role access), then refresh."

// Postgres SQLSTATE codes that mean the schema or database is missing rather than a transient failure.
var unavailableCodes = map[string]struct{}{
	"3D000": {}, // invalid_catalog_name
	"42P01": {}, // undefined_table
	"42501": {}, // insufficient_privilege
}

// IsStoreUnavailable reports whether err means the backing store itself is missing or disabled.
func IsStoreUnavailable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrStoreUnavailable) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		_, ok := unavailableCodes[pgErr.Code]
		return ok
	}
	return false
}

// Display returns a message fit for a status banner: a fixed hint when the store is unavailable,
// otherwise the error text truncated to MaxDisplayRunes.
func Display(err error) string {
	if err == nil {
		return ""
	}
	if IsStoreUnavailable(err) {
		return storeUnavailableMessage
	}
	return Truncate(strings.TrimSpace(err.Error()), MaxDisplayRunes)
}

// Truncate shortens s to at most limit runes, appending an ellipsis when it cuts.
func Truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + "…"
}
