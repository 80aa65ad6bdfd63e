// Package api exposes HTTP handlers for the calmpulse service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"example.com/calmpulse/internal/apperror"
	"example.com/calmpulse/internal/auth"
	"example.com/calmpulse/internal/community"
	"example.com/calmpulse/internal/domain"
	"example.com/calmpulse/internal/media"
	"example.com/calmpulse/internal/persistence"
	"example.com/calmpulse/internal/progress"
)

// Handler coordinates HTTP requests with the domain service and the read-side helpers.
type Handler struct {
	service   *domain.Service
	tracker   *progress.Tracker
	views     progress.Views
	community *community.Poller
	media     *media.Resolver
}

// NewHandler builds a Handler. A nil resolver disables the media endpoints.
func NewHandler(service *domain.Service, tracker *progress.Tracker, poller *community.Poller, resolver *media.Resolver) *Handler {
	return &Handler{
		service:   service,
		tracker:   tracker,
		views:     progress.NewViews(service.Clock(), service.Floor()),
		community: poller,
		media:     resolver,
	}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/sessions", h.listSessions)
	mux.HandleFunc("/v1/sessions/start", h.startSession)
	mux.HandleFunc("/v1/sessions/complete", h.completeSession)
	mux.HandleFunc("/v1/progress", h.progress)
	mux.HandleFunc("/v1/community", h.communityFeed)
	mux.HandleFunc("/v1/profile", h.profile)
	mux.HandleFunc("/v1/media/meditation", h.meditation)
	mux.HandleFunc("/v1/media/stories", h.stories)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeSessionsWrite)
	if !ok {
		return
	}

	session, err := h.service.StartSession(r.Context(), claims.Subject)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionView(*session))
}

func (h *Handler) completeSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeSessionsWrite)
	if !ok {
		return
	}

	var req CompleteSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}

	result, err := h.service.CompleteSession(r.Context(), domain.CompleteSessionInput{
		UserID:     claims.Subject,
		ElapsedSec: req.ElapsedSec,
	})
	if err != nil && result == nil {
		writeServiceError(w, err)
		return
	}

	resp := CompleteSessionResponse{
		Session:    toSessionView(*result.Session),
		Full:       result.Full,
		Published:  result.Published,
		PublicName: result.PublicName,
	}
	if err != nil {
		// The session is recorded; only the public entry is missing.
		resp.Error = apperror.Display(err)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeProgressRead)
	if !ok {
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	sessions, next, err := h.service.ListSessions(r.Context(), claims.Subject, cursor, limit)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	items := make([]SessionView, 0, len(sessions))
	for _, s := range sessions {
		items = append(items, toSessionView(s))
	}
	writeJSON(w, http.StatusOK, ListSessionsResponse{Items: items, NextCursor: persistence.EncodeCursor(next)})
}

func (h *Handler) progress(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	claims, ok := requireScope(w, r, auth.ScopeProgressRead)
	if !ok {
		return
	}

	query := r.URL.Query()
	view := query.Get("view")
	if view == "" {
		view = "week"
	}
	if view != "week" && view != "month" {
		writeError(w, http.StatusBadRequest, "validation_failed", "view must be week or month")
		return
	}

	year, month0 := h.views.CurrentMonth()
	if view == "month" {
		var err error
		if year, err = intParam(query.Get("year"), year); err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "invalid year")
			return
		}
		var month int
		if month, err = intParam(query.Get("month"), month0+1); err != nil || month < 1 || month > 12 {
			writeError(w, http.StatusBadRequest, "validation_failed", "month must be 1..12")
			return
		}
		month0 = month - 1
	}

	// A failed fetch still carries the cached days and a display message.
	snapshot, _ := h.tracker.Peek(r.Context(), claims.Subject)

	resp := ProgressResponse{
		Summary: snapshot.Summary,
		Today:   h.service.Clock().Today(),
		Stale:   snapshot.Stale,
		Error:   snapshot.Error,
	}
	if view == "week" {
		week := h.views.Week(snapshot.Days)
		resp.Week = &week
	} else {
		grid := h.views.Month(snapshot.Days, year, month0)
		resp.Month = &grid
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) communityFeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	snapshot := h.community.Current(r.Context(), h.service.Clock().Today())
	resp := CommunityResponse{
		Day:         snapshot.Day,
		Counts:      snapshot.Counts,
		Entries:     make([]CompletionView, 0, len(snapshot.Entries)),
		RefreshedAt: snapshot.RefreshedAt,
		Error:       snapshot.Error,
	}
	for _, entry := range snapshot.Entries {
		resp.Entries = append(resp.Entries, CompletionView{Name: entry.Name, EndedAt: entry.EndedAt})
	}

	if claims, ok := auth.FromContext(r.Context()); ok {
		profile, err := h.service.Profile(r.Context(), claims.Subject)
		if err != nil {
			profile = nil
		}
		resp.Viewer = domain.ViewerName(profile, claims.Name, claims.Email)
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) profile(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		claims, ok := auth.FromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		profile, err := h.service.Profile(r.Context(), claims.Subject)
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toProfileView(*profile))
	case http.MethodPut:
		claims, ok := requireScope(w, r, auth.ScopeProfileWrite)
		if !ok {
			return
		}
		var req UpdateProfileRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
			return
		}
		profile, err := h.service.UpdateProfile(r.Context(), domain.ProfileWrite{
			UserID:    claims.Subject,
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Nickname:  req.Nickname,
		})
		if err != nil {
			writeServiceError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, toProfileView(*profile))
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) meditation(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if h.media == nil {
		writeError(w, http.StatusServiceUnavailable, "media_disabled", "asset store is not configured")
		return
	}

	asset, err := h.media.MeditationURL(r.Context())
	if err != nil {
		if errors.Is(err, media.ErrAssetNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "no meditation audio available")
			return
		}
		writeError(w, http.StatusBadGateway, "asset_lookup_failed", apperror.Display(err))
		return
	}
	writeJSON(w, http.StatusOK, asset)
}

func (h *Handler) stories(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}
	if h.media == nil {
		writeError(w, http.StatusServiceUnavailable, "media_disabled", "asset store is not configured")
		return
	}

	stories, err := h.media.StoryURLs(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "asset_lookup_failed", apperror.Display(err))
		return
	}
	writeJSON(w, http.StatusOK, StoriesResponse{Items: stories})
}

func requireScope(w http.ResponseWriter, r *http.Request, scope string) (*auth.Claims, bool) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return nil, false
	}
	if !claims.HasScope(scope) {
		writeError(w, http.StatusForbidden, "forbidden", "scope "+scope+" required")
		return nil, false
	}
	return claims, true
}

func intParam(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	return strconv.Atoi(raw)
}

func writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, http.StatusNotFound, "not_found", err.Error())
	case apperror.IsStoreUnavailable(err):
		writeError(w, http.StatusServiceUnavailable, "store_unavailable", apperror.Display(err))
	default:
		writeError(w, http.StatusInternalServerError, "server_error", apperror.Display(err))
	}
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
