// Package handler serves the caller's own audit trail over HTTP.
package handler

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"otp-auth-service/internal/audit/domain"
	"otp-auth-service/internal/platform/httpx"
	"otp-auth-service/internal/server/middleware"
)

const (
	defaultLimit = 20
	maxLimit     = 100
)

// Lister reads audit events of one user, newest first.
type Lister interface {
	ListByUsername(ctx context.Context, username string, limit, offset int32) ([]*domain.AuditLog, error)
}

// Handler serves GET /audit/events.
type Handler struct {
	repo Lister
}

func NewHandler(repo Lister) *Handler {
	return &Handler{repo: repo}
}

// Routes mounts the audit read endpoint on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/audit/events", h.ListEvents)
}

type eventResponse struct {
	Action    string    `json:"action"`
	Resource  string    `json:"resource"`
	IP        string    `json:"ip"`
	SessionID string    `json:"session_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// ListEvents returns the authenticated caller's events. limit defaults to 20 and is capped at 100.
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	username, _ := middleware.GetIdentity(ctx)
	if username == "" {
		httpx.WriteError(w, http.StatusUnauthorized, "MISSING_TOKEN", "access token is required")
		return
	}
	limit, ok := queryInt(r, "limit", defaultLimit)
	if !ok || limit < 1 {
		httpx.WriteError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be a positive integer")
		return
	}
	limit = min(limit, maxLimit)
	offset, ok := queryInt(r, "offset", 0)
	if !ok || offset < 0 {
		httpx.WriteError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "offset must be a non-negative integer")
		return
	}
	logs, err := h.repo.ListByUsername(ctx, username, int32(limit), int32(offset))
	if err != nil {
		log.Printf("audit: list events user=%q: %v", username, err)
		httpx.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		return
	}
	events := make([]eventResponse, 0, len(logs))
	for _, l := range logs {
		events = append(events, eventResponse{
			Action:    l.Action,
			Resource:  l.Resource,
			IP:        l.IP,
			SessionID: l.SessionID,
			CreatedAt: l.CreatedAt,
		})
	}
	httpx.WriteSuccess(w, http.StatusOK, map[string]any{"events": events})
}

func queryInt(r *http.Request, key string, def int) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n > 1<<30 {
		return 0, false
	}
	return n, true
}
