// Package handler serves dev-only OTP lookups over HTTP.
package handler

import (
	"net/http"
	"strings"

	"otp-auth-service/internal/devotp"
	"otp-auth-service/internal/platform/httpx"
)

const devOTPNote = "DEV MODE ONLY"

// Handler reads codes from a dev store. Only mounted when dev OTP is enabled and not production.
type Handler struct {
	store devotp.Store
}

// NewHandler returns a Handler over store.
func NewHandler(store devotp.Store) *Handler {
	return &Handler{store: store}
}

type otpResponse struct {
	SessionID string `json:"session_id"`
	OTP       string `json:"otp"`
	Note      string `json:"note"`
}

// GetOTP serves GET /dev/otp?session_id=...
func (h *Handler) GetOTP(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimSpace(r.URL.Query().Get("session_id"))
	if sessionID == "" {
		httpx.WriteError(w, http.StatusBadRequest, "VALIDATION_ERROR", "session_id is required")
		return
	}
	code, ok := h.store.Get(r.Context(), sessionID)
	if !ok {
		httpx.WriteError(w, http.StatusNotFound, "NOT_FOUND", "otp not found or expired")
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, otpResponse{SessionID: sessionID, OTP: code, Note: devOTPNote})
}
