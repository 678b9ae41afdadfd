// Package handler exposes the two-step login and token lifecycle over HTTP.
package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"otp-auth-service/internal/identity/service"
	"otp-auth-service/internal/platform/autherr"
	"otp-auth-service/internal/platform/httpx"
	"otp-auth-service/internal/server/middleware"
)

// CookieConfig controls the refresh and session cookies.
type CookieConfig struct {
	RefreshName string
	SessionName string
	Secure      bool
	// SessionTTL is the Max-Age of the session cookie set at login.
	SessionTTL time.Duration
}

// Handler serves the auth API.
type Handler struct {
	auth    *service.AuthService
	cookies CookieConfig
}

// NewHandler returns a Handler. Empty cookie names fall back to refresh_token and auth_session.
func NewHandler(auth *service.AuthService, cookies CookieConfig) *Handler {
	if cookies.RefreshName == "" {
		cookies.RefreshName = "refresh_token"
	}
	if cookies.SessionName == "" {
		cookies.SessionName = "auth_session"
	}
	if cookies.SessionTTL <= 0 {
		cookies.SessionTTL = 15 * time.Minute
	}
	return &Handler{auth: auth, cookies: cookies}
}

// Routes mounts the auth endpoints on r. limited wraps the endpoints that send or check codes;
// nil leaves them unthrottled.
func (h *Handler) Routes(r chi.Router, limited func(http.Handler) http.Handler) {
	if limited == nil {
		limited = func(next http.Handler) http.Handler { return next }
	}
	r.Post("/register", h.register)
	r.Get("/token/verify", h.verifyToken)
	r.Post("/token/refresh", h.refreshToken)
	r.Post("/logout", h.logout)
	r.Group(func(r chi.Router) {
		r.Use(limited)
		r.Post("/login", h.login)
		r.Post("/otp/verify", h.verifyOTP)
		r.Post("/otp/resend", h.resendOTP)
	})
}

type userResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
}

type loginResponse struct {
	SessionID    string    `json:"session_id"`
	OTPExpiresAt time.Time `json:"otp_expires_at"`
}

type tokenResponse struct {
	Username    string    `json:"username"`
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"expires_at"`
}

type verifyTokenResponse struct {
	Username string `json:"username"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeAndValidate(w, r, "register", &req, false) {
		return
	}
	middleware.SetIdentity(r.Context(), strings.TrimSpace(req.Username), "")
	u, err := h.auth.Register(r.Context(), service.RegisterInput{
		Username: req.Username,
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		writeMappedError(w, r, "register", err)
		return
	}
	httpx.WriteSuccess(w, http.StatusCreated, userResponse{ID: u.ID, Username: u.Username, Email: u.Email, Name: u.Name})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeAndValidate(w, r, "login", &req, false) {
		return
	}
	middleware.SetIdentity(r.Context(), strings.TrimSpace(req.Username), "")
	res, err := h.auth.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeMappedError(w, r, "login", err)
		return
	}
	middleware.SetIdentity(r.Context(), "", res.SessionID)
	http.SetCookie(w, h.sessionCookie(res.SessionID))
	httpx.WriteSuccess(w, http.StatusOK, loginResponse{SessionID: res.SessionID, OTPExpiresAt: res.OTPExpiresAt})
}

func (h *Handler) verifyOTP(w http.ResponseWriter, r *http.Request) {
	var req verifyOTPRequest
	if !decodeAndValidate(w, r, "verify_otp", &req, false) {
		return
	}
	sessionID := h.sessionID(r, req.SessionID)
	middleware.SetIdentity(r.Context(), "", sessionID)
	res, err := h.auth.VerifyOTP(r.Context(), sessionID, req.OTPCode)
	if err != nil {
		writeMappedError(w, r, "verify_otp", err)
		return
	}
	middleware.SetIdentity(r.Context(), res.Username, "")
	h.writeTokens(w, res)
	http.SetCookie(w, h.clearCookie(h.cookies.SessionName))
	httpx.WriteSuccess(w, http.StatusOK, toTokenResponse(res))
}

func (h *Handler) resendOTP(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !decodeAndValidate(w, r, "resend_otp", &req, true) {
		return
	}
	sessionID := h.sessionID(r, req.SessionID)
	middleware.SetIdentity(r.Context(), "", sessionID)
	res, err := h.auth.ResendOTP(r.Context(), sessionID)
	if err != nil {
		writeMappedError(w, r, "resend_otp", err)
		return
	}
	httpx.WriteSuccess(w, http.StatusOK, loginResponse{SessionID: res.SessionID, OTPExpiresAt: res.OTPExpiresAt})
}

func (h *Handler) verifyToken(w http.ResponseWriter, r *http.Request) {
	token, _ := httpx.BearerToken(r.Header.Get("Authorization"))
	username, err := h.auth.VerifyToken(r.Context(), token)
	if err != nil {
		writeMappedError(w, r, "verify_token", err)
		return
	}
	middleware.SetIdentity(r.Context(), username, "")
	httpx.WriteSuccess(w, http.StatusOK, verifyTokenResponse{Username: username})
}

func (h *Handler) refreshToken(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !decodeAndValidate(w, r, "refresh_token", &req, true) {
		return
	}
	sessionID := h.sessionID(r, req.SessionID)
	middleware.SetIdentity(r.Context(), "", sessionID)
	res, err := h.auth.RefreshToken(r.Context(), h.cookieValue(r, h.cookies.RefreshName), sessionID)
	if err != nil {
		// The winner of a concurrent rotation already set the successor cookie; clearing here
		// could overwrite it in the browser.
		if autherr.KindOf(err) == autherr.KindMissingToken && !errors.Is(err, service.ErrRefreshRaced) {
			http.SetCookie(w, h.clearCookie(h.cookies.RefreshName))
		}
		writeMappedError(w, r, "refresh_token", err)
		return
	}
	middleware.SetIdentity(r.Context(), res.Username, "")
	h.writeTokens(w, res)
	httpx.WriteSuccess(w, http.StatusOK, toTokenResponse(res))
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !decodeAndValidate(w, r, "logout", &req, true) {
		return
	}
	sessionID := h.sessionID(r, req.SessionID)
	middleware.SetIdentity(r.Context(), "", sessionID)
	h.auth.Logout(r.Context(), h.cookieValue(r, h.cookies.RefreshName), sessionID)
	http.SetCookie(w, h.clearCookie(h.cookies.RefreshName))
	http.SetCookie(w, h.clearCookie(h.cookies.SessionName))
	w.Header().Set("Authorization", "")
	httpx.WriteMessage(w, http.StatusOK, "Logged out successfully")
}

func (h *Handler) writeTokens(w http.ResponseWriter, res *service.TokenResult) {
	w.Header().Set("Authorization", "Bearer "+res.AccessToken)
	http.SetCookie(w, h.refreshCookie(res.RefreshToken, res.RefreshExpiresAt))
}

func toTokenResponse(res *service.TokenResult) tokenResponse {
	return tokenResponse{
		Username:    res.Username,
		AccessToken: res.AccessToken,
		TokenType:   "Bearer",
		ExpiresAt:   res.AccessExpiresAt,
	}
}

// sessionID prefers the id sent in the body over the session cookie.
func (h *Handler) sessionID(r *http.Request, fromBody string) string {
	if s := strings.TrimSpace(fromBody); s != "" {
		return s
	}
	return h.cookieValue(r, h.cookies.SessionName)
}

func (h *Handler) cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(c.Value)
}
