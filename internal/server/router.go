// Package server assembles the HTTP router and the gRPC health server.
package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"otp-auth-service/internal/audit"
	audithandler "otp-auth-service/internal/audit/handler"
	devotphandler "otp-auth-service/internal/devotp/handler"
	healthhandler "otp-auth-service/internal/health/handler"
	identityhandler "otp-auth-service/internal/identity/handler"
	"otp-auth-service/internal/platform/httpx"
	"otp-auth-service/internal/server/middleware"
	"otp-auth-service/internal/telemetry"
)

// AuthPrefix is the mount point of the auth API.
const AuthPrefix = "/auth/v1"

// Deps holds the handlers and cross-cutting collaborators of the HTTP API.
type Deps struct {
	Auth   *identityhandler.Handler
	Health *healthhandler.Handler
	// DevOTP serves GET /dev/otp. Nil leaves the route unmounted; set only when dev OTP mode is on.
	DevOTP *devotphandler.Handler
	// Audit records auth events. Nil disables auditing.
	Audit audit.AuditLogger
	// AuditLog serves the caller's audit trail under the auth prefix. Nil leaves it unmounted.
	AuditLog *audithandler.Handler
	// Events receives one http_request event per request. Nil disables event emission.
	Events telemetry.EventEmitter
	// Tokens resolves Bearer tokens to a username for logs and audit. Nil skips resolution.
	Tokens middleware.AccessValidator
	// Limiter throttles login and OTP endpoints per client IP. Nil disables rate limiting.
	Limiter *middleware.RateLimiter
	// Proxies lists the reverse proxies whose X-Forwarded-For names the client. Nil keys clients
	// on the connection address.
	Proxies *httpx.TrustedProxies
}

var healthPaths = map[string]bool{"/healthz": true, "/readyz": true}

// NewRouter registers the auth API, health checks and the dev OTP route.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if d.Proxies != nil {
		r.Use(middleware.TrustedClientIP(d.Proxies))
	}
	r.Use(middleware.Recover)
	r.Use(middleware.Logging)
	r.Use(middleware.Telemetry(d.Events, healthPaths))
	r.Use(middleware.Authenticate(d.Tokens))

	if d.Health != nil {
		r.Get("/healthz", d.Health.Healthz)
		r.Get("/readyz", d.Health.Readyz)
	}
	if d.DevOTP != nil {
		r.Get("/dev/otp", d.DevOTP.GetOTP)
	}

	if d.Auth != nil {
		var limited func(http.Handler) http.Handler
		if d.Limiter != nil {
			limited = d.Limiter.Middleware
		}
		r.Route(AuthPrefix, func(r chi.Router) {
			if d.Audit != nil {
				r.Use(middleware.Audit(d.Audit, AuthPrefix))
			}
			d.Auth.Routes(r, limited)
			if d.AuditLog != nil {
				d.AuditLog.Routes(r)
			}
		})
	}
	return r
}
