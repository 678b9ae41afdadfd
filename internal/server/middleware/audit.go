package middleware

import (
	"encoding/json"
	"net/http"

	"otp-auth-service/internal/audit"
	"otp-auth-service/internal/platform/httpx"
)

type auditMetadata struct {
	StatusCode int    `json:"status_code"`
	RequestID  string `json:"request_id,omitempty"`
}

// Audit records an audit log entry after each auth route listed in audit.ParseRoute.
// prefix is the mount point of the auth API (e.g. /auth/v1). A nil logger disables auditing.
func Audit(logger audit.AuditLogger, prefix string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := recorderFor(w)
			next.ServeHTTP(rec, r)
			if logger == nil {
				return
			}
			ar, ok := audit.ParseRoute(r.Method, routePattern(r), prefix, rec.Status())
			if !ok {
				return
			}
			username, sessionID := GetIdentity(r.Context())
			meta, _ := json.Marshal(auditMetadata{StatusCode: rec.Status(), RequestID: httpx.RequestIDFromContext(r.Context())})
			logger.LogEvent(r.Context(), username, sessionID, ar.Action, ar.Resource, string(meta))
		})
	}
}
