package middleware

import (
	"net/http"

	"otp-auth-service/internal/platform/httpx"
)

// AccessValidator resolves an access token to its username.
type AccessValidator interface {
	ValidateAccess(token string) (string, error)
}

// Authenticate records the username of a valid Bearer access token on the request identity.
// It never rejects: endpoints that require a token check it themselves.
func Authenticate(tokens AccessValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token, ok := httpx.BearerToken(r.Header.Get("Authorization")); ok && tokens != nil {
				if username, err := tokens.ValidateAccess(token); err == nil {
					SetIdentity(r.Context(), username, "")
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
