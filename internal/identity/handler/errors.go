package handler

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"otp-auth-service/internal/identity/service"
	"otp-auth-service/internal/platform/autherr"
	"otp-auth-service/internal/platform/httpx"
	"otp-auth-service/internal/security"
	"otp-auth-service/internal/server/middleware"
)

// mapError translates a service error to status, code and client message.
func mapError(err error) (int, string, string) {
	if kind := autherr.KindOf(err); kind != "" {
		status := http.StatusUnauthorized
		if kind == autherr.KindTokenExpired {
			status = http.StatusForbidden
		}
		return status, strings.ToUpper(string(kind)), err.Error()
	}
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error()
	case errors.Is(err, security.ErrInvalidToken):
		return http.StatusUnprocessableEntity, "INVALID_TOKEN", "access token is malformed"
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error"
}

func writeMappedError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, code, msg := mapError(err)
	writeFailure(w, r, op, status, code, msg, err)
}

func writeFailure(w http.ResponseWriter, r *http.Request, op string, status int, code, msg string, err error) {
	ctx := r.Context()
	username, sessionID := middleware.GetIdentity(ctx)
	log.Printf("auth: op=%s status=%d code=%s user=%q session=%q ip=%s request_id=%s: %v",
		op, status, code, username, sessionID, middleware.ClientIP(ctx), httpx.RequestIDFromContext(ctx), err)
	httpx.WriteError(w, status, code, msg)
}
