package middleware

import (
	"log"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"otp-auth-service/internal/platform/httpx"
)

// RequestID propagates X-Request-Id, generating one when absent, and installs the identity holder.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-Id")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", reqID)
		ctx, _ := WithRequestInfo(httpx.WithRequestID(r.Context(), reqID))
		ctx = WithClientIP(ctx, httpx.ClientIP(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// TrustedClientIP replaces the client IP recorded by RequestID with the address resolved through
// trusted reverse proxies. Mount it right after RequestID.
func TrustedClientIP(proxies *httpx.TrustedProxies) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(WithClientIP(r.Context(), proxies.ClientIP(r))))
		})
	}
}

// Recover turns a panic into a 500 envelope.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("http: panic request_id=%s %s %s: %v\n%s",
					httpx.RequestIDFromContext(r.Context()), r.Method, r.URL.Path, rec, debug.Stack())
				httpx.WriteError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// StatusRecorder captures the status code and byte count of a response.
type StatusRecorder struct {
	http.ResponseWriter
	StatusCode int
	Bytes      int
}

func (r *StatusRecorder) WriteHeader(statusCode int) {
	r.StatusCode = statusCode
	r.ResponseWriter.WriteHeader(statusCode)
}

func (r *StatusRecorder) Write(payload []byte) (int, error) {
	if r.StatusCode == 0 {
		r.StatusCode = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(payload)
	r.Bytes += n
	return n, err
}

// Status returns the recorded status, defaulting to 200.
func (r *StatusRecorder) Status() int {
	if r.StatusCode == 0 {
		return http.StatusOK
	}
	return r.StatusCode
}

func recorderFor(w http.ResponseWriter) *StatusRecorder {
	if rec, ok := w.(*StatusRecorder); ok {
		return rec
	}
	return &StatusRecorder{ResponseWriter: w}
}

// Logging writes one access log line per request.
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := recorderFor(w)
		next.ServeHTTP(rec, r)
		username, sessionID := GetIdentity(r.Context())
		log.Printf("http: %s %s status=%d bytes=%d duration_ms=%d request_id=%s ip=%s user=%s session=%s",
			r.Method, r.URL.Path, rec.Status(), rec.Bytes, time.Since(start).Milliseconds(),
			httpx.RequestIDFromContext(r.Context()), ClientIP(r.Context()), username, sessionID)
	})
}
