package middleware

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"otp-auth-service/internal/platform/httpx"
	"otp-auth-service/internal/telemetry"
	"otp-auth-service/internal/telemetry/domain"
)

const tracerName = "otp-auth.http"

// httpRequestMetadata is the JSON shape stored in Event.Metadata for http_request events.
type httpRequestMetadata struct {
	Method     string `json:"method"`
	Route      string `json:"route"`
	StatusCode int    `json:"status_code"`
	DurationMs int64  `json:"duration_ms"`
}

// Telemetry wraps each request in a span and emits an http_request event after it completes.
// skipPaths are neither traced nor emitted (e.g. health checks). A nil emitter only traces.
func Telemetry(emitter telemetry.EventEmitter, skipPaths map[string]bool) func(http.Handler) http.Handler {
	tracer := otel.Tracer(tracerName)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skipPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}
			start := time.Now()
			ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path, trace.WithSpanKind(trace.SpanKindServer))
			defer span.End()

			rec := recorderFor(w)
			r = r.WithContext(ctx)
			next.ServeHTTP(rec, r)

			route := routePattern(r)
			status := rec.Status()
			span.SetName(r.Method + " " + route)
			span.SetAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("http.route", route),
				attribute.Int("http.response.status_code", status),
			)
			if status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(status))
			}
			if emitter == nil {
				return
			}
			meta, _ := json.Marshal(httpRequestMetadata{
				Method:     r.Method,
				Route:      route,
				StatusCode: status,
				DurationMs: time.Since(start).Milliseconds(),
			})
			username, sessionID := GetIdentity(ctx)
			outcome := domain.OutcomeSuccess
			if status >= http.StatusBadRequest {
				outcome = domain.OutcomeFailure
			}
			telemetry.EmitAsync(emitter, &domain.Event{
				ID:        uuid.NewString(),
				Type:      domain.EventHTTPRequest,
				Source:    "http_middleware",
				Outcome:   outcome,
				Username:  username,
				SessionID: sessionID,
				RequestID: httpx.RequestIDFromContext(ctx),
				ClientIP:  ClientIP(ctx),
				Metadata:  meta,
				CreatedAt: time.Now().UTC(),
			})
		})
	}
}

// routePattern returns the matched chi pattern, falling back to the raw path.
func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return r.URL.Path
}
