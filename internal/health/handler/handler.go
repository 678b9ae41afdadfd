// Package handler serves liveness and readiness over HTTP and mirrors readiness into the
// grpc.health.v1 service.
package handler

import (
	"context"
	"log"
	"net/http"
	"sort"
	"time"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"otp-auth-service/internal/platform/httpx"
)

const checkTimeout = 2 * time.Second

// Pinger is a readiness dependency (e.g. *sql.DB).
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PingerFunc adapts a function to Pinger.
type PingerFunc func(ctx context.Context) error

func (f PingerFunc) PingContext(ctx context.Context) error { return f(ctx) }

// Handler checks named dependencies. Nil dependencies are skipped.
type Handler struct {
	deps map[string]Pinger
}

// NewHandler returns a Handler over deps.
func NewHandler(deps map[string]Pinger) *Handler {
	live := make(map[string]Pinger, len(deps))
	for name, p := range deps {
		if p != nil {
			live[name] = p
		}
	}
	return &Handler{deps: live}
}

// Check pings every dependency and returns the failures by name.
func (h *Handler) Check(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, checkTimeout)
	defer cancel()
	failed := map[string]string{}
	for name, p := range h.deps {
		if err := p.PingContext(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	return failed
}

// Healthz reports liveness. It never touches dependencies.
func (h *Handler) Healthz(w http.ResponseWriter, _ *http.Request) {
	httpx.WriteSuccess(w, http.StatusOK, map[string]string{"state": "ok"})
}

// Readyz reports 200 when every dependency answers, else 503 with the failing names.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	failed := h.Check(r.Context())
	if len(failed) == 0 {
		httpx.WriteSuccess(w, http.StatusOK, map[string]string{"state": "ready"})
		return
	}
	names := make([]string, 0, len(failed))
	for name, msg := range failed {
		names = append(names, name)
		log.Printf("health: %s not ready: %s", name, msg)
	}
	sort.Strings(names)
	httpx.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{
		"status": "error",
		"code":   "NOT_READY",
		"failed": names,
	})
}

// Watch updates srv with the readiness of the service every interval until ctx is done.
// service is the gRPC service name reported; "" is the overall server status.
func (h *Handler) Watch(ctx context.Context, srv *health.Server, service string, interval time.Duration) {
	h.sync(ctx, srv, service)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			srv.Shutdown()
			return
		case <-ticker.C:
			h.sync(ctx, srv, service)
		}
	}
}

func (h *Handler) sync(ctx context.Context, srv *health.Server, service string) {
	status := healthpb.HealthCheckResponse_SERVING
	if len(h.Check(ctx)) > 0 {
		status = healthpb.HealthCheckResponse_NOT_SERVING
	}
	srv.SetServingStatus(service, status)
}
