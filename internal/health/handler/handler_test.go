package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func okPinger() Pinger {
	return PingerFunc(func(context.Context) error { return nil })
}

func failingPinger() Pinger {
	return PingerFunc(func(context.Context) error { return errors.New("connection refused") })
}

func TestHealthz(t *testing.T) {
	h := NewHandler(map[string]Pinger{"postgres": failingPinger()})
	rec := httptest.NewRecorder()
	h.Healthz(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("liveness must not depend on dependencies, got %d", rec.Code)
	}
}

func TestReadyz(t *testing.T) {
	tests := []struct {
		name     string
		deps     map[string]Pinger
		wantCode int
	}{
		{"no deps", nil, http.StatusOK},
		{"nil dep skipped", map[string]Pinger{"redis": nil}, http.StatusOK},
		{"healthy", map[string]Pinger{"postgres": okPinger(), "redis": okPinger()}, http.StatusOK},
		{"one failing", map[string]Pinger{"postgres": okPinger(), "redis": failingPinger()}, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewHandler(tt.deps).Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			if rec.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if tt.wantCode != http.StatusServiceUnavailable {
				return
			}
			var body struct {
				Failed []string `json:"failed"`
			}
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if len(body.Failed) != 1 || body.Failed[0] != "redis" {
				t.Errorf("failed = %v", body.Failed)
			}
		})
	}
}

func TestSync_GRPCStatus(t *testing.T) {
	srv := health.NewServer()
	ctx := context.Background()

	NewHandler(map[string]Pinger{"postgres": failingPinger()}).sync(ctx, srv, "")
	resp, err := srv.Check(ctx, &healthpb.HealthCheckRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_NOT_SERVING {
		t.Errorf("status = %v, want NOT_SERVING", resp.GetStatus())
	}

	NewHandler(map[string]Pinger{"postgres": okPinger()}).sync(ctx, srv, "")
	resp, _ = srv.Check(ctx, &healthpb.HealthCheckRequest{})
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		t.Errorf("status = %v, want SERVING", resp.GetStatus())
	}
}
