package otel

import (
	"context"
	"testing"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"otp-auth-service/internal/telemetry/domain"
)

func TestNewEventEmitter_NilProvider_ReturnsNoop(t *testing.T) {
	em := NewEventEmitter(nil)
	if em == nil {
		t.Fatal("NewEventEmitter(nil) returned nil")
	}
	if err := em.Emit(context.Background(), nil); err != nil {
		t.Errorf("noop Emit(ctx, nil): %v", err)
	}
	if err := em.Emit(context.Background(), &domain.Event{Username: "ann"}); err != nil {
		t.Errorf("noop Emit(ctx, event): %v", err)
	}
}

func TestEmit_NilEvent_ReturnsNil(t *testing.T) {
	provider := sdklog.NewLoggerProvider()
	defer func() { _ = provider.Shutdown(context.Background()) }()
	em := NewEventEmitter(provider)
	if err := em.Emit(context.Background(), nil); err != nil {
		t.Errorf("Emit(ctx, nil): %v", err)
	}
	if err := em.Emit(context.Background(), &domain.Event{Type: domain.EventAuth}); err != nil {
		t.Errorf("Emit: %v", err)
	}
}

// recordCapture stores the last Record passed to Emit for assertion.
type recordCapture struct {
	rec   otellog.Record
	calls int
}

func (r *recordCapture) Emit(_ context.Context, rec otellog.Record) {
	r.rec = rec
	r.calls++
}

func attributes(rec otellog.Record) map[string]string {
	attrs := make(map[string]string)
	rec.WalkAttributes(func(kv otellog.KeyValue) bool {
		attrs[kv.Key] = kv.Value.AsString()
		return true
	})
	return attrs
}

func TestEmit_AttributeAndBodyMapping(t *testing.T) {
	capture := &recordCapture{}
	em := NewEventEmitterWithLogger(capture)
	at := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	event := &domain.Event{
		ID:        "ev1",
		Type:      domain.EventAuth,
		Source:    "http",
		Action:    "otp_verify",
		Outcome:   domain.OutcomeSuccess,
		Username:  "ann",
		SessionID: "sess1",
		RequestID: "req1",
		ClientIP:  "10.0.0.1",
		Metadata:  []byte(`{"status":200}`),
		CreatedAt: at,
	}
	if err := em.Emit(context.Background(), event); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	rec := capture.rec
	if got := rec.Body().AsBytes(); string(got) != `{"status":200}` {
		t.Errorf("body = %q", got)
	}
	if !rec.Timestamp().Equal(at) {
		t.Errorf("timestamp = %v, want %v", rec.Timestamp(), at)
	}
	if rec.Severity() != otellog.SeverityInfo {
		t.Errorf("severity = %v, want info", rec.Severity())
	}
	want := map[string]string{
		"event_id": "ev1", "event_type": "auth", "source": "http", "action": "otp_verify",
		"outcome": "success", "username": "ann", "session_id": "sess1",
		"request_id": "req1", "client_ip": "10.0.0.1",
	}
	attrs := attributes(rec)
	for k, v := range want {
		if attrs[k] != v {
			t.Errorf("attr %q = %q, want %q", k, attrs[k], v)
		}
	}
}

func TestEmit_FailureIsWarn(t *testing.T) {
	capture := &recordCapture{}
	em := NewEventEmitterWithLogger(capture)
	if err := em.Emit(context.Background(), &domain.Event{Type: domain.EventAuth, Outcome: domain.OutcomeFailure}); err != nil {
		t.Fatal(err)
	}
	if capture.rec.Severity() != otellog.SeverityWarn {
		t.Errorf("severity = %v, want warn", capture.rec.Severity())
	}
}

func TestEmit_PartialFields(t *testing.T) {
	capture := &recordCapture{}
	em := NewEventEmitterWithLogger(capture)
	before := time.Now().UTC()
	if err := em.Emit(context.Background(), &domain.Event{Type: domain.EventHTTPRequest}); err != nil {
		t.Fatalf("Emit: %v", err)
	}
	rec := capture.rec
	if !rec.Body().Empty() {
		t.Error("body should be empty without metadata")
	}
	if rec.Timestamp().Before(before) {
		t.Errorf("zero CreatedAt should default to now, got %v", rec.Timestamp())
	}
	attrs := attributes(rec)
	if len(attrs) != 1 || attrs["event_type"] != domain.EventHTTPRequest {
		t.Errorf("attributes = %v, want only event_type", attrs)
	}
}

func TestNewEventEmitterWithLogger_Nil(t *testing.T) {
	em := NewEventEmitterWithLogger(nil)
	if err := em.Emit(context.Background(), &domain.Event{}); err != nil {
		t.Errorf("Emit: %v", err)
	}
}
