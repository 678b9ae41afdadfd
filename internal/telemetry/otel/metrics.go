package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// AuthMetrics counts auth outcomes. The zero value is not usable; build with NewAuthMetrics.
type AuthMetrics struct {
	logins        metric.Int64Counter
	verifications metric.Int64Counter
	resends       metric.Int64Counter
	refreshes     metric.Int64Counter
}

// NewAuthMetrics registers the counters on provider. A nil provider yields no-op counters.
func NewAuthMetrics(provider metric.MeterProvider) (*AuthMetrics, error) {
	if provider == nil {
		provider = noop.NewMeterProvider()
	}
	meter := provider.Meter(instrumentationName)
	m := &AuthMetrics{}
	var err error
	if m.logins, err = meter.Int64Counter("auth.login.attempts",
		metric.WithDescription("Password checks by outcome.")); err != nil {
		return nil, err
	}
	if m.verifications, err = meter.Int64Counter("auth.otp.verifications",
		metric.WithDescription("OTP verifications by outcome.")); err != nil {
		return nil, err
	}
	if m.resends, err = meter.Int64Counter("auth.otp.resends",
		metric.WithDescription("OTP resends by outcome.")); err != nil {
		return nil, err
	}
	if m.refreshes, err = meter.Int64Counter("auth.token.refreshes",
		metric.WithDescription("Refresh token exchanges by outcome.")); err != nil {
		return nil, err
	}
	return m, nil
}

// Login records one password check. outcome is "success" or an error kind.
func (m *AuthMetrics) Login(ctx context.Context, outcome string) {
	m.add(ctx, m.logins, outcome)
}

// Verification records one OTP verification.
func (m *AuthMetrics) Verification(ctx context.Context, outcome string) {
	m.add(ctx, m.verifications, outcome)
}

// Resend records one OTP resend.
func (m *AuthMetrics) Resend(ctx context.Context, outcome string) {
	m.add(ctx, m.resends, outcome)
}

// Refresh records one refresh token exchange.
func (m *AuthMetrics) Refresh(ctx context.Context, outcome string) {
	m.add(ctx, m.refreshes, outcome)
}

func (m *AuthMetrics) add(ctx context.Context, c metric.Int64Counter, outcome string) {
	if m == nil || c == nil {
		return
	}
	if outcome == "" {
		outcome = "error"
	}
	c.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}
