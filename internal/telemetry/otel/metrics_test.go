package otel

import (
	"context"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestAuthMetrics_Counts(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer func() { _ = provider.Shutdown(context.Background()) }()

	m, err := NewAuthMetrics(provider)
	if err != nil {
		t.Fatalf("NewAuthMetrics: %v", err)
	}
	ctx := context.Background()
	m.Verification(ctx, "success")
	m.Verification(ctx, "expire_otp")
	m.Verification(ctx, "expire_otp")
	m.Login(ctx, "")

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	got := map[string]map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			sum, ok := md.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				outcome, _ := dp.Attributes.Value("outcome")
				if got[md.Name] == nil {
					got[md.Name] = map[string]int64{}
				}
				got[md.Name][outcome.AsString()] += dp.Value
			}
		}
	}
	if got["auth.otp.verifications"]["success"] != 1 || got["auth.otp.verifications"]["expire_otp"] != 2 {
		t.Errorf("verifications = %v", got["auth.otp.verifications"])
	}
	if got["auth.login.attempts"]["error"] != 1 {
		t.Errorf("empty outcome should count as error, got %v", got["auth.login.attempts"])
	}
}

func TestAuthMetrics_NilSafe(t *testing.T) {
	var m *AuthMetrics
	m.Refresh(context.Background(), "success")

	noop, err := NewAuthMetrics(nil)
	if err != nil {
		t.Fatalf("NewAuthMetrics(nil): %v", err)
	}
	noop.Resend(context.Background(), "success")
}
