// Package telemetry fans auth events out to OpenTelemetry logs and the Kafka event stream.
package telemetry

import (
	"context"
	"errors"

	"otp-auth-service/internal/telemetry/domain"
)

// EventEmitter emits telemetry events. Best-effort; callers log and ignore errors.
type EventEmitter interface {
	Emit(ctx context.Context, event *domain.Event) error
}

// Multi returns an EventEmitter that sends each event to every non-nil emitter.
// All emitters are tried; their errors are joined.
func Multi(emitters ...EventEmitter) EventEmitter {
	var live multi
	for _, e := range emitters {
		if e != nil {
			live = append(live, e)
		}
	}
	return live
}

type multi []EventEmitter

func (m multi) Emit(ctx context.Context, event *domain.Event) error {
	var errs []error
	for _, e := range m {
		if err := e.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
