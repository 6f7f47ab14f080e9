package service

import (
	"context"
	"log/slog"

	"license-server/internal/model"
)

// Recorder observes lifecycle events after the store accepted the change.
type Recorder interface {
	Record(ctx context.Context, event model.LicenseEvent) error
}

// RecorderFunc adapts a function to Recorder.
type RecorderFunc func(ctx context.Context, event model.LicenseEvent) error

func (f RecorderFunc) Record(ctx context.Context, event model.LicenseEvent) error {
	return f(ctx, event)
}

// Recorders fans an event out. A failing recorder is logged and skipped; it
// never changes the outcome of the lifecycle operation.
type Recorders []Recorder

func (rs Recorders) Record(ctx context.Context, event model.LicenseEvent) error {
	for _, r := range rs {
		if r == nil {
			continue
		}
		if err := r.Record(ctx, event); err != nil {
			slog.Default().WarnContext(ctx, "record license event failed",
				"action", event.Action,
				"license_id", event.LicenseID,
				"error", err,
			)
		}
	}
	return nil
}
