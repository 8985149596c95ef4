package worker

import (
	"context"
	"log/slog"

	audit "credence/pkg/platform/audit"
)

// Worker consumes audit events from a channel and persists them. It keeps
// background processing testable without wiring queue implementations into
// domain services.
type Worker struct {
	store  audit.Store
	inbox  <-chan audit.Event
	logger *slog.Logger
}

func NewWorker(store audit.Store, inbox <-chan audit.Event, logger *slog.Logger) *Worker {
	return &Worker{store: store, inbox: inbox, logger: logger}
}

// Run drains the inbox until the context is cancelled. Store failures are
// logged and skipped; an audit sink outage must not wedge the pipeline.
func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event := <-w.inbox:
			if err := w.store.Append(ctx, event); err != nil {
				if w.logger != nil {
					w.logger.ErrorContext(ctx, "append audit event",
						"action", event.Action,
						"error", err,
					)
				}
			}
		}
	}
}
