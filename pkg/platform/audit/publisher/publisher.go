// Package publisher emits audit events from domain logic. The default
// publisher hands events to a buffered channel drained by the worker so
// domain operations never block on the audit sink.
package publisher

import (
	"context"
	"log/slog"
	"time"

	audit "credence/pkg/platform/audit"
)

// Publisher queues audit events for asynchronous persistence. When the
// buffer is full the event is logged and dropped rather than blocking a
// domain operation; the structured log remains as a fallback trail.
type Publisher struct {
	outbox chan<- audit.Event
	logger *slog.Logger
}

func New(outbox chan<- audit.Event, logger *slog.Logger) *Publisher {
	return &Publisher{outbox: outbox, logger: logger}
}

func (p *Publisher) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	audit.Stamp(ctx, &event)
	select {
	case p.outbox <- event:
		return nil
	default:
		if p.logger != nil {
			p.logger.WarnContext(ctx, "audit outbox full, event dropped to log",
				"action", event.Action,
				"subject", event.Subject.String(),
			)
		}
		return nil
	}
}

// Sync emits directly to a store, bypassing the channel. Used by tests and
// by callers that need the event durably appended before returning.
type Sync struct {
	store audit.Store
}

func NewSync(store audit.Store) *Sync {
	return &Sync{store: store}
}

func (s *Sync) Emit(ctx context.Context, event audit.Event) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	audit.Stamp(ctx, &event)
	return s.store.Append(ctx, event)
}
