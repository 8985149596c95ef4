package audit

import (
	"context"

	id "credence/pkg/domain"
)

// Store persists committed audit events. Append-only; events are never
// updated or deleted.
type Store interface {
	Append(ctx context.Context, event Event) error
	ListBySubject(ctx context.Context, subject id.SubjectID) ([]Event, error)
}
