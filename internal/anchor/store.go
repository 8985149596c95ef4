package anchor

import (
	"context"

	id "credence/pkg/domain"
)

// Store persists published roots and per-subject anchor records.
type Store interface {
	// PutRoot stores a root. sentinel.ErrConflict if the epoch exists.
	PutRoot(ctx context.Context, root Root) error

	// GetRoot returns the root for an epoch. sentinel.ErrNotFound if the
	// epoch was never published.
	GetRoot(ctx context.Context, epoch uint64) (Root, error)

	// LatestRoot returns the root with the highest epoch.
	// sentinel.ErrNotFound if nothing was ever published.
	LatestRoot(ctx context.Context) (Root, error)

	// PutRecord stores or replaces the anchor record for a subject.
	PutRecord(ctx context.Context, record Record) error

	// GetRecord returns the latest anchor record for a subject.
	// sentinel.ErrNotFound if the subject was never anchored.
	GetRecord(ctx context.Context, subject id.SubjectID) (Record, error)
}
