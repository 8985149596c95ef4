package badge

import (
	"context"

	id "credence/pkg/domain"
)

// Store persists badge definitions and per-holder awards.
type Store interface {
	// CreateBadge allocates the next badge ID and stores the definition.
	CreateBadge(ctx context.Context, badge Badge) (id.BadgeID, error)

	// GetBadge returns a definition. sentinel.ErrNotFound if absent.
	GetBadge(ctx context.Context, badgeID id.BadgeID) (Badge, error)

	// UpdateBadge overwrites a stored definition.
	UpdateBadge(ctx context.Context, badge Badge) error

	// ListBadges returns all definitions in creation order.
	ListBadges(ctx context.Context) ([]Badge, error)

	// GetAward returns the award of badgeID for holder, revoked or not.
	// sentinel.ErrNotFound if the holder never earned it.
	GetAward(ctx context.Context, badgeID id.BadgeID, holder id.SubjectID) (Award, error)

	// PutAward creates or overwrites an award record.
	PutAward(ctx context.Context, award Award) error

	// ListAwardsByHolder returns every award the holder has, in earn order.
	ListAwardsByHolder(ctx context.Context, holder id.SubjectID) ([]Award, error)
}
