// Package policy is the capability gate every privileged entry point checks
// before mutating state. Capabilities are explicit grants per subject; there
// is no inheritance beyond the admin->capability edges configured here.
package policy

import (
	"context"
	"log/slog"
	"sync"

	id "credence/pkg/domain"
	dErrors "credence/pkg/domain-errors"
	"credence/pkg/platform/audit"
)

// Capability names a privileged action class.
type Capability string

const (
	// CapSuperAdmin administers every other capability. Assigned once at
	// bootstrap; holders can grant and revoke all capabilities.
	CapSuperAdmin Capability = "super_admin"

	// CapRegistryAdmin covers admin-gated lifecycle operations: migrate,
	// lock/unlock, badge definitions, arbitrator roster.
	CapRegistryAdmin Capability = "registry_admin"

	// CapRegistryWriter may flip identity verification flags.
	CapRegistryWriter Capability = "registry_writer"

	// CapScoreWriter may initialize and adjust trust scores.
	CapScoreWriter Capability = "score_writer"

	// CapIssuer may issue certificates.
	CapIssuer Capability = "issuer"

	// CapBadgeMinter may award and renew badges.
	CapBadgeMinter Capability = "badge_minter"
)

// adminOf maps a capability to the capability that administers it.
// CapSuperAdmin administers itself, closing the hierarchy at the root.
var adminOf = map[Capability]Capability{
	CapSuperAdmin:     CapSuperAdmin,
	CapRegistryAdmin:  CapSuperAdmin,
	CapRegistryWriter: CapRegistryAdmin,
	CapScoreWriter:    CapRegistryAdmin,
	CapIssuer:         CapRegistryAdmin,
	CapBadgeMinter:    CapRegistryAdmin,
}

// AuditPublisher emits audit events for grant/revoke operations.
type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Gate maps (subject, capability) to granted/revoked.
type Gate struct {
	mu     sync.RWMutex
	grants map[id.SubjectID]map[Capability]bool

	logger    *slog.Logger
	publisher AuditPublisher
}

type Option func(*Gate)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) { g.logger = logger }
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(g *Gate) { g.publisher = publisher }
}

// Bootstrap builds a gate with the super-admin capability assigned to root.
// This is the only grant that happens without an authorization check.
func Bootstrap(root id.SubjectID, opts ...Option) *Gate {
	g := &Gate{grants: make(map[id.SubjectID]map[Capability]bool)}
	for _, opt := range opts {
		opt(g)
	}
	g.setLocked(root, CapSuperAdmin, true)
	return g
}

// Known reports whether the capability participates in the hierarchy.
func Known(capability Capability) bool {
	_, ok := adminOf[capability]
	return ok
}

// Grant gives subject the capability. The actor must hold the capability's
// administering capability.
func (g *Gate) Grant(ctx context.Context, actor id.SubjectID, capability Capability, subject id.SubjectID) error {
	if err := g.requireAdmin(actor, capability); err != nil {
		return err
	}

	g.mu.Lock()
	g.setLocked(subject, capability, true)
	g.mu.Unlock()

	g.emit(ctx, audit.EventCapabilityGranted, actor, subject, string(capability))
	return nil
}

// Revoke removes the capability from subject. Same authorization rule as
// Grant; revoking an absent capability is a no-op, not an error.
func (g *Gate) Revoke(ctx context.Context, actor id.SubjectID, capability Capability, subject id.SubjectID) error {
	if err := g.requireAdmin(actor, capability); err != nil {
		return err
	}

	g.mu.Lock()
	g.setLocked(subject, capability, false)
	g.mu.Unlock()

	g.emit(ctx, audit.EventCapabilityRevoked, actor, subject, string(capability))
	return nil
}

// Has reports whether subject currently holds the capability.
func (g *Gate) Has(capability Capability, subject id.SubjectID) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.grants[subject][capability]
}

// Require is the guard privileged methods call first: it returns an
// Unauthorized error when the subject lacks the capability. The super-admin
// passes every check, same as in requireAdmin; Has stays literal.
func (g *Gate) Require(capability Capability, subject id.SubjectID) error {
	if g.Has(capability, subject) || g.Has(CapSuperAdmin, subject) {
		return nil
	}
	return dErrors.Newf(dErrors.CodeUnauthorized, "subject %s lacks capability %s", subject, capability)
}

func (g *Gate) requireAdmin(actor id.SubjectID, capability Capability) error {
	admin, ok := adminOf[capability]
	if !ok {
		return dErrors.Newf(dErrors.CodeInvalidInput, "unknown capability %q", capability)
	}
	if !g.Has(admin, actor) && !g.Has(CapSuperAdmin, actor) {
		return dErrors.Newf(dErrors.CodeUnauthorized, "actor %s may not administer capability %s", actor, capability)
	}
	return nil
}

// setLocked assumes g.mu is held (or the gate is not yet shared).
func (g *Gate) setLocked(subject id.SubjectID, capability Capability, granted bool) {
	caps, ok := g.grants[subject]
	if !ok {
		caps = make(map[Capability]bool)
		g.grants[subject] = caps
	}
	if granted {
		caps[capability] = true
	} else {
		delete(caps, capability)
	}
}

func (g *Gate) emit(ctx context.Context, action audit.AuditEvent, actor, subject id.SubjectID, capability string) {
	if g.publisher == nil {
		return
	}
	err := g.publisher.Emit(ctx, audit.Event{
		Subject: subject,
		Action:  string(action),
		Reason:  capability,
		ActorID: actor.String(),
	})
	if err != nil && g.logger != nil {
		g.logger.WarnContext(ctx, "emit policy audit event", "error", err)
	}
}
