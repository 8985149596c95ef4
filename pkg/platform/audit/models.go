package audit

import (
	"time"

	id "credence/pkg/domain"
)

// EventCategory classifies audit events by their primary purpose. This
// enables different retention policies, storage backends, and routing.
type EventCategory string

const (
	// CategoryCompliance covers events with legal/regulatory significance.
	// These require tamper-proof storage and long retention.
	CategoryCompliance EventCategory = "compliance"

	// CategorySecurity covers events relevant to monitoring and forensics:
	// authorization failures, account locks, dispute outcomes.
	CategorySecurity EventCategory = "security"

	// CategoryOperations covers routine activity useful for debugging.
	// These can be sampled or aggregated with shorter retention.
	CategoryOperations EventCategory = "operations"
)

// Event is emitted from domain logic for every committed state transition.
// Payloads must carry enough identifying data (subject, record ids,
// timestamps) to reconstruct full history from the event log alone; no
// component exposes a query for historical states, only current state.
type Event struct {
	Timestamp time.Time
	Subject   id.SubjectID // the holder the event is about
	Action    string
	Decision  string
	Reason    string
	// ActorID tracks who performed the action when different from Subject
	// (issuers, admins, arbitrators). String to support non-subject actors.
	ActorID   string
	RequestID string // correlation ID from HTTP request context
	Device    string // caller device family, when captured by middleware

	// Record identifiers; zero when not applicable.
	CertificateID id.CertificateID
	BadgeID       id.BadgeID
	DisputeID     id.DisputeID
	ScoreDelta    int64
}

type AuditEvent string

const (
	// Identity events
	EventIdentityRegistered  AuditEvent = "identity_registered"
	EventIdentityDeactivated AuditEvent = "identity_deactivated"
	EventVerificationUpdated AuditEvent = "verification_updated"

	// Trust ledger events
	EventTrustInitialized AuditEvent = "trust_initialized"
	EventTrustAdjusted    AuditEvent = "trust_adjusted"

	// Certificate events
	EventCertificateIssued   AuditEvent = "certificate_issued"
	EventCertificateRevoked  AuditEvent = "certificate_revoked"
	EventCertificateMigrated AuditEvent = "certificate_migrated"
	EventAccountLocked       AuditEvent = "account_locked"
	EventAccountUnlocked     AuditEvent = "account_unlocked"

	// Badge events
	EventBadgeCreated     AuditEvent = "badge_created"
	EventBadgeAwarded     AuditEvent = "badge_awarded"
	EventBadgeRevoked     AuditEvent = "badge_revoked"
	EventBadgeExpired     AuditEvent = "badge_expired"
	EventBadgeRenewed     AuditEvent = "badge_renewed"
	EventBadgeTransferred AuditEvent = "badge_transferred"

	// Dispute events
	EventDisputeCreated    AuditEvent = "dispute_created"
	EventDisputeVoted      AuditEvent = "dispute_voted"
	EventDisputeResolved   AuditEvent = "dispute_resolved"
	EventArbitratorAdded   AuditEvent = "arbitrator_added"
	EventArbitratorRemoved AuditEvent = "arbitrator_removed"

	// Anchor events
	EventRootAnchored   AuditEvent = "root_anchored"
	EventAnchorRecorded AuditEvent = "anchor_recorded"

	// Policy events
	EventCapabilityGranted AuditEvent = "capability_granted"
	EventCapabilityRevoked AuditEvent = "capability_revoked"
)

// eventCategories maps each audit event to its category. Compliance events
// rewrite who holds what; security events rewrite who may do what or settle
// contested claims; the rest is operational visibility.
var eventCategories = map[AuditEvent]EventCategory{
	EventIdentityRegistered:  CategoryCompliance,
	EventIdentityDeactivated: CategoryCompliance,
	EventCertificateIssued:   CategoryCompliance,
	EventCertificateRevoked:  CategoryCompliance,
	EventCertificateMigrated: CategoryCompliance,
	EventBadgeAwarded:        CategoryCompliance,
	EventBadgeRevoked:        CategoryCompliance,
	EventBadgeTransferred:    CategoryCompliance,
	EventDisputeResolved:     CategoryCompliance,

	EventAccountLocked:     CategorySecurity,
	EventAccountUnlocked:   CategorySecurity,
	EventCapabilityGranted: CategorySecurity,
	EventCapabilityRevoked: CategorySecurity,
	EventDisputeCreated:    CategorySecurity,
	EventDisputeVoted:      CategorySecurity,
	EventArbitratorAdded:   CategorySecurity,
	EventArbitratorRemoved: CategorySecurity,

	EventVerificationUpdated: CategoryOperations,
	EventTrustInitialized:    CategoryOperations,
	EventTrustAdjusted:       CategoryOperations,
	EventBadgeCreated:        CategoryOperations,
	EventBadgeExpired:        CategoryOperations,
	EventBadgeRenewed:        CategoryOperations,
	EventRootAnchored:        CategoryOperations,
	EventAnchorRecorded:      CategoryOperations,
}

// Category returns the EventCategory for this audit event. Unknown events
// default to CategoryOperations.
func (e AuditEvent) Category() EventCategory {
	if cat, ok := eventCategories[e]; ok {
		return cat
	}
	return CategoryOperations
}
