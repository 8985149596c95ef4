package certificate

import (
	"time"

	id "credence/pkg/domain"
)

// Certificate is a non-transferable credential. Holder changes only through
// the admin-gated migrate path; there is no general transfer.
type Certificate struct {
	ID           id.CertificateID
	Holder       id.SubjectID
	Issuer       id.SubjectID
	CertType     string
	MetadataURI  string
	IssuedAt     time.Time
	ExpiresAt    time.Time // zero value = never expires
	Revoked      bool
	RevokeReason string
	ProofHash    string
	// RequiredTrustScore is the threshold captured at issuance time, kept
	// for audit. A later score drop does not invalidate the certificate.
	RequiredTrustScore int64
}

// Expired reports whether the certificate has a deadline in the past.
func (c Certificate) Expired(now time.Time) bool {
	return !c.ExpiresAt.IsZero() && now.After(c.ExpiresAt)
}

// Valid is the verification predicate: exists (caller's concern), not
// revoked, not expired.
func (c Certificate) Valid(now time.Time) bool {
	return !c.Revoked && !c.Expired(now)
}
