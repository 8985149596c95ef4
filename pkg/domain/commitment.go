package domain

import (
	"encoding/hex"

	dErrors "credence/pkg/domain-errors"
)

// Commitment is the opaque fixed-size hash binding a holder to an identity
// without revealing the underlying personal data. The registry never
// interprets it; uniqueness is the only property enforced here.
type Commitment [32]byte

var zeroCommitment Commitment

func (c Commitment) IsZero() bool {
	return c == zeroCommitment
}

func (c Commitment) String() string {
	return hex.EncodeToString(c[:])
}

// ParseCommitment decodes a 64-character hex string. The zero value is
// rejected so "no commitment" can never be registered.
func ParseCommitment(s string) (Commitment, error) {
	var c Commitment
	if s == "" {
		return c, dErrors.New(dErrors.CodeInvalidInput, "commitment is required")
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return c, dErrors.Wrap(err, dErrors.CodeInvalidInput, "commitment is not valid hex")
	}
	if len(raw) != len(c) {
		return c, dErrors.New(dErrors.CodeInvalidInput, "commitment must be 32 bytes")
	}
	copy(c[:], raw)
	if c.IsZero() {
		return c, dErrors.New(dErrors.CodeInvalidInput, "commitment must not be zero")
	}
	return c, nil
}
