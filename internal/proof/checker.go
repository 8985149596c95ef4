// Package proof hosts the collaborator-facing proof check implementations.
// The upstream system models proof verification as an opaque hash check; the
// registry keeps that boundary instead of inventing cryptographic
// verification that was never implemented.
package proof

import (
	"context"

	id "credence/pkg/domain"
)

// OpaqueChecker accepts any non-empty proof hash. It stands in for the
// external proof/oracle system in deployments that have not wired one.
type OpaqueChecker struct{}

func NewOpaqueChecker() *OpaqueChecker {
	return &OpaqueChecker{}
}

func (c *OpaqueChecker) Check(ctx context.Context, proofHash string, holder id.SubjectID, purpose string) (bool, error) {
	return proofHash != "", nil
}

// StaticChecker returns a fixed verdict. Test double for rejection paths.
type StaticChecker struct {
	Verdict bool
}

func (c *StaticChecker) Check(ctx context.Context, proofHash string, holder id.SubjectID, purpose string) (bool, error) {
	return c.Verdict, nil
}
