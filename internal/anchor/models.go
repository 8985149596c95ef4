package anchor

import (
	"encoding/hex"
	"time"

	id "credence/pkg/domain"
)

// String renders the digest as lowercase hex.
func (h Hash) String() string {
	return hex.EncodeToString(h[:])
}

// Root is one published Merkle root, identified by a monotonically
// increasing epoch.
type Root struct {
	Epoch       uint64
	Root        Hash
	LeafCount   int
	PublishedAt time.Time
}

// Record ties a subject's commitment to the epoch whose root covers it.
type Record struct {
	Subject    id.SubjectID
	Epoch      uint64
	Leaf       id.Commitment
	RecordedAt time.Time
}
