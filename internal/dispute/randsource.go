package dispute

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"math/rand"
	"time"
)

// RandomSource selects panel members. Implementations return a permutation
// of [0, n); the arbiter takes the first panel-size entries. Kept as an
// interface so a CSPRNG or verifiable-randomness source can replace the
// default without touching arbitration logic.
type RandomSource interface {
	Perm(seed []byte, n int) []int
}

// HashSource derives a permutation from a SHA-256 hash of the seed. It is
// deterministic for a given seed and NOT cryptographically secure: a party
// who controls creation timing can bias panel selection. Matches the
// upstream time-and-id scheme; production deployments should substitute a
// verifiable source.
type HashSource struct{}

func NewHashSource() *HashSource {
	return &HashSource{}
}

func (h *HashSource) Perm(seed []byte, n int) []int {
	sum := sha256.Sum256(seed)
	r := rand.New(rand.NewSource(int64(binary.BigEndian.Uint64(sum[:8]))))
	return r.Perm(n)
}

// creationSeed is the default seed: dispute id mixed with creation time.
func creationSeed(disputeID uint64, createdAt time.Time) []byte {
	return []byte(fmt.Sprintf("%d:%d", disputeID, createdAt.UnixNano()))
}
