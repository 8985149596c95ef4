package anchor

import (
	"bytes"
	"crypto/sha256"
)

// Hash is a Merkle tree node digest.
type Hash [32]byte

// hashPair combines two child digests. Interior nodes are domain-separated
// from leaves by a one-byte prefix so a leaf can never be replayed as an
// interior node.
func hashPair(left, right Hash) Hash {
	h := sha256.New()
	h.Write([]byte{0x01})
	h.Write(left[:])
	h.Write(right[:])
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

func hashLeaf(leaf []byte) Hash {
	h := sha256.New()
	h.Write([]byte{0x00})
	h.Write(leaf)
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// BuildRoot computes the Merkle root over leaves in order. An odd node at
// any level is paired with itself. Empty input yields the zero hash.
func BuildRoot(leaves [][]byte) Hash {
	if len(leaves) == 0 {
		return Hash{}
	}
	level := make([]Hash, len(leaves))
	for i, leaf := range leaves {
		level[i] = hashLeaf(leaf)
	}
	for len(level) > 1 {
		level = nextLevel(level)
	}
	return level[0]
}

// Prove returns the sibling path for the leaf at index, bottom-up.
func Prove(leaves [][]byte, index int) []Hash {
	if index < 0 || index >= len(leaves) {
		return nil
	}
	level := make([]Hash, len(leaves))
	for i, leaf := range leaves {
		level[i] = hashLeaf(leaf)
	}

	var path []Hash
	for len(level) > 1 {
		sibling := index ^ 1
		if sibling >= len(level) {
			sibling = index // odd node pairs with itself
		}
		path = append(path, level[sibling])
		level = nextLevel(level)
		index /= 2
	}
	return path
}

// VerifyProof recomputes the root from a leaf, its index, and a sibling
// path, and compares against the expected root.
func VerifyProof(root Hash, leaf []byte, index int, path []Hash) bool {
	current := hashLeaf(leaf)
	for _, sibling := range path {
		if index%2 == 0 {
			current = hashPair(current, sibling)
		} else {
			current = hashPair(sibling, current)
		}
		index /= 2
	}
	return bytes.Equal(current[:], root[:])
}

func nextLevel(level []Hash) []Hash {
	next := make([]Hash, 0, (len(level)+1)/2)
	for i := 0; i < len(level); i += 2 {
		if i+1 < len(level) {
			next = append(next, hashPair(level[i], level[i+1]))
		} else {
			next = append(next, hashPair(level[i], level[i]))
		}
	}
	return next
}
