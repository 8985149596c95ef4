// Package keylock serializes mutations per holder. The registry's components
// all key their cross-component reads and writes by subject, so holding the
// subject's lock for the duration of an operation gives the same effective
// guarantee as a global transaction without serializing unrelated holders.
package keylock

import (
	"sort"
	"sync"

	id "credence/pkg/domain"
)

// KeyLock hands out one mutex per subject. Locks are never discarded; the
// set of subjects is bounded by registrations, which are audited anyway.
type KeyLock struct {
	mu    sync.Mutex
	locks map[id.SubjectID]*sync.Mutex
}

func New() *KeyLock {
	return &KeyLock{locks: make(map[id.SubjectID]*sync.Mutex)}
}

func (k *KeyLock) lockFor(subject id.SubjectID) *sync.Mutex {
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.locks[subject]
	if !ok {
		l = &sync.Mutex{}
		k.locks[subject] = l
	}
	return l
}

// Lock acquires the subject's mutex and returns the unlock function.
func (k *KeyLock) Lock(subject id.SubjectID) func() {
	l := k.lockFor(subject)
	l.Lock()
	return l.Unlock
}

// LockAll acquires mutexes for several subjects in a deterministic order so
// two operations touching the same pair cannot deadlock. Duplicates are
// locked once.
func (k *KeyLock) LockAll(subjects ...id.SubjectID) func() {
	seen := make(map[id.SubjectID]bool, len(subjects))
	uniq := make([]id.SubjectID, 0, len(subjects))
	for _, s := range subjects {
		if !seen[s] {
			seen[s] = true
			uniq = append(uniq, s)
		}
	}
	sort.Slice(uniq, func(i, j int) bool { return uniq[i].String() < uniq[j].String() })

	unlocks := make([]func(), 0, len(uniq))
	for _, s := range uniq {
		l := k.lockFor(s)
		l.Lock()
		unlocks = append(unlocks, l.Unlock)
	}
	return func() {
		for i := len(unlocks) - 1; i >= 0; i-- {
			unlocks[i]()
		}
	}
}
