package keylock

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	id "credence/pkg/domain"
)

func TestLockSerializesPerSubject(t *testing.T) {
	locks := New()
	subject := id.NewSubjectID()

	var wg sync.WaitGroup
	counter := 0
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock(subject)
			defer unlock()
			counter++
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, counter)
}

func TestLockAllHandlesDuplicates(t *testing.T) {
	locks := New()
	subject := id.NewSubjectID()

	// Would self-deadlock if the duplicate were locked twice.
	unlock := locks.LockAll(subject, subject, subject)
	unlock()

	unlock2 := locks.Lock(subject)
	unlock2()
}

func TestLockAllAvoidsABBADeadlock(t *testing.T) {
	locks := New()
	a, b := id.NewSubjectID(), id.NewSubjectID()

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			unlock := locks.LockAll(a, b)
			unlock()
		}()
		go func() {
			defer wg.Done()
			unlock := locks.LockAll(b, a)
			unlock()
		}()
	}
	wg.Wait()
}
