package service_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/craftline/craftline-backend/internal/inventory/domain"
	"github.com/craftline/craftline-backend/internal/inventory/service"
)

func TestItemLocker_SerializesSameItem(t *testing.T) {
	locker := service.NewItemLocker()
	ref := domain.ItemRef{Kind: domain.KindMaterial, ID: "flour"}

	const workers = 20
	counter := 0

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locker.Lock(ref)
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	assert.Equal(t, workers, counter)
}

// Two goroutines locking overlapping sets in opposite declaration order must
// not deadlock: LockAll acquires in sorted key order regardless of input.
func TestItemLocker_LockAllOrderIndependent(t *testing.T) {
	locker := service.NewItemLocker()
	a := domain.ItemRef{Kind: domain.KindMaterial, ID: "aaa"}
	b := domain.ItemRef{Kind: domain.KindMaterial, ID: "bbb"}

	const rounds = 200
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			unlock := locker.LockAll([]domain.ItemRef{a, b})
			unlock()
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < rounds; i++ {
			unlock := locker.LockAll([]domain.ItemRef{b, a})
			unlock()
		}
	}()
	wg.Wait()
}

func TestItemLocker_LockAllDeduplicates(t *testing.T) {
	locker := service.NewItemLocker()
	ref := domain.ItemRef{Kind: domain.KindProduct, ID: "bread"}

	// Locking the same ref twice in one set must not self-deadlock.
	unlock := locker.LockAll([]domain.ItemRef{ref, ref})
	unlock()

	// And the lock must be released afterwards.
	unlock = locker.Lock(ref)
	unlock()
}

func TestKeyedLocker_IndependentKeys(t *testing.T) {
	locker := service.NewKeyedLocker()

	unlockA := locker.Lock("batch-a")
	// A held lock on one key must not block another key.
	unlockB := locker.Lock("batch-b")
	unlockB()
	unlockA()
}
