package lifecycle

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEventLocks_SerializeSameID(t *testing.T) {
	locks := newEventLocks()
	var (
		inside  atomic.Int32
		overlap atomic.Bool
		wg      sync.WaitGroup
	)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.lock("evt")
			defer unlock()
			if inside.Add(1) > 1 {
				overlap.Store(true)
			}
			inside.Add(-1)
		}()
	}
	wg.Wait()
	assert.False(t, overlap.Load())
	assert.Zero(t, locks.size())
}

func TestEventLocks_DistinctIDsDoNotBlock(t *testing.T) {
	locks := newEventLocks()
	unlockA := locks.lock("a")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlock := locks.lock("b")
		unlock()
		close(done)
	}()
	<-done
	assert.Equal(t, 1, locks.size())
}
