package gateway

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFIFOSemaphoreGrantsImmediatelyWithinCapacity(t *testing.T) {
	s := newFIFOSemaphore(2)
	require.NoError(t, s.acquire(context.Background()))
	require.NoError(t, s.acquire(context.Background()))
}

// TestFIFOSemaphorePreservesArrivalOrder holds the only slot with one
// goroutine, queues N more in a known order (pausing briefly after
// starting each one so arrival order follows loop order), then releases one at a time
// and checks admission happened in the same order they queued (§4.3, §8).
func TestFIFOSemaphorePreservesArrivalOrder(t *testing.T) {
	s := newFIFOSemaphore(1)
	require.NoError(t, s.acquire(context.Background())) // hold the only slot

	const n = 5
	admitted := make(chan int, n)
	var wg sync.WaitGroup

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			require.NoError(t, s.acquire(context.Background()))
			admitted <- i
		}(i)
		// Give each goroutine a chance to reach acquire() and enqueue before
		// starting the next, so queue order matches loop order.
		time.Sleep(10 * time.Millisecond)
	}

	for i := 0; i < n; i++ {
		s.release()
	}
	s.release() // release the initial holder's slot too

	wg.Wait()
	close(admitted)

	var order []int
	for v := range admitted {
		order = append(order, v)
	}
	assert.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestFIFOSemaphoreAcquireRespectsCancellation(t *testing.T) {
	s := newFIFOSemaphore(1)
	require.NoError(t, s.acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := s.acquire(ctx)
	assert.Error(t, err)
}
