package gateway

import (
	"container/list"
	"context"
	"sync"
)

// fifoSemaphore bounds concurrency to n concurrent holders while
// guaranteeing FIFO admission order across callers (§4.3, §8): callers
// are queued in arrival order and woken in that order as slots free, so
// two requests submitted back-to-back are admitted in submission order
// regardless of Go's goroutine scheduling.
type fifoSemaphore struct {
	mu      sync.Mutex
	active  int
	n       int
	waiters *list.List // of chan struct{}
}

func newFIFOSemaphore(n int) *fifoSemaphore {
	return &fifoSemaphore{n: n, waiters: list.New()}
}

// acquire blocks until a slot is free, honoring arrival order, or until
// ctx is cancelled.
func (s *fifoSemaphore) acquire(ctx context.Context) error {
	s.mu.Lock()
	if s.active < s.n && s.waiters.Len() == 0 {
		s.active++
		s.mu.Unlock()
		return nil
	}
	wait := make(chan struct{})
	elem := s.waiters.PushBack(wait)
	s.mu.Unlock()

	select {
	case <-wait:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		select {
		case <-wait:
			// Won the race with a waker; honor the grant rather than
			// dropping a slot it already counted against active.
			s.mu.Unlock()
			return nil
		default:
			s.waiters.Remove(elem)
		}
		s.mu.Unlock()
		return ctx.Err()
	}
}

func (s *fifoSemaphore) release() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if front := s.waiters.Front(); front != nil {
		s.waiters.Remove(front)
		close(front.Value.(chan struct{}))
		return
	}
	s.active--
}
