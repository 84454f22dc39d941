package sensors

import "sync"

// Queue is a fixed-capacity sample queue between a sensor worker and the
// tick thread. Push never blocks: when the queue is full the incoming
// sample is dropped. For a live estimate an old reading in hand beats a
// fresher one the consumer has not caught up to; the consumer drains every
// tick, so a full queue means it is already behind.
type Queue[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
	dropped  uint64
}

// NewQueue creates a queue with the given capacity (minimum 1).
func NewQueue[T any](capacity int) *Queue[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue[T]{
		items:    make([]T, 0, capacity),
		capacity: capacity,
	}
}

// Push adds an item, dropping it when the queue is full. Returns whether
// the item was retained.
func (q *Queue[T]) Push(item T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) >= q.capacity {
		q.dropped++
		return false
	}
	q.items = append(q.items, item)
	return true
}

// Drain removes and returns all queued items in arrival order.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = make([]T, 0, q.capacity)
	return out
}

// Len returns the current number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped returns the number of samples discarded on a full queue.
func (q *Queue[T]) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
