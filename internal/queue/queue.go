// Package queue provides the bounded FIFO that carries discrete events from
// network goroutines to the tick loop.
package queue

import (
	"errors"
	"sync"
)

// ErrFull is returned by Push when the queue is at capacity.
var ErrFull = errors.New("queue full")

// Queue is a generic thread-safe FIFO. A capacity of zero means unbounded.
type Queue[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
	dropped  uint64
}

// New creates an unbounded queue.
func New[T any]() *Queue[T] {
	return NewBounded[T](0)
}

// NewBounded creates a queue holding at most capacity items.
func NewBounded[T any](capacity int) *Queue[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue[T]{
		items:    make([]T, 0),
		capacity: capacity,
	}
}

// Push appends item, or returns ErrFull and counts the drop.
func (q *Queue[T]) Push(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.capacity > 0 && len(q.items) >= q.capacity {
		q.dropped++
		return ErrFull
	}
	q.items = append(q.items, item)
	return nil
}

// Pop removes and returns the first item. ok is false when empty.
func (q *Queue[T]) Pop() (item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return item, false
	}
	item = q.items[0]
	var zero T
	q.items[0] = zero
	q.items = q.items[1:]
	return item, true
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Cap returns the capacity, zero when unbounded.
func (q *Queue[T]) Cap() int {
	return q.capacity
}

// Dropped returns how many pushes were rejected.
func (q *Queue[T]) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// Drain returns everything queued so far and empties the queue. Items pushed
// while the caller processes the batch land in the next Drain.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	batch := q.items
	q.items = make([]T, 0, cap(batch))
	return batch
}

// Requeue puts a batch back at the front, ahead of anything pushed since it
// was drained. Capacity is not enforced so a failed write never loses items.
func (q *Queue[T]) Requeue(batch []T) {
	if len(batch) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(append(make([]T, 0, len(batch)+len(q.items)), batch...), q.items...)
}
