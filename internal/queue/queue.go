// Package queue holds the pending writes of the storage backends until
// they are flushed.
package queue

import "sync"

// Bounded is a thread-safe FIFO. With a positive limit it keeps only the
// newest items and counts the ones it discarded.
type Bounded[T any] struct {
	mu      sync.Mutex
	items   []T
	limit   int
	dropped int
}

// New returns a queue holding at most limit items. A limit <= 0 means no
// bound.
func New[T any](limit int) *Bounded[T] {
	return &Bounded[T]{limit: limit}
}

// Push appends items and returns how many of the oldest were discarded to
// stay within the limit.
func (q *Bounded[T]) Push(items ...T) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, items...)
	return q.trim()
}

// Requeue puts a drained batch back ahead of anything pushed since, so a
// failed write is retried in order. Items beyond the limit are discarded
// from the head.
func (q *Bounded[T]) Requeue(items ...T) int {
	if len(items) == 0 {
		return 0
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	merged := make([]T, 0, len(items)+len(q.items))
	merged = append(merged, items...)
	q.items = append(merged, q.items...)
	return q.trim()
}

func (q *Bounded[T]) trim() int {
	if q.limit <= 0 || len(q.items) <= q.limit {
		return 0
	}
	n := len(q.items) - q.limit
	q.items = append(q.items[:0:0], q.items[n:]...)
	q.dropped += n
	return n
}

// Drain returns every queued item and leaves the queue empty.
func (q *Bounded[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.items
	q.items = nil
	return out
}

// Len returns the number of queued items.
func (q *Bounded[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped returns how many items were discarded over the queue's lifetime.
func (q *Bounded[T]) Dropped() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
