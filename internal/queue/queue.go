// Package queue provides the generic thread-safe queue that batches records
// between producers and storage writers.
package queue

import (
	"sync"
)

// Queue is a generic thread-safe queue.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
}

// New creates a new empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{
		items: make([]T, 0),
	}
}

// PushBounded appends items and then drops the oldest items until at most
// limit remain. It returns the number dropped. A limit of 0 or less means
// unbounded.
func (q *Queue[T]) PushBounded(limit int, items ...T) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, items...)
	if limit <= 0 || len(q.items) <= limit {
		return 0
	}
	dropped := len(q.items) - limit
	q.items = append(q.items[:0], q.items[dropped:]...)
	return dropped
}

// Requeue puts a batch that failed to write back in front of anything queued
// since it was drained, keeping write order.
func (q *Queue[T]) Requeue(batch []T) {
	if len(batch) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(batch[:len(batch):len(batch)], q.items...)
}

// Empty returns true if the queue has no items.
func (q *Queue[T]) Empty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) == 0
}

// Len returns the number of items in the queue.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Drain returns all items and clears the queue.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	result := q.items
	q.items = make([]T, 0, cap(q.items))
	return result
}
