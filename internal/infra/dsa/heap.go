// Package dsa holds the small data structures shared by the application
// packages.
package dsa

import "sync"

// ─── Priority Queue (Min-Heap) ──────────────────────────────────────────────
// Binary min-heap ordered by a caller-supplied less function.
//
// Operations:
//   Push:    O(log n), sift up
//   Pop:     O(log n), sift down (extract-min)
//   Peek:    O(1)
//   Len:     O(1)
//
// less must be a strict weak ordering. Items that compare equal come out in
// no particular order, so callers that need a stable ranking must break ties
// inside less themselves.

// PriorityQueue is a thread-safe min-heap.
type PriorityQueue[T any] struct {
	mu   sync.Mutex
	heap []T
	less func(a, b T) bool
}

// NewPriorityQueue creates an empty queue ordered by less.
func NewPriorityQueue[T any](less func(a, b T) bool) *PriorityQueue[T] {
	return &PriorityQueue[T]{less: less}
}

// Push adds an item to the queue. O(log n).
func (pq *PriorityQueue[T]) Push(item T) {
	pq.mu.Lock()
	defer pq.mu.Unlock()

	pq.heap = append(pq.heap, item)
	pq.siftUp(len(pq.heap) - 1)
}

// Pop removes and returns the smallest item. O(log n).
// Returns the item and true, or zero-value and false if empty.
func (pq *PriorityQueue[T]) Pop() (T, bool) {
	pq.mu.Lock()
	defer pq.mu.Unlock()

	var zero T
	if len(pq.heap) == 0 {
		return zero, false
	}

	top := pq.heap[0]
	last := len(pq.heap) - 1
	pq.heap[0] = pq.heap[last]
	pq.heap[last] = zero
	pq.heap = pq.heap[:last]
	if len(pq.heap) > 0 {
		pq.siftDown(0)
	}
	return top, true
}

// Peek returns the smallest item without removing it. O(1).
func (pq *PriorityQueue[T]) Peek() (T, bool) {
	pq.mu.Lock()
	defer pq.mu.Unlock()

	if len(pq.heap) == 0 {
		var zero T
		return zero, false
	}
	return pq.heap[0], true
}

// Len returns the number of items in the queue.
func (pq *PriorityQueue[T]) Len() int {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	return len(pq.heap)
}

// Drain pops up to limit items in order. limit <= 0 drains everything.
func (pq *PriorityQueue[T]) Drain(limit int) []T {
	pq.mu.Lock()
	n := len(pq.heap)
	pq.mu.Unlock()
	if limit > 0 && limit < n {
		n = limit
	}

	out := make([]T, 0, n)
	for len(out) < n {
		item, ok := pq.Pop()
		if !ok {
			break
		}
		out = append(out, item)
	}
	return out
}

// siftUp restores heap property after insertion.
func (pq *PriorityQueue[T]) siftUp(idx int) {
	for idx > 0 {
		parent := (idx - 1) / 2
		if pq.less(pq.heap[idx], pq.heap[parent]) {
			pq.heap[idx], pq.heap[parent] = pq.heap[parent], pq.heap[idx]
			idx = parent
		} else {
			break
		}
	}
}

// siftDown restores heap property after extraction.
func (pq *PriorityQueue[T]) siftDown(idx int) {
	n := len(pq.heap)
	for {
		smallest := idx
		left := 2*idx + 1
		right := 2*idx + 2

		if left < n && pq.less(pq.heap[left], pq.heap[smallest]) {
			smallest = left
		}
		if right < n && pq.less(pq.heap[right], pq.heap[smallest]) {
			smallest = right
		}
		if smallest == idx {
			break
		}
		pq.heap[idx], pq.heap[smallest] = pq.heap[smallest], pq.heap[idx]
		idx = smallest
	}
}
