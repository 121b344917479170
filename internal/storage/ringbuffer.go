// Package storage keeps loaded span batches and memoised trace builds.
package storage

import "sync"

// RingBuffer is a thread-safe fixed-capacity buffer. When full, adding an
// item overwrites the oldest one. Items are addressed by their absolute
// sequence number, which keeps counting past the capacity.
type RingBuffer[T any] struct {
	sync.RWMutex
	items    []T
	capacity int
	head     int // next write slot
	size     int
	added    uint64 // items ever added
}

// NewRingBuffer creates a ring buffer. The capacity must be greater than zero.
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity <= 0 {
		panic("ring buffer capacity must be greater than zero")
	}
	return &RingBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Add inserts an item and returns its sequence number, starting at 1.
func (rb *RingBuffer[T]) Add(item T) uint64 {
	rb.Lock()
	defer rb.Unlock()

	rb.items[rb.head] = item
	rb.head = (rb.head + 1) % rb.capacity
	if rb.size < rb.capacity {
		rb.size++
	}
	rb.added++
	return rb.added
}

// GetAll returns all items oldest first. The slice is a copy.
func (rb *RingBuffer[T]) GetAll() []T {
	rb.RLock()
	defer rb.RUnlock()

	if rb.size == 0 {
		return nil
	}
	result := make([]T, rb.size)
	if rb.size < rb.capacity {
		copy(result, rb.items[:rb.size])
	} else {
		// Full: head points at the oldest item.
		n := copy(result, rb.items[rb.head:])
		copy(result[n:], rb.items[:rb.head])
	}
	return result
}

// Latest returns the most recently added item.
func (rb *RingBuffer[T]) Latest() (T, bool) {
	rb.RLock()
	defer rb.RUnlock()

	var zero T
	if rb.size == 0 {
		return zero, false
	}
	return rb.items[(rb.head-1+rb.capacity)%rb.capacity], true
}

// Get returns the item with sequence number seq if it has not been
// overwritten yet.
func (rb *RingBuffer[T]) Get(seq uint64) (T, bool) {
	rb.RLock()
	defer rb.RUnlock()

	var zero T
	oldest := rb.added - uint64(rb.size) + 1
	if seq == 0 || seq > rb.added || seq < oldest {
		return zero, false
	}
	back := int(rb.added - seq) // 0 is the newest
	return rb.items[(rb.head-1-back+2*rb.capacity)%rb.capacity], true
}

// Size returns the current number of items.
func (rb *RingBuffer[T]) Size() int {
	rb.RLock()
	defer rb.RUnlock()
	return rb.size
}

// Capacity returns the maximum number of items held.
func (rb *RingBuffer[T]) Capacity() int {
	return rb.capacity
}

// Added returns how many items were ever added.
func (rb *RingBuffer[T]) Added() uint64 {
	rb.RLock()
	defer rb.RUnlock()
	return rb.added
}
