// File: pool/ring.go
// Author: momentics <momentics@gmail.com>
//
// Fixed-capacity ring buffer used as the chunk free list.
// Not synchronized; ChunkPool guards it with its own mutex.

package pool

// RingBuffer is a fixed-capacity FIFO ring (power-of-two size).
type RingBuffer[T any] struct {
	data []T
	mask uint64
	head uint64
	tail uint64
}

// NewRingBuffer allocates a ring buffer with size rounded up to a power of two.
func NewRingBuffer[T any](size uint64) *RingBuffer[T] {
	n := uint64(1)
	for n < size {
		n <<= 1
	}
	return &RingBuffer[T]{
		data: make([]T, n),
		mask: n - 1,
	}
}

// Enqueue adds an item; returns false if full.
func (r *RingBuffer[T]) Enqueue(val T) bool {
	if r.tail-r.head == uint64(len(r.data)) {
		return false
	}
	r.data[r.tail&r.mask] = val
	r.tail++
	return true
}

// Dequeue removes and returns (item, ok); ok==false if empty.
func (r *RingBuffer[T]) Dequeue() (res T, ok bool) {
	if r.head == r.tail {
		return res, false
	}
	idx := r.head & r.mask
	res = r.data[idx]
	var zero T
	r.data[idx] = zero
	r.head++
	return res, true
}

// Len returns number of items in the buffer.
func (r *RingBuffer[T]) Len() int {
	return int(r.tail - r.head)
}

// Cap returns logical buffer capacity.
func (r *RingBuffer[T]) Cap() int {
	return len(r.data)
}
