package router

import (
	"sync"
)

// GrowableBuffer is an unbounded FIFO queue backed by a ring that doubles
// once it is 70% full. Send never blocks, so a producer on a network read
// loop is never held up by a slow consumer.
type GrowableBuffer[T any] struct {
	mu     sync.Mutex
	cond   *sync.Cond
	ring   []T
	head   int
	count  int
	closed bool

	// Stats
	sent     int64
	received int64
	resizes  int
}

// BufferStats contains buffer statistics.
type BufferStats struct {
	Count    int
	Capacity int
	Sent     int64 // Items accepted by Send
	Received int64 // Items handed out by Receive, TryReceive or DrainTo
	Resizes  int
}

// NewGrowableBuffer creates a buffer with the given initial capacity.
func NewGrowableBuffer[T any](initialCapacity int) *GrowableBuffer[T] {
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	b := &GrowableBuffer[T]{ring: make([]T, initialCapacity)}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Send appends item. Returns false if the buffer is closed.
func (b *GrowableBuffer[T]) Send(item T) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return false
	}

	threshold := len(b.ring) * 70 / 100
	if threshold < 1 {
		threshold = 1
	}
	if b.count+1 >= threshold {
		b.growLocked()
	}

	b.ring[(b.head+b.count)%len(b.ring)] = item
	b.count++
	b.sent++

	b.cond.Signal()
	return true
}

// Receive blocks until an item is available and removes it. It returns
// false once the buffer is closed and empty.
func (b *GrowableBuffer[T]) Receive() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for b.count == 0 && !b.closed {
		b.cond.Wait()
	}
	if b.count == 0 {
		var zero T
		return zero, false
	}
	return b.popLocked(), true
}

// TryReceive removes an item if one is available.
func (b *GrowableBuffer[T]) TryReceive() (T, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == 0 {
		var zero T
		return zero, false
	}
	return b.popLocked(), true
}

// DrainTo removes up to max items (all of them if max <= 0) without blocking.
func (b *GrowableBuffer[T]) DrainTo(max int) []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.count
	if max > 0 && max < n {
		n = max
	}
	if n == 0 {
		return nil
	}

	out := make([]T, n)
	for i := range out {
		out[i] = b.popLocked()
	}
	return out
}

// Close rejects further sends. Queued items can still be received.
func (b *GrowableBuffer[T]) Close() {
	b.mu.Lock()
	b.closed = true
	b.mu.Unlock()
	b.cond.Broadcast()
}

// Closed reports whether Close has been called.
func (b *GrowableBuffer[T]) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Len returns the number of queued items.
func (b *GrowableBuffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Stats returns buffer statistics.
func (b *GrowableBuffer[T]) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BufferStats{
		Count:    b.count,
		Capacity: len(b.ring),
		Sent:     b.sent,
		Received: b.received,
		Resizes:  b.resizes,
	}
}

// popLocked removes the head item. b.mu must be held and count > 0.
func (b *GrowableBuffer[T]) popLocked() T {
	var zero T
	item := b.ring[b.head]
	b.ring[b.head] = zero
	b.head = (b.head + 1) % len(b.ring)
	b.count--
	b.received++
	return item
}

// growLocked doubles the ring, unwrapping queued items to the front.
func (b *GrowableBuffer[T]) growLocked() {
	ring := make([]T, len(b.ring)*2)
	for i := 0; i < b.count; i++ {
		ring[i] = b.ring[(b.head+i)%len(b.ring)]
	}
	b.ring = ring
	b.head = 0
	b.resizes++
}
