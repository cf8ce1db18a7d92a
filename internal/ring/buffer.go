// Package ring holds the sample queue shared between the cooperative loop
// (producer) and the output timer callback (consumer).
package ring

import "sync/atomic"

const DefaultCapacity = 8192

// Buffer is a fixed-capacity single-producer/single-consumer queue of 16-bit
// samples. head and tail only ever increase; occupancy is head-tail.
type Buffer struct {
	slots []atomic.Int32
	cap   uint64
	head  atomic.Uint64 // written by producer
	tail  atomic.Uint64 // advanced by consumer (and Reset)
}

func New(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		slots: make([]atomic.Int32, capacity),
		cap:   uint64(capacity),
	}
}

// Push appends s. It returns false without touching the buffer when full.
func (b *Buffer) Push(s int16) bool {
	h := b.head.Load()
	if h-b.tail.Load() >= b.cap {
		return false
	}
	b.slots[h%b.cap].Store(int32(s))
	b.head.Store(h + 1)
	return true
}

// Pop removes the oldest sample. It returns false without touching the
// buffer when empty.
func (b *Buffer) Pop() (int16, bool) {
	for {
		t := b.tail.Load()
		if t == b.head.Load() {
			return 0, false
		}
		s := b.slots[t%b.cap].Load()
		// A concurrent Reset moved tail; the sample read above is stale.
		if b.tail.CompareAndSwap(t, t+1) {
			return int16(s), true
		}
	}
}

// Reset drops every queued sample. Safe to call from the producer side while
// the consumer is running.
func (b *Buffer) Reset() {
	for {
		t := b.tail.Load()
		if b.tail.CompareAndSwap(t, b.head.Load()) {
			return
		}
	}
}

func (b *Buffer) Len() int {
	t := b.tail.Load()
	return int(b.head.Load() - t)
}

func (b *Buffer) Cap() int { return int(b.cap) }
