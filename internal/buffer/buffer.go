package buffer

import (
	"sync"

	"golang.org/x/exp/slices"
)

// Policy selects which events are discarded once a bounded buffer is full.
type Policy int

const (
	// DropNewest rejects incoming events and trims the tail after a requeue.
	DropNewest Policy = iota
	// DropOldest evicts from the head to make room.
	DropOldest
)

// Buffer is an ordered, mutex-guarded queue of pending items.
// A capacity of zero or less means unbounded.
type Buffer[T any] struct {
	mu       sync.Mutex
	items    []T
	capacity int
	policy   Policy
	dropped  uint64
}

// New builds an empty buffer.
func New[T any](capacity int, policy Policy) *Buffer[T] {
	return &Buffer[T]{
		capacity: capacity,
		policy:   policy,
	}
}

// Append adds item to the tail. It returns the length after the append and
// the number of items discarded to honour the capacity.
func (b *Buffer[T]) Append(item T) (length int, dropped int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.capacity > 0 && len(b.items) >= b.capacity {
		if b.policy == DropNewest {
			b.dropped++
			return len(b.items), 1
		}
		var zero T
		b.items[0] = zero
		b.items = b.items[1:]
		dropped = 1
		b.dropped++
	}

	b.items = append(b.items, item)
	return len(b.items), dropped
}

// DrainAll hands the whole content to the caller and leaves the buffer empty.
// It returns nil when there is nothing to drain.
func (b *Buffer[T]) DrainAll() []T {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.items) == 0 {
		return nil
	}

	result := b.items
	b.items = nil
	return result
}

// PrependAll reinserts items at the head, ahead of anything appended since
// they were drained, keeping their internal order. It returns how many items
// were discarded to honour the capacity.
func (b *Buffer[T]) PrependAll(items []T) int {
	if len(items) == 0 {
		return 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.items = slices.Insert(b.items, 0, items...)

	if b.capacity <= 0 || len(b.items) <= b.capacity {
		return 0
	}

	over := len(b.items) - b.capacity
	if b.policy == DropOldest {
		b.items = slices.Clone(b.items[over:])
	} else {
		b.items = slices.Clone(b.items[:b.capacity])
	}
	b.dropped += uint64(over)
	return over
}

// Len is an advisory snapshot of the current length.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// Dropped returns the number of items discarded over the buffer lifetime.
func (b *Buffer[T]) Dropped() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Snapshot copies the current content without changing it.
func (b *Buffer[T]) Snapshot() []T {
	b.mu.Lock()
	defer b.mu.Unlock()
	return slices.Clone(b.items)
}
