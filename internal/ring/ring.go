// Package ring implements a fixed-capacity ring buffer with O(1) append
// and silent oldest-eviction. It backs the permission audit log and the
// scheduler execution history, replacing periodic slice rotation.
package ring

// Buffer is a fixed-capacity ring. Zero value is not usable; use New.
//
// Not safe for concurrent use; callers own synchronization, matching the
// single-writer model of the engine.
type Buffer[T any] struct {
	items []T
	head  int // index of oldest element
	count int
}

// New creates a buffer with the given capacity. Capacity must be > 0.
func New[T any](capacity int) *Buffer[T] {
	if capacity <= 0 {
		panic("ring: capacity must be positive")
	}
	return &Buffer[T]{items: make([]T, capacity)}
}

// Append adds an item, evicting the oldest if the buffer is full.
func (b *Buffer[T]) Append(item T) {
	if b.count < len(b.items) {
		b.items[(b.head+b.count)%len(b.items)] = item
		b.count++
		return
	}
	// Full: overwrite oldest and advance head.
	b.items[b.head] = item
	b.head = (b.head + 1) % len(b.items)
}

// Len returns the number of retained items.
func (b *Buffer[T]) Len() int {
	return b.count
}

// Cap returns the fixed capacity.
func (b *Buffer[T]) Cap() int {
	return len(b.items)
}

// Snapshot returns retained items oldest-first as a fresh slice.
func (b *Buffer[T]) Snapshot() []T {
	out := make([]T, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.items[(b.head+i)%len(b.items)]
	}
	return out
}

// Each calls fn for every retained item, oldest-first.
func (b *Buffer[T]) Each(fn func(T)) {
	for i := 0; i < b.count; i++ {
		fn(b.items[(b.head+i)%len(b.items)])
	}
}
