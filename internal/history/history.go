// Package history keeps a bounded, linear undo/redo timeline of snapshots.
//
// A History is not safe for concurrent use; the owning session serializes
// access.
package history

import "slices"

// DefaultCapacity is the number of snapshots kept when none is configured
const DefaultCapacity = 50

// History is a timeline of snapshots with a cursor at the present entry
type History[T any] struct {
	entries  []T
	cursor   int
	capacity int
	equal    func(a, b T) bool
}

// New starts a timeline holding only initial. equal decides whether a new
// value is a real change; capacity <= 0 selects DefaultCapacity.
func New[T any](initial T, equal func(a, b T) bool, capacity int) *History[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &History[T]{
		entries:  []T{initial},
		capacity: capacity,
		equal:    equal,
	}
}

type setOptions struct {
	skipHistory bool
}

// SetOption modifies a single Set call
type SetOption func(*setOptions)

// SkipHistory overwrites the present entry instead of appending one. Used for
// intermediate states of continuous gestures.
func SkipHistory() SetOption {
	return func(o *setOptions) { o.skipHistory = true }
}

// Set makes next the present value and reports whether a new entry was
// appended. A value equal to the present one appends nothing but still
// replaces the stored value, keeping data the equality ignores.
func (h *History[T]) Set(next T, opts ...SetOption) bool {
	var o setOptions
	for _, opt := range opts {
		opt(&o)
	}

	if o.skipHistory || h.equal(h.entries[h.cursor], next) {
		h.entries[h.cursor] = next
		return false
	}

	clear(h.entries[h.cursor+1:])
	h.entries = append(h.entries[:h.cursor+1], next)
	h.cursor++

	if over := len(h.entries) - h.capacity; over > 0 {
		h.entries = slices.Clone(h.entries[over:])
		h.cursor -= over
	}
	return true
}

// Update applies fn to the present value and sets the result
func (h *History[T]) Update(fn func(T) T, opts ...SetOption) bool {
	return h.Set(fn(h.Present()), opts...)
}

// Undo moves the cursor back one entry. It is a no-op at the oldest entry.
func (h *History[T]) Undo() bool {
	if !h.CanUndo() {
		return false
	}
	h.cursor--
	return true
}

// Redo moves the cursor forward one entry. It is a no-op at the newest entry.
func (h *History[T]) Redo() bool {
	if !h.CanRedo() {
		return false
	}
	h.cursor++
	return true
}

// Reset discards the timeline and starts a new one holding only state
func (h *History[T]) Reset(state T) {
	h.entries = []T{state}
	h.cursor = 0
}

// Present returns the value at the cursor
func (h *History[T]) Present() T {
	return h.entries[h.cursor]
}

func (h *History[T]) CanUndo() bool { return h.cursor > 0 }
func (h *History[T]) CanRedo() bool { return h.cursor < len(h.entries)-1 }
func (h *History[T]) Len() int      { return len(h.entries) }
func (h *History[T]) Cursor() int   { return h.cursor }
func (h *History[T]) Capacity() int { return h.capacity }
