// Package sparsetable implements the fixed-fanout, lazily-allocated table
// used as the building block for the instruction cache, block mapping and
// dependency tables. A Table[T] is one level; callers nest Tables to get
// the two- and three-level sparse structures those packages need.
package sparsetable

// Table is a fixed-length array of optional entries. Unlike a plain Go
// slice, a Table never grows or shrinks: its length is fixed at
// construction and indices are computed by the caller from bit-slicing a
// guest address. Entries are nil until first written, so a freshly
// constructed Table costs one allocation regardless of how sparse the
// address space it represents is.
type Table[T any] struct {
	entries []*T
}

// New constructs a Table with exactly length slots, all empty.
func New[T any](length int) *Table[T] {
	return &Table[T]{entries: make([]*T, length)}
}

// Get returns the entry at index, or nil if empty.
func (t *Table[T]) Get(index int) *T {
	return t.entries[index]
}

// Insert stores value at index, replacing any previous entry.
func (t *Table[T]) Insert(index int, value *T) {
	t.entries[index] = value
}

// Remove clears the entry at index and returns what was there, if
// anything.
func (t *Table[T]) Remove(index int) *T {
	old := t.entries[index]
	t.entries[index] = nil
	return old
}

// GetOrInsert returns the entry at index, lazily constructing one with
// build() and storing it if the slot was empty.
func (t *Table[T]) GetOrInsert(index int, build func() *T) *T {
	if e := t.entries[index]; e != nil {
		return e
	}
	e := build()
	t.entries[index] = e
	return e
}

// GetOrDefault returns the entry at index, lazily inserting a
// zero-valued T if the slot was empty.
func (t *Table[T]) GetOrDefault(index int) *T {
	return t.GetOrInsert(index, func() *T { var zero T; return &zero })
}

// Clear empties every slot without shrinking the table.
func (t *Table[T]) Clear() {
	for i := range t.entries {
		t.entries[i] = nil
	}
}

// Len returns the fixed number of slots.
func (t *Table[T]) Len() int { return len(t.entries) }
