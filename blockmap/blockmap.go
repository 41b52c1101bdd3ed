// Package blockmap tracks where compiled blocks start and which guest
// pages each block's translated instructions were read from, so a guest
// write to code can invalidate exactly the blocks that depend on it.
package blockmap

import (
	"github.com/vxpm/lazuli/gekko"
	"github.com/vxpm/lazuli/sparsetable"
)

const (
	mapL0Bits = 12
	mapL1Bits = 8
	mapL2Bits = 10

	mapL0Len = 1 << mapL0Bits
	mapL1Len = 1 << mapL1Bits
	mapL2Len = 1 << mapL2Bits
)

// BlockID identifies a compiled block for invalidation purposes; owned
// and interpreted by package ppcjit.
type BlockID uint32

// Mapping records where a block starts and how many bytes of guest code
// it covers.
type Mapping struct {
	ID     BlockID
	Length uint32
}

type mapL2 = sparsetable.Table[Mapping]
type mapL1 = sparsetable.Table[mapL2]
type mapL0 = sparsetable.Table[mapL1]

// Table is the three-level sparse block-start map, keyed by
// word-aligned guest address (addr>>2).
type Table struct {
	top *mapL0
}

// NewTable constructs an empty block map.
func NewTable() *Table {
	return &Table{top: sparsetable.New[mapL1](mapL0Len)}
}

func mapIndices(addr gekko.Address) (i0, i1, i2 int) {
	base := uint32(addr) >> 2
	i2 = int(base & (mapL2Len - 1))
	base >>= mapL2Bits
	i1 = int(base & (mapL1Len - 1))
	base >>= mapL1Bits
	i0 = int(base & (mapL0Len - 1))
	return
}

// Insert records that a block starts at start.
func (t *Table) Insert(start gekko.Address, m Mapping) {
	i0, i1, i2 := mapIndices(start)
	l1 := t.top.GetOrInsert(i0, func() *mapL1 { return sparsetable.New[mapL2](mapL1Len) })
	l2 := l1.GetOrInsert(i1, func() *mapL2 { return sparsetable.New[Mapping](mapL2Len) })
	l2.Insert(i2, &m)
}

// Get returns the mapping for a block starting at start, if any.
func (t *Table) Get(start gekko.Address) (Mapping, bool) {
	i0, i1, i2 := mapIndices(start)
	l1 := t.top.Get(i0)
	if l1 == nil {
		return Mapping{}, false
	}
	l2 := l1.Get(i1)
	if l2 == nil {
		return Mapping{}, false
	}
	m := l2.Get(i2)
	if m == nil {
		return Mapping{}, false
	}
	return *m, true
}

// Remove drops the mapping for a block starting at start.
func (t *Table) Remove(start gekko.Address) {
	i0, i1, i2 := mapIndices(start)
	l1 := t.top.Get(i0)
	if l1 == nil {
		return
	}
	l2 := l1.Get(i1)
	if l2 == nil {
		return
	}
	l2.Remove(i2)
}

// Clear empties the whole map.
func (t *Table) Clear() { t.top.Clear() }
