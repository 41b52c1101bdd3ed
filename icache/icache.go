// Package icache implements the guest instruction cache: a three-level
// sparse table of 32-byte cache lines keyed by physical address, backed
// by a slow bus read path on miss.
package icache

import (
	"github.com/vxpm/lazuli/gekko"
	"github.com/vxpm/lazuli/sparsetable"
)

const (
	l0Bits = 8
	l1Bits = 11
	l2Bits = 8

	l0Len = 1 << l0Bits
	l1Len = 1 << l1Bits
	l2Len = 1 << l2Bits

	// lineShift: addresses are 32-byte-line-aligned before indexing.
	lineShift = 5
)

// Line holds the 8 decoded instructions making up one 32-byte cache line.
type Line [8]gekko.Ins

// SlowReader is the bus's slow physical-memory read path. The cache uses
// it only on a line miss; it must never observe fastmem-mapped writes
// that bypass invalidation.
type SlowReader interface {
	ReadPhysSlow32(addr gekko.Address) uint32
}

type l2Table = sparsetable.Table[Line]
type l1Table = sparsetable.Table[l2Table]
type l0Table = sparsetable.Table[l1Table]

// Cache is the three-level sparse instruction cache.
type Cache struct {
	top     *l0Table
	decoder gekko.Decoder
}

// New constructs an empty cache. decoder turns raw words read off the
// bus into opaque Ins values.
func New(decoder gekko.Decoder) *Cache {
	return &Cache{top: sparsetable.New[l1Table](l0Len), decoder: decoder}
}

func indices(addr gekko.Address) (i0, i1, i2, word int) {
	base := uint32(addr) >> lineShift
	i2 = int(base & (l2Len - 1))
	base >>= l2Bits
	i1 = int(base & (l1Len - 1))
	base >>= l1Bits
	i0 = int(base & (l0Len - 1))
	word = int((uint32(addr) & 31) / 4)
	return
}

// Get returns the decoded instruction at physical, populating the owning
// cache line from bus on first access.
func (c *Cache) Get(bus SlowReader, physical gekko.Address) gekko.Ins {
	i0, i1, i2, word := indices(physical)
	l1 := c.top.GetOrInsert(i0, func() *l1Table { return sparsetable.New[l2Table](l1Len) })
	l2 := l1.GetOrInsert(i1, func() *l2Table { return sparsetable.New[Line](l2Len) })
	line := l2.Get(i2)
	if line == nil {
		base := physical.AlignDown(32)
		var fresh Line
		for i := 0; i < 8; i++ {
			word := bus.ReadPhysSlow32(base.Add(int32(i * 4)))
			fresh[i] = c.decoder.Decode(word)
		}
		line = &fresh
		l2.Insert(i2, line)
	}
	return line[word]
}

// Invalidate drops exactly the cache line containing physical, a no-op
// if the line (or any enclosing level) was never populated.
func (c *Cache) Invalidate(physical gekko.Address) {
	i0, i1, i2, _ := indices(physical)
	l1 := c.top.Get(i0)
	if l1 == nil {
		return
	}
	l2 := l1.Get(i1)
	if l2 == nil {
		return
	}
	l2.Remove(i2)
}

// Clear drops every cached line.
func (c *Cache) Clear() {
	c.top.Clear()
}
