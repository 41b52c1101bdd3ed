package blockmap

import (
	"github.com/vxpm/lazuli/gekko"
	"github.com/vxpm/lazuli/sparsetable"
)

const (
	depsL0Bits = 12
	depsL1Bits = 8

	depsL0Len = 1 << depsL0Bits
	depsL1Len = 1 << depsL1Bits
)

// pageSet is the set of block-start addresses that read translated code
// from a given guest page.
type pageSet map[gekko.Address]struct{}

type depsL1 = sparsetable.Table[pageSet]
type depsL0 = sparsetable.Table[depsL1]

// DepsTable is the two-level sparse dependency table: page number ->
// set of block starts that depend on that page.
type DepsTable struct {
	top *depsL0
}

// NewDepsTable constructs an empty dependency table.
func NewDepsTable() *DepsTable {
	return &DepsTable{top: sparsetable.New[depsL1](depsL0Len)}
}

func depsIndices(page uint32) (i0, i1 int) {
	i1 = int(page & (depsL1Len - 1))
	page >>= depsL1Bits
	i0 = int(page & (depsL0Len - 1))
	return
}

func (t *DepsTable) pageFor(addr gekko.Address, insert bool) *pageSet {
	i0, i1 := depsIndices(addr.Page())
	var l1 *depsL1
	if insert {
		l1 = t.top.GetOrInsert(i0, func() *depsL1 { return sparsetable.New[pageSet](depsL1Len) })
	} else {
		l1 = t.top.Get(i0)
		if l1 == nil {
			return nil
		}
	}
	if insert {
		return l1.GetOrInsert(i1, func() *pageSet { s := make(pageSet); return &s })
	}
	return l1.Get(i1)
}

// Mark records that the block starting at blockStart depends on every
// page spanned by the half-open range [start, end). end is exclusive,
// so a range landing exactly on a page boundary does not mark that
// boundary page.
func (t *DepsTable) Mark(blockStart gekko.Address, start, end gekko.Address) {
	if end <= start {
		return
	}
	for page := start.Page(); page <= (end - 1).Page(); page++ {
		set := t.pageFor(gekko.Address(page*gekko.PageSize), true)
		(*set)[blockStart] = struct{}{}
	}
}

// Unmark removes blockStart's dependency on every page spanned by the
// half-open range [start, end).
func (t *DepsTable) Unmark(blockStart gekko.Address, start, end gekko.Address) {
	if end <= start {
		return
	}
	for page := start.Page(); page <= (end - 1).Page(); page++ {
		set := t.pageFor(gekko.Address(page*gekko.PageSize), false)
		if set == nil {
			continue
		}
		delete(*set, blockStart)
	}
}

// Get returns the block-start addresses that depend on the page
// containing addr.
func (t *DepsTable) Get(addr gekko.Address) []gekko.Address {
	set := t.pageFor(addr, false)
	if set == nil {
		return nil
	}
	out := make([]gekko.Address, 0, len(*set))
	for a := range *set {
		out = append(out, a)
	}
	return out
}

// Clear empties the whole table.
func (t *DepsTable) Clear() { t.top.Clear() }
