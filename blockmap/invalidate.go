package blockmap

import "github.com/vxpm/lazuli/gekko"

// Tracker owns the block map and its dependency table together, and
// implements the page-write invalidation protocol: a write to any page a
// block's translation touched removes that block's mapping entirely.
// The block's compiled code stays resident in the JIT arena
// (unreachable but never freed); only its reachability through the map
// is revoked.
type Tracker struct {
	Map  *Table
	Deps *DepsTable
}

// NewTracker constructs an empty block map + dependency table pair.
func NewTracker() *Tracker {
	return &Tracker{Map: NewTable(), Deps: NewDepsTable()}
}

// Publish records a freshly compiled block: start is where the block
// begins, m its id/length, and touchedStart/touchedEnd the span of guest
// code it read while translating (its dependency range — not
// necessarily dense, but always coverable by the [start, start+len)
// approximation + any individually decoded fallthrough spans).
func (t *Tracker) Publish(start gekko.Address, m Mapping, touchedStart, touchedEnd gekko.Address) {
	t.Map.Insert(start, m)
	t.Deps.Mark(start, touchedStart, touchedEnd)
}

// InvalidatePage must be called whenever the guest writes to page. It
// removes every block whose translation touched that page from the
// block map, and removes those blocks' dependency entries everywhere
// else they were recorded.
func (t *Tracker) InvalidatePage(page gekko.Address) {
	dependents := t.Deps.Get(page)
	for _, start := range dependents {
		m, ok := t.Map.Get(start)
		if !ok {
			continue
		}
		t.Map.Remove(start)
		end := start.Add(int32(m.Length))
		t.Deps.Unmark(start, start, end)
	}
}

// Clear empties both the map and the dependency table, used when the
// whole icache/block-map state is reset (e.g. a hard CPU reset).
func (t *Tracker) Clear() {
	t.Map.Clear()
	t.Deps.Clear()
}
