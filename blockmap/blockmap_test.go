package blockmap

import (
	"testing"

	"github.com/vxpm/lazuli/gekko"
)

func TestInsertGetRemove(t *testing.T) {
	tbl := NewTable()
	start := gekko.Address(0x8000_1000)
	tbl.Insert(start, Mapping{ID: 7, Length: 16})

	got, ok := tbl.Get(start)
	if !ok || got.ID != 7 || got.Length != 16 {
		t.Fatalf("expected {7,16}, got %+v ok=%v", got, ok)
	}

	tbl.Remove(start)
	if _, ok := tbl.Get(start); ok {
		t.Fatalf("expected removal to drop the mapping")
	}
}

func TestDepsMarkUnmarkAcrossPages(t *testing.T) {
	deps := NewDepsTable()
	start := gekko.Address(0x1000)
	end := gekko.Address(0x1000 + gekko.PageSize*2) // end is exclusive and lands on a page boundary: [start, end) spans pages 1 and 2 only, never page 3.

	deps.Mark(start, start, end)
	for _, page := range []uint32{start.Page(), start.Page() + 1} {
		addr := gekko.Address(page * gekko.PageSize)
		found := false
		for _, d := range deps.Get(addr) {
			if d == start {
				found = true
			}
		}
		if !found {
			t.Fatalf("expected page %d to list dependent block %v", page, start)
		}
	}
	if len(deps.Get(gekko.Address(end.Page()*gekko.PageSize))) != 0 {
		t.Fatalf("expected the exclusive-end boundary page %d to not be marked", end.Page())
	}

	deps.Unmark(start, start, end)
	for _, page := range []uint32{start.Page(), start.Page() + 1} {
		addr := gekko.Address(page * gekko.PageSize)
		if len(deps.Get(addr)) != 0 {
			t.Fatalf("expected page %d to be empty after unmark", page)
		}
	}
}

func TestInvalidatePageRemovesOnlyDependentBlocks(t *testing.T) {
	tr := NewTracker()
	blockA := gekko.Address(0x2000)
	blockB := gekko.Address(0x4000)

	tr.Publish(blockA, Mapping{ID: 1, Length: 32}, blockA, blockA.Add(32))
	tr.Publish(blockB, Mapping{ID: 2, Length: 32}, blockB, blockB.Add(32))

	tr.InvalidatePage(gekko.Address(blockA.Page() * gekko.PageSize))

	if _, ok := tr.Map.Get(blockA); ok {
		t.Fatalf("expected blockA to be invalidated")
	}
	if _, ok := tr.Map.Get(blockB); !ok {
		t.Fatalf("expected blockB to remain mapped")
	}
}

func TestInvalidatePageCleansDepsEverywhere(t *testing.T) {
	tr := NewTracker()
	block := gekko.Address(0x1000)
	end := block.Add(int32(gekko.PageSize) * 2)
	tr.Publish(block, Mapping{ID: 1, Length: uint32(gekko.PageSize * 2)}, block, end)

	tr.InvalidatePage(gekko.Address(block.Page() * gekko.PageSize))

	for _, page := range []uint32{block.Page(), block.Page() + 1, end.Page()} {
		addr := gekko.Address(page * gekko.PageSize)
		if len(tr.Deps.Get(addr)) != 0 {
			t.Fatalf("expected deps cleared on page %d after invalidation", page)
		}
	}
}
