package icache

import (
	"testing"

	"github.com/vxpm/lazuli/gekko"
	"github.com/vxpm/lazuli/membus"
)

type fakeBus struct {
	mem   map[gekko.Address]uint32
	reads int
}

func (f *fakeBus) ReadPhysSlow32(addr gekko.Address) uint32 {
	f.reads++
	return f.mem[addr]
}

type passthroughDecoder struct{}

func (passthroughDecoder) Decode(code uint32) gekko.Ins {
	return gekko.Ins{Code: code}
}
func (passthroughDecoder) Meta(op gekko.OpcodeID) gekko.OpcodeMeta { return gekko.OpcodeMeta{} }

func TestGetPopulatesLineOnce(t *testing.T) {
	bus := &fakeBus{mem: map[gekko.Address]uint32{}}
	for i := 0; i < 8; i++ {
		bus.mem[gekko.Address(i*4)] = uint32(0x1000 + i)
	}
	c := New(passthroughDecoder{})

	for i := 0; i < 8; i++ {
		ins := c.Get(bus, gekko.Address(i*4))
		if ins.Code != uint32(0x1000+i) {
			t.Fatalf("word %d: expected 0x%X, got 0x%X", i, 0x1000+i, ins.Code)
		}
	}
	if bus.reads != 8 {
		t.Fatalf("expected exactly 8 slow reads for one line, got %d", bus.reads)
	}

	// Second pass over the same line must not touch the bus again.
	_ = c.Get(bus, gekko.Address(0))
	if bus.reads != 8 {
		t.Fatalf("expected cached line to avoid further reads, got %d total reads", bus.reads)
	}
}

func TestInvalidateDropsOnlyOneLine(t *testing.T) {
	bus := &fakeBus{mem: map[gekko.Address]uint32{}}
	c := New(passthroughDecoder{})
	_ = c.Get(bus, gekko.Address(0))
	_ = c.Get(bus, gekko.Address(32))
	before := bus.reads

	c.Invalidate(gekko.Address(0))
	_ = c.Get(bus, gekko.Address(0))
	_ = c.Get(bus, gekko.Address(32))

	if bus.reads != before+8 {
		t.Fatalf("expected exactly one line (8 words) re-read, got %d new reads", bus.reads-before)
	}
}

func TestInvalidateOnUnpopulatedIsNoop(t *testing.T) {
	c := New(passthroughDecoder{})
	c.Invalidate(gekko.Address(0x10000))
}

func TestGetPastMainMemoryReturnsZeroFilledLineWithoutFaulting(t *testing.T) {
	bus := membus.New(membus.DefaultMemorySize, nil)
	c := New(passthroughDecoder{})

	addr := gekko.Address(membus.DefaultMemorySize + 0x40)
	for i := 0; i < 8; i++ {
		ins := c.Get(bus, addr.Add(int32(i*4)))
		if ins.Code != 0 {
			t.Fatalf("word %d past main memory: expected 0, got %#x", i, ins.Code)
		}
	}
}

func TestClearDropsEverything(t *testing.T) {
	bus := &fakeBus{mem: map[gekko.Address]uint32{}}
	c := New(passthroughDecoder{})
	_ = c.Get(bus, gekko.Address(0))
	before := bus.reads
	c.Clear()
	_ = c.Get(bus, gekko.Address(0))
	if bus.reads != before+8 {
		t.Fatalf("expected full repopulation after Clear")
	}
}
