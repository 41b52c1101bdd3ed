package ppcjit

import (
	"testing"

	"github.com/vxpm/lazuli/gekko"
)

func TestBuilderStopsAtEndBlock(t *testing.T) {
	mem := map[gekko.Address]uint32{
		0: 0x6000_0000, // ordinary non-ending instruction
		4: 0x4800_0000, // ends the block
	}
	b := NewBuilder(DefaultBuilderConfig(), constDecoder{}, nopEmitter{}, 0)
	ops, seq, err := b.Build(func(a gekko.Address) uint32 { return mem[a] })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(seq) != 2 {
		t.Fatalf("expected 2 instructions scanned, got %d", len(seq))
	}
	lastOp := ops[len(ops)-1]
	if lastOp.Kind != OpEndBlock {
		t.Fatalf("expected last op to be OpEndBlock, got %v", lastOp.Kind)
	}
}

func TestBuilderCannotBeReused(t *testing.T) {
	mem := map[gekko.Address]uint32{0: 0x4800_0000}
	b := NewBuilder(DefaultBuilderConfig(), constDecoder{}, nopEmitter{}, 0)
	if _, _, err := b.Build(func(a gekko.Address) uint32 { return mem[a] }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, _, err := b.Build(func(a gekko.Address) uint32 { return mem[a] }); err != ErrAlreadyFlushed {
		t.Fatalf("expected ErrAlreadyFlushed, got %v", err)
	}
}

func TestBuilderRespectsMaxInstructions(t *testing.T) {
	cfg := BuilderConfig{MaxInstructions: 4}
	b := NewBuilder(cfg, constDecoder{}, nopEmitter{}, 0)
	ops, seq, err := b.Build(func(a gekko.Address) uint32 { return 0x6000_0000 })
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(seq) != 4 {
		t.Fatalf("expected scan capped at 4 instructions, got %d", len(seq))
	}
	if ops[len(ops)-1].Kind != OpEndBlock {
		t.Fatalf("expected forced OpEndBlock at instruction cap")
	}
}
