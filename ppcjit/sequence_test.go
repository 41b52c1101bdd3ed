package ppcjit

import (
	"testing"

	"github.com/vxpm/lazuli/gekko"
)

func ins(code uint32) gekko.Ins { return gekko.Ins{Code: code} }

func TestDetectPatternIdleBasic(t *testing.T) {
	seq := Sequence{ins(0x4800_0000)}
	if got := seq.DetectPattern(0); got != PatternIdleBasic {
		t.Fatalf("expected PatternIdleBasic, got %v", got)
	}
}

func TestDetectPatternCall(t *testing.T) {
	// b/bl, LK=1, AA=0, LI encodes +0x100 relative offset.
	code := uint32(opB)<<26 | uint32(0x100) | 1
	seq := Sequence{ins(code)}
	if got := seq.DetectPattern(0x1000); got != PatternCall {
		t.Fatalf("expected PatternCall, got %v", got)
	}
}

func TestDetectPatternGetMailboxStatusFunc(t *testing.T) {
	addis := uint32(opAddis)<<26 | (3 << 21) | 0xCC00
	lhz := uint32(opLhz)<<26 | (4 << 21) | (3 << 16) | 0x5000
	rlwinm := uint32(opRlwinm)<<26 | (17 << 11) | (31 << 6) | (31 << 1)
	bclr := uint32(opBclr)<<26 | (20 << 21)

	seq := Sequence{ins(addis), ins(lhz), ins(rlwinm), ins(bclr)}
	if got := seq.DetectPattern(0); got != PatternGetMailboxStatusFunc {
		t.Fatalf("expected PatternGetMailboxStatusFunc, got %v", got)
	}
}

func TestDetectPatternIdleVolatileRead(t *testing.T) {
	load := uint32(opLwz)<<26 | (3 << 21) | (4 << 16)
	cmp := uint32(opCmpi)<<26 | (3 << 16)
	offset := int32(-8)
	branchOffset := uint32(offset) & 0xFFFC
	branch := uint32(opBc)<<26 | branchOffset

	seq := Sequence{ins(load), ins(cmp), ins(branch)}
	if got := seq.DetectPattern(0); got != PatternIdleVolatileRead {
		t.Fatalf("expected PatternIdleVolatileRead, got %v", got)
	}
}

func TestDetectPatternNone(t *testing.T) {
	seq := Sequence{ins(0x1234_5678), ins(0x8765_4321)}
	if got := seq.DetectPattern(0); got != PatternNone {
		t.Fatalf("expected PatternNone, got %v", got)
	}
}
