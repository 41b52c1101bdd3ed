// Package ppcjit implements the Gekko dynamic binary translator: block
// building and pattern detection, the executable-block ABI, linking, and
// the persistent block cache. Real PowerPC opcode semantics are never
// implemented here — every opcode's effect is supplied externally
// through a gekko.Emitter, and this package only knows the state-machine
// shape translation must follow.
package ppcjit

import (
	"unsafe"

	"github.com/vxpm/lazuli/blockmap"
	"github.com/vxpm/lazuli/gekko"
	"github.com/vxpm/lazuli/jitarena"
)

// Pattern classifies a compiled block's instruction sequence for the
// linker's follow-link heuristics. Detection order matters: IdleBasic is
// checked before Call, which is checked before the mailbox helper, which
// is checked before the generic idle-volatile-read shape, since a
// sequence can only ever match the first applicable pattern.
type Pattern uint8

const (
	PatternNone Pattern = iota
	PatternIdleBasic
	PatternCall
	PatternIdleVolatileRead
	PatternGetMailboxStatusFunc
)

func (p Pattern) String() string {
	switch p {
	case PatternIdleBasic:
		return "idle-basic"
	case PatternCall:
		return "call"
	case PatternIdleVolatileRead:
		return "idle-volatile-read"
	case PatternGetMailboxStatusFunc:
		return "get-mailbox-status-func"
	default:
		return "none"
	}
}

// Info is updated by a compiled block only at its exit points, never
// mid-block, so a caller observing it between Trampoline.Call
// invocations always sees a value consistent with "this many
// instructions/cycles were retired since the block started."
type Info struct {
	Instructions uint32
	Cycles       uint32
}

// Executed accumulates Info across possibly many linked blocks run back
// to back by the driver within a single Exec slice.
type Executed struct {
	Instructions uint64
	Cycles       uint64
}

// Add folds one block's Info into the running total.
func (e *Executed) Add(i Info) {
	e.Instructions += uint64(i.Instructions)
	e.Cycles += uint64(i.Cycles)
}

// Meta is everything known about a compiled block besides its machine
// code: the guest instruction sequence it was built from, its detected
// pattern, and (when built with diagnostics enabled) disassembly text.
type Meta struct {
	Start      gekko.Address
	Seq        Sequence
	Pattern    Pattern
	Cycles     uint32
	Disasm     string
	TouchedEnd gekko.Address
}

// linkDataSize is the stride between reserved link-record slots in a
// block's data allocation.
var linkDataSize = unsafe.Sizeof(LinkData{})

// LinkData sits in a block's data allocation at a reserved slot per
// branch site: once resolved, it lets the block tail-call directly into
// its successor without going back through the driver.
type LinkData struct {
	Block   BlockFn
	Pattern Pattern
}

// BlockFn is an opaque handle to a published block's entry point. Its
// validity is guaranteed for the process's lifetime once obtained from
// Block.Fn, because the arena that owns it is append-only.
type BlockFn uintptr

// Block is one compiled unit: an immutable span of machine code in the
// executable arena, plus its metadata and its data allocation (shadow
// register spill slots and link records).
type Block struct {
	id   blockmap.BlockID
	code jitarena.Allocation
	data jitarena.Allocation
	meta Meta
}

// Fn returns the block's callable entry point.
func (b *Block) Fn() BlockFn { return BlockFn(b.code.Ptr()) }

// Meta returns the block's metadata.
func (b *Block) Meta() *Meta { return &b.meta }

// ID returns the block's identity in the block map / dependency table.
func (b *Block) ID() blockmap.BlockID { return b.id }

// LinkSlot returns a pointer to the reserved link record at the given
// branch-site index within this block's data allocation.
func (b *Block) LinkSlot(index int) *LinkData {
	stride := int(unsafe.Sizeof(LinkData{}))
	off := index * stride
	return (*LinkData)(unsafe.Pointer(&b.data.Bytes()[off]))
}

// TrampolineFn is the calling convention a compiled block is invoked
// through: it receives the opaque host context and the link data for
// the branch site the driver entered through, and returns the Info the
// block retired before exiting. The host ABI's C-shaped argument list
// (Info*, Context*, LinkData*) collapses to this signature here because
// execution is dispatched through Jit.Run's registry rather than by
// jumping a native PC into the arena (see the stubCode comment in
// jit.go);
// a future native-codegen backend would keep this Go-facing signature
// and only change what sits behind it.
type TrampolineFn func(ctx interface{}, link *LinkData) Info

// Trampoline invokes a BlockFn with the host ABI's argument shape and
// returns the Info the block wrote on exit.
type Trampoline struct {
	call TrampolineFn
}

// NewTrampoline builds a trampoline bound to call.
func NewTrampoline(call TrampolineFn) *Trampoline {
	return &Trampoline{call: call}
}

// Call invokes the bound TrampolineFn and returns the Info it produced.
func (t *Trampoline) Call(ctx interface{}, link *LinkData) Info {
	return t.call(ctx, link)
}
