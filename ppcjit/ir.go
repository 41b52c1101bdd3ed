package ppcjit

import "github.com/vxpm/lazuli/gekko"

// Op is one lowered IR instruction inside a block under construction. A
// Builder never executes guest opcode semantics itself — every Op here
// is either host-ABI plumbing (hook calls, exception checks, shadow
// flushes) the state machine owns, or an opaque "GuestEffect" slot an
// Emitter fills in with whatever it needs done for one decoded
// instruction.
type Op struct {
	Kind    OpKind
	Hook    gekko.HookKind
	Arg     uint32
	PC      gekko.Address
	Cycles  uint32
	GuestFn gekko.GuestEffect
}

// Ctx and GuestEffect are this package's names for the runtime-context
// and guest-effect-callback types an Emitter works with; both are
// defined in package gekko since gekko.BlockAssembler is where an
// Emitter actually attaches one.
type Ctx = gekko.Ctx
type GuestEffect = gekko.GuestEffect

// OpKind distinguishes the state-machine-owned Ops from guest-effect
// slots.
type OpKind uint8

const (
	OpGuestEffect OpKind = iota
	OpCallHook
	OpCheckException
	OpFlushShadow
	OpFPUGuard
	OpEndBlock
)
