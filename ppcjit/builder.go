package ppcjit

import (
	"errors"
	"fmt"

	"github.com/vxpm/lazuli/gekko"
)

// BuilderState tracks where a Builder is in its lifecycle: Emitting
// while instructions are still being scanned and lowered, Flushed once
// Build has produced its Op list and the Builder may not be reused.
type BuilderState uint8

const (
	Emitting BuilderState = iota
	Flushed
)

// BuilderConfig tunes translation-loop behavior that is genuinely a
// policy choice rather than an opcode semantic.
type BuilderConfig struct {
	MaxInstructions int
	TreatSyscallAsNop bool
}

// DefaultBuilderConfig matches the scan limits used across the pack's
// fixed-size translation windows.
func DefaultBuilderConfig() BuilderConfig {
	return BuilderConfig{MaxInstructions: 128}
}

var (
	// ErrAlreadyFlushed is returned by any Builder method called after
	// Build has already run.
	ErrAlreadyFlushed = errors.New("ppcjit: builder already flushed")
	// ErrEmptyBlock is returned by Build when the scan loop produced no
	// instruction at all (MaxInstructions <= 0).
	ErrEmptyBlock = errors.New("ppcjit: builder produced an empty block")
)

// Builder scans guest instructions starting at an address and lowers
// them into an Op list, tracking a register-shadow layer that only
// exists at compile time: there is no runtime shadow state, and nothing
// here survives past Build.
type Builder struct {
	cfg     BuilderConfig
	decoder gekko.Decoder
	emitter gekko.Emitter

	state       BuilderState
	ops         []Op
	seq         Sequence
	start       gekko.Address
	pc          gekko.Address
	fpuGuardSet bool
	pendingFn   gekko.GuestEffect

	// shadow tracks which guest registers have a compile-time-known
	// dirty value pending flush. It never appears in the lowered Op
	// stream directly; flushAll below is what turns it into OpFlushShadow.
	shadow map[int]struct{}
}

// NewBuilder starts scanning at start.
func NewBuilder(cfg BuilderConfig, decoder gekko.Decoder, emitter gekko.Emitter, start gekko.Address) *Builder {
	return &Builder{
		cfg:     cfg,
		decoder: decoder,
		emitter: emitter,
		start:   start,
		pc:      start,
		shadow:  make(map[int]struct{}),
	}
}

// EmitCall implements gekko.BlockAssembler: it appends a host-ABI hook
// call to the Op stream, in program order with the guest effect that
// requested it.
func (b *Builder) EmitCall(h gekko.HookKind, arg uint32) {
	b.ops = append(b.ops, Op{Kind: OpCallHook, Hook: h, Arg: arg, PC: b.pc})
}

// EmitEffect implements gekko.BlockAssembler: it attaches fn as the
// GuestEffect Build appends for the instruction currently being
// emitted.
func (b *Builder) EmitEffect(fn gekko.GuestEffect) { b.pendingFn = fn }

// FPUGuardEmitted implements gekko.BlockAssembler.
func (b *Builder) FPUGuardEmitted() bool { return b.fpuGuardSet }

// SetFPUGuardEmitted implements gekko.BlockAssembler.
func (b *Builder) SetFPUGuardEmitted() { b.fpuGuardSet = true }

// MarkDirty records that reg has a compile-time-known value pending
// flush to the canonical register file before any exception or block
// exit.
func (b *Builder) MarkDirty(reg int) { b.shadow[reg] = struct{}{} }

// flushAll appends an explicit shadow-flush Op if any registers are
// dirty, and clears the compile-time shadow set. Called before any
// exception-check point and at every block exit, per the flush-on-
// exception/flush-on-exit rule.
func (b *Builder) flushAll() {
	if len(b.shadow) == 0 {
		return
	}
	b.ops = append(b.ops, Op{Kind: OpFlushShadow, PC: b.pc})
	b.shadow = make(map[int]struct{})
}

// Build runs the translation loop to completion and returns the
// finished Op list plus the raw Sequence scanned (used by pattern
// detection), consuming the Builder: it becomes Flushed and may not be
// used again.
func (b *Builder) Build(read func(gekko.Address) uint32) ([]Op, Sequence, error) {
	if b.state == Flushed {
		return nil, nil, ErrAlreadyFlushed
	}
	defer func() { b.state = Flushed }()

	for i := 0; i < b.cfg.MaxInstructions; i++ {
		word := read(b.pc)
		decoded := b.decoder.Decode(word)
		b.seq = append(b.seq, decoded)

		meta := b.decoder.Meta(decoded.Op)

		if meta.IsFPU && !b.fpuGuardSet {
			b.ops = append(b.ops, Op{Kind: OpFPUGuard, PC: b.pc})
			b.fpuGuardSet = true
		}

		b.pendingFn = nil
		if err := b.emitter.Emit(b, decoded, b.pc); err != nil {
			return nil, nil, fmt.Errorf("ppcjit: emitting instruction at %v: %w", b.pc, err)
		}

		b.ops = append(b.ops, Op{Kind: OpGuestEffect, PC: b.pc, Cycles: uint32(meta.Cycles), GuestFn: b.pendingFn})

		if meta.RaisesException || meta.PostAction == gekko.PostActionCheckException {
			b.flushAll()
			b.ops = append(b.ops, Op{Kind: OpCheckException, PC: b.pc})
		}

		ended := meta.PostAction == gekko.PostActionEndBlock
		if meta.AutoPCAdvance {
			b.pc = b.pc.Add(4)
		}
		if ended {
			b.flushAll()
			b.ops = append(b.ops, Op{Kind: OpEndBlock, PC: b.pc})
			return b.ops, b.seq, nil
		}
		if b.pc.Page() != b.start.Page() {
			// Page boundary always ends a block: dependency tracking is
			// page-granular, so a block may never straddle an
			// invalidation boundary implicitly.
			b.flushAll()
			b.ops = append(b.ops, Op{Kind: OpEndBlock, PC: b.pc})
			return b.ops, b.seq, nil
		}
	}

	if len(b.seq) == 0 {
		return nil, nil, ErrEmptyBlock
	}
	b.flushAll()
	b.ops = append(b.ops, Op{Kind: OpEndBlock, PC: b.pc})
	return b.ops, b.seq, nil
}
