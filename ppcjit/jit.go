package ppcjit

import (
	"fmt"
	"sync/atomic"

	"github.com/vxpm/lazuli/blockmap"
	"github.com/vxpm/lazuli/gekko"
	"github.com/vxpm/lazuli/jitarena"
)

// stubCode is the fixed machine-code payload published into the
// executable arena for every compiled block. Its only job is to prove
// out the full allocate/protect/publish/icache-flush pipeline with a
// single byte that is a bare return on amd64 (on other hosts it is
// never executed). Dispatch into a block's actual translated behavior
// happens through the interpreter registry below, keyed by the stub's
// arena address; this module does not encode per-opcode host machine
// code (opcode semantics are external and opaque, so there is no
// concrete instruction set to target).
var stubCode = []byte{0xC3} // amd64 RET; harmless as inert data on other hosts

// entry is what the block registry actually keeps per published Block:
// the Go-interpretable Op list Trampoline.Call dispatches through.
type entry struct {
	block *Block
	ops   []Op
}

// Jit owns the two arenas, the block map/dependency tracker, and the
// registry mapping a published BlockFn back to its interpretable Op
// list. It holds no instruction cache (the Builder reads guest words
// through the read function passed to Compile) and no persistent block
// cache (a Cache is passed to CompileCached per call).
type Jit struct {
	cfg     BuilderConfig
	decoder gekko.Decoder
	emitter gekko.Emitter
	hooks   *Hooks

	code *jitarena.Allocator
	data *jitarena.Allocator

	tracker *blockmap.Tracker
	nextID  uint32

	registry map[BlockFn]*entry
}

// New constructs a Jit. hooks must be fully populated (see
// Hooks.Validate); decoder and emitter are the embedder's opaque ISA
// implementation.
func New(cfg BuilderConfig, decoder gekko.Decoder, emitter gekko.Emitter, hooks *Hooks) (*Jit, error) {
	if err := hooks.Validate(); err != nil {
		return nil, fmt.Errorf("ppcjit: %w", err)
	}
	return &Jit{
		cfg:      cfg,
		decoder:  decoder,
		emitter:  emitter,
		hooks:    hooks,
		code:     jitarena.NewAllocator(jitarena.ReadExec),
		data:     jitarena.NewAllocator(jitarena.ReadWrite),
		tracker:  blockmap.NewTracker(),
		registry: make(map[BlockFn]*entry),
	}, nil
}

// Lookup returns the already-compiled block starting at addr, if one is
// currently mapped.
func (j *Jit) Lookup(addr gekko.Address) (*Block, bool) {
	m, ok := j.tracker.Map.Get(addr)
	if !ok {
		return nil, false
	}
	for _, e := range j.registry {
		if e.block.id == m.ID {
			return e.block, true
		}
	}
	return nil, false
}

// Compile builds and publishes a new block starting at addr, reading
// guest words through read. linkSlots is the number of reserved
// LinkData records the block's data allocation must hold; the count is
// chosen by the caller, not derived from the scanned instructions.
func (j *Jit) Compile(addr gekko.Address, read func(gekko.Address) uint32, linkSlots int) (*Block, error) {
	b := NewBuilder(j.cfg, j.decoder, j.emitter, addr)
	ops, seq, err := b.Build(read)
	if err != nil {
		return nil, err
	}
	return j.publish(addr, ops, seq, linkSlots)
}

// CompileCached behaves like Compile, but first checks cache for a
// fingerprint match; on a hit it replays Emit over the cached
// instruction sequence (skipping the bus reads Compile would have
// performed) instead of decoding fresh words, and on a miss it compiles
// normally and stores the result under fp for next time.
func (j *Jit) CompileCached(cache *Cache, fp Fingerprint, addr gekko.Address, read func(gekko.Address) uint32, linkSlots int) (*Block, error) {
	if artifact, ok := cache.Get(fp); ok {
		b := NewBuilder(j.cfg, j.decoder, j.emitter, addr)
		i := 0
		ops, seq, err := b.Build(func(gekko.Address) uint32 {
			code := artifact.Seq[i].Code
			i++
			return code
		})
		if err != nil {
			return nil, err
		}
		return j.publish(addr, ops, seq, linkSlots)
	}

	b := NewBuilder(j.cfg, j.decoder, j.emitter, addr)
	ops, seq, err := b.Build(read)
	if err != nil {
		return nil, err
	}
	if err := cache.Insert(fp, Artifact{Seq: seq, Pattern: seq.DetectPattern(addr), TouchedEnd: uint32(addr.Add(int32(len(seq)) * 4))}); err != nil {
		return nil, fmt.Errorf("ppcjit: caching compiled block: %w", err)
	}
	return j.publish(addr, ops, seq, linkSlots)
}

func (j *Jit) publish(addr gekko.Address, ops []Op, seq Sequence, linkSlots int) (*Block, error) {
	pattern := seq.DetectPattern(addr)

	dataSize := linkSlots * int(linkDataSize)
	dataAlloc, err := j.data.AllocateUninit(maxInt(dataSize, 1))
	if err != nil {
		return nil, fmt.Errorf("ppcjit: allocating block data: %w", err)
	}

	codeAlloc, err := j.code.Allocate(stubCode)
	if err != nil {
		return nil, fmt.Errorf("ppcjit: publishing block code: %w", err)
	}

	id := blockmap.BlockID(atomic.AddUint32(&j.nextID, 1))
	touchedEnd := addr.Add(int32(len(seq)) * 4)

	block := &Block{
		id:   id,
		code: codeAlloc,
		data: dataAlloc,
		meta: Meta{Start: addr, Seq: seq, Pattern: pattern, TouchedEnd: touchedEnd},
	}

	j.tracker.Publish(addr, blockmap.Mapping{ID: id, Length: uint32(len(seq) * 4)}, addr, touchedEnd)
	j.registry[block.Fn()] = &entry{block: block, ops: ops}

	return block, nil
}

// Invalidate must be called whenever the guest writes to the page
// containing addr; it drops every block whose translation depended on
// that page from the block map (their arena allocations remain
// resident but unreachable, per the append-only arena design).
func (j *Jit) Invalidate(addr gekko.Address) {
	j.tracker.InvalidatePage(addr)
}

// Run executes the block through the registered interpreter, the
// mechanism backing Trampoline.Call for this Jit (see Jit.Trampoline).
func (j *Jit) Run(host interface{}, fn BlockFn) Info {
	e, ok := j.registry[fn]
	if !ok {
		return Info{}
	}
	return interpret(j.hooks, host, e.ops)
}

// Trampoline returns a Trampoline bound to this Jit's block registry:
// calling it for a given BlockFn looks the block up in the registry and
// interprets its Op list.
func (j *Jit) Trampoline(fn BlockFn) *Trampoline {
	return NewTrampoline(func(ctx interface{}, link *LinkData) Info {
		return j.Run(ctx, fn)
	})
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
