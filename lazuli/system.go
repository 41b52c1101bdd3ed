// Package lazuli wires every subsystem together into one running
// system: the memory bus, the Gekko JIT and its persistent block cache,
// the scheduler-driven execution driver, its wall-clock pacer, and the
// decoupled GPU renderer. It plays the role the teacher's top-level
// machine-wiring file plays for its own emulated machine.
package lazuli

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/vxpm/lazuli/driver"
	"github.com/vxpm/lazuli/gekko"
	"github.com/vxpm/lazuli/membus"
	"github.com/vxpm/lazuli/ppcjit"
	"github.com/vxpm/lazuli/renderer"
	"github.com/vxpm/lazuli/scheduler"
)

// DefaultMemorySize is used whenever Config.MemorySize is left zero.
const DefaultMemorySize = membus.DefaultMemorySize

// Config bundles everything a System needs from its embedder: the
// ISA's opaque decoder/emitter pair and host ABI hook table stay
// external, exactly as the opcode-semantics boundary requires, while
// System owns every subsystem those collaborators plug into.
type Config struct {
	Decoder gekko.Decoder
	Emitter gekko.Emitter
	Hooks   *ppcjit.Hooks

	Host driver.Host
	DSP  driver.DSP

	MemorySize           int
	CyclesPerMillisecond gekko.Cycles
	LinkSlots            int
	RendererCapacity     int

	// BlockCachePath, when non-empty, opens a persistent block cache at
	// that path and exposes it as System.Cache. The driver compiles
	// through Jit.Compile and does not read or fill that cache itself.
	BlockCachePath string
	HotCacheSize   int

	Logger *log.Logger
}

// NullDSP is a driver.DSP that retires no instructions; embedders that
// have not wired a real DSP core yet can pass this so System.New has
// something to step.
type NullDSP struct{}

// Step implements driver.DSP as a no-op.
func (NullDSP) Step(instructionBudget int) {}

// System owns one running instance: the address space, the JIT and its
// persistent cache, the driver and its pacer, and the renderer's
// bounded action channel. Mu is the single mutex guarding every
// mutable piece the pacer goroutine touches; a caller inspecting state
// from outside that goroutine (a debugger UI) must hold it first.
type System struct {
	Mu *sync.Mutex

	Bus      *membus.Bus
	Jit      *ppcjit.Jit
	Cache    *ppcjit.Cache
	Sched    *scheduler.Scheduler
	Driver   *driver.Driver
	Pacer    *driver.Pacer
	Renderer *renderer.Renderer

	log *log.Logger
}

type jitInvalidator struct{ jit *ppcjit.Jit }

func (j jitInvalidator) InvalidatePage(addr gekko.Address) { j.jit.Invalidate(addr) }

// New constructs a System from cfg: it opens the persistent block cache
// (if configured), builds the JIT and memory bus, and wires the
// execution driver and its pacer. It does not start the pacer goroutine
// or the renderer worker — call Start once the caller has installed an
// Executor.
func New(cfg Config) (*System, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	dsp := cfg.DSP
	if dsp == nil {
		dsp = NullDSP{}
	}

	jit, err := ppcjit.New(ppcjit.DefaultBuilderConfig(), cfg.Decoder, cfg.Emitter, cfg.Hooks)
	if err != nil {
		return nil, fmt.Errorf("lazuli: constructing jit: %w", err)
	}

	var cache *ppcjit.Cache
	if cfg.BlockCachePath != "" {
		cache, err = ppcjit.OpenCache(cfg.BlockCachePath, cfg.HotCacheSize)
		if err != nil {
			return nil, fmt.Errorf("lazuli: opening block cache: %w", err)
		}
	}

	memSize := cfg.MemorySize
	if memSize == 0 {
		memSize = DefaultMemorySize
	}
	bus := membus.New(memSize, jitInvalidator{jit})

	sched := scheduler.New()
	d := driver.New(jit, sched, cfg.Host, dsp, bus.ReadPhysSlow32, cfg.LinkSlots)

	mu := &sync.Mutex{}
	pacer := driver.NewPacer(d, mu, cfg.CyclesPerMillisecond)
	rend := renderer.New(cfg.RendererCapacity)

	return &System{
		Mu:       mu,
		Bus:      bus,
		Jit:      jit,
		Cache:    cache,
		Sched:    sched,
		Driver:   d,
		Pacer:    pacer,
		Renderer: rend,
		log:      logger,
	}, nil
}

// Start launches the renderer's consumer goroutine against exec and the
// pacer's wall-clock goroutine, both running until ctx is cancelled or
// Stop is called.
func (s *System) Start(ctx context.Context, exec renderer.Executor) {
	s.Renderer.Start(exec)
	s.Pacer.Start(ctx)
}

// Stop halts the pacer and drains the renderer, then closes the
// persistent block cache if one was opened. An error from closing the
// renderer is logged rather than returned; an error from closing the
// cache is returned.
func (s *System) Stop() error {
	s.Pacer.Stop()
	if err := s.Renderer.Close(); err != nil {
		s.log.Printf("lazuli: renderer close: %v", err)
	}
	if s.Cache == nil {
		return nil
	}
	if err := s.Cache.Close(); err != nil {
		return fmt.Errorf("lazuli: closing block cache: %w", err)
	}
	return nil
}
