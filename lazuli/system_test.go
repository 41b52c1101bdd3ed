package lazuli

import (
	"context"
	"testing"
	"time"

	"github.com/vxpm/lazuli/gekko"
	"github.com/vxpm/lazuli/ppcjit"
	"github.com/vxpm/lazuli/renderer"
)

type stubHost struct{ pc gekko.Address }

func (h *stubHost) PC() gekko.Address { return h.pc }

type idleDecoder struct{}

func (idleDecoder) Decode(code uint32) gekko.Ins { return gekko.Ins{Code: code, Op: gekko.OpcodeID(code)} }
func (idleDecoder) Meta(op gekko.OpcodeID) gekko.OpcodeMeta {
	return gekko.OpcodeMeta{Cycles: 1, PostAction: gekko.PostActionEndBlock}
}

type idleEmitter struct{}

func (idleEmitter) Emit(b gekko.BlockAssembler, ins gekko.Ins, pc gekko.Address) error {
	b.EmitEffect(func(ctx gekko.Ctx) { ctx.Host().(*stubHost).pc = pc })
	return nil
}

func testHooks() *ppcjit.Hooks {
	return &ppcjit.Hooks{
		GetRegisters:     func(interface{}) []uint64 { return nil },
		GetFastmem:       func(interface{}) *gekko.FastmemLut { return nil },
		FollowLink:       func(interface{}, ppcjit.Info) bool { return false },
		TryLink:          func(interface{}, gekko.Address) *ppcjit.LinkData { return nil },
		ReadI8:           func(interface{}, gekko.Address) (int8, bool) { return 0, true },
		ReadI16:          func(interface{}, gekko.Address) (int16, bool) { return 0, true },
		ReadI32:          func(interface{}, gekko.Address) (int32, bool) { return 0, true },
		ReadI64:          func(interface{}, gekko.Address) (int64, bool) { return 0, true },
		WriteI8:          func(interface{}, gekko.Address, int8) bool { return true },
		WriteI16:         func(interface{}, gekko.Address, int16) bool { return true },
		WriteI32:         func(interface{}, gekko.Address, int32) bool { return true },
		WriteI64:         func(interface{}, gekko.Address, int64) bool { return true },
		ReadQuantized:    func(interface{}, gekko.Address, uint8) (float64, uint8) { return 0, 4 },
		WriteQuantized:   func(interface{}, gekko.Address, uint8, float64) uint8 { return 4 },
		InvalidateICache: func(interface{}, gekko.Address) {},
		ClearICache:      func(interface{}) {},
		DCacheDMA:        func(interface{}, gekko.Address, uint32) {},
		MSRChanged:       func(interface{}) {},
		IBATChanged:      func(interface{}) {},
		DBATChanged:      func(interface{}) {},
		TBRead:           func(interface{}) uint64 { return 0 },
		TBChanged:        func(interface{}) {},
		DecRead:          func(interface{}) uint32 { return 0 },
		DecChanged:       func(interface{}) {},
		RaiseException:   func(interface{}, uint32) {},
	}
}

type stubExecutor struct{ n int }

func (e *stubExecutor) Exec(a renderer.Action) error {
	e.n++
	return nil
}

func TestSystemStartStop(t *testing.T) {
	host := &stubHost{}
	sys, err := New(Config{
		Decoder:              idleDecoder{},
		Emitter:              idleEmitter{},
		Hooks:                testHooks(),
		Host:                 host,
		MemorySize:           4096,
		CyclesPerMillisecond: 1000,
		LinkSlots:            1,
		RendererCapacity:     4,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	exec := &stubExecutor{}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sys.Start(ctx, exec)

	if err := sys.Renderer.Enqueue(renderer.SetClearColor{RGBA: 0xFF000000}); err != nil {
		t.Fatalf("unexpected error enqueuing action: %v", err)
	}
	time.Sleep(20 * time.Millisecond)

	if err := sys.Stop(); err != nil {
		t.Fatalf("unexpected error stopping system: %v", err)
	}
	if exec.n == 0 {
		t.Fatalf("expected the renderer to have executed the queued action")
	}
}

func TestSystemWithoutDSPUsesNullDSP(t *testing.T) {
	host := &stubHost{}
	sys, err := New(Config{
		Decoder:          idleDecoder{},
		Emitter:          idleEmitter{},
		Hooks:            testHooks(),
		Host:             host,
		MemorySize:       4096,
		LinkSlots:        1,
		RendererCapacity: 1,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sys.Mu.Lock()
	defer sys.Mu.Unlock()
	if _, err := sys.Driver.Exec(10, nil); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
