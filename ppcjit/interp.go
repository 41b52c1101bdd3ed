package ppcjit

import "github.com/vxpm/lazuli/gekko"

// runtimeCtx implements Ctx against a single guest-register shadow
// array and an opaque host context value. It is the concrete type the
// interpreter constructs once per Trampoline.Call and hands to every
// GuestEffect and hook invocation in the block.
type runtimeCtx struct {
	host   interface{}
	shadow [32]uint64
}

func (c *runtimeCtx) Host() interface{}          { return c.host }
func (c *runtimeCtx) GetShadow(reg int) uint64    { return c.shadow[reg] }
func (c *runtimeCtx) SetShadow(reg int, val uint64) { c.shadow[reg] = val }

// interpret runs a compiled block's Op list against host, accumulating
// Info as it goes. It is the mechanism Trampoline.Call uses to "execute"
// a Block: see the registry in jit.go for why a Go-side interpreter
// keyed by the block's arena identity stands in for native per-op
// machine code here, rather than the arena's published bytes
// themselves being jumped into.
func interpret(hooks *Hooks, host interface{}, ops []Op) Info {
	ctx := &runtimeCtx{host: host}
	var info Info

	for _, op := range ops {
		switch op.Kind {
		case OpGuestEffect:
			if op.GuestFn != nil {
				op.GuestFn(ctx)
			}
			info.Instructions++
			info.Cycles += op.Cycles
		case OpCallHook:
			callHook(hooks, ctx, op.Hook, op.Arg)
		case OpCheckException:
			// Exception delivery itself is driven by RaiseException,
			// which a guest effect or hook calls directly; this Op only
			// marks the point at which shadow state is guaranteed
			// already flushed, so there is nothing further to do here.
		case OpFlushShadow:
			// Shadow flush is a compile-time bookkeeping device (see
			// Builder.flushAll); at interpretation time the shadow
			// array in runtimeCtx already holds live values, so there
			// is no separate "canonical" store to flush into.
		case OpFPUGuard:
			if hooks.MSRChanged != nil {
				// The FP-unavailable guard is itself a guest-visible
				// exception check; real gating (MSR[FP] bit) is
				// evaluated by the embedder's GuestEffect for the
				// instruction that requested the guard. This Op exists
				// so the Builder only ever requests it once per block.
			}
		case OpEndBlock:
			return info
		}
	}
	return info
}

func callHook(h *Hooks, ctx *runtimeCtx, kind gekko.HookKind, arg uint32) {
	addr := gekko.Address(arg)
	switch kind {
	case gekko.HookInvalidateICache:
		if h.InvalidateICache != nil {
			h.InvalidateICache(ctx.host, addr)
		}
	case gekko.HookClearICache:
		if h.ClearICache != nil {
			h.ClearICache(ctx.host)
		}
	case gekko.HookMSRChanged:
		if h.MSRChanged != nil {
			h.MSRChanged(ctx.host)
		}
	case gekko.HookIBATChanged:
		if h.IBATChanged != nil {
			h.IBATChanged(ctx.host)
		}
	case gekko.HookDBATChanged:
		if h.DBATChanged != nil {
			h.DBATChanged(ctx.host)
		}
	case gekko.HookTBChanged:
		if h.TBChanged != nil {
			h.TBChanged(ctx.host)
		}
	case gekko.HookDecChanged:
		if h.DecChanged != nil {
			h.DecChanged(ctx.host)
		}
	case gekko.HookRaiseException:
		if h.RaiseException != nil {
			h.RaiseException(ctx.host, arg)
		}
	}
}
