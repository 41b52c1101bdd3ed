package ppcjit

import "github.com/vxpm/lazuli/gekko"

// LinkBudget bounds how many instructions a chain of tail-called blocks
// may run before the follow-link predicate forces control back to the
// driver, so the driver's own instruction/cycle accounting and
// breakpoint polling never starve.
const LinkBudget = 4096

// ShouldFollow decides whether a block should tail-call directly into
// its resolved successor instead of returning to the driver. It refuses
// to follow once the per-slice instruction budget is spent, whenever a
// breakpoint is pending, when the destination has been invalidated
// since the link was resolved, and — unconditionally — for idle
// patterns, so an idle loop always yields a scheduler advance instead
// of spinning the host CPU with it.
func ShouldFollow(executed uint64, pattern Pattern, breakpointPending bool, destInvalidated bool) bool {
	if breakpointPending || destInvalidated {
		return false
	}
	if executed >= LinkBudget {
		return false
	}
	switch pattern {
	case PatternIdleBasic, PatternIdleVolatileRead:
		return false
	default:
		return true
	}
}

// TryLink resolves a pending link record for destination dest by
// looking it up through jit and filling in slot. If no block is
// currently mapped at dest, slot is cleared (Block 0, PatternNone);
// TryLink does not compile the destination. The driver's Exec loop does
// not call it.
func TryLink(jit *Jit, dest gekko.Address, slot *LinkData) {
	block, ok := jit.Lookup(dest)
	if !ok {
		slot.Block = 0
		slot.Pattern = PatternNone
		return
	}
	slot.Block = block.Fn()
	slot.Pattern = block.Meta().Pattern
}

// DestInvalidated reports whether no block is mapped at dest in the
// block map — true once a guest write has invalidated it (or before it
// was ever compiled), in which case the link must not be followed.
func DestInvalidated(jit *Jit, dest gekko.Address) bool {
	_, ok := jit.tracker.Map.Get(dest)
	return !ok
}
