// Package driver implements the execution driver: the six-step
// interleaving of JIT execution, DSP stepping and scheduler advance
// described by the core's execution loop, plus the wall-clock Pacer
// that drives it from a background goroutine.
package driver

import (
	"fmt"

	"github.com/vxpm/lazuli/gekko"
	"github.com/vxpm/lazuli/ppcjit"
	"github.com/vxpm/lazuli/scheduler"
)

// DSPStepCycles is the fixed DSP-cycle quantum the driver steps the DSP
// core by once enough CPU cycles have accrued (scaled through
// gekko.CPUCyclesPerDSPCycle).
const DSPStepCycles gekko.Cycles = 512

const dspStepCPUCycles = DSPStepCycles * gekko.CPUCyclesPerDSPCycle

// dspInstructionBudget bounds how much DSP work runs per step; the DSP
// core's own opcode semantics are as external to this module as the
// Gekko's are.
const dspInstructionBudget = 64

// Host is the narrow surface the driver needs from the embedder's CPU
// state: where execution currently stands. It is also the opaque ctx
// value threaded through to every compiled block's hooks.
type Host interface {
	PC() gekko.Address
}

// DSP is the narrow surface the driver needs from the embedded DSP
// core.
type DSP interface {
	Step(instructionBudget int)
}

// Result reports what a single Exec call accomplished.
type Result struct {
	Instructions  uint64
	Cycles        gekko.Cycles
	HitBreakpoint bool
}

// Driver owns the JIT, the scheduler, and the guest-code read path; it
// implements the driver-thread-local loop that advances all of guest
// time.
type Driver struct {
	jit       *ppcjit.Jit
	sched     *scheduler.Scheduler
	host      Host
	dsp       DSP
	read      func(gekko.Address) uint32
	linkSlots int

	clock             gekko.Cycles
	dspCarry          gekko.Cycles
	breakpointPending bool
}

// New constructs a Driver. read fetches guest words for the JIT's
// translation path; linkSlots bounds how many branch sites a single
// compiled block may reserve link data for.
func New(jit *ppcjit.Jit, sched *scheduler.Scheduler, host Host, dsp DSP, read func(gekko.Address) uint32, linkSlots int) *Driver {
	return &Driver{jit: jit, sched: sched, host: host, dsp: dsp, read: read, linkSlots: linkSlots}
}

// Clock returns the driver's absolute cycle count, the clock the
// scheduler's deadlines are measured against.
func (d *Driver) Clock() gekko.Cycles { return d.clock }

// ResetClock forcibly sets the driver's absolute clock. The pacer does
// not call it: it drops an accumulated wall-clock backlog by moving its
// own wall-clock reference instead.
func (d *Driver) ResetClock(c gekko.Cycles) { d.clock = c }

// BreakpointPending reports whether the most recent Exec call stopped
// because a breakpoint address was reached, rather than because its
// cycle budget was exhausted.
func (d *Driver) BreakpointPending() bool { return d.breakpointPending }

// ClearBreakpointPending acknowledges a pending breakpoint. The pacer
// calls this when resuming after a stop.
func (d *Driver) ClearBreakpointPending() { d.breakpointPending = false }

func (d *Driver) blockAt(pc gekko.Address) (*ppcjit.Block, error) {
	if block, ok := d.jit.Lookup(pc); ok {
		return block, nil
	}
	block, err := d.jit.Compile(pc, d.read, d.linkSlots)
	if err != nil {
		return nil, fmt.Errorf("driver: compiling block at %s: %w", pc, err)
	}
	return block, nil
}

// Exec runs guest code until budget cycles have elapsed or a
// breakpoint address is reached.
//
// Each outer iteration computes how far execution may run before the
// nearest of three limits: the remaining budget, the next scheduled
// event, or the next DSP step boundary. Within that span it keeps
// calling into the JIT, tail-chaining from one compiled block directly
// into the next exactly as long as ShouldFollow allows, before
// accruing DSP work and draining due scheduler events and looping.
func (d *Driver) Exec(budget gekko.Cycles, breakpoints map[gekko.Address]struct{}) (Result, error) {
	var result Result

	for result.Cycles < budget {
		pc := d.host.PC()
		if _, hit := breakpoints[pc]; hit {
			result.HitBreakpoint = true
			d.breakpointPending = true
			break
		}

		canExecute := minCycles(budget-result.Cycles, d.sched.UntilNext(d.clock), dspStepCPUCycles-d.dspCarry)
		if canExecute == 0 {
			canExecute = 1
		}

		var sliceCycles gekko.Cycles
		var sliceInstructions uint64
		follow := true

		for follow && sliceCycles < canExecute {
			block, err := d.blockAt(pc)
			if err != nil {
				return result, err
			}

			info := d.jit.Run(d.host, block.Fn())
			sliceInstructions += uint64(info.Instructions)
			executed := gekko.Cycles(info.Cycles)
			if executed == 0 {
				// An idle pattern still must retire at least one cycle of
				// progress, or the outer loop never terminates.
				executed = 1
			}
			sliceCycles += executed

			nextPC := d.host.PC()
			if _, hit := breakpoints[nextPC]; hit {
				result.HitBreakpoint = true
				d.breakpointPending = true
				follow = false
			} else {
				destInvalidated := ppcjit.DestInvalidated(d.jit, nextPC)
				follow = sliceCycles < canExecute &&
					ppcjit.ShouldFollow(sliceInstructions, block.Meta().Pattern, d.breakpointPending, destInvalidated)
			}
			pc = nextPC
		}

		result.Instructions += sliceInstructions
		result.Cycles += sliceCycles
		d.clock += sliceCycles

		d.dspCarry += sliceCycles
		for d.dspCarry >= dspStepCPUCycles {
			d.dsp.Step(dspInstructionBudget)
			d.dspCarry -= dspStepCPUCycles
		}

		d.sched.Advance(d.clock)

		if result.HitBreakpoint {
			break
		}
	}

	return result, nil
}

func minCycles(values ...gekko.Cycles) gekko.Cycles {
	min := values[0]
	for _, v := range values[1:] {
		if v < min {
			min = v
		}
	}
	return min
}
