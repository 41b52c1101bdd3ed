package driver

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/vxpm/lazuli/gekko"
)

// pacerStep is the pacer's wall-clock sampling granularity.
const pacerStep = time.Millisecond

// maxFrameBacklog bounds how far behind wall-clock time the pacer is
// willing to let the emulated clock fall before it drops the backlog
// outright, rather than asking Exec to catch up across an unbounded
// cycle budget in one call.
const maxFrameBacklog = 16 * time.Millisecond

// Pacer is the wall-clock throttling goroutine: it sleeps in 1ms
// steps, then acquires the shared system mutex and asks the Driver to
// execute the elapsed cycles. Any inspection of system state (the UI, a
// debugger) must hold the same mutex to ever observe the system between driver
// slices.
type Pacer struct {
	driver               *Driver
	mu                   *sync.Mutex
	cyclesPerMillisecond gekko.Cycles
	breakpoints          map[gekko.Address]struct{}

	advance atomic.Bool
	cancel  context.CancelFunc
	done    chan struct{}

	lastErr error
}

// NewPacer constructs a Pacer driving driver, holding mu for each
// slice, at the given emulated-cycles-per-wall-clock-millisecond rate.
func NewPacer(driver *Driver, mu *sync.Mutex, cyclesPerMillisecond gekko.Cycles) *Pacer {
	return &Pacer{driver: driver, mu: mu, cyclesPerMillisecond: cyclesPerMillisecond, breakpoints: make(map[gekko.Address]struct{})}
}

// SetBreakpoints replaces the address set Exec checks against. The
// caller must hold mu.
func (p *Pacer) SetBreakpoints(addrs map[gekko.Address]struct{}) {
	p.breakpoints = addrs
}

// Start launches the pacing goroutine with advance=true. ctx's
// cancellation, or a subsequent Stop, ends it.
func (p *Pacer) Start(ctx context.Context) {
	p.advance.Store(true)
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx)
}

// Stop cancels the pacing goroutine and waits for it to exit.
func (p *Pacer) Stop() {
	if p.cancel == nil {
		return
	}
	p.cancel()
	<-p.done
}

// Pause clears the advance flag without stopping the goroutine; the
// pacer keeps sampling wall-clock time but skips calling Exec, so no
// backlog accrues while paused.
func (p *Pacer) Pause() { p.advance.Store(false) }

// Resume sets the advance flag and acknowledges any breakpoint the
// driver stopped on.
func (p *Pacer) Resume() {
	p.mu.Lock()
	p.driver.ClearBreakpointPending()
	p.mu.Unlock()
	p.advance.Store(true)
}

// LastError returns the error from the most recent Exec call that
// failed, if any.
func (p *Pacer) LastError() error { return p.lastErr }

func (p *Pacer) run(ctx context.Context) {
	defer close(p.done)

	ticker := time.NewTicker(pacerStep)
	defer ticker.Stop()

	last := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			elapsed := now.Sub(last)
			if elapsed > maxFrameBacklog {
				// Drop the backlog rather than ask Exec to catch up across
				// an unbounded cycle budget.
				last = now.Add(-pacerStep)
				elapsed = pacerStep
			}
			last = last.Add(elapsed)

			if !p.advance.Load() {
				continue
			}

			cycles := gekko.Cycles(elapsed.Milliseconds()) * p.cyclesPerMillisecond
			if cycles == 0 {
				continue
			}

			p.mu.Lock()
			result, err := p.driver.Exec(cycles, p.breakpoints)
			p.mu.Unlock()

			if err != nil {
				p.lastErr = err
				p.advance.Store(false)
				continue
			}
			if result.HitBreakpoint {
				p.advance.Store(false)
			}
		}
	}
}
