package driver

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/vxpm/lazuli/gekko"
)

func newTestPacer(t *testing.T, program map[gekko.Address]uint32, cyclesPerMillisecond gekko.Cycles) (*Pacer, *fakeHost) {
	t.Helper()
	d, host, _ := newTestDriver(t, program)
	mu := &sync.Mutex{}
	return NewPacer(d, mu, cyclesPerMillisecond), host
}

func TestPacerAdvancesClock(t *testing.T) {
	program := map[gekko.Address]uint32{
		0x00: branchTo(0x40),
		0x40: branchTo(0x00),
	}
	p, _ := newTestPacer(t, program, 1000)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	time.Sleep(30 * time.Millisecond)
	p.Stop()

	if p.driver.Clock() == 0 {
		t.Fatalf("expected the pacer to have advanced the driver's clock")
	}
}

func TestPacerPauseStopsAdvancing(t *testing.T) {
	program := map[gekko.Address]uint32{
		0x00: branchTo(0x40),
		0x40: branchTo(0x00),
	}
	p, _ := newTestPacer(t, program, 1000)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	time.Sleep(10 * time.Millisecond)
	p.Pause()

	clockAtPause := p.driver.Clock()
	time.Sleep(15 * time.Millisecond)
	if p.driver.Clock() != clockAtPause {
		t.Fatalf("expected the clock to stay put while paused, went from %d to %d", clockAtPause, p.driver.Clock())
	}

	p.Resume()
	time.Sleep(10 * time.Millisecond)
	p.Stop()
	if p.driver.Clock() == clockAtPause {
		t.Fatalf("expected Resume to let the clock advance again")
	}
}

func TestPacerStopsOnBreakpoint(t *testing.T) {
	program := map[gekko.Address]uint32{
		0x00: branchTo(0x40),
		0x40: branchTo(0x00),
	}
	p, _ := newTestPacer(t, program, 1000)
	p.SetBreakpoints(map[gekko.Address]struct{}{0x40: {}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	time.Sleep(20 * time.Millisecond)

	if p.advance.Load() {
		t.Fatalf("expected the pacer to clear its advance flag once the driver hit a breakpoint")
	}
	clockAtStop := p.driver.Clock()
	time.Sleep(15 * time.Millisecond)
	if p.driver.Clock() != clockAtStop {
		t.Fatalf("expected the clock to stay put once stopped on a breakpoint")
	}
	p.Stop()
}
