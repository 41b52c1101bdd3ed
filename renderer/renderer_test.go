package renderer

import (
	"errors"
	"testing"
	"time"
)

type recordingExecutor struct {
	seen []Action
}

func (e *recordingExecutor) Exec(a Action) error {
	e.seen = append(e.seen, a)
	if cc, ok := a.(ColorCopy); ok {
		cc.Reply <- make([]byte, cc.Args.Width*cc.Args.Height*4)
	}
	if dc, ok := a.(DepthCopy); ok {
		dc.Reply <- make([]uint32, dc.Args.Width*dc.Args.Height)
	}
	return nil
}

func TestActionsProcessedInOrder(t *testing.T) {
	r := New(8)
	exec := &recordingExecutor{}
	r.Start(exec)

	r.Enqueue(Viewport{Width: 640, Height: 528})
	r.Enqueue(SetClearColor{RGBA: 0xFF000000})
	r.Enqueue(Draw{Topology: TopologyTriangles})

	if err := r.Close(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(exec.seen) != 3 {
		t.Fatalf("expected 3 actions processed, got %d", len(exec.seen))
	}
	if _, ok := exec.seen[0].(Viewport); !ok {
		t.Fatalf("expected first action to be Viewport, got %T", exec.seen[0])
	}
	if _, ok := exec.seen[2].(Draw); !ok {
		t.Fatalf("expected third action to be Draw, got %T", exec.seen[2])
	}
}

func TestColorCopyBlocksForReply(t *testing.T) {
	r := New(4)
	r.Start(&recordingExecutor{})

	data, err := r.EnqueueAndWaitBytes(ColorCopy{Args: CopyArgs{Width: 2, Height: 2}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(data) != 2*2*4 {
		t.Fatalf("expected 16 bytes, got %d", len(data))
	}
	r.Close()
}

type failingExecutor struct{}

func (failingExecutor) Exec(a Action) error { return errors.New("boom") }

func TestEnqueueAfterCloseFails(t *testing.T) {
	r := New(1)
	r.Start(&recordingExecutor{})
	if err := r.Close(); err != nil {
		t.Fatalf("unexpected error on close: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- r.Enqueue(Viewport{}) }()
	select {
	case err := <-done:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("expected ErrClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("Enqueue after Close did not return")
	}
}

func TestExecutorErrorSurfacesFromClose(t *testing.T) {
	r := New(4)
	r.Start(failingExecutor{})
	r.Enqueue(Viewport{})

	time.Sleep(10 * time.Millisecond)
	if err := r.Close(); err == nil {
		t.Fatalf("expected executor error to surface from Close")
	}
}
