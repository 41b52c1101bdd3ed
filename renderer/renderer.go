package renderer

import (
	"errors"
	"fmt"
)

// ErrClosed is returned by Enqueue once the worker goroutine has been
// asked to stop; per the error-handling design this is fatal to the
// caller, since the driver cannot make forward progress without a
// renderer.
var ErrClosed = errors.New("renderer: action channel closed")

// Executor applies one Action to device state. Implementations own all
// GPU resources and must only ever be called from the renderer
// goroutine.
type Executor interface {
	Exec(a Action) error
}

// Renderer owns the bounded action channel and the goroutine draining
// it. The driver is the only permitted sender; Executor is the only
// permitted reader, and it runs exclusively inside Start's goroutine.
type Renderer struct {
	actions chan Action
	stop    chan struct{}
	done    chan struct{}
	errs    chan error
}

// New constructs a Renderer with the given channel capacity. capacity
// bounds how far the driver can run ahead of the GPU before Enqueue
// blocks.
func New(capacity int) *Renderer {
	return &Renderer{
		actions: make(chan Action, capacity),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
		errs:    make(chan error, 1),
	}
}

// Start launches the consumer goroutine against exec. It returns
// immediately; call Close to stop it and observe any error it hit.
func (r *Renderer) Start(exec Executor) {
	go func() {
		defer close(r.done)
		for {
			select {
			case a := <-r.actions:
				if err := r.exec(exec, a); err != nil {
					return
				}
			case <-r.stop:
				r.drain(exec)
				return
			}
		}
	}()
}

func (r *Renderer) drain(exec Executor) {
	for {
		select {
		case a := <-r.actions:
			if err := r.exec(exec, a); err != nil {
				return
			}
		default:
			return
		}
	}
}

func (r *Renderer) exec(exec Executor, a Action) error {
	if err := exec.Exec(a); err != nil {
		wrapped := fmt.Errorf("renderer: executing action: %w", err)
		select {
		case r.errs <- wrapped:
		default:
		}
		return wrapped
	}
	return nil
}

// Enqueue submits a to the renderer. It blocks only for channel
// capacity (or until Close has been called), never for a to actually
// execute, unless a carries a reply channel the caller immediately
// receives from afterward (see EnqueueAndWaitBytes/Words).
func (r *Renderer) Enqueue(a Action) error {
	select {
	case <-r.stop:
		return ErrClosed
	default:
	}
	select {
	case r.actions <- a:
		return nil
	case <-r.stop:
		return ErrClosed
	}
}

// EnqueueAndWaitBytes submits a readback action and blocks for its
// reply, used by ColorCopy. Per the renderer's error-handling design,
// a reply that never arrives (e.g. a device hang) blocks forever by
// intent: no timeout is modeled.
func (r *Renderer) EnqueueAndWaitBytes(a ColorCopy) ([]byte, error) {
	reply := make(chan []byte, 1)
	a.Reply = reply
	if err := r.Enqueue(a); err != nil {
		return nil, err
	}
	return <-reply, nil
}

// EnqueueAndWaitWords submits a readback action and blocks for its
// reply, used by DepthCopy.
func (r *Renderer) EnqueueAndWaitWords(a DepthCopy) ([]uint32, error) {
	reply := make(chan []uint32, 1)
	a.Reply = reply
	if err := r.Enqueue(a); err != nil {
		return nil, err
	}
	return <-reply, nil
}

// Close asks the worker goroutine to drain any already-queued actions
// and exit, then waits for it to do so.
func (r *Renderer) Close() error {
	close(r.stop)
	<-r.done
	select {
	case err := <-r.errs:
		return err
	default:
		return nil
	}
}
