// Package scheduler implements the driver-thread-local deadline event
// queue: a min-heap of (deadline cycle, handler) pairs with no
// synchronization, since it is only ever touched from the driver
// goroutine.
package scheduler

import (
	"container/heap"

	"github.com/vxpm/lazuli/gekko"
)

// Handler runs when a scheduled event's deadline is reached or passed.
// cyclesLate is now-deadline: zero if the event fired exactly on time,
// positive if the driver was busy running a block past the deadline.
type Handler func(cyclesLate gekko.Cycles)

type event struct {
	deadline gekko.Cycles
	handler  Handler
}

type eventHeap []event

func (h eventHeap) Len() int            { return len(h) }
func (h eventHeap) Less(i, j int) bool  { return h[i].deadline < h[j].deadline }
func (h eventHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *eventHeap) Push(x interface{}) { *h = append(*h, x.(event)) }
func (h *eventHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// Scheduler is a min-heap of pending events ordered by deadline cycle.
// It must only be used from a single goroutine; the driver owns it.
type Scheduler struct {
	heap eventHeap
}

// New constructs an empty scheduler.
func New() *Scheduler {
	s := &Scheduler{}
	heap.Init(&s.heap)
	return s
}

// Schedule adds an event that fires once the system clock reaches
// deadline.
func (s *Scheduler) Schedule(deadline gekko.Cycles, h Handler) {
	heap.Push(&s.heap, event{deadline: deadline, handler: h})
}

// UntilNext returns how many cycles remain until the earliest pending
// event's deadline, measured from now. If the queue is empty it returns
// math.MaxUint64 worth of Cycles so callers can use it unconditionally
// in a min() with other budgets.
func (s *Scheduler) UntilNext(now gekko.Cycles) gekko.Cycles {
	if len(s.heap) == 0 {
		return ^gekko.Cycles(0)
	}
	next := s.heap[0].deadline
	if next <= now {
		return 0
	}
	return next - now
}

// Advance pops and runs every event whose deadline is <= now, in
// non-decreasing deadline order. It returns the number of events run.
func (s *Scheduler) Advance(now gekko.Cycles) int {
	n := 0
	for len(s.heap) > 0 && s.heap[0].deadline <= now {
		ev := heap.Pop(&s.heap).(event)
		ev.handler(now - ev.deadline)
		n++
	}
	return n
}

// Pop removes and returns the single earliest-deadline event, or false
// if the queue is empty. Exposed for callers that want to inspect or
// reschedule an event rather than have Advance run it directly.
func (s *Scheduler) Pop() (deadline gekko.Cycles, handler Handler, ok bool) {
	if len(s.heap) == 0 {
		return 0, nil, false
	}
	ev := heap.Pop(&s.heap).(event)
	return ev.deadline, ev.handler, true
}

// Len reports the number of pending events.
func (s *Scheduler) Len() int { return len(s.heap) }
