// Package scheduler owns the emulator's monotonic cycle counter and the
// min-heap of pending events that everything else (PPU phases, timer
// overflows, DMA kicks, IRQ delivery) is modeled as.
package scheduler

import "container/heap"

// Cycles is a count of bus cycles, the master unit of time for the core.
type Cycles = uint64

// Kind tags what an event does; the scheduler itself never interprets it,
// it is handed back verbatim to the dispatch callback.
type Kind int

// Handle identifies a scheduled event for cancellation. It stays valid
// (but becomes a no-op to cancel) once the event has fired.
type Handle uint64

// Args is an opaque payload attached to an event at schedule time.
type Args interface{}

// Handler is invoked when an event's time arrives. It receives the
// scheduler so it may reschedule or cancel further events from within
// the callback; the popped event itself has already been removed from
// the heap before Handler runs (see Design Notes: "pop first, then
// dispatch").
type Handler func(s *Scheduler, kind Kind, args Args)

type event struct {
	kind    Kind
	at      Cycles
	period  Cycles
	repeat  bool
	active  bool
	args    Args
	handle  Handle
	seq     uint64 // insertion order, breaks ties at equal `at`
	heapIdx int
}

// eventHeap is a container/heap.Interface ordered by (at, seq) so that
// same-`at` events fire in the order they were scheduled.
type eventHeap []*event

func (h eventHeap) Len() int { return len(h) }
func (h eventHeap) Less(i, j int) bool {
	if h[i].at != h[j].at {
		return h[i].at < h[j].at
	}
	return h[i].seq < h[j].seq
}
func (h eventHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIdx, h[j].heapIdx = i, j
}
func (h *eventHeap) Push(x interface{}) {
	e := x.(*event)
	e.heapIdx = len(*h)
	*h = append(*h, e)
}
func (h *eventHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	e.heapIdx = -1
	return e
}

// Scheduler is the single monotonic clock + pending-event heap for one
// emulator instance. Instance state, not process state (design note: "keep
// them inside the bus/scheduler component; different emulator instances may
// coexist").
type Scheduler struct {
	now     Cycles
	heap    eventHeap
	nextSeq uint64
	nextH   Handle
	byHandle map[Handle]*event
	handler  Handler
}

// New creates a scheduler with the given dispatch callback.
func New(handler Handler) *Scheduler {
	return &Scheduler{
		byHandle: make(map[Handle]*event),
		handler:  handler,
	}
}

// Now returns the current monotonic cycle counter.
func (s *Scheduler) Now() Cycles { return s.now }

// Schedule inserts an event at now+delay. A zero or negative delay fires on
// the next Advance. Returns a handle usable with Cancel.
func (s *Scheduler) Schedule(kind Kind, delay int64, args Args, repeat bool, period Cycles) Handle {
	at := s.now
	if delay > 0 {
		at += Cycles(delay)
	}
	s.nextH++
	e := &event{
		kind: kind, at: at, period: period, repeat: repeat,
		active: true, args: args, handle: s.nextH, seq: s.nextSeq,
	}
	s.nextSeq++
	heap.Push(&s.heap, e)
	s.byHandle[e.handle] = e
	return e.handle
}

// Cancel flips an event inactive; cancelling a handle that has already
// fired (and was not re-scheduled) is a no-op.
func (s *Scheduler) Cancel(h Handle) {
	if e, ok := s.byHandle[h]; ok {
		e.active = false
		delete(s.byHandle, h)
	}
}

// NextEventAt returns the `at` of the earliest still-active event, and
// whether one exists. The CPU uses this to bound how many cycles it may
// run before the next drain point.
func (s *Scheduler) NextEventAt() (Cycles, bool) {
	for len(s.heap) > 0 {
		top := s.heap[0]
		if !top.active {
			heap.Pop(&s.heap)
			delete(s.byHandle, top.handle)
			continue
		}
		return top.at, true
	}
	return 0, false
}

// Advance moves `now` forward by dcycles, then fires every active event
// whose `at` has been reached, in (at, seq) order. Handlers may schedule
// new events or cancel others; the fired event is popped from the heap
// before the handler runs, so re-entrant scheduling never touches a heap
// slot mid-dispatch.
func (s *Scheduler) Advance(dcycles uint64) {
	s.now += Cycles(dcycles)
	for len(s.heap) > 0 {
		top := s.heap[0]
		if !top.active {
			heap.Pop(&s.heap)
			delete(s.byHandle, top.handle)
			continue
		}
		if top.at > s.now {
			break
		}
		heap.Pop(&s.heap)
		delete(s.byHandle, top.handle)
		kind, args := top.kind, top.args
		if top.repeat {
			top.at += top.period
			top.active = true
			s.nextSeq++
			top.seq = s.nextSeq
			heap.Push(&s.heap, top)
			s.byHandle[top.handle] = top
		}
		if s.handler != nil {
			s.handler(s, kind, args)
		}
	}
}

// Pending reports the number of still-active scheduled events; mainly
// useful for save-state chunk sizing and tests.
func (s *Scheduler) Pending() int {
	n := 0
	for _, e := range s.heap {
		if e.active {
			n++
		}
	}
	return n
}

// Snapshot captures every active event for serialization. The returned
// slice is ordered by (at, seq), matching heap pop order.
type Snapshot struct {
	Kind   Kind
	At     Cycles
	Period Cycles
	Repeat bool
	Args   Args
}

func (s *Scheduler) Snapshot() []Snapshot {
	cp := make(eventHeap, 0, len(s.heap))
	for _, e := range s.heap {
		if e.active {
			cp = append(cp, e)
		}
	}
	h := &cp
	heap.Init(h)
	out := make([]Snapshot, 0, len(cp))
	for len(*h) > 0 {
		e := heap.Pop(h).(*event)
		out = append(out, Snapshot{Kind: e.kind, At: e.at, Period: e.period, Repeat: e.repeat, Args: e.args})
	}
	return out
}

// Restore replaces all pending events with the given snapshots, preserving
// their relative (at, seq) order as the new insertion order.
func (s *Scheduler) Restore(now Cycles, snaps []Snapshot) {
	s.now = now
	s.heap = s.heap[:0]
	s.byHandle = make(map[Handle]*event)
	s.nextSeq = 0
	for _, sn := range snaps {
		h := s.Schedule(sn.Kind, int64(sn.At)-int64(now), sn.Args, sn.Repeat, sn.Period)
		// Schedule recomputes `at` from `now+delay`; overwrite with the exact
		// stored value since delay may have truncated/rounded at uint64 edges.
		if e, ok := s.byHandle[h]; ok {
			e.at = sn.At
		}
	}
	heap.Init(&s.heap)
}
