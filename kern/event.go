package kern

import "github.com/sirupsen/logrus"

// Event is one occurrence in the simulated machine: a thread arriving, a
// CPU burst ending, an I/O completion, a timer interrupt. Each event carries
// its tick and advances the simulation when executed.
type Event interface {
	Timestamp() int64
	Execute(sim *Simulator)
	// kindOrder breaks timestamp ties deterministically. Lower runs first:
	// burst completions before wakeups and arrivals, the timer interrupt
	// last so aging and preemption see the tick's final state.
	kindOrder() int
}

// ArrivalEvent introduces a new thread into the system.
type ArrivalEvent struct {
	tick int64
	Spec ThreadSpec
}

func (e *ArrivalEvent) Timestamp() int64 { return e.tick }
func (e *ArrivalEvent) kindOrder() int   { return 2 }

// Execute creates the thread record and admits it to the ready queues.
func (e *ArrivalEvent) Execute(sim *Simulator) {
	logrus.Infof("[tick %07d] thread %d (%s) arrives with priority %d", e.tick, e.Spec.ID, e.Spec.Name, e.Spec.Priority)
	t := NewThread(e.Spec.ID, e.Spec.Name, e.Spec.Priority)
	t.BurstEstimate = e.Spec.InitialEstimate
	if e.Spec.UserProgram {
		t.Space = &AddressSpace{ID: e.Spec.ID}
	}
	sim.register(t, e.Spec)
	sim.Sched.Enqueue(t)
}

// BurstEndEvent fires when the running thread's current CPU burst is used
// up. Seq guards against stale events: a preemption invalidates the burst
// end that was scheduled at dispatch.
type BurstEndEvent struct {
	tick     int64
	ThreadID int
	Seq      int64
}

func (e *BurstEndEvent) Timestamp() int64 { return e.tick }
func (e *BurstEndEvent) kindOrder() int   { return 0 }

// Execute retires the burst: the thread blocks for I/O if bursts remain,
// otherwise it finishes and its record is handed to the pending-destruction
// slot via the dispatch protocol.
func (e *BurstEndEvent) Execute(sim *Simulator) {
	run := sim.runs[e.ThreadID]
	if run == nil || e.Seq != run.seq {
		return // superseded by a preemption
	}
	t := run.thread
	if t.Status != StatusRunning || sim.ctx.Current.ID != t.ID {
		return
	}
	now := e.tick
	run.cpuTicks += run.bursts[0]
	run.bursts = run.bursts[1:]

	if len(run.bursts) == 0 {
		t.Status = StatusFinished
		run.completion = now
		sim.Metrics.Completed++
		logrus.Infof("[tick %07d] thread %d finished (%d CPU ticks)", now, t.ID, run.cpuTicks)
		sim.reschedule(true)
		return
	}

	t.Status = StatusBlocked
	logrus.Debugf("[tick %07d] thread %d blocks for I/O (%d ticks)", now, t.ID, run.ioWait)
	sim.Schedule(&WakeEvent{tick: now + run.ioWait, ThreadID: t.ID})
	sim.reschedule(false)
}

// WakeEvent completes a thread's simulated I/O and readies it again.
type WakeEvent struct {
	tick     int64
	ThreadID int
}

func (e *WakeEvent) Timestamp() int64 { return e.tick }
func (e *WakeEvent) kindOrder() int   { return 1 }

func (e *WakeEvent) Execute(sim *Simulator) {
	run := sim.runs[e.ThreadID]
	if run == nil || run.thread.Status != StatusBlocked {
		return
	}
	logrus.Debugf("[tick %07d] thread %d wakes", e.tick, e.ThreadID)
	sim.Sched.Enqueue(run.thread)
}

// TimerEvent is the periodic timer interrupt: it drives the aging sweep and
// is the safe point where latched preemption requests are honored.
type TimerEvent struct {
	tick int64
}

func (e *TimerEvent) Timestamp() int64 { return e.tick }
func (e *TimerEvent) kindOrder() int   { return 3 }

func (e *TimerEvent) Execute(sim *Simulator) {
	sim.Sched.Aging()
	if sim.Gate.TakePreemption() {
		sim.preemptCurrent()
	}
	next := e.tick + sim.timerInterval
	if next <= sim.horizon {
		sim.Schedule(&TimerEvent{tick: next})
	}
}

// scheduledEvent pairs an event with its scheduling sequence number, the
// final deterministic tie-breaker.
type scheduledEvent struct {
	ev  Event
	seq int64
}

// eventHeap orders events by timestamp, then kind, then scheduling order.
type eventHeap []scheduledEvent

func (h eventHeap) Len() int { return len(h) }

func (h eventHeap) Less(i, j int) bool {
	ei, ej := h[i], h[j]
	if ei.ev.Timestamp() != ej.ev.Timestamp() {
		return ei.ev.Timestamp() < ej.ev.Timestamp()
	}
	if ei.ev.kindOrder() != ej.ev.kindOrder() {
		return ei.ev.kindOrder() < ej.ev.kindOrder()
	}
	return ei.seq < ej.seq
}

func (h eventHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *eventHeap) Push(x any) {
	*h = append(*h, x.(scheduledEvent))
}

func (h *eventHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
