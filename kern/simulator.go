package kern

import (
	"container/heap"

	"github.com/sirupsen/logrus"

	"github.com/kernsim/kernsim/kern/trace"
)

// threadRun is the simulator's execution plan for one thread: the CPU bursts
// it still owes, its I/O wait between bursts, and accounting. seq invalidates
// burst-end events that a preemption superseded.
type threadRun struct {
	thread     *Thread
	bursts     []int64
	ioWait     int64
	seq        int64
	arrival    int64
	completion int64
	cpuTicks   int64
}

// Simulator drives the scheduler through a scenario on a simulated machine:
// a discrete-event loop plays arrivals, burst completions, I/O wakeups, and
// timer interrupts against a single logical CPU with an idle fallback
// thread. Transfers complete within the event, so the scheduler runs over a
// synchronous switcher.
type Simulator struct {
	Clock   *SimClock
	Gate    *InterruptGate
	Sched   *Scheduler
	Trace   *trace.SchedulerTrace
	Metrics *Metrics

	ctx           *Context
	horizon       int64
	timerInterval int64
	events        eventHeap
	eventSeq      int64
	runs          map[int]*threadRun
	idle          *Thread
	reclaimed     []int
}

// NewSimulator validates the scenario and wires the machine together.
func NewSimulator(tuning Tuning, sc *Scenario) (*Simulator, error) {
	if err := sc.Validate(); err != nil {
		return nil, err
	}

	clock := NewSimClock()
	gate := NewInterruptGate()
	idle := NewThread(IdleThreadID, "idle", MinPriority)
	idle.Status = StatusRunning
	ctx := &Context{Clock: clock, Gate: gate, Current: idle}

	sim := &Simulator{
		Clock:         clock,
		Gate:          gate,
		Trace:         trace.NewSchedulerTrace(),
		Metrics:       NewMetrics(),
		ctx:           ctx,
		horizon:       sc.Horizon,
		timerInterval: sc.TimerInterval,
		events:        make(eventHeap, 0),
		runs:          make(map[int]*threadRun),
		idle:          idle,
	}
	sim.Sched = NewScheduler(tuning, ctx, NopSwitch)
	sim.Sched.SetTrace(sim.Trace)
	sim.Sched.SetReclaimer(func(t *Thread) {
		sim.reclaimed = append(sim.reclaimed, t.ID)
	})

	for _, spec := range sc.Threads {
		sim.Schedule(&ArrivalEvent{tick: spec.Arrival, Spec: spec})
	}
	sim.Schedule(&TimerEvent{tick: sc.TimerInterval})
	return sim, nil
}

// Current returns the thread holding the simulated CPU.
func (sim *Simulator) Current() *Thread {
	return sim.ctx.Current
}

// Reclaimed returns the IDs of finished threads whose records have been
// released, in reclamation order.
func (sim *Simulator) Reclaimed() []int {
	return sim.reclaimed
}

// Schedule pushes an event into the simulator's event queue.
func (sim *Simulator) Schedule(ev Event) {
	sim.eventSeq++
	heap.Push(&sim.events, scheduledEvent{ev: ev, seq: sim.eventSeq})
}

// register adds a newly arrived thread's execution plan.
func (sim *Simulator) register(t *Thread, spec ThreadSpec) {
	wait := spec.IOWait
	if wait <= 0 {
		wait = 1
	}
	sim.runs[t.ID] = &threadRun{
		thread:  t,
		bursts:  append([]int64(nil), spec.Bursts...),
		ioWait:  wait,
		arrival: sim.Clock.Now(),
	}
}

// Run executes the event loop until the horizon or until no events remain.
// Scheduler operations run with interrupts disabled; the level is restored
// at each event boundary, which is also where an idle CPU picks up newly
// ready work.
func (sim *Simulator) Run() {
	for sim.events.Len() > 0 {
		se := heap.Pop(&sim.events).(scheduledEvent)
		if se.ev.Timestamp() > sim.horizon {
			break
		}
		sim.Clock.AdvanceTo(se.ev.Timestamp())
		logrus.Debugf("[tick %07d] executing %T", sim.Clock.Now(), se.ev)

		old := sim.Gate.SetLevel(IntOff)
		se.ev.Execute(sim)
		sim.yieldIdleIfReady()
		sim.Gate.SetLevel(old)
	}
	sim.finalize()
	logrus.Infof("[tick %07d] simulation ended", sim.Clock.Now())
}

// yieldIdleIfReady hands the CPU over as soon as the idle thread has real
// work waiting. The idle thread never sits on a ready queue; it steps aside
// whenever anything else is runnable.
func (sim *Simulator) yieldIdleIfReady() {
	if sim.ctx.Current.ID != IdleThreadID {
		return
	}
	next := sim.Sched.SelectNext()
	if next == nil {
		return
	}
	sim.idle.Status = StatusReady
	sim.switchTo(next, false)
}

// reschedule dispatches the best ready thread, falling back to idle.
func (sim *Simulator) reschedule(finishing bool) {
	next := sim.Sched.SelectNext()
	if next == nil {
		next = sim.idle
	}
	sim.switchTo(next, finishing)
}

// switchTo performs the hand-off and schedules the incoming thread's burst
// completion.
func (sim *Simulator) switchTo(next *Thread, finishing bool) {
	sim.Sched.Run(next, finishing)
	sim.Metrics.Dispatches++
	if next.ID == IdleThreadID {
		return
	}
	run := sim.runs[next.ID]
	run.seq++
	sim.Schedule(&BurstEndEvent{
		tick:     sim.Clock.Now() + run.bursts[0],
		ThreadID: next.ID,
		Seq:      run.seq,
	})
}

// preemptCurrent forces the running thread back onto the ready queues and
// dispatches whatever now outranks it. If nothing does, the thread keeps the
// CPU and its in-flight burst stays valid.
func (sim *Simulator) preemptCurrent() {
	cur := sim.ctx.Current
	if cur.ID == IdleThreadID || cur.Status != StatusRunning {
		return
	}
	now := sim.Clock.Now()
	sim.Sched.Enqueue(cur)
	next := sim.Sched.SelectNext()
	if next.ID == cur.ID {
		cur.Status = StatusRunning
		return
	}

	run := sim.runs[cur.ID]
	elapsed := now - cur.DispatchTick
	run.cpuTicks += elapsed
	run.bursts[0] -= elapsed
	if run.bursts[0] < 1 {
		run.bursts[0] = 1
	}
	run.seq++ // the burst end scheduled at dispatch is now stale
	sim.Metrics.Preemptions++
	logrus.Infof("[tick %07d] thread %d preempted by thread %d (%d burst ticks left)",
		now, cur.ID, next.ID, run.bursts[0])
	sim.switchTo(next, false)
}

// finalize folds per-thread accounting and trace-derived counters into the
// metrics.
func (sim *Simulator) finalize() {
	sim.Metrics.EndTick = sim.Clock.Now()
	sim.Metrics.AgingPromotions = len(sim.Trace.ByKind(trace.KindPriorityChange))
	for id, run := range sim.runs {
		sim.Metrics.PerThread[id] = &ThreadMetrics{
			Arrival:    run.arrival,
			Completion: run.completion,
			CPUTicks:   run.cpuTicks,
		}
	}
}
