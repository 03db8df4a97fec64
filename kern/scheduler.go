package kern

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/kernsim/kernsim/kern/trace"
)

// Context is the scheduling context the scheduler operates in: the tick
// source, the interrupt gate, and the handle of the thread currently on the
// processor. It replaces the ambient globals of classic kernels so the
// scheduler can be tested in isolation.
type Context struct {
	Clock   TickSource
	Gate    *InterruptGate
	Current *Thread
}

// Scheduler decides which READY thread receives the processor next and
// performs the hand-off protocol between threads.
//
// Every operation assumes interrupts are already disabled; on a uniprocessor
// that is the mutual exclusion. Locks cannot be used here: waiting on a busy
// lock would mean invoking the dispatcher, which would re-enter the function
// holding the lock.
type Scheduler struct {
	tuning   Tuning
	ctx      *Context
	ready    *ReadySet
	switcher ContextSwitcher

	// pendingDestroy holds the one thread whose record may not be reclaimed
	// yet: its stack is in use until the transfer away from it completes on
	// some other flow.
	pendingDestroy *Thread

	// reclaim releases a finished thread's record back to its owner. Nil
	// means the owner keeps no registry and nothing extra happens.
	reclaim func(*Thread)

	trace *trace.SchedulerTrace
}

// NewScheduler creates a scheduler over the given context and transfer
// primitive.
func NewScheduler(tuning Tuning, ctx *Context, switcher ContextSwitcher) *Scheduler {
	if ctx == nil || ctx.Clock == nil || ctx.Gate == nil {
		panic("scheduler requires a context with clock and interrupt gate")
	}
	if switcher == nil {
		switcher = NopSwitch
	}
	return &Scheduler{
		tuning:   tuning,
		ctx:      ctx,
		ready:    NewReadySet(tuning),
		switcher: switcher,
	}
}

// SetTrace attaches a diagnostic trace collector. Nil disables collection.
func (s *Scheduler) SetTrace(t *trace.SchedulerTrace) {
	s.trace = t
}

// SetReclaimer installs the hook that releases a finished thread's record.
func (s *Scheduler) SetReclaimer(fn func(*Thread)) {
	s.reclaim = fn
}

// Tuning returns the scheduler's tuning parameters.
func (s *Scheduler) Tuning() Tuning {
	return s.tuning
}

// Ready exposes the ready-queue set for diagnostics and tests.
func (s *Scheduler) Ready() *ReadySet {
	return s.ready
}

// mustBeInterruptsOff asserts the caller-guaranteed invariant. Entering the
// scheduler with interrupts enabled is a protocol violation, not a
// recoverable condition.
func (s *Scheduler) mustBeInterruptsOff(op string) {
	if s.ctx.Gate.Level() != IntOff {
		panic(fmt.Sprintf("%s called with interrupts enabled", op))
	}
}

// Enqueue marks a thread READY and admits it into the level its priority
// maps to. It may latch a preemption request against the running thread; the
// request is consumed at the next safe reschedule point, never here.
func (s *Scheduler) Enqueue(t *Thread) {
	s.mustBeInterruptsOff("Enqueue")
	now := s.ctx.Clock.Now()
	t.Status = StatusReady
	t.EnqueueTick = now

	level := s.ready.Insert(t)
	logrus.Debugf("[tick %07d] thread %d inserted into L%d", now, t.ID, level)
	s.trace.Append(trace.Record{Tick: now, ThreadID: t.ID, Level: level, Kind: trace.KindAdmit})

	running := s.ctx.Current
	if running == nil || running.ID == t.ID || running.ID == IdleThreadID {
		return
	}
	switch level {
	case 1:
		predicted := s.predictRemaining(running, now)
		logrus.Debugf("[tick %07d] predicted remaining burst of thread %d: %d (newcomer %d estimates %d)",
			now, running.ID, predicted, t.ID, t.BurstEstimate)
		if running.Priority >= s.tuning.L1Floor {
			// Both L1-class: shortest remaining time first.
			if t.BurstEstimate < predicted {
				s.ctx.Gate.Preempt()
			}
		} else {
			// An L1 arrival always outranks a lower-class running thread.
			s.ctx.Gate.Preempt()
		}
	case 2:
		if t.Priority > running.Priority {
			s.ctx.Gate.Preempt()
		}
	}
	// L3 admissions never preempt.
}

// predictRemaining estimates how much burst the running thread has left:
// the usual EMA fold of its estimate with the ticks it has consumed since
// dispatch.
func (s *Scheduler) predictRemaining(running *Thread, now int64) int64 {
	return s.ema(running.BurstEstimate, now-running.DispatchTick)
}

// ema folds an observed duration into a previous estimate.
func (s *Scheduler) ema(previous, observed int64) int64 {
	w := s.tuning.EMAWeight
	return int64(w*float64(previous) + (1-w)*float64(observed))
}

// SelectNext removes and returns the head of the highest non-empty level, in
// strict L1 > L2 > L3 order. Returns nil when all levels are empty; the
// caller is expected to fall back to the idle thread.
func (s *Scheduler) SelectNext() *Thread {
	s.mustBeInterruptsOff("SelectNext")
	t, level := s.ready.RemoveFront()
	if t == nil {
		return nil
	}
	now := s.ctx.Clock.Now()
	logrus.Debugf("[tick %07d] thread %d removed from L%d", now, t.ID, level)
	s.trace.Append(trace.Record{Tick: now, ThreadID: t.ID, Level: level, Kind: trace.KindRemove})
	return t
}

// Run dispatches the processor to next. The caller has already moved the
// outgoing thread to its next state (READY via Enqueue, BLOCKED, or
// FINISHED). finishing means the outgoing thread is done and its record must
// be reclaimed, but only once we are no longer running on its stack, i.e.
// after the transfer away from it has completed on some other flow.
func (s *Scheduler) Run(next *Thread, finishing bool) {
	s.mustBeInterruptsOff("Run")
	old := s.ctx.Current
	if old == nil {
		panic("Run with no current thread")
	}
	if old.ID == next.ID {
		return
	}

	if finishing {
		if s.pendingDestroy != nil {
			panic(fmt.Sprintf("pending-destruction slot occupied by thread %d while thread %d finishes",
				s.pendingDestroy.ID, old.ID))
		}
		s.pendingDestroy = old
	}

	if old.HasUserContext() {
		old.SaveUserState()
		old.Space.SaveState()
	}
	old.CheckOverflow()

	now := s.ctx.Clock.Now()
	executed := now - old.DispatchTick
	old.BurstEstimate = s.ema(old.BurstEstimate, executed)

	next.DispatchTick = now
	next.Status = StatusRunning
	s.ctx.Current = next

	logrus.Infof("[tick %07d] dispatch thread %d (replacing %d after %d ticks, new estimate %d)",
		now, next.ID, old.ID, executed, old.BurstEstimate)
	s.trace.Append(trace.Record{Tick: now, ThreadID: next.ID, Kind: trace.KindDispatch})

	s.switcher.Transfer(old, next)

	// Control is back in old's flow, possibly much later and via a transfer
	// issued elsewhere. The invariant must have held across the boundary.
	s.mustBeInterruptsOff("Run (after transfer)")

	// Reclaim first: the slot holds the only record of a thread whose stack
	// was in use until the transfer above completed on another flow.
	s.drainDestroyed()

	if old.HasUserContext() {
		old.RestoreUserState()
		old.Space.RestoreState()
	}
}

// BeginThread is the prologue of a freshly spawned execution context. A new
// thread was switched to without an earlier Run frame of its own, so the
// post-transfer duties (reclaiming a finisher, re-enabling interrupts)
// fall to it here.
func (s *Scheduler) BeginThread() {
	s.mustBeInterruptsOff("BeginThread")
	s.drainDestroyed()
	s.ctx.Gate.SetLevel(IntOn)
}

// drainDestroyed reclaims the thread parked in the pending-destruction slot,
// if any.
func (s *Scheduler) drainDestroyed() {
	t := s.pendingDestroy
	if t == nil {
		return
	}
	s.pendingDestroy = nil
	now := s.ctx.Clock.Now()
	logrus.Debugf("[tick %07d] reclaiming finished thread %d", now, t.ID)
	s.trace.Append(trace.Record{Tick: now, ThreadID: t.ID, Kind: trace.KindDestroy})
	if s.reclaim != nil {
		s.reclaim(t)
	}
}

// Aging promotes threads that have waited too long, bounding starvation.
// L2 threads are re-admitted through Enqueue so a promotion across the L1
// boundary reclassifies them; L1 threads get the bump in place, since they
// are already at the top level. The asymmetry is historical and kept as is.
func (s *Scheduler) Aging() {
	s.mustBeInterruptsOff("Aging")
	now := s.ctx.Clock.Now()

	for _, t := range s.ready.Level(1) {
		if now-t.EnqueueTick > s.tuning.AgingThreshold {
			s.promote(t, now)
		}
	}

	for _, t := range s.ready.Level(2) {
		if now-t.EnqueueTick > s.tuning.AgingThreshold {
			s.ready.Remove(t)
			s.promote(t, now)
			s.trace.Append(trace.Record{Tick: now, ThreadID: t.ID, Level: 2, Kind: trace.KindRemove})
			logrus.Debugf("[tick %07d] thread %d removed from L2 for re-admission", now, t.ID)
			s.Enqueue(t)
		}
	}
}

// promote applies one aging step: +AgingBoost capped at PriorityCap, and the
// starvation clock restarts.
func (s *Scheduler) promote(t *Thread, now int64) {
	old := t.Priority
	boosted := old + s.tuning.AgingBoost
	if boosted > s.tuning.PriorityCap {
		boosted = s.tuning.PriorityCap
	}
	t.Priority = boosted
	t.EnqueueTick = now
	if boosted != old {
		logrus.Infof("[tick %07d] thread %d priority %d -> %d (aging)", now, t.ID, old, boosted)
		s.trace.Append(trace.Record{
			Tick: now, ThreadID: t.ID, Kind: trace.KindPriorityChange,
			FromPriority: old, ToPriority: boosted,
		})
	}
}

// Dump renders the ready-queue contents for diagnostics.
func (s *Scheduler) Dump() string {
	return s.ready.Dump()
}
