package kern

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kernsim/kernsim/kern/trace"
)

// newTestKernel builds a scheduler over a manual clock with interrupts
// already disabled and the idle thread on the CPU.
func newTestKernel() (*Scheduler, *SimClock, *InterruptGate, *Context) {
	clock := NewSimClock()
	gate := NewInterruptGate()
	gate.SetLevel(IntOff)
	idle := NewThread(IdleThreadID, "idle", MinPriority)
	idle.Status = StatusRunning
	ctx := &Context{Clock: clock, Gate: gate, Current: idle}
	s := NewScheduler(DefaultTuning(), ctx, NopSwitch)
	s.SetTrace(trace.NewSchedulerTrace())
	return s, clock, gate, ctx
}

// installRunning puts a thread on the CPU as if it had been dispatched at
// the given tick.
func installRunning(ctx *Context, t *Thread, dispatchTick int64) {
	t.Status = StatusRunning
	t.DispatchTick = dispatchTick
	ctx.Current = t
}

func TestEnqueue_HighPriorityAgainstIdle_NoPreemption(t *testing.T) {
	// GIVEN the idle thread (id 0) running at tick 0
	s, _, gate, _ := newTestKernel()

	// WHEN a priority-120 thread with burst estimate 500 is admitted
	t1 := NewThread(1, "t1", 120)
	t1.BurstEstimate = 500
	s.Enqueue(t1)

	// THEN it lands in L1 and no preemption is requested
	assert.Equal(t, 1, s.Ready().LevelOf(1))
	assert.False(t, gate.PreemptionPending())
	assert.Equal(t, StatusReady, t1.Status)
	assert.Equal(t, int64(0), t1.EnqueueTick)
}

func TestEnqueue_L1ShorterThanPredictedRemaining_RequestsPreemption(t *testing.T) {
	// GIVEN a running L1-class thread (priority 110, estimate 800,
	// dispatched at tick 0)
	s, clock, gate, ctx := newTestKernel()
	r := NewThread(2, "r", 110)
	r.BurstEstimate = 800
	installRunning(ctx, r, 0)
	clock.AdvanceTo(300)

	// WHEN a shorter L1 thread arrives: predicted remaining for r is
	// 0.5*800 + 0.5*300 = 550
	t2 := NewThread(3, "t2", 130)
	t2.BurstEstimate = 200
	s.Enqueue(t2)

	// THEN preemption is requested, since 200 < 550
	assert.True(t, gate.PreemptionPending())
}

func TestEnqueue_L1LongerThanPredictedRemaining_NoPreemption(t *testing.T) {
	s, clock, gate, ctx := newTestKernel()
	r := NewThread(2, "r", 110)
	r.BurstEstimate = 800
	installRunning(ctx, r, 0)
	clock.AdvanceTo(300)

	t2 := NewThread(3, "t2", 130)
	t2.BurstEstimate = 600 // >= 550 predicted remaining
	s.Enqueue(t2)

	assert.False(t, gate.PreemptionPending())
}

func TestEnqueue_L1ArrivalOverL2ClassRunning_AlwaysPreempts(t *testing.T) {
	// An L1 admission unconditionally outranks a running thread below the
	// L1 boundary, regardless of burst estimates.
	s, _, gate, ctx := newTestKernel()
	r := NewThread(4, "r", 70)
	r.BurstEstimate = 10
	installRunning(ctx, r, 0)

	t2 := NewThread(5, "t2", 105)
	t2.BurstEstimate = 100000
	s.Enqueue(t2)

	assert.True(t, gate.PreemptionPending())
}

func TestEnqueue_HigherPriorityL2Arrival_RequestsPreemption(t *testing.T) {
	// GIVEN a running L2 thread with priority 55
	s, _, gate, ctx := newTestKernel()
	r := NewThread(5, "r", 55)
	installRunning(ctx, r, 0)

	// WHEN a priority-60 thread is admitted into L2
	t2 := NewThread(6, "t2", 60)
	s.Enqueue(t2)

	// THEN preemption is requested
	assert.True(t, gate.PreemptionPending())
}

func TestEnqueue_LowerPriorityL2Arrival_NoPreemption(t *testing.T) {
	s, _, gate, ctx := newTestKernel()
	r := NewThread(5, "r", 55)
	installRunning(ctx, r, 0)

	t2 := NewThread(6, "t2", 52)
	s.Enqueue(t2)

	assert.False(t, gate.PreemptionPending())
}

func TestEnqueue_L3Arrival_NeverPreempts(t *testing.T) {
	s, _, gate, ctx := newTestKernel()
	r := NewThread(5, "r", 10)
	installRunning(ctx, r, 0)

	t2 := NewThread(6, "t2", 45)
	s.Enqueue(t2)

	assert.False(t, gate.PreemptionPending())
	assert.Equal(t, 3, s.Ready().LevelOf(6))
}

func TestSelectNext_StrictLevelOrder(t *testing.T) {
	// GIVEN one thread per level
	s, _, _, _ := newTestKernel()
	l3 := NewThread(1, "l3", 10)
	l2 := NewThread(2, "l2", 70)
	l1 := NewThread(3, "l1", 120)
	s.Enqueue(l3)
	s.Enqueue(l2)
	s.Enqueue(l1)

	// THEN selection drains L1, then L2, then L3, then reports none
	require.Equal(t, 3, s.SelectNext().ID)
	require.Equal(t, 2, s.SelectNext().ID)
	require.Equal(t, 1, s.SelectNext().ID)
	assert.Nil(t, s.SelectNext())
}

func TestSelectNext_L1AscendingPredictedBurst(t *testing.T) {
	s, _, _, _ := newTestKernel()
	for i, est := range []int64{300, 100, 200} {
		th := NewThread(i+1, "t", 120)
		th.BurstEstimate = est
		s.Enqueue(th)
	}

	assert.Equal(t, int64(100), s.SelectNext().BurstEstimate)
	assert.Equal(t, int64(200), s.SelectNext().BurstEstimate)
	assert.Equal(t, int64(300), s.SelectNext().BurstEstimate)
}

func TestSelectNext_L2DescendingPriority(t *testing.T) {
	s, _, _, _ := newTestKernel()
	for i, prio := range []int{60, 90, 75} {
		s.Enqueue(NewThread(i+1, "t", prio))
	}

	assert.Equal(t, 90, s.SelectNext().Priority)
	assert.Equal(t, 75, s.SelectNext().Priority)
	assert.Equal(t, 60, s.SelectNext().Priority)
}

func TestRun_UpdatesBurstEstimateAndDispatchTimestamp(t *testing.T) {
	// GIVEN a thread dispatched at tick 0 with estimate 800
	s, clock, _, ctx := newTestKernel()
	r := NewThread(1, "r", 110)
	r.BurstEstimate = 800
	installRunning(ctx, r, 0)
	clock.AdvanceTo(300)

	// WHEN the CPU is handed to another thread at tick 300
	n := NewThread(2, "n", 120)
	r.Status = StatusReady
	s.Run(n, false)

	// THEN the outgoing estimate folds in the 300-tick burst and the
	// incoming thread is installed as current
	assert.Equal(t, int64(550), r.BurstEstimate)
	assert.Equal(t, int64(300), n.DispatchTick)
	assert.Equal(t, StatusRunning, n.Status)
	assert.Same(t, n, ctx.Current)
}

func TestRun_SameThread_NoOp(t *testing.T) {
	s, clock, _, ctx := newTestKernel()
	r := NewThread(1, "r", 110)
	r.BurstEstimate = 800
	installRunning(ctx, r, 0)
	clock.AdvanceTo(500)

	s.Run(r, false)

	assert.Equal(t, int64(800), r.BurstEstimate)
	assert.Equal(t, int64(0), r.DispatchTick)
	assert.Same(t, r, ctx.Current)
}

func TestRun_FinishingDefersDestructionUntilAfterTransfer(t *testing.T) {
	s, _, _, ctx := newTestKernel()
	fin := NewThread(1, "fin", 80)
	installRunning(ctx, fin, 0)
	next := NewThread(2, "next", 80)

	var reclaimed []int
	s.SetReclaimer(func(th *Thread) { reclaimed = append(reclaimed, th.ID) })

	// The record must sit in the pending-destruction slot during the
	// transfer and must not be reclaimed before it completes.
	transferSeen := false
	s.switcher = SwitchFunc(func(out, in *Thread) {
		transferSeen = true
		require.Same(t, fin, s.pendingDestroy)
		require.Empty(t, reclaimed)
	})

	fin.Status = StatusFinished
	s.Run(next, true)

	assert.True(t, transferSeen)
	assert.Nil(t, s.pendingDestroy)
	assert.Equal(t, []int{1}, reclaimed)
}

func TestBeginThread_DrainsFinisherAndEnablesInterrupts(t *testing.T) {
	// A fresh thread's first instruction runs with a finisher possibly
	// parked in the destruction slot; the prologue reclaims it and only
	// then enables interrupts.
	s, _, gate, _ := newTestKernel()
	var reclaimed []int
	s.SetReclaimer(func(th *Thread) { reclaimed = append(reclaimed, th.ID) })
	s.pendingDestroy = NewThread(9, "fin", 80)

	s.BeginThread()

	assert.Equal(t, []int{9}, reclaimed)
	assert.Nil(t, s.pendingDestroy)
	assert.Equal(t, IntOn, gate.Level())
}

func TestRun_FinishingWithOccupiedSlot_Fatal(t *testing.T) {
	s, _, _, ctx := newTestKernel()
	installRunning(ctx, NewThread(1, "a", 80), 0)
	s.pendingDestroy = NewThread(9, "stale", 80)

	assert.Panics(t, func() { s.Run(NewThread(2, "b", 80), true) })
}

func TestRun_StackOverflow_Fatal(t *testing.T) {
	s, _, _, ctx := newTestKernel()
	r := NewThread(1, "r", 80)
	installRunning(ctx, r, 0)
	r.CorruptStackGuard()

	assert.Panics(t, func() { s.Run(NewThread(2, "n", 80), false) })
}

func TestRun_InterruptsEnabledAfterTransfer_Fatal(t *testing.T) {
	s, _, gate, ctx := newTestKernel()
	installRunning(ctx, NewThread(1, "r", 80), 0)
	s.switcher = SwitchFunc(func(out, in *Thread) {
		gate.SetLevel(IntOn)
	})

	assert.Panics(t, func() { s.Run(NewThread(2, "n", 80), false) })
}

func TestSchedulerOps_InterruptsEnabled_Fatal(t *testing.T) {
	s, _, gate, _ := newTestKernel()
	gate.SetLevel(IntOn)

	assert.Panics(t, func() { s.Enqueue(NewThread(1, "t", 80)) })
	assert.Panics(t, func() { s.SelectNext() })
	assert.Panics(t, func() { s.Aging() })
	assert.Panics(t, func() { s.Run(NewThread(2, "n", 80), false) })
}

func TestRun_SavesAndRestoresUserContext(t *testing.T) {
	s, _, _, ctx := newTestKernel()
	user := NewThread(1, "user", 80)
	user.Space = &AddressSpace{ID: 1}
	user.Space.RestoreState()
	user.Registers[0] = 42
	installRunning(ctx, user, 0)

	var residentDuringTransfer bool
	s.switcher = SwitchFunc(func(out, in *Thread) {
		residentDuringTransfer = out.Space.Resident()
		out.Registers[0] = 0 // clobbered while others run
	})

	user.Status = StatusReady
	s.Run(NewThread(2, "kernel", 80), false)

	// Saved at switch-out, restored when control came back.
	assert.False(t, residentDuringTransfer)
	assert.True(t, user.Space.Resident())
	assert.Equal(t, int64(42), user.Registers[0])
}

func TestAging_BeforeThreshold_Untouched(t *testing.T) {
	// A thread admitted 1500 ticks ago is not yet starved: the threshold is
	// strictly greater-than.
	s, clock, _, _ := newTestKernel()
	th := NewThread(1, "t", 95)
	s.Enqueue(th)
	clock.AdvanceTo(1500)

	s.Aging()

	assert.Equal(t, 95, th.Priority)
	assert.Equal(t, int64(0), th.EnqueueTick)
	assert.Equal(t, 2, s.Ready().LevelOf(1))
}

func TestAging_L2PromotionReclassifiesIntoL1(t *testing.T) {
	// GIVEN a priority-95 thread resident in L2 since tick 0
	s, clock, _, _ := newTestKernel()
	th := NewThread(1, "t", 95)
	s.Enqueue(th)
	clock.AdvanceTo(1501)

	// WHEN the aging sweep runs at tick 1501
	s.Aging()

	// THEN the thread gains 10 priority, its starvation clock restarts,
	// and the re-admission lands it in L1
	assert.Equal(t, 105, th.Priority)
	assert.Equal(t, int64(1501), th.EnqueueTick)
	assert.Equal(t, 1, s.Ready().LevelOf(1))

	changes := s.trace.ByKind(trace.KindPriorityChange)
	require.Len(t, changes, 1)
	assert.Equal(t, 95, changes[0].FromPriority)
	assert.Equal(t, 105, changes[0].ToPriority)
}

func TestAging_L2PromotionStaysInL2(t *testing.T) {
	s, clock, _, _ := newTestKernel()
	th := NewThread(1, "t", 60)
	s.Enqueue(th)
	clock.AdvanceTo(1501)

	s.Aging()

	assert.Equal(t, 70, th.Priority)
	assert.Equal(t, 2, s.Ready().LevelOf(1))
}

func TestAging_L1BumpInPlace(t *testing.T) {
	// L1 threads get the priority bump without re-admission; they are
	// already at the top level.
	s, clock, _, _ := newTestKernel()
	th := NewThread(1, "t", 120)
	s.Enqueue(th)
	clock.AdvanceTo(1501)

	s.Aging()

	assert.Equal(t, 130, th.Priority)
	assert.Equal(t, int64(1501), th.EnqueueTick)
	assert.Equal(t, 1, s.Ready().LevelOf(1))
	// No removal happened: the only trace records are the admission and
	// the priority change.
	assert.Empty(t, s.trace.ByKind(trace.KindRemove))
}

func TestAging_PriorityCapped(t *testing.T) {
	s, clock, _, _ := newTestKernel()
	th := NewThread(1, "t", 145)
	s.Enqueue(th)
	clock.AdvanceTo(1501)

	s.Aging()

	assert.Equal(t, 149, th.Priority)
}

func TestAging_AtCap_NoChangeRecord(t *testing.T) {
	s, clock, _, _ := newTestKernel()
	th := NewThread(1, "t", 149)
	s.Enqueue(th)
	clock.AdvanceTo(1501)

	s.Aging()

	assert.Equal(t, 149, th.Priority)
	assert.Empty(t, s.trace.ByKind(trace.KindPriorityChange))
	// The starvation clock still restarts.
	assert.Equal(t, int64(1501), th.EnqueueTick)
}

func TestMembership_ThreadOnAtMostOneLevel(t *testing.T) {
	s, _, _, _ := newTestKernel()
	th := NewThread(1, "t", 95)
	s.Enqueue(th)

	levels := 0
	for l := 1; l <= 3; l++ {
		for _, q := range s.Ready().Level(l) {
			if q.ID == th.ID {
				levels++
			}
		}
	}
	assert.Equal(t, 1, levels)

	// Double admission is a protocol violation.
	assert.Panics(t, func() { s.Enqueue(th) })
}

func TestTrace_RecordsAdmissionRemovalDispatch(t *testing.T) {
	s, _, _, ctx := newTestKernel()
	th := NewThread(1, "t", 95)
	s.Enqueue(th)
	next := s.SelectNext()
	require.Same(t, th, next)
	ctx.Current.Status = StatusReady
	s.Run(next, false)

	assert.Len(t, s.trace.ByKind(trace.KindAdmit), 1)
	assert.Len(t, s.trace.ByKind(trace.KindRemove), 1)
	assert.Len(t, s.trace.ByKind(trace.KindDispatch), 1)
}
