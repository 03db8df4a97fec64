package kern

import "fmt"

// Status is the scheduling state of a logical thread.
type Status int

const (
	StatusReady Status = iota
	StatusRunning
	StatusBlocked
	StatusFinished
)

func (s Status) String() string {
	switch s {
	case StatusReady:
		return "READY"
	case StatusRunning:
		return "RUNNING"
	case StatusBlocked:
		return "BLOCKED"
	case StatusFinished:
		return "FINISHED"
	default:
		return "UNKNOWN"
	}
}

// Priority bounds for threads. MaxPriority is also the default aging cap.
const (
	MinPriority = 0
	MaxPriority = 149
)

// IdleThreadID identifies the idle fallback thread. Admissions never request
// preemption against it, and it is never placed on a ready queue.
const IdleThreadID = 0

// NumRegisters is the size of the simulated user-mode register file.
const NumRegisters = 40

// stackFencepost marks the far end of a thread's stack. If it has been
// overwritten, the stack grew past its allocation at some point.
const stackFencepost uint32 = 0xdeadbeef

// AddressSpace is the user address space owned by a user-program thread.
// Kernel-only threads have none. Save/Restore model the machine-state
// handoff that happens around a context switch.
type AddressSpace struct {
	ID       int
	resident bool
}

// SaveState relinquishes the machine state held for this space.
func (as *AddressSpace) SaveState() {
	as.resident = false
}

// RestoreState reinstalls the machine state for this space.
func (as *AddressSpace) RestoreState() {
	as.resident = true
}

// Resident reports whether this space currently holds the machine state.
func (as *AddressSpace) Resident() bool {
	return as.resident
}

// Thread is the per-thread scheduling record. It is created and owned by the
// collaborator that spawns the thread; the scheduler only references it, and
// releases it through the pending-destruction slot once the thread's stack is
// provably no longer in use.
type Thread struct {
	ID       int
	Name     string
	Priority int // MinPriority..MaxPriority
	Status   Status

	// BurstEstimate is the exponential moving average of this thread's CPU
	// bursts, in ticks. It orders L1 and drives the shortest-remaining-time
	// preemption test.
	BurstEstimate int64
	// DispatchTick is the tick at which this thread was last switched in.
	DispatchTick int64
	// EnqueueTick is the tick at which this thread last entered a ready
	// queue. Aging measures starvation against it.
	EnqueueTick int64

	// Space is non-nil for user-program threads; their registers and address
	// space are saved/restored around context switches.
	Space          *AddressSpace
	Registers      [NumRegisters]int64
	savedRegisters [NumRegisters]int64

	stackGuard uint32
}

// NewThread creates a thread record with an intact stack guard. Priority is
// clamped into [MinPriority, MaxPriority].
func NewThread(id int, name string, priority int) *Thread {
	if priority < MinPriority {
		priority = MinPriority
	} else if priority > MaxPriority {
		priority = MaxPriority
	}
	return &Thread{
		ID:         id,
		Name:       name,
		Priority:   priority,
		Status:     StatusReady,
		stackGuard: stackFencepost,
	}
}

// HasUserContext reports whether this thread carries user-mode machine state.
func (t *Thread) HasUserContext() bool {
	return t.Space != nil
}

// SaveUserState snapshots the user-mode register file. No-op for kernel
// threads.
func (t *Thread) SaveUserState() {
	if !t.HasUserContext() {
		return
	}
	t.savedRegisters = t.Registers
}

// RestoreUserState reloads the snapshotted register file. No-op for kernel
// threads.
func (t *Thread) RestoreUserState() {
	if !t.HasUserContext() {
		return
	}
	t.Registers = t.savedRegisters
}

// CheckOverflow panics if the thread's stack fencepost has been overwritten.
// An overflowed stack means memory beyond it is already corrupt; there is
// nothing to recover.
func (t *Thread) CheckOverflow() {
	if t.stackGuard != stackFencepost {
		panic(fmt.Sprintf("thread %d (%s): stack overflow detected", t.ID, t.Name))
	}
}

// CorruptStackGuard stomps the fencepost. Test hook for the overflow check.
func (t *Thread) CorruptStackGuard() {
	t.stackGuard = 0
}

func (t *Thread) String() string {
	return fmt.Sprintf("thread %d (%s) prio=%d status=%s burst=%d", t.ID, t.Name, t.Priority, t.Status, t.BurstEstimate)
}
