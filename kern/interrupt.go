package kern

// IntLevel is the interrupt enable state of the (single) logical processor.
type IntLevel int

const (
	IntOff IntLevel = iota
	IntOn
)

func (l IntLevel) String() string {
	if l == IntOff {
		return "off"
	}
	return "on"
}

// InterruptGate models the interrupt controller interface the scheduler
// consumes: whether interrupts are disabled, and a latched preemption
// request consumed at the next safe reschedule point.
//
// There is no locking here on purpose. The gate is only touched by the one
// logical flow that is executing with interrupts disabled; disabling
// interrupts IS the mutual exclusion.
type InterruptGate struct {
	level        IntLevel
	yieldPending bool
}

// NewInterruptGate returns a gate with interrupts enabled and no pending
// preemption.
func NewInterruptGate() *InterruptGate {
	return &InterruptGate{level: IntOn}
}

// Level returns the current interrupt level.
func (g *InterruptGate) Level() IntLevel {
	return g.level
}

// SetLevel changes the interrupt level and returns the previous one, so
// callers can restore it on the way out.
func (g *InterruptGate) SetLevel(l IntLevel) IntLevel {
	old := g.level
	g.level = l
	return old
}

// Preempt latches a request to reschedule. It does not invoke the dispatcher;
// the request is consumed at the next safe point (a timer tick boundary).
func (g *InterruptGate) Preempt() {
	g.yieldPending = true
}

// PreemptionPending reports whether a reschedule request is latched.
func (g *InterruptGate) PreemptionPending() bool {
	return g.yieldPending
}

// TakePreemption consumes the latched reschedule request, if any.
func (g *InterruptGate) TakePreemption() bool {
	p := g.yieldPending
	g.yieldPending = false
	return p
}
