package kern

// ContextSwitcher is the opaque transfer primitive. Transfer suspends the
// outgoing thread's logical flow and resumes the incoming one; it returns
// only when some future transfer hands control back to the outgoing thread.
//
// Implementations must preserve the single-active-flow invariant: at any
// instant exactly one logical thread executes, and it executes with
// interrupts disabled across the transfer boundary.
type ContextSwitcher interface {
	Transfer(out, in *Thread)
}

// SwitchFunc adapts a function to ContextSwitcher. The discrete-event harness
// uses it: in an event-driven model the transfer completes within the event,
// so a synchronous callback stands in for the suspension point.
type SwitchFunc func(out, in *Thread)

func (f SwitchFunc) Transfer(out, in *Thread) {
	if f != nil {
		f(out, in)
	}
}

// NopSwitch is a ContextSwitcher that transfers instantly and records
// nothing.
var NopSwitch ContextSwitcher = SwitchFunc(nil)
