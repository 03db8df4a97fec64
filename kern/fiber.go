package kern

import "fmt"

// fiber is one suspendable unit of execution: a goroutine parked on a
// handoff channel. The channel holds at most one resume token; whichever
// fiber holds the token is the single active flow.
type fiber struct {
	resume chan struct{}
}

// FiberSwitch implements the context-transfer primitive with goroutines
// parked on per-thread handoff signals. Transfer wakes the incoming fiber
// and parks the caller until some later transfer hands the token back.
//
// The map is only ever touched by the active flow, so it needs no lock.
type FiberSwitch struct {
	fibers map[int]*fiber
}

// NewFiberSwitch creates an empty switch. Every thread that will take part
// in transfers must first be adopted or spawned.
func NewFiberSwitch() *FiberSwitch {
	return &FiberSwitch{fibers: make(map[int]*fiber)}
}

// Adopt registers the calling goroutine as the execution context of t. Used
// for the bootstrap thread, whose flow already exists.
func (fs *FiberSwitch) Adopt(t *Thread) {
	if _, dup := fs.fibers[t.ID]; dup {
		panic(fmt.Sprintf("fiber for thread %d already registered", t.ID))
	}
	fs.fibers[t.ID] = &fiber{resume: make(chan struct{}, 1)}
}

// Spawn creates a parked fiber for t. The body starts executing the first
// time some transfer resumes t, and must never return: a thread leaves the
// processor only through a transfer, its last one with finishing set.
func (fs *FiberSwitch) Spawn(t *Thread, body func()) {
	if _, dup := fs.fibers[t.ID]; dup {
		panic(fmt.Sprintf("fiber for thread %d already registered", t.ID))
	}
	f := &fiber{resume: make(chan struct{}, 1)}
	fs.fibers[t.ID] = f
	go func() {
		<-f.resume
		body()
		panic(fmt.Sprintf("fiber for thread %d: body returned instead of finishing", t.ID))
	}()
}

// Release drops a finished thread's fiber registration. Its goroutine, if
// any, stays parked forever; nothing will resume a FINISHED thread.
func (fs *FiberSwitch) Release(id int) {
	delete(fs.fibers, id)
}

// Transfer hands the resume token to the incoming fiber, then parks the
// outgoing one on its own channel. The buffered token makes the send safe
// even before the incoming goroutine has reached its receive.
func (fs *FiberSwitch) Transfer(out, in *Thread) {
	target, ok := fs.fibers[in.ID]
	if !ok {
		panic(fmt.Sprintf("transfer to thread %d: no fiber registered", in.ID))
	}
	self, ok := fs.fibers[out.ID]
	if !ok {
		panic(fmt.Sprintf("transfer from thread %d: no fiber registered", out.ID))
	}
	target.resume <- struct{}{}
	<-self.resume
}
