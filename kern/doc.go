// Package kern implements the CPU scheduler of a small teaching-OS kernel:
// a three-level feedback queue with burst-time prediction, a starvation
// aging sweep, and the context hand-off protocol with deferred destruction
// of finished threads.
//
// # Reading Guide
//
// Start with these three files to understand the core:
//   - thread.go: the per-thread scheduling record and its lifecycle
//   - readyqueue.go: the three ready levels and their ordering policies
//   - scheduler.go: admission, selection, aging, and the Run hand-off protocol
//
// # Concurrency model
//
// There is one logical processor. Mutual exclusion is disabling interrupts,
// asserted on entry to every scheduler operation; no locks exist in this
// core, because blocking on a lock would mean invoking the very dispatcher
// being protected. The only sanctioned suspension point is the
// ContextSwitcher.Transfer call inside Scheduler.Run.
//
// # Harness
//
// simulator.go and event.go drive the scheduler through whole scenarios on a
// simulated machine: a discrete-event loop over arrivals, burst completions,
// I/O wakeups, and timer interrupts, with thread 0 as the idle fallback.
// fiber.go provides a live implementation of the transfer primitive built on
// goroutines parked on handoff channels.
package kern
