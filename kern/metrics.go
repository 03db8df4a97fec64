package kern

import (
	"fmt"
	"sort"
	"strings"
)

// ThreadMetrics accumulates per-thread accounting over a simulation run.
type ThreadMetrics struct {
	Arrival    int64
	Completion int64 // 0 while the thread has not finished
	CPUTicks   int64
}

// Turnaround is completion minus arrival; -1 for unfinished threads.
func (tm *ThreadMetrics) Turnaround() int64 {
	if tm.Completion == 0 {
		return -1
	}
	return tm.Completion - tm.Arrival
}

// WaitTicks is the time spent neither executing nor finished-before-arrival
// bookkeeping; for unfinished threads it is -1.
func (tm *ThreadMetrics) WaitTicks() int64 {
	if tm.Completion == 0 {
		return -1
	}
	return tm.Completion - tm.Arrival - tm.CPUTicks
}

// Metrics summarizes one simulation run.
type Metrics struct {
	Dispatches      int
	Preemptions     int
	AgingPromotions int
	Completed       int
	EndTick         int64
	PerThread       map[int]*ThreadMetrics
}

// NewMetrics returns an empty metrics container.
func NewMetrics() *Metrics {
	return &Metrics{PerThread: make(map[int]*ThreadMetrics)}
}

// Summary renders the run totals and per-thread lines, sorted by thread ID.
func (m *Metrics) Summary() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "ended at tick %d: %d completed, %d dispatches, %d preemptions, %d aging promotions\n",
		m.EndTick, m.Completed, m.Dispatches, m.Preemptions, m.AgingPromotions)
	ids := make([]int, 0, len(m.PerThread))
	for id := range m.PerThread {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	for _, id := range ids {
		tm := m.PerThread[id]
		if tm.Completion == 0 {
			fmt.Fprintf(&sb, "  thread %d: unfinished, cpu=%d\n", id, tm.CPUTicks)
			continue
		}
		fmt.Fprintf(&sb, "  thread %d: turnaround=%d cpu=%d wait=%d\n",
			id, tm.Turnaround(), tm.CPUTicks, tm.WaitTicks())
	}
	return sb.String()
}
