// Package trace provides diagnostic-record collection for scheduler analysis.
// This package has no dependencies on kern/; it stores pure data types.
package trace

// Kind classifies a scheduler diagnostic record.
type Kind string

const (
	// KindAdmit records a thread entering a ready queue.
	KindAdmit Kind = "admit"
	// KindRemove records a thread leaving a ready queue.
	KindRemove Kind = "remove"
	// KindDispatch records a thread being selected for execution.
	KindDispatch Kind = "dispatch"
	// KindPriorityChange records an aging promotion.
	KindPriorityChange Kind = "priority-change"
	// KindDestroy records a finished thread's record being reclaimed.
	KindDestroy Kind = "destroy"
)

// Record captures a single scheduler event. The informational content is the
// contract; how it is rendered is not.
type Record struct {
	Tick     int64
	ThreadID int
	Level    int // 1-based queue level; 0 where not applicable
	Kind     Kind
	// FromPriority/ToPriority are set on priority-change records.
	FromPriority int
	ToPriority   int
}
