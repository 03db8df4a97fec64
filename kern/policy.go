package kern

import "fmt"

// OrderPolicy selects the within-level ordering rule of a ready queue.
// The three levels are structurally uniform; only the policy differs.
type OrderPolicy string

const (
	// ShortestPredictedBurst orders by ascending burst estimate (SRTF-style).
	ShortestPredictedBurst OrderPolicy = "shortest-predicted-burst"
	// PriorityDescending orders by descending priority.
	PriorityDescending OrderPolicy = "priority-descending"
	// FIFO preserves admission order.
	FIFO OrderPolicy = "fifo"
)

// validOrderPolicies maps accepted policy names.
var validOrderPolicies = map[OrderPolicy]bool{
	ShortestPredictedBurst: true,
	PriorityDescending:     true,
	FIFO:                   true,
}

// IsValidOrderPolicy returns true if the given name is a recognized policy.
func IsValidOrderPolicy(name string) bool {
	return validOrderPolicies[OrderPolicy(name)]
}

// NewOrderPolicy returns the policy for a name. Panics on unrecognized names.
func NewOrderPolicy(name string) OrderPolicy {
	if !IsValidOrderPolicy(name) {
		panic(fmt.Sprintf("unknown order policy %q", name))
	}
	return OrderPolicy(name)
}

// orderKey is the composite red-black-tree key of a queued thread.
// Ordering: primary rank → admission sequence → thread ID. The admission
// sequence keeps equal-rank threads in arrival order, matching what a
// sorted list with insert-before-greater gives.
type orderKey struct {
	primary int64
	seq     int64
	id      int
}

// compareOrderKeys is the tree comparator for orderKey.
func compareOrderKeys(a, b any) int {
	ka, kb := a.(orderKey), b.(orderKey)
	switch {
	case ka.primary < kb.primary:
		return -1
	case ka.primary > kb.primary:
		return 1
	case ka.seq < kb.seq:
		return -1
	case ka.seq > kb.seq:
		return 1
	case ka.id < kb.id:
		return -1
	case ka.id > kb.id:
		return 1
	default:
		return 0
	}
}

// rank computes the primary ordering component for a thread under this
// policy. FIFO ranks everything equally and falls through to the admission
// sequence.
func (p OrderPolicy) rank(t *Thread) int64 {
	switch p {
	case ShortestPredictedBurst:
		return t.BurstEstimate
	case PriorityDescending:
		return -int64(t.Priority)
	case FIFO:
		return 0
	default:
		panic(fmt.Sprintf("unhandled order policy %q", p))
	}
}
