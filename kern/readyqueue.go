package kern

import (
	"fmt"
	"strings"

	"github.com/emirpasic/gods/trees/redblacktree"
)

// readyLevel is one ordered container of READY threads. All three levels use
// the same red-black-tree representation; the ordering policy supplies the
// primary rank. Keys are remembered per thread ID so a thread can be removed
// even after its priority or burst estimate has been mutated.
type readyLevel struct {
	level  int // 1-based, for diagnostics
	policy OrderPolicy
	tree   *redblacktree.Tree
	keys   map[int]orderKey
	seq    int64
}

func newReadyLevel(level int, policy OrderPolicy) *readyLevel {
	return &readyLevel{
		level:  level,
		policy: policy,
		tree:   redblacktree.NewWith(compareOrderKeys),
		keys:   make(map[int]orderKey),
	}
}

// Insert admits a thread under the level's ordering policy. A thread may sit
// on at most one level; inserting a thread that is already queued here is a
// protocol violation.
func (q *readyLevel) Insert(t *Thread) {
	if _, dup := q.keys[t.ID]; dup {
		panic(fmt.Sprintf("L%d: thread %d already queued", q.level, t.ID))
	}
	q.seq++
	key := orderKey{primary: q.policy.rank(t), seq: q.seq, id: t.ID}
	q.tree.Put(key, t)
	q.keys[t.ID] = key
}

// RemoveFront removes and returns the head of the level, or nil if empty.
func (q *readyLevel) RemoveFront() *Thread {
	node := q.tree.Left()
	if node == nil {
		return nil
	}
	t := node.Value.(*Thread)
	q.tree.Remove(node.Key)
	delete(q.keys, t.ID)
	return t
}

// Remove takes a specific thread out of the level. Returns false if it was
// not queued here.
func (q *readyLevel) Remove(t *Thread) bool {
	key, ok := q.keys[t.ID]
	if !ok {
		return false
	}
	q.tree.Remove(key)
	delete(q.keys, t.ID)
	return true
}

// Contains reports whether the thread with the given ID is queued here.
func (q *readyLevel) Contains(id int) bool {
	_, ok := q.keys[id]
	return ok
}

// Empty reports whether the level holds no threads.
func (q *readyLevel) Empty() bool {
	return q.tree.Empty()
}

// Len returns the number of queued threads.
func (q *readyLevel) Len() int {
	return q.tree.Size()
}

// Threads returns the level contents in queue order. The slice is a snapshot;
// callers may mutate the level while iterating it.
func (q *readyLevel) Threads() []*Thread {
	out := make([]*Thread, 0, q.tree.Size())
	it := q.tree.Iterator()
	for it.Next() {
		out = append(out, it.Value().(*Thread))
	}
	return out
}

// ReadySet is the three-level ready-queue set: L1 ordered by predicted burst,
// L2 by descending priority, L3 FIFO. Classification boundaries come from the
// tuning parameters.
type ReadySet struct {
	tuning Tuning
	levels [3]*readyLevel
}

// NewReadySet builds the three levels for the given tuning.
func NewReadySet(tuning Tuning) *ReadySet {
	return &ReadySet{
		tuning: tuning,
		levels: [3]*readyLevel{
			newReadyLevel(1, ShortestPredictedBurst),
			newReadyLevel(2, PriorityDescending),
			newReadyLevel(3, FIFO),
		},
	}
}

// Classify returns the 1-based level a priority maps to.
func (rs *ReadySet) Classify(priority int) int {
	switch {
	case priority >= rs.tuning.L1Floor:
		return 1
	case priority >= rs.tuning.L2Floor:
		return 2
	default:
		return 3
	}
}

// Insert admits a thread into the level its priority maps to and returns that
// level.
func (rs *ReadySet) Insert(t *Thread) int {
	level := rs.Classify(t.Priority)
	rs.levels[level-1].Insert(t)
	return level
}

// RemoveFront removes and returns the head of the highest non-empty level,
// along with that level. Returns (nil, 0) when all levels are empty; that is
// a normal state, the caller supplies the idle fallback.
func (rs *ReadySet) RemoveFront() (*Thread, int) {
	for _, q := range rs.levels {
		if t := q.RemoveFront(); t != nil {
			return t, q.level
		}
	}
	return nil, 0
}

// LevelOf returns the 1-based level currently holding the thread ID, or 0 if
// it is on no ready queue.
func (rs *ReadySet) LevelOf(id int) int {
	for _, q := range rs.levels {
		if q.Contains(id) {
			return q.level
		}
	}
	return 0
}

// Level exposes one level's snapshot for sweeps and diagnostics.
func (rs *ReadySet) Level(level int) []*Thread {
	return rs.levels[level-1].Threads()
}

// Len returns the total number of queued threads.
func (rs *ReadySet) Len() int {
	n := 0
	for _, q := range rs.levels {
		n += q.Len()
	}
	return n
}

// Remove takes a thread out of whichever level holds it.
func (rs *ReadySet) Remove(t *Thread) bool {
	for _, q := range rs.levels {
		if q.Remove(t) {
			return true
		}
	}
	return false
}

// Dump renders the queue contents per level, head first.
func (rs *ReadySet) Dump() string {
	var sb strings.Builder
	for _, q := range rs.levels {
		fmt.Fprintf(&sb, "L%d:", q.level)
		for _, t := range q.Threads() {
			fmt.Fprintf(&sb, " [%d prio=%d burst=%d]", t.ID, t.Priority, t.BurstEstimate)
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
