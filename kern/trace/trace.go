package trace

// SchedulerTrace collects diagnostic records during a run. A nil
// SchedulerTrace is valid and records nothing.
type SchedulerTrace struct {
	records []Record
}

// NewSchedulerTrace creates a SchedulerTrace ready for recording.
func NewSchedulerTrace() *SchedulerTrace {
	return &SchedulerTrace{records: make([]Record, 0)}
}

// Append adds a record. Safe on a nil trace.
func (st *SchedulerTrace) Append(r Record) {
	if st == nil {
		return
	}
	st.records = append(st.records, r)
}

// Records returns all collected records in order.
func (st *SchedulerTrace) Records() []Record {
	if st == nil {
		return nil
	}
	return st.records
}

// ByKind returns the records of one kind, in order.
func (st *SchedulerTrace) ByKind(k Kind) []Record {
	if st == nil {
		return nil
	}
	var out []Record
	for _, r := range st.records {
		if r.Kind == k {
			out = append(out, r)
		}
	}
	return out
}

// ByThread returns the records for one thread ID, in order.
func (st *SchedulerTrace) ByThread(id int) []Record {
	if st == nil {
		return nil
	}
	var out []Record
	for _, r := range st.records {
		if r.ThreadID == id {
			out = append(out, r)
		}
	}
	return out
}

// Len returns the number of collected records.
func (st *SchedulerTrace) Len() int {
	if st == nil {
		return 0
	}
	return len(st.records)
}
