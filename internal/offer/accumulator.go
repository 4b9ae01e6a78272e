package offer

// Accumulator collects canonical records for one crawl unit, keyed by
// external_id. Duplicate ids within a run replace the earlier record
// (last write wins) while keeping its original position, so snapshots are
// stable and never hold two records with the same id.
type Accumulator struct {
	index   map[string]int
	records []CanonicalRecord
}

// NewAccumulator creates an empty accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{
		index: make(map[string]int),
	}
}

// Add inserts or replaces a record and reports whether it replaced an
// earlier one.
func (a *Accumulator) Add(record CanonicalRecord) bool {
	if i, ok := a.index[record.ExternalID]; ok {
		a.records[i] = record
		return true
	}
	a.index[record.ExternalID] = len(a.records)
	a.records = append(a.records, record)
	return false
}

// Len returns the number of distinct records accumulated.
func (a *Accumulator) Len() int {
	return len(a.records)
}

// Snapshot returns a copy of the deduplicated records in insertion order.
// Each snapshot is a superset of the previous one, so flushing snapshots
// in order toward the sink is safe and convergent.
func (a *Accumulator) Snapshot() []CanonicalRecord {
	out := make([]CanonicalRecord, len(a.records))
	copy(out, a.records)
	return out
}
