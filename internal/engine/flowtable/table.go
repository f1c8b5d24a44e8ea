package flowtable

import (
	"sync"

	"spintraffic/internal/model"
)

// Table is the working set of flows for the window currently accumulating.
// It holds no two records that SameFlow considers equal.
//
// All access goes through mu: Ingest holds it for one record (or one decoded
// message), Detach holds it only to swap the slice out. Nothing in Table
// performs I/O while holding the lock.
type Table struct {
	mu    sync.Mutex
	flows []*model.FlowRecord
}

// New creates an empty flow table.
func New() *Table {
	return &Table{}
}

// Ingest merges rec into the first stored flow it matches, or appends it as a
// new flow. It returns true if rec was merged. A merged record must not be
// used by the caller afterwards.
func (t *Table) Ingest(rec *model.FlowRecord) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.ingestLocked(rec)
}

// IngestAll ingests the records of one message under a single lock
// acquisition and returns how many of them were merged into existing flows.
func (t *Table) IngestAll(records []*model.FlowRecord) (merged int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, rec := range records {
		if t.ingestLocked(rec) {
			merged++
		}
	}
	return merged
}

func (t *Table) ingestLocked(rec *model.FlowRecord) bool {
	for _, stored := range t.flows {
		if SameFlow(rec, stored) {
			stored.Add(rec)
			return true
		}
	}
	t.flows = append(t.flows, rec)
	return false
}

// Detach hands over all stored flows and leaves the table empty. It returns
// nil, and leaves the table untouched, when there is nothing to hand over.
func (t *Table) Detach() []*model.FlowRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.flows) == 0 {
		return nil
	}
	flows := t.flows
	t.flows = nil
	return flows
}

// Len returns the number of distinct flows currently stored.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.flows)
}

// Snapshot returns a deep copy of the stored flows for inspection.
func (t *Table) Snapshot() []*model.FlowRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	flows := make([]*model.FlowRecord, len(t.flows))
	for i, f := range t.flows {
		flows[i] = f.Clone()
	}
	return flows
}
