package audit

import (
	"context"
	"sync"
	"time"
)

// MemoryLedger keeps records in process memory. Appends are serialized by a
// single mutex; sequence numbers and timestamps never go backwards.
type MemoryLedger struct {
	mu      sync.Mutex
	records []Record
	byDoc   map[string][]int
	seq     uint64
	lastTS  time.Time
	now     func() time.Time
}

func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{byDoc: make(map[string][]int), now: time.Now}
}

// WithClock replaces the time source; used by tests.
func (l *MemoryLedger) WithClock(now func() time.Time) *MemoryLedger {
	l.now = now
	return l
}

func (l *MemoryLedger) Append(_ context.Context, e Entry) (Record, error) {
	if err := e.validate(); err != nil {
		return Record{}, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	ts := stamp(l.now())
	if ts.Before(l.lastTS) {
		ts = l.lastTS
	}
	l.lastTS = ts
	l.seq++

	prev := ""
	if idx := l.byDoc[e.DocumentID]; len(idx) > 0 {
		prev = l.records[idx[len(idx)-1]].Hash
	}
	r := newRecord(e, l.seq, ts, prev)
	l.records = append(l.records, r)
	l.byDoc[e.DocumentID] = append(l.byDoc[e.DocumentID], len(l.records)-1)
	return r.clone(), nil
}

func (l *MemoryLedger) Query(ctx context.Context, q Query) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	idx := l.byDoc[q.DocumentID]
	out := make([]Record, 0, len(idx))
	for _, i := range idx {
		if q.matches(l.records[i]) {
			out = append(out, l.records[i].clone())
		}
	}
	return out, nil
}

// Len returns the total number of records.
func (l *MemoryLedger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}
