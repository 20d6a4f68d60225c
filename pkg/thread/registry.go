package thread

import "sync"

// Registry is the in-memory mapping from thread id to session record.
// It is deliberately not persisted: it holds no information that must
// survive a process restart.
type Registry struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		records: make(map[string]Record),
	}
}

// Get returns a copy of the record for threadID, if present
func (r *Registry) Get(threadID string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	rec, ok := r.records[threadID]
	return rec, ok
}

// Upsert stores a record, replacing any existing one for the same thread
func (r *Registry) Upsert(rec Record) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records[rec.ThreadID] = rec
}

// Remove deletes the record for threadID, if present
func (r *Registry) Remove(threadID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.records, threadID)
}

// Snapshot returns copies of all records, in no particular order
func (r *Registry) Snapshot() []Record {
	r.mu.RLock()
	defer r.mu.RUnlock()

	recs := make([]Record, 0, len(r.records))
	for _, rec := range r.records {
		recs = append(recs, rec)
	}
	return recs
}

// Len returns the number of tracked threads
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.records)
}
