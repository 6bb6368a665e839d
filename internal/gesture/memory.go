package gesture

import (
	"context"
	"sync"
)

// MemoryPersister keeps snapshots in memory. It records how many saves
// happened and can be made to fail.
type MemoryPersister struct {
	mu      sync.Mutex
	records map[string]Record
	saves   int
	failErr error
}

// NewMemoryPersister creates a persister seeded with records
func NewMemoryPersister(seed map[string]Record) *MemoryPersister {
	m := &MemoryPersister{records: map[string]Record{}}
	for id, r := range seed {
		m.records[id] = r
	}
	return m
}

// Load returns a copy of the last saved snapshot
func (m *MemoryPersister) Load(_ context.Context) (map[string]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.copyLocked(), nil
}

// Save stores a copy of records
func (m *MemoryPersister) Save(_ context.Context, records map[string]Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failErr != nil {
		return m.failErr
	}
	m.records = make(map[string]Record, len(records))
	for id, r := range records {
		m.records[id] = r
	}
	m.saves++
	return nil
}

// Saved returns the last saved snapshot
func (m *MemoryPersister) Saved() map[string]Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.copyLocked()
}

// Saves returns the number of successful saves
func (m *MemoryPersister) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// FailWith makes subsequent saves return err; nil restores normal behavior
func (m *MemoryPersister) FailWith(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failErr = err
}

func (m *MemoryPersister) copyLocked() map[string]Record {
	out := make(map[string]Record, len(m.records))
	for id, r := range m.records {
		out[id] = r
	}
	return out
}
