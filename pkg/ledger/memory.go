package ledger

import "sync"

// MemoryPersister is an in-memory Persister. It is safe for concurrent use.
type MemoryPersister struct {
	mu    sync.Mutex
	snap  Snapshot
	found bool
	saves int

	// FailWith, when set, is returned by SaveSnapshot instead of storing.
	FailWith error
}

// NewMemoryPersister creates an empty MemoryPersister.
func NewMemoryPersister() *MemoryPersister {
	return &MemoryPersister{}
}

// NewMemoryPersisterWith creates a MemoryPersister preloaded with snap.
func NewMemoryPersisterWith(snap Snapshot) *MemoryPersister {
	return &MemoryPersister{snap: snap.Clone(), found: true}
}

// LoadSnapshot implements Persister.
func (m *MemoryPersister) LoadSnapshot() (Snapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snap.Clone(), m.found, nil
}

// SaveSnapshot implements Persister.
func (m *MemoryPersister) SaveSnapshot(snap Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailWith != nil {
		return m.FailWith
	}
	m.snap = snap.Clone()
	m.found = true
	m.saves++
	return nil
}

// Saves returns how many snapshots have been stored.
func (m *MemoryPersister) Saves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saves
}

// Compile-time check: ensure MemoryPersister implements Persister.
var _ Persister = (*MemoryPersister)(nil)
