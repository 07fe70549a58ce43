package usage

import (
	"sync"

	"github.com/ineyio/keyrelay"
)

// MemoryStore is an in-memory SnapshotStore.
type MemoryStore struct {
	mu      sync.Mutex
	snap    *keyrelay.Snapshot
	saves   int
	failErr error
}

var _ keyrelay.SnapshotStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// NewMemoryStoreWith creates a store that already holds snap.
func NewMemoryStoreWith(snap keyrelay.Snapshot) *MemoryStore {
	c := cloneSnapshot(snap)
	return &MemoryStore{snap: &c}
}

// Load returns the stored snapshot or ErrSnapshotNotFound.
func (s *MemoryStore) Load() (keyrelay.Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.snap == nil {
		return keyrelay.Snapshot{}, keyrelay.ErrSnapshotNotFound
	}
	return cloneSnapshot(*s.snap), nil
}

// Save stores a copy of snap, or returns the configured failure.
func (s *MemoryStore) Save(snap keyrelay.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.failErr != nil {
		return s.failErr
	}
	c := cloneSnapshot(snap)
	s.snap = &c
	s.saves++
	return nil
}

// FailWith makes every subsequent Save return err. A nil err clears the failure.
func (s *MemoryStore) FailWith(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failErr = err
}

// Saves returns the number of successful saves.
func (s *MemoryStore) Saves() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func cloneSnapshot(snap keyrelay.Snapshot) keyrelay.Snapshot {
	counts := make(map[string]int64, len(snap.Counts))
	for k, v := range snap.Counts {
		counts[k] = v
	}
	exhausted := make([]string, len(snap.Exhausted))
	copy(exhausted, snap.Exhausted)
	return keyrelay.Snapshot{
		Date:      snap.Date,
		Counts:    counts,
		Exhausted: exhausted,
	}
}
