package scope

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	data    []byte
	expires time.Time
}

// MemoryStore stores snapshots in memory.
// Scopes are lost on restart and are not shared between console replicas.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	ttl     time.Duration
	now     func() time.Time
	locks   keyedLocks
}

// NewMemoryStore creates a new in-memory scope store.
// A zero ttl keeps scopes until they are deleted.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// Get retrieves a snapshot
func (s *MemoryStore) Get(ctx context.Context, id string) (*Snapshot, error) {
	s.mu.RLock()
	entry, ok := s.entries[id]
	s.mu.RUnlock()

	if !ok || s.expired(entry) {
		return nil, nil
	}

	// Each Get decodes a fresh copy so callers cannot mutate stored state
	return decode(entry.data)
}

// Save stores a snapshot
func (s *MemoryStore) Save(ctx context.Context, snap *Snapshot) error {
	data, err := encode(snap)
	if err != nil {
		return err
	}

	entry := memoryEntry{data: data}
	if s.ttl > 0 {
		entry.expires = s.now().Add(s.ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[snap.ID] = entry
	return nil
}

// Lock serializes updates to one scope
func (s *MemoryStore) Lock(ctx context.Context, id string) (func(), error) {
	return s.locks.lock(ctx, id)
}

// Sweep removes expired snapshots and returns how many were removed
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for id, entry := range s.entries {
		if s.expired(entry) {
			delete(s.entries, id)
			removed++
		}
	}
	return removed
}

// Len returns the number of stored snapshots, expired ones included
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Clear removes all snapshots (useful for testing)
func (s *MemoryStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]memoryEntry)
}

func (s *MemoryStore) expired(entry memoryEntry) bool {
	return !entry.expires.IsZero() && s.now().After(entry.expires)
}

// Start sweeps expired snapshots on an interval until ctx is done
func (s *MemoryStore) Start(ctx context.Context) error {
	interval := s.ttl
	if interval <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.Sweep()
		}
	}
}
