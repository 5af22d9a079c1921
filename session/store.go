package session

import (
	"context"
	"errors"
	"sync"
)

// ErrNotFound is returned by Store.Get for unknown session ids.
var ErrNotFound = errors.New("session not found")

// Store is the capability surface the directory and the revocation fallback
// scanner depend on. Destroy is idempotent: destroying an id that is already
// gone is not an error. All is tolerant: implementations skip records they
// cannot decode instead of failing the whole enumeration.
type Store interface {
	Get(ctx context.Context, id string) (*Record, error)
	Save(ctx context.Context, rec *Record) error
	Destroy(ctx context.Context, id string) error
	All(ctx context.Context) (map[string]*Record, error)
}

// MemoryStore is a process-local Store. Used in development and tests; state
// does not survive a restart.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*Record
}

// NewMemoryStore creates an empty in-memory session store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string]*Record)}
}

func (s *MemoryStore) Get(ctx context.Context, id string) (*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}

func (s *MemoryStore) Save(ctx context.Context, rec *Record) error {
	if rec == nil || rec.ID == "" {
		return errors.New("session: record must have an id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = rec
	return nil
}

func (s *MemoryStore) Destroy(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

func (s *MemoryStore) All(ctx context.Context) (map[string]*Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*Record, len(s.records))
	for id, rec := range s.records {
		out[id] = rec
	}
	return out, nil
}
