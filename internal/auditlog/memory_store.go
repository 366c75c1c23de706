package auditlog

import (
	"context"
	"sync"
	"time"

	"github.com/chenpu17/cc-gw-sub001/internal/model"
)

// defaultCapacity bounds MemoryStore so a long-running single-node
// gateway doesn't grow its audit log without limit; the oldest record
// is evicted once capacity is exceeded.
const defaultCapacity = 10000

// MemoryStore is a ring-bounded, mutex-guarded default Store, good for
// tests and single-node operation without a Mongo deployment.
type MemoryStore struct {
	mu       sync.Mutex
	capacity int
	order    []string // insertion order, oldest first
	records  map[string]*LogRecord
}

// NewMemoryStore builds an empty store bounded to capacity records (0
// uses defaultCapacity).
func NewMemoryStore(capacity int) *MemoryStore {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &MemoryStore{
		capacity: capacity,
		records:  make(map[string]*LogRecord),
	}
}

func (s *MemoryStore) Create(_ context.Context, rec *LogRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *rec
	s.records[rec.ID] = &clone
	s.order = append(s.order, rec.ID)
	for len(s.order) > s.capacity {
		evict := s.order[0]
		s.order = s.order[1:]
		delete(s.records, evict)
	}
	return nil
}

func (s *MemoryStore) UpsertRequestPayload(_ context.Context, id string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	rec.RequestPayload = append([]byte(nil), payload...)
	return nil
}

func (s *MemoryStore) UpdateTokens(_ context.Context, id string, usage model.TokenUsage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	rec.Usage = usage
	return nil
}

func (s *MemoryStore) UpsertResponsePayload(_ context.Context, id string, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	rec.ResponsePayload = append([]byte(nil), payload...)
	return nil
}

func (s *MemoryStore) Finalize(_ context.Context, id string, info FinalizeInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	if rec.Finalized {
		return ErrAlreadyFinalized
	}
	rec.Finalized = true
	rec.LatencyMillis = info.LatencyMillis
	rec.StatusCode = info.StatusCode
	rec.ErrorMessage = info.ErrorMessage
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*LogRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return nil, ErrNotFound
	}
	clone := *rec
	return &clone, nil
}

func (s *MemoryStore) ListFinalized(_ context.Context, since, until time.Time) ([]*LogRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*LogRecord
	for _, id := range s.order {
		rec := s.records[id]
		if !rec.Finalized {
			continue
		}
		if rec.Timestamp.Before(since) || !rec.Timestamp.Before(until) {
			continue
		}
		clone := *rec
		out = append(out, &clone)
	}
	return out, nil
}
