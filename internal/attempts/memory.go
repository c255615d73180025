package attempts

import (
	"context"
	"sync"
	"time"
)

type record struct {
	failures    int
	lastFailure time.Time
}

// MemoryStore keeps records in process memory.
type MemoryStore struct {
	mu          sync.Mutex
	records     map[string]*record
	maxFailures int
	window      time.Duration
	now         func() time.Time
}

func NewMemoryStore(maxFailures int, window time.Duration) *MemoryStore {
	return &MemoryStore{
		records:     make(map[string]*record),
		maxFailures: maxFailures,
		window:      window,
		now:         time.Now,
	}
}

// live returns the record for id, dropping it first if the window elapsed.
// Caller holds mu.
func (s *MemoryStore) live(id string, now time.Time) *record {
	rec, ok := s.records[id]
	if !ok {
		return nil
	}
	if now.Sub(rec.lastFailure) > s.window {
		delete(s.records, id)
		return nil
	}
	return rec
}

func (s *MemoryStore) status(rec *record, now time.Time) Status {
	if rec == nil {
		return Status{}
	}
	st := Status{Failures: rec.failures}
	if rec.failures >= s.maxFailures {
		st.Locked = true
		st.RetryAfter = s.window - now.Sub(rec.lastFailure)
	}
	return st
}

func (s *MemoryStore) Check(_ context.Context, id string) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	return s.status(s.live(id, now), now), nil
}

func (s *MemoryStore) RecordFailure(_ context.Context, id string) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	rec := s.live(id, now)
	if rec == nil {
		rec = &record{}
		s.records[id] = rec
	}
	rec.failures++
	rec.lastFailure = now
	return s.status(rec, now), nil
}

func (s *MemoryStore) Reset(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

// Sweep removes expired records. It only reclaims memory; decisions are the
// same with or without it.
func (s *MemoryStore) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	n := 0
	for id, rec := range s.records {
		if now.Sub(rec.lastFailure) > s.window {
			delete(s.records, id)
			n++
		}
	}
	return n
}

// Len returns the number of tracked identifiers.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

var _ Store = (*MemoryStore)(nil)
