// Package blocklist holds client identifiers that are refused outright.
package blocklist

import (
	"context"
	"sort"
	"sync"
)

// Set is a set of blocked client identifiers.
type Set interface {
	Contains(ctx context.Context, id string) (bool, error)
	Add(ctx context.Context, id string) error
	Remove(ctx context.Context, id string) error
	List(ctx context.Context) ([]string, error)
}

type MemorySet struct {
	mu  sync.RWMutex
	ids map[string]struct{}
}

func NewMemorySet(initial ...string) *MemorySet {
	s := &MemorySet{ids: make(map[string]struct{}, len(initial))}
	for _, id := range initial {
		if id != "" {
			s.ids[id] = struct{}{}
		}
	}
	return s
}

func (s *MemorySet) Contains(_ context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.ids[id]
	return ok, nil
}

func (s *MemorySet) Add(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ids[id] = struct{}{}
	return nil
}

func (s *MemorySet) Remove(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.ids, id)
	return nil
}

// List returns the identifiers in sorted order.
func (s *MemorySet) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	out := make([]string, 0, len(s.ids))
	for id := range s.ids {
		out = append(out, id)
	}
	s.mu.RUnlock()
	sort.Strings(out)
	return out, nil
}

var _ Set = (*MemorySet)(nil)
