package history

import (
	"context"
	"sync"
)

// memoryRetention bounds per-provider exchanges kept by the in-memory store.
const memoryRetention = 100

// MemoryStore keeps exchanges in memory. It backs deployments that leave
// persistence switched off; dedup still works within the process lifetime.
type MemoryStore struct {
	mu        sync.Mutex
	exchanges map[string][]Exchange
	closed    bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{exchanges: make(map[string][]Exchange)}
}

func (s *MemoryStore) Record(_ context.Context, ex Exchange) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	ex = stamp(ex)
	list := append(s.exchanges[ex.Provider], ex)
	if len(list) > memoryRetention {
		list = list[len(list)-memoryRetention:]
	}
	s.exchanges[ex.Provider] = list
	return nil
}

func (s *MemoryStore) LastReply(_ context.Context, provider string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrClosed
	}
	list := s.exchanges[provider]
	if len(list) == 0 {
		return "", nil
	}
	return list[len(list)-1].Reply, nil
}

func (s *MemoryStore) Recent(_ context.Context, provider string, limit int) ([]Exchange, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	list := s.exchanges[provider]
	if limit <= 0 || limit > len(list) {
		limit = len(list)
	}
	out := make([]Exchange, 0, limit)
	for i := len(list) - 1; i >= len(list)-limit; i-- {
		out = append(out, list[i])
	}
	return out, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
