package rendezvous

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-process rendezvous Store. It exists for unit tests and
// for single-process smoke runs where standing up Redis would be overkill; it
// implements the same wait/timeout contract as the external backends.
type MemoryStore struct {
	records map[string]Record
	waiters map[string][]chan Record
	lock    sync.Mutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]Record),
		waiters: make(map[string][]chan Record),
	}
}

func (s *MemoryStore) Publish(_ context.Context, key string, record Record) error {
	s.lock.Lock()
	s.records[key] = record
	waiters := s.waiters[key]
	delete(s.waiters, key)
	s.lock.Unlock()
	for _, ch := range waiters {
		ch <- record
		close(ch)
	}
	return nil
}

func (s *MemoryStore) Await(ctx context.Context, key string) (Record, error) {
	s.lock.Lock()
	if record, ok := s.records[key]; ok {
		s.lock.Unlock()
		return record, nil
	}
	ch := make(chan Record, 1)
	s.waiters[key] = append(s.waiters[key], ch)
	s.lock.Unlock()

	select {
	case record := <-ch:
		return record, nil
	case <-ctx.Done():
		s.removeWaiter(key, ch)
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.lock.Lock()
	delete(s.records, key)
	s.lock.Unlock()
	return nil
}

func (s *MemoryStore) Close() error { return nil }

// Keys returns the keys currently present, so tests can verify that teardown
// left the store empty.
func (s *MemoryStore) Keys() []string {
	s.lock.Lock()
	defer s.lock.Unlock()
	var keys []string
	for k := range s.records {
		keys = append(keys, k)
	}
	return keys
}

func (s *MemoryStore) removeWaiter(key string, ch chan Record) {
	s.lock.Lock()
	defer s.lock.Unlock()
	waiters := s.waiters[key]
	for i, w := range waiters {
		if w == ch {
			s.waiters[key] = append(waiters[:i], waiters[i+1:]...)
			return
		}
	}
}
