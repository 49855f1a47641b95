package kv

import (
	"context"
	"strings"
	"sync"
)

type stagedOp int

const (
	stagedPut stagedOp = iota
	stagedDelete
)

type stagedValue struct {
	op    stagedOp
	value []byte
}

// MemoryStore is the in-memory backend used by tests and the dev server.
type MemoryStore struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string][]byte)}
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.data[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

func (s *MemoryStore) Has(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data[key]
	return ok, nil
}

func (s *MemoryStore) Put(_ context.Context, key string, value []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := make([]byte, len(value))
	copy(stored, value)
	s.data[key] = stored
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, key)
	return nil
}

func (s *MemoryStore) Scan(_ context.Context, prefix string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var keys []string
	for k := range s.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (s *MemoryStore) Begin(_ context.Context) (Tx, error) {
	return &memoryTx{store: s, staged: make(map[string]stagedValue)}, nil
}

func (s *MemoryStore) Close() error { return nil }

// memoryTx stages writes in an overlay map and applies them under the store
// lock on commit, so a failed operation leaves the store untouched.
type memoryTx struct {
	store  *MemoryStore
	staged map[string]stagedValue
	done   bool
}

func (t *memoryTx) Get(ctx context.Context, key string) ([]byte, error) {
	if sv, ok := t.staged[key]; ok {
		if sv.op == stagedDelete {
			return nil, ErrKeyNotFound
		}
		return sv.value, nil
	}
	return t.store.Get(ctx, key)
}

func (t *memoryTx) Has(ctx context.Context, key string) (bool, error) {
	if sv, ok := t.staged[key]; ok {
		return sv.op == stagedPut, nil
	}
	return t.store.Has(ctx, key)
}

func (t *memoryTx) Put(_ context.Context, key string, value []byte) error {
	stored := make([]byte, len(value))
	copy(stored, value)
	t.staged[key] = stagedValue{op: stagedPut, value: stored}
	return nil
}

func (t *memoryTx) Delete(_ context.Context, key string) error {
	t.staged[key] = stagedValue{op: stagedDelete}
	return nil
}

func (t *memoryTx) Scan(ctx context.Context, prefix string) ([]string, error) {
	keys, err := t.store.Scan(ctx, prefix)
	if err != nil {
		return nil, err
	}
	merged := make(map[string]bool, len(keys))
	for _, k := range keys {
		merged[k] = true
	}
	for k, sv := range t.staged {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		merged[k] = sv.op == stagedPut
	}
	var out []string
	for k, present := range merged {
		if present {
			out = append(out, k)
		}
	}
	return out, nil
}

func (t *memoryTx) Commit() error {
	if t.done {
		return nil
	}
	t.done = true
	t.store.mu.Lock()
	defer t.store.mu.Unlock()
	for k, sv := range t.staged {
		if sv.op == stagedDelete {
			delete(t.store.data, k)
		} else {
			t.store.data[k] = sv.value
		}
	}
	return nil
}

func (t *memoryTx) Rollback() error {
	t.done = true
	t.staged = nil
	return nil
}
