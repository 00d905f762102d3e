package store

import (
	"context"
	"sync"
)

// Memory is a process-local Store. Values handed in and out are copied so
// callers never share backing arrays with the store.
type Memory struct {
	mu    sync.RWMutex
	ints  map[string]int64
	lists map[string][][]byte
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		ints:  make(map[string]int64),
		lists: make(map[string][][]byte),
	}
}

func (m *Memory) GetInt(_ context.Context, key string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.ints[key]
	if !ok {
		return 0, ErrNotFound
	}
	return v, nil
}

func (m *Memory) PutInt(_ context.Context, key string, value int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ints[key] = value
	return nil
}

func (m *Memory) Incr(_ context.Context, key string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ints[key]++
	return m.ints[key], nil
}

func (m *Memory) PushBack(_ context.Context, key string, items ...[]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, item := range items {
		m.lists[key] = append(m.lists[key], clone(item))
	}
	return nil
}

func (m *Memory) PushFront(_ context.Context, key string, item []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.lists[key] = append([][]byte{clone(item)}, m.lists[key]...)
	return nil
}

func (m *Memory) PopFront(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	list := m.lists[key]
	if len(list) == 0 {
		return nil, ErrNotFound
	}
	head := list[0]
	list[0] = nil
	m.lists[key] = list[1:]
	return head, nil
}

func (m *Memory) Len(_ context.Context, key string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return int64(len(m.lists[key])), nil
}

func (m *Memory) Range(_ context.Context, key string) ([][]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([][]byte, 0, len(m.lists[key]))
	for _, item := range m.lists[key] {
		out = append(out, clone(item))
	}
	return out, nil
}

func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.ints, key)
	delete(m.lists, key)
	return nil
}

func clone(b []byte) []byte {
	return append([]byte(nil), b...)
}
