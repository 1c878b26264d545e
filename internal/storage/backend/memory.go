package backend

import (
	"context"
	"sync"
)

// Memory keeps slots in a map. Contents are lost on exit.
type Memory struct {
	mu    sync.RWMutex
	slots map[Key][]byte
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *Memory {
	return &Memory{slots: make(map[Key][]byte)}
}

func (m *Memory) Put(_ context.Context, k Key, data []byte) error {
	buf := make([]byte, len(data))
	copy(buf, data)

	m.mu.Lock()
	m.slots[k] = buf
	m.mu.Unlock()
	return nil
}

func (m *Memory) Get(_ context.Context, k Key) ([]byte, error) {
	m.mu.RLock()
	data, ok := m.slots[k]
	m.mu.RUnlock()
	if !ok {
		return nil, notFound(k)
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	return buf, nil
}

func (m *Memory) Delete(_ context.Context, k Key) error {
	m.mu.Lock()
	delete(m.slots, k)
	m.mu.Unlock()
	return nil
}

func (m *Memory) Exists(_ context.Context, k Key) (bool, error) {
	m.mu.RLock()
	_, ok := m.slots[k]
	m.mu.RUnlock()
	return ok, nil
}

func (m *Memory) Close() error {
	return nil
}

// Len returns the number of stored slots.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.slots)
}
