package store

import (
	"encoding/json"
	"fmt"
	"sync"
)

// Store is the durable key/value backing for account configuration and the
// transaction fee cache. Values are JSON-serializable.
type Store interface {
	// GetItem decodes the value stored under key into v and reports whether
	// the key existed.
	GetItem(key string, v any) (bool, error)
	SetItem(key string, v any) error
	DeleteItem(key string) error
}

// Memory is an in-memory Store, used by tests and the -ephemeral daemon mode.
type Memory struct {
	mu    sync.Mutex
	items map[string]json.RawMessage
}

func NewMemory() *Memory {
	return &Memory{items: make(map[string]json.RawMessage)}
}

func (m *Memory) GetItem(key string, v any) (bool, error) {
	m.mu.Lock()
	raw, ok := m.items[key]
	m.mu.Unlock()
	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, fmt.Errorf("decode %q: %w", key, err)
	}
	return true, nil
}

func (m *Memory) SetItem(key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	m.mu.Lock()
	m.items[key] = raw
	m.mu.Unlock()
	return nil
}

func (m *Memory) DeleteItem(key string) error {
	m.mu.Lock()
	delete(m.items, key)
	m.mu.Unlock()
	return nil
}

var _ Store = (*Memory)(nil)
