package kvstore

import (
	"strings"
	"sync"
)

// Memory is a Store kept in memory. It is not durable and is meant for tests
// and dry runs.
type Memory struct {
	mu     sync.Mutex
	values map[string]Value
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{values: make(map[string]Value)}
}

func (m *Memory) Get(path, name string) (Value, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.values[string(key(path, name))]
	if !ok {
		return Value{}, ErrNotExist
	}
	return Value{Type: v.Type, Data: append([]byte(nil), v.Data...)}, nil
}

func (m *Memory) Set(path, name string, v Value) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[string(key(path, name))] = Value{Type: v.Type, Data: append([]byte(nil), v.Data...)}
	return nil
}

// Delete removes the value at path/name, if any.
func (m *Memory) Delete(path, name string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.values, string(key(path, name)))
}

// Len returns the number of values in the store under path.
func (m *Memory) Len(path string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	prefix := strings.ToLower(strings.Trim(path, `\`)) + "\x00"
	n := 0
	for k := range m.values {
		if strings.HasPrefix(k, prefix) {
			n++
		}
	}
	return n
}
