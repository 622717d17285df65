// Package storage implements the key/value persistence layer the core reads
// and writes through (spec section 6.4). The core never talks to a
// concrete database; it is handed a KV and, inside one transaction, a Cache
// wrapping it.
package storage

import (
	"errors"
	"sort"
	"sync"
)

// ErrNotFound is returned by KV implementations that choose to surface a
// missing key as an error rather than a boolean; callers should prefer the
// (value, ok, err) form below and treat ErrNotFound as equivalent to ok=false.
var ErrNotFound = errors.New("storage: key not found")

// KV is the pool-scoped persistent key/value abstraction every storage
// backend implements. Keys are opaque strings namespaced by callers (see
// native/pool's key-building helpers); values are caller-serialized bytes.
type KV interface {
	Get(key string) (value []byte, ok bool, err error)
	Set(key string, value []byte) error
	Delete(key string) error
	// IteratePrefix calls fn for every key with the given prefix, in
	// ascending lexical order, stopping early if fn returns false.
	IteratePrefix(prefix string, fn func(key string, value []byte) bool) error
}

// MemKV is an in-process KV used by tests and by hosts that don't need
// durability across restarts.
type MemKV struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemKV constructs an empty in-memory KV.
func NewMemKV() *MemKV {
	return &MemKV{data: make(map[string][]byte)}
}

func (m *MemKV) Get(key string) ([]byte, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[key]
	if !ok {
		return nil, false, nil
	}
	return append([]byte(nil), v...), true, nil
}

func (m *MemKV) Set(key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = append([]byte(nil), value...)
	return nil
}

func (m *MemKV) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *MemKV) IteratePrefix(prefix string, fn func(key string, value []byte) bool) error {
	m.mu.RLock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			keys = append(keys, k)
		}
	}
	m.mu.RUnlock()
	sort.Strings(keys)
	for _, k := range keys {
		m.mu.RLock()
		v := append([]byte(nil), m.data[k]...)
		m.mu.RUnlock()
		if !fn(k, v) {
			break
		}
	}
	return nil
}
