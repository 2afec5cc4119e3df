package concurrent

import (
	"cmp"
	"maps"
	"slices"
	"sync"
)

// Map is a map guarded by a RWMutex with sorted-key iteration.
type Map[K cmp.Ordered, V any] struct {
	mu     sync.RWMutex
	values map[K]V
}

func NewMap[K cmp.Ordered, V any]() *Map[K, V] {
	return &Map[K, V]{
		values: make(map[K]V),
	}
}

func (m *Map[K, V]) Load(key K) (V, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	val, ok := m.values[key]
	return val, ok
}

func (m *Map[K, V]) Store(key K, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = value
}

// Update applies fn to the current value under the write lock. fn reports
// whether the value should be stored; Update returns that result.
func (m *Map[K, V]) Update(key K, fn func(current V, exists bool) (V, bool)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, exists := m.values[key]
	next, store := fn(current, exists)
	if store {
		m.values[key] = next
	}
	return store
}

// Delete removes key and reports whether it was present.
func (m *Map[K, V]) Delete(key K) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.values[key]
	delete(m.values, key)
	return ok
}

func (m *Map[K, V]) Length() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.values)
}

// Range calls f for each entry in ascending key order until f returns false.
func (m *Map[K, V]) Range(f func(key K, value V) bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, k := range slices.Sorted(maps.Keys(m.values)) {
		if !f(k, m.values[k]) {
			break
		}
	}
}
