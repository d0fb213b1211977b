// Package lock serializes stock mutations per position within the process.
// The database row lock is still the source of truth; the process lock in
// front of it keeps hot positions from piling up transactions that would
// only block on FOR UPDATE.
package lock

import (
	"sort"
	"sync"

	"github.com/smallbiznis/kasira/internal/inventory/domain"
)

type Manager struct {
	mu    sync.Mutex
	locks map[domain.Key]*sync.Mutex
}

func NewManager() *Manager {
	return &Manager{locks: make(map[domain.Key]*sync.Mutex)}
}

func (m *Manager) lockFor(key domain.Key) *sync.Mutex {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	return l
}

// Acquire takes the locks for the given keys in ascending order, which
// keeps concurrent multi-position transactions deadlock free. Duplicate
// keys are collapsed. The returned func releases in reverse order.
func (m *Manager) Acquire(keys ...domain.Key) func() {
	uniq := make(map[domain.Key]struct{}, len(keys))
	ordered := make([]domain.Key, 0, len(keys))
	for _, k := range keys {
		if _, ok := uniq[k]; ok {
			continue
		}
		uniq[k] = struct{}{}
		ordered = append(ordered, k)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].Less(ordered[j]) })

	held := make([]*sync.Mutex, 0, len(ordered))
	for _, k := range ordered {
		l := m.lockFor(k)
		l.Lock()
		held = append(held, l)
	}

	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].Unlock()
		}
	}
}
