// Package memory implements store.Log with in-process slices. It is used in
// tests and for single-process deployments that do not need persistence.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/alfredjeanlab/hotstore/internal/store"
)

// MemoryLog implements store.Log backed by a map of slices.
type MemoryLog struct {
	mu     sync.RWMutex
	lists  map[string][]string
	closed bool

	// failErr, when non-nil, is returned (wrapped) by every call.
	failErr error
}

// Compile-time check that MemoryLog implements store.Log.
var _ store.Log = (*MemoryLog)(nil)

// New returns an empty MemoryLog.
func New() *MemoryLog {
	return &MemoryLog{lists: make(map[string][]string)}
}

// SetFailure makes every subsequent call fail with err wrapped in
// store.ErrUnavailable. Pass nil to restore normal operation.
func (m *MemoryLog) SetFailure(err error) {
	m.mu.Lock()
	m.failErr = err
	m.mu.Unlock()
}

func (m *MemoryLog) check(op string) error {
	if m.closed {
		return store.Unavailable(op, fmt.Errorf("log closed"))
	}
	if m.failErr != nil {
		return store.Unavailable(op, m.failErr)
	}
	return nil
}

// normalize resolves negative indices and clamps to the list bounds, in
// the manner of Redis range commands. ok is false for an empty selection.
func normalize(start, stop int64, n int) (int, int, bool) {
	if start < 0 {
		start += int64(n)
	}
	if stop < 0 {
		stop += int64(n)
	}
	if start < 0 {
		start = 0
	}
	if stop >= int64(n) {
		stop = int64(n) - 1
	}
	if start > stop || n == 0 {
		return 0, 0, false
	}
	return int(start), int(stop), true
}

func (m *MemoryLog) PushHead(_ context.Context, key string, values ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("push"); err != nil {
		return err
	}
	list := m.lists[key]
	head := make([]string, 0, len(values)+len(list))
	for i := len(values) - 1; i >= 0; i-- {
		head = append(head, values[i])
	}
	m.lists[key] = append(head, list...)
	return nil
}

func (m *MemoryLog) Trim(_ context.Context, key string, start, stop int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("trim"); err != nil {
		return err
	}
	list := m.lists[key]
	lo, hi, ok := normalize(start, stop, len(list))
	if !ok {
		delete(m.lists, key)
		return nil
	}
	m.lists[key] = append([]string(nil), list[lo:hi+1]...)
	return nil
}

func (m *MemoryLog) Range(_ context.Context, key string, start, stop int64) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.check("range"); err != nil {
		return nil, err
	}
	list := m.lists[key]
	lo, hi, ok := normalize(start, stop, len(list))
	if !ok {
		return []string{}, nil
	}
	return append([]string(nil), list[lo:hi+1]...), nil
}

func (m *MemoryLog) RemoveFirst(_ context.Context, key, value string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("remove"); err != nil {
		return false, err
	}
	list := m.lists[key]
	for i, v := range list {
		if v == value {
			m.lists[key] = append(list[:i:i], list[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryLog) SetAt(_ context.Context, key string, index int64, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.check("set"); err != nil {
		return err
	}
	list := m.lists[key]
	if index < 0 {
		index += int64(len(list))
	}
	if index < 0 || index >= int64(len(list)) {
		return fmt.Errorf("set %s[%d]: index out of range", key, index)
	}
	list[index] = value
	return nil
}

func (m *MemoryLog) Ping(_ context.Context) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.check("ping")
}

// Len returns the length of the list at key.
func (m *MemoryLog) Len(key string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.lists[key])
}

// Close marks the log closed; later calls fail as unavailable.
func (m *MemoryLog) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
