package ledger

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// Memory is an in-process Ledger.
type Memory struct {
	mu        sync.RWMutex
	data      map[string][]byte
	revisions map[string]int64
	down      bool
	failKeys  map[string]error
	failReads map[string]error
}

// NewMemory creates an empty, available in-memory ledger.
func NewMemory() *Memory {
	return &Memory{
		data:      make(map[string][]byte),
		revisions: make(map[string]int64),
		failKeys:  make(map[string]error),
		failReads: make(map[string]error),
	}
}

// SetAvailable toggles what IsAvailable reports.
func (m *Memory) SetAvailable(available bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.down = !available
}

// FailWrites makes every subsequent SetData on key fail with err.
// A nil err clears the failure.
func (m *Memory) FailWrites(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failKeys, key)
		return
	}
	m.failKeys[key] = err
}

// FailReads makes every subsequent GetData on key fail with err.
// A nil err clears the failure.
func (m *Memory) FailReads(key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err == nil {
		delete(m.failReads, key)
		return
	}
	m.failReads[key] = err
}

// IsAvailable reports false after SetAvailable(false).
func (m *Memory) IsAvailable(_ context.Context) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.down, nil
}

// GetData returns a copy of the value at key, or empty bytes when absent.
func (m *Memory) GetData(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.down {
		return nil, ErrUnavailable
	}
	if err, ok := m.failReads[key]; ok {
		return nil, fmt.Errorf("get %s: %w", key, err)
	}
	value, ok := m.data[key]
	if !ok {
		return []byte{}, nil
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// SetData stores a copy of value and bumps the key's revision.
func (m *Memory) SetData(ctx context.Context, key string, value []byte) (Receipt, error) {
	if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.down {
		return Receipt{}, ErrUnavailable
	}
	if err, ok := m.failKeys[key]; ok {
		return Receipt{}, fmt.Errorf("set %s: %w", key, err)
	}
	stored := make([]byte, len(value))
	copy(stored, value)
	m.data[key] = stored
	m.revisions[key]++
	return NewReceipt(key, stored, m.revisions[key]), nil
}

// Keys returns every key currently stored, sorted.
func (m *Memory) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.data))
	for k := range m.data {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
