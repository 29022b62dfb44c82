package storage

import (
	"bytes"
	"context"
	"sync"
)

// Memory is a process-local Store.
type Memory struct {
	mu     sync.Mutex
	docs   map[string][]byte
	audit  []AuditEntry
	writes map[string]int
	closed bool
}

func NewMemory() *Memory {
	return &Memory{docs: map[string][]byte{}, writes: map[string]int{}}
}

func (m *Memory) Load(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, false, ErrClosed
	}
	b, ok := m.docs[key]
	if !ok {
		return nil, false, nil
	}
	return bytes.Clone(b), true, nil
}

func (m *Memory) Save(_ context.Context, key string, data []byte) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false, ErrClosed
	}
	if cur, ok := m.docs[key]; ok && bytes.Equal(cur, data) {
		return false, nil
	}
	m.docs[key] = bytes.Clone(data)
	m.writes[key]++
	return true, nil
}

func (m *Memory) AppendAudit(_ context.Context, e AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.audit = append(m.audit, e)
	return nil
}

func (m *Memory) Ping(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	return nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Delete drops the document under key.
func (m *Memory) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, key)
}

// Writes reports how many times key was actually written.
func (m *Memory) Writes(key string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writes[key]
}

// AuditEntries returns a copy of the audit log.
func (m *Memory) AuditEntries() []AuditEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]AuditEntry(nil), m.audit...)
}
