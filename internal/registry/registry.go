package registry

import (
	"context"
	"sync"
)

// ConnRef addresses one live connection. Instance is the relay process that
// owns the socket; ConnID is unique within that instance.
type ConnRef struct {
	Instance string `json:"instance"`
	ConnID   string `json:"conn_id"`
}

func (r ConnRef) IsZero() bool { return r.ConnID == "" }

// Registry maps a user to its current connection. A later Register for the
// same user replaces the earlier mapping.
type Registry interface {
	Register(ctx context.Context, userID string, ref ConnRef) error
	// Unregister removes the mapping only while it still points at ref, so a
	// stale disconnect cannot evict a newer session. It reports whether a
	// mapping was removed.
	Unregister(ctx context.Context, userID string, ref ConnRef) (bool, error)
	Lookup(ctx context.Context, userID string) (ConnRef, bool, error)
	// LookupMany skips users without a connection; the result may be shorter
	// than ids.
	LookupMany(ctx context.Context, ids []string) ([]ConnRef, error)
}

type Memory struct {
	mu    sync.RWMutex
	users map[string]ConnRef
}

func NewMemory() *Memory {
	return &Memory{users: make(map[string]ConnRef)}
}

func (m *Memory) Register(_ context.Context, userID string, ref ConnRef) error {
	m.mu.Lock()
	m.users[userID] = ref
	m.mu.Unlock()
	return nil
}

func (m *Memory) Unregister(_ context.Context, userID string, ref ConnRef) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.users[userID]; ok && cur == ref {
		delete(m.users, userID)
		return true, nil
	}
	return false, nil
}

func (m *Memory) Lookup(_ context.Context, userID string) (ConnRef, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ref, ok := m.users[userID]
	return ref, ok, nil
}

func (m *Memory) LookupMany(_ context.Context, ids []string) ([]ConnRef, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ConnRef, 0, len(ids))
	for _, id := range ids {
		if ref, ok := m.users[id]; ok {
			out = append(out, ref)
		}
	}
	return out, nil
}
