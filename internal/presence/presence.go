package presence

import (
	"context"
	"sync"
)

// Change is published whenever a user enters or leaves the online set.
type Change struct {
	UserID string `json:"user_id"`
	Online bool   `json:"online"`
}

// OnlineSet is the set of reachable users, ordered by first arrival.
// Re-adding a present user does not move it.
type OnlineSet interface {
	Add(ctx context.Context, userID string) (bool, error)
	Remove(ctx context.Context, userID string) (bool, error)
	IsOnline(ctx context.Context, userID string) (bool, error)
	List(ctx context.Context) ([]string, error)
	// Subscribe returns a stream of changes and a func that ends the
	// subscription. Slow subscribers miss changes rather than block writers.
	Subscribe() (<-chan Change, func())
}

const subscriberBuffer = 64

type Memory struct {
	mu    sync.RWMutex
	order []string
	index map[string]struct{}

	subMu sync.Mutex
	subs  map[chan Change]struct{}
}

func NewMemory() *Memory {
	return &Memory{
		index: make(map[string]struct{}),
		subs:  make(map[chan Change]struct{}),
	}
}

func (m *Memory) Add(_ context.Context, userID string) (bool, error) {
	m.mu.Lock()
	if _, ok := m.index[userID]; ok {
		m.mu.Unlock()
		return false, nil
	}
	m.index[userID] = struct{}{}
	m.order = append(m.order, userID)
	m.mu.Unlock()

	m.notify(Change{UserID: userID, Online: true})
	return true, nil
}

func (m *Memory) Remove(_ context.Context, userID string) (bool, error) {
	m.mu.Lock()
	if _, ok := m.index[userID]; !ok {
		m.mu.Unlock()
		return false, nil
	}
	delete(m.index, userID)
	for i, id := range m.order {
		if id == userID {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.mu.Unlock()

	m.notify(Change{UserID: userID, Online: false})
	return true, nil
}

func (m *Memory) IsOnline(_ context.Context, userID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.index[userID]
	return ok, nil
}

func (m *Memory) List(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, len(m.order))
	copy(out, m.order)
	return out, nil
}

func (m *Memory) Subscribe() (<-chan Change, func()) {
	ch := make(chan Change, subscriberBuffer)
	m.subMu.Lock()
	m.subs[ch] = struct{}{}
	m.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.subMu.Lock()
			delete(m.subs, ch)
			m.subMu.Unlock()
			close(ch)
		})
	}
}

func (m *Memory) notify(c Change) {
	m.subMu.Lock()
	defer m.subMu.Unlock()
	for ch := range m.subs {
		select {
		case ch <- c:
		default:
		}
	}
}
