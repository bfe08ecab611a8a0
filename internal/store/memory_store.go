package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fathima-sithara/relay-service/internal/domain"
)

// MemoryStore keeps messages and chats in process memory. It backs local
// development and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	messages map[string]*domain.Message
	chats    map[string]*domain.Chat
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		messages: make(map[string]*domain.Message),
		chats:    make(map[string]*domain.Chat),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// PutChat inserts or replaces a chat.
func (s *MemoryStore) PutChat(c domain.Chat) {
	s.mu.Lock()
	defer s.mu.Unlock()
	members := append([]string(nil), c.Members...)
	s.chats[c.ID] = &domain.Chat{ID: c.ID, Members: members}
}

func (s *MemoryStore) CreateMessage(_ context.Context, m *domain.Message) (*domain.Message, error) {
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	rec := m.Clone()
	rec.ID = uuid.NewString()
	rec.CreatedAt = s.now()
	rec.UpdatedAt = rec.CreatedAt
	if rec.Reactions == nil {
		rec.Reactions = []domain.Reaction{}
	}

	s.mu.Lock()
	s.messages[rec.ID] = rec
	s.mu.Unlock()
	return rec.Clone(), nil
}

func (s *MemoryStore) FindMessageByID(_ context.Context, id string) (*domain.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.messages[id].Clone(), nil
}

func (s *MemoryStore) UpdatePartial(_ context.Context, id string, f Fields, opts UpdateOptions) (*domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.messages[id]
	if !ok {
		return nil, nil
	}
	next := cur.Clone()
	apply(next, f)
	if !opts.SkipValidation {
		if err := next.Validate(); err != nil {
			return nil, fmt.Errorf("update message %s: %w", id, err)
		}
	}
	next.UpdatedAt = s.now()
	s.messages[id] = next
	return next.Clone(), nil
}

func (s *MemoryStore) ToggleReaction(_ context.Context, id string, r domain.Reaction) (*domain.Message, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.messages[id]
	if !ok {
		return nil, false, nil
	}
	next := cur.Clone()
	var added bool
	next.Reactions, added = domain.ToggleReaction(cur.Reactions, r.UserID, r.Emoji)
	next.UpdatedAt = s.now()
	s.messages[id] = next
	return next.Clone(), added, nil
}

func (s *MemoryStore) FindChatByID(_ context.Context, id string) (*domain.Chat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chats[id]
	if !ok {
		return nil, nil
	}
	return &domain.Chat{ID: c.ID, Members: append([]string(nil), c.Members...)}, nil
}
