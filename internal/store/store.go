package store

import (
	"context"

	"github.com/fathima-sithara/relay-service/internal/domain"
)

// Fields lists the message fields a partial update may touch. Nil pointers
// are left unchanged.
type Fields struct {
	Reactions *[]domain.Reaction
	Seen      *bool
}

type UpdateOptions struct {
	SkipValidation bool
}

// Store is the persistence facade used by the relay. Lookups return a nil
// result with a nil error when the record does not exist.
type Store interface {
	CreateMessage(ctx context.Context, m *domain.Message) (*domain.Message, error)
	FindMessageByID(ctx context.Context, id string) (*domain.Message, error)
	UpdatePartial(ctx context.Context, id string, f Fields, opts UpdateOptions) (*domain.Message, error)
	// ToggleReaction atomically removes the (user, emoji) pair when present
	// and adds it otherwise, reporting whether it was added.
	ToggleReaction(ctx context.Context, id string, r domain.Reaction) (*domain.Message, bool, error)
	FindChatByID(ctx context.Context, id string) (*domain.Chat, error)
}

func apply(m *domain.Message, f Fields) {
	if f.Reactions != nil {
		m.Reactions = append([]domain.Reaction{}, (*f.Reactions)...)
	}
	if f.Seen != nil {
		m.Seen = *f.Seen
	}
}
