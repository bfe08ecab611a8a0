package relay

import (
	"context"
	"fmt"

	"github.com/fathima-sithara/relay-service/internal/domain"
	"github.com/fathima-sithara/relay-service/internal/errs"
	"github.com/fathima-sithara/relay-service/internal/metric"
)

// ToggleReaction flips one (user, emoji) pair on a message and sends the
// regrouped reactions to every member of the message's chat. Unknown
// messages or chats end the operation with ErrNotFound and nobody is notified.
func (r *Relay) ToggleReaction(ctx context.Context, s Session, req domain.ReactionRequest) error {
	if req.MessageID == "" || req.UserID == "" || req.Reaction == "" {
		r.log.Debugw("reaction ignored, missing field", "conn_id", s.Ref.ConnID, "message_id", req.MessageID)
		return nil
	}

	updated, added, err := r.store.ToggleReaction(ctx, req.MessageID, domain.Reaction{UserID: req.UserID, Emoji: req.Reaction})
	if err != nil {
		err = fmt.Errorf("%w: toggle reaction %s: %w", errs.ErrPersistence, req.MessageID, err)
		metric.PersistenceFailures.Inc()
		return r.fail(ctx, s, "Failed to update reaction", err)
	}
	if updated == nil {
		return fmt.Errorf("%w: message %s", errs.ErrNotFound, req.MessageID)
	}

	grouped := domain.GroupReactions(updated.Reactions)
	chat, err := r.store.FindChatByID(ctx, updated.ChatID)
	if err != nil {
		return fmt.Errorf("find chat %s: %w", updated.ChatID, err)
	}
	if chat == nil {
		return fmt.Errorf("%w: chat %s of message %s", errs.ErrNotFound, updated.ChatID, updated.ID)
	}

	r.emit(ctx, r.lookupMany(ctx, chat.Members), domain.EventMessageReaction, domain.ReactionEvent{
		MessageID: updated.ID,
		ChatID:    updated.ChatID,
		Reactions: grouped,
	})

	r.publish(ctx, domain.StreamEvent{
		Type:      domain.StreamMessageReaction,
		ChatID:    updated.ChatID,
		MessageID: updated.ID,
		UserID:    req.UserID,
		At:        r.now(),
		Data:      map[string]any{"emoji": req.Reaction, "added": added},
	})
	return nil
}
