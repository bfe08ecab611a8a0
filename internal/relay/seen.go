package relay

import (
	"context"
	"fmt"

	"github.com/fathima-sithara/relay-service/internal/domain"
	"github.com/fathima-sithara/relay-service/internal/errs"
	"github.com/fathima-sithara/relay-service/internal/metric"
	"github.com/fathima-sithara/relay-service/internal/store"
)

// MarkSeen sets the seen flag and tells every chat member, including the
// reader and the sender. A missing message or chat yields ErrNotFound
// without notifying anyone.
func (r *Relay) MarkSeen(ctx context.Context, s Session, req domain.SeenRequest) error {
	if req.MessageID == "" {
		return nil
	}
	seen := true
	updated, err := r.store.UpdatePartial(ctx, req.MessageID, store.Fields{Seen: &seen}, store.UpdateOptions{SkipValidation: true})
	if err != nil {
		metric.PersistenceFailures.Inc()
		return r.fail(ctx, s, "Failed to mark message as seen",
			fmt.Errorf("%w: mark seen %s: %w", errs.ErrPersistence, req.MessageID, err))
	}
	if updated == nil {
		return fmt.Errorf("%w: message %s", errs.ErrNotFound, req.MessageID)
	}

	chatID := req.ChatID
	if chatID == "" {
		chatID = updated.ChatID
	}
	chat, err := r.store.FindChatByID(ctx, chatID)
	if err != nil {
		return fmt.Errorf("find chat %s: %w", chatID, err)
	}
	if chat == nil {
		return fmt.Errorf("%w: chat %s", errs.ErrNotFound, chatID)
	}

	r.emit(ctx, r.lookupMany(ctx, chat.Members), domain.EventMessageSeen, domain.SeenEvent{
		MessageID: req.MessageID,
		ChatID:    chatID,
		Seen:      true,
	})

	reader := req.UserID
	if reader == "" {
		reader = s.User.UserID
	}
	r.publish(ctx, domain.StreamEvent{
		Type:      domain.StreamMessageSeen,
		ChatID:    chatID,
		MessageID: req.MessageID,
		UserID:    reader,
		At:        r.now(),
	})
	return nil
}
