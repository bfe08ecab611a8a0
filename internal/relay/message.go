package relay

import (
	"context"
	"fmt"

	"github.com/fathima-sithara/relay-service/internal/domain"
	"github.com/fathima-sithara/relay-service/internal/errs"
	"github.com/fathima-sithara/relay-service/internal/metric"
)

// createdAtLayout matches what browsers produce for Date.toISOString.
const createdAtLayout = "2006-01-02T15:04:05.000Z07:00"

// SubmitMessage stores the message and only then fans it out: the full
// message to every connected member (sender included) and an alert to every
// other member. A store failure is reported to the sender alone.
//
// There is no idempotency key, so a resubmitted message is stored and sent
// again.
func (r *Relay) SubmitMessage(ctx context.Context, s Session, req domain.NewMessageRequest) error {
	if err := domain.ValidateStruct(req); err != nil {
		return r.fail(ctx, s, "Invalid message", err)
	}

	saved, err := r.store.CreateMessage(ctx, &domain.Message{
		Content:     req.Message,
		Attachments: req.Attachments,
		SenderID:    s.User.UserID,
		ChatID:      req.ChatID,
		Reactions:   []domain.Reaction{},
		Seen:        false,
	})
	if err != nil {
		metric.PersistenceFailures.Inc()
		return r.fail(ctx, s, "Failed to save message", fmt.Errorf("%w: %w", errs.ErrPersistence, err))
	}

	attachments := saved.Attachments
	if attachments == nil {
		attachments = []domain.Attachment{}
	}
	live := domain.LiveMessage{
		ID:          saved.ID,
		Content:     saved.Content,
		Attachments: attachments,
		Sender:      domain.Sender{ID: s.User.UserID, Name: s.User.Name},
		Chat:        req.ChatID,
		CreatedAt:   r.now().UTC().Format(createdAtLayout),
		Reactions:   []domain.Reaction{},
		Seen:        false,
	}

	r.emit(ctx, r.lookupMany(ctx, req.Members), domain.EventNewMessage,
		domain.NewMessageEvent{ChatID: req.ChatID, Message: live})
	r.emit(ctx, r.lookupMany(ctx, without(req.Members, s.User.UserID)), domain.EventNewMessageAlert,
		domain.ChatEvent{ChatID: req.ChatID})

	r.publish(ctx, domain.StreamEvent{
		Type:      domain.StreamMessageCreated,
		ChatID:    req.ChatID,
		MessageID: saved.ID,
		UserID:    s.User.UserID,
		At:        saved.CreatedAt,
		Data:      live,
	})
	return nil
}
