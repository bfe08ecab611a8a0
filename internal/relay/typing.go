package relay

import (
	"context"

	"github.com/fathima-sithara/relay-service/internal/domain"
	"github.com/fathima-sithara/relay-service/internal/registry"
)

// Typing forwards START_TYPING or STOP_TYPING to every member connection
// except the one it came from. Nothing is stored or acknowledged.
func (r *Relay) Typing(ctx context.Context, s Session, event string, req domain.TypingRequest) {
	if req.ChatID == "" {
		return
	}
	refs := r.lookupMany(ctx, req.Members)
	targets := make([]registry.ConnRef, 0, len(refs))
	for _, ref := range refs {
		if ref != s.Ref {
			targets = append(targets, ref)
		}
	}
	r.emit(ctx, targets, event, domain.ChatEvent{ChatID: req.ChatID})
}
