package relay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/fathima-sithara/relay-service/internal/auth"
	"github.com/fathima-sithara/relay-service/internal/domain"
	"github.com/fathima-sithara/relay-service/internal/errs"
	"github.com/fathima-sithara/relay-service/internal/metric"
	"github.com/fathima-sithara/relay-service/internal/presence"
	"github.com/fathima-sithara/relay-service/internal/registry"
	"github.com/fathima-sithara/relay-service/internal/store"
)

// Emitter delivers frames to connections. hub.Hub is the production
// implementation.
type Emitter interface {
	Emit(ctx context.Context, refs []registry.ConnRef, event string, payload any) error
	Broadcast(ctx context.Context, except registry.ConnRef, event string, payload any) error
}

// Publisher receives stream events after durable writes.
type Publisher interface {
	Publish(ctx context.Context, e domain.StreamEvent) error
}

type noopPublisher struct{}

func (noopPublisher) Publish(context.Context, domain.StreamEvent) error { return nil }

// Session is the authenticated connection an inbound event arrived on.
type Session struct {
	User auth.Identity
	Ref  registry.ConnRef
}

type Option func(*Relay)

func WithPublisher(p Publisher) Option {
	return func(r *Relay) {
		if p != nil {
			r.events = p
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Relay) { r.now = now }
}

// Relay routes inbound events to their handlers. Handlers run concurrently
// for different connections; lookups that miss because a peer just left are
// a normal outcome.
type Relay struct {
	registry registry.Registry
	online   presence.OnlineSet
	store    store.Store
	out      Emitter
	events   Publisher
	log      *zap.SugaredLogger
	now      func() time.Time

	// serializes register+add against unregister+remove for one user
	presenceLocks [64]sync.Mutex
}

func New(reg registry.Registry, online presence.OnlineSet, st store.Store, out Emitter, log *zap.SugaredLogger, opts ...Option) *Relay {
	r := &Relay{
		registry: reg,
		online:   online,
		store:    st,
		out:      out,
		events:   noopPublisher{},
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Handle dispatches one inbound event. A panic in a handler is recovered
// here and only fails this event.
func (r *Relay) Handle(ctx context.Context, s Session, event string, payload json.RawMessage) (err error) {
	defer func() {
		if p := recover(); p != nil {
			metric.HandlerPanics.Inc()
			r.log.Errorw("event handler panic",
				"event", event, "user_id", s.User.UserID, "conn_id", s.Ref.ConnID,
				"panic", p, "stack", string(debug.Stack()))
			err = fmt.Errorf("%s: handler panic: %v", event, p)
		}
	}()

	err = r.dispatch(ctx, s, event, payload)
	switch {
	case err == nil:
	case errors.Is(err, errs.ErrNotFound):
		r.log.Debugw("event dropped", "event", event, "user_id", s.User.UserID, "conn_id", s.Ref.ConnID, "error", err)
	case errors.Is(err, errs.ErrValidation), errors.Is(err, errs.ErrOffline):
		r.log.Infow("event rejected", "event", event, "user_id", s.User.UserID, "conn_id", s.Ref.ConnID, "error", err)
	default:
		r.log.Errorw("event failed", "event", event, "user_id", s.User.UserID, "conn_id", s.Ref.ConnID, "error", err)
	}
	return err
}

func (r *Relay) dispatch(ctx context.Context, s Session, event string, payload json.RawMessage) error {
	switch event {
	case domain.EventNewMessage:
		var req domain.NewMessageRequest
		if err := r.decode(ctx, s, event, payload, &req); err != nil {
			return err
		}
		return r.SubmitMessage(ctx, s, req)

	case domain.EventStartTyping, domain.EventStopTyping:
		var req domain.TypingRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil
		}
		r.Typing(ctx, s, event, req)
		return nil

	case domain.EventMessageReaction:
		var req domain.ReactionRequest
		if err := r.decode(ctx, s, event, payload, &req); err != nil {
			return err
		}
		return r.ToggleReaction(ctx, s, req)

	case domain.EventMessageSeen:
		var req domain.SeenRequest
		if err := r.decode(ctx, s, event, payload, &req); err != nil {
			return err
		}
		return r.MarkSeen(ctx, s, req)

	case domain.EventChatJoined, domain.EventChatLeaved:
		var req domain.MembershipRequest
		if err := r.decode(ctx, s, event, payload, &req); err != nil {
			return err
		}
		if event == domain.EventChatJoined {
			return r.JoinChat(ctx, s, req)
		}
		return r.LeaveChat(ctx, s, req)

	case domain.EventCallRequest:
		return r.CallRequest(ctx, s, payload)
	case domain.EventCallEnded:
		return r.CallEnded(ctx, s, payload)
	case domain.EventCallAccepted, domain.EventCallRejected,
		domain.EventICECandidate, domain.EventWebRTCOffer, domain.EventWebRTCAnswer:
		return r.Forward(ctx, s, event, payload)
	}

	r.log.Debugw("unknown event", "event", event, "conn_id", s.Ref.ConnID)
	return nil
}

func (r *Relay) decode(ctx context.Context, s Session, event string, payload json.RawMessage, v any) error {
	if err := json.Unmarshal(payload, v); err != nil {
		return r.fail(ctx, s, "Invalid payload", fmt.Errorf("%w: decode %s: %v", errs.ErrValidation, event, err))
	}
	return nil
}

// fail reports err to the originating connection only and returns it.
func (r *Relay) fail(ctx context.Context, s Session, message string, err error) error {
	ev := domain.ErrorEvent{Message: message, Error: err.Error()}
	if emitErr := r.out.Emit(ctx, []registry.ConnRef{s.Ref}, domain.EventError, ev); emitErr != nil {
		r.log.Warnw("error event not delivered", "conn_id", s.Ref.ConnID, "error", emitErr)
	}
	return err
}

// emit logs instead of failing: delivery is best effort once the durable
// step is done.
func (r *Relay) emit(ctx context.Context, refs []registry.ConnRef, event string, payload any) {
	if err := r.out.Emit(ctx, refs, event, payload); err != nil {
		r.log.Warnw("emit failed", "event", event, "targets", len(refs), "error", err)
	}
}

func (r *Relay) lookupMany(ctx context.Context, ids []string) []registry.ConnRef {
	refs, err := r.registry.LookupMany(ctx, ids)
	if err != nil {
		r.log.Warnw("registry lookup failed", "users", len(ids), "error", err)
		return nil
	}
	return refs
}

func (r *Relay) publish(ctx context.Context, e domain.StreamEvent) {
	if err := r.events.Publish(ctx, e); err != nil {
		r.log.Warnw("stream publish failed", "type", e.Type, "message_id", e.MessageID, "error", err)
	}
}

func (r *Relay) presenceLock(userID string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return &r.presenceLocks[h.Sum32()%uint32(len(r.presenceLocks))]
}

func without(ids []string, drop string) []string {
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != drop {
			out = append(out, id)
		}
	}
	return out
}
