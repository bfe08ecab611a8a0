package relay

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/fathima-sithara/relay-service/internal/domain"
	"github.com/fathima-sithara/relay-service/internal/errs"
	"github.com/fathima-sithara/relay-service/internal/store"
)

func TestMarkSeen_NotifiesAllMembers(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	st := store.NewMemoryStore()
	h := newHarness(t, st)
	a := h.connect("A")
	b := h.connect("B")
	drainAll(a, b)
	m := seedMessage(t, st, "chat-1", "A", "B")

	// When B reads A's message
	req.NoError(h.relay.MarkSeen(ctx, b.s, domain.SeenRequest{MessageID: m.ID, ChatID: "chat-1", UserID: "B"}))

	// Then both the sender and the reader are told
	for _, c := range []*client{a, b} {
		got := ofType(c.frames(), domain.EventMessageSeen)
		req.Len(got, 1)
		req.JSONEq(`{"messageId":"`+m.ID+`","chatId":"chat-1","seen":true}`, string(got[0].Payload))
	}
	stored, _ := st.FindMessageByID(ctx, m.ID)
	req.True(stored.Seen)
	req.Len(h.pub.events, 1)
	req.Equal("B", h.pub.events[0].UserID)
}

func TestMarkSeen_FallsBackToMessageChat(t *testing.T) {
	req := require.New(t)
	st := store.NewMemoryStore()
	h := newHarness(t, st)
	a := h.connect("A")
	a.drain()
	m := seedMessage(t, st, "chat-1", "A")

	req.NoError(h.relay.MarkSeen(context.Background(), a.s, domain.SeenRequest{MessageID: m.ID}))

	got := ofType(a.frames(), domain.EventMessageSeen)
	req.Len(got, 1)
	req.Equal("chat-1", decode[domain.SeenEvent](t, got[0].Payload).ChatID)
}

func TestMarkSeen_SilentWhenMissing(t *testing.T) {
	req := require.New(t)
	st := store.NewMemoryStore()
	h := newHarness(t, st)
	a := h.connect("A")
	a.drain()
	m := seedMessage(t, st, "chat-1", "A")

	req.ErrorIs(h.relay.MarkSeen(context.Background(), a.s, domain.SeenRequest{MessageID: "missing", ChatID: "chat-1"}), errs.ErrNotFound)
	req.ErrorIs(h.relay.MarkSeen(context.Background(), a.s, domain.SeenRequest{MessageID: m.ID, ChatID: "missing"}), errs.ErrNotFound)
	req.NoError(h.relay.MarkSeen(context.Background(), a.s, domain.SeenRequest{}))
	req.Empty(a.frames())
}

func TestMarkSeen_UpdateFailure(t *testing.T) {
	req := require.New(t)
	st := &mockStore{}
	st.On("UpdatePartial", mock.Anything, "m1", mock.Anything, mock.Anything).Return(nil, errors.New("timeout"))
	h := newHarness(t, st)
	a := h.connect("A")
	b := h.connect("B")
	drainAll(a, b)

	err := h.relay.MarkSeen(context.Background(), a.s, domain.SeenRequest{MessageID: "m1", ChatID: "c"})

	req.True(errors.Is(err, errs.ErrPersistence))
	frames := a.frames()
	req.Len(frames, 1)
	req.Equal(domain.EventError, frames[0].Type)
	req.Empty(b.frames())
}
