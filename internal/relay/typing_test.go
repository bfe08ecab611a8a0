package relay

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fathima-sithara/relay-service/internal/domain"
	"github.com/fathima-sithara/relay-service/internal/store"
)

func TestTyping_SkipsOrigin(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, store.NewMemoryStore())
	a := h.connect("A")
	b := h.connect("B")
	c := h.connect("C")
	outsider := h.connect("D")
	drainAll(a, b, c, outsider)

	for _, event := range []string{domain.EventStartTyping, domain.EventStopTyping} {
		h.relay.Typing(context.Background(), a.s, event, domain.TypingRequest{ChatID: "chat-1", Members: []string{"A", "B", "C", "E"}})

		req.Empty(a.frames())
		req.Empty(outsider.frames())
		for _, peer := range []*client{b, c} {
			got := peer.frames()
			req.Len(got, 1)
			req.Equal(event, got[0].Type)
			req.JSONEq(`{"chatId":"chat-1"}`, string(got[0].Payload))
		}
	}
}

func TestTyping_IgnoresMissingChat(t *testing.T) {
	h := newHarness(t, store.NewMemoryStore())
	a := h.connect("A")
	b := h.connect("B")
	drainAll(a, b)

	h.relay.Typing(context.Background(), a.s, domain.EventStartTyping, domain.TypingRequest{Members: []string{"B"}})
	require.Empty(t, b.frames())
}
