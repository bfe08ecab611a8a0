package relay

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fathima-sithara/relay-service/internal/domain"
	"github.com/fathima-sithara/relay-service/internal/errs"
	"github.com/fathima-sithara/relay-service/internal/store"
)

func TestCallRequest_ReceiverOffline(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, store.NewMemoryStore())
	caller := h.connect("A")
	bystander := h.connect("B")
	drainAll(caller, bystander)

	err := h.relay.CallRequest(context.Background(), caller.s, json.RawMessage(`{"callerId":"A","receiverId":"ghost","offer":{"sdp":"x"}}`))

	req.True(errors.Is(err, errs.ErrOffline))
	frames := caller.frames()
	req.Len(frames, 1)
	req.Equal(domain.EventCallRejected, frames[0].Type)
	req.Equal(domain.CallRejectedEvent{To: "A", From: "ghost", Message: "User is offline", Reason: "offline"},
		decode[domain.CallRejectedEvent](t, frames[0].Payload))
	req.Empty(bystander.frames())
}

func TestCallRequest_MissingReceiver(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, store.NewMemoryStore())
	caller := h.connect("A")
	caller.drain()

	err := h.relay.CallRequest(context.Background(), caller.s, json.RawMessage(`{"callerId":"A"}`))

	req.True(errors.Is(err, errs.ErrValidation))
	frames := caller.frames()
	req.Len(frames, 1)
	req.Equal(domain.EventCallRejected, frames[0].Type)
	ev := decode[domain.CallRejectedEvent](t, frames[0].Payload)
	req.Equal("invalid", ev.Reason)
	req.Equal("A", ev.To)
}

func TestCallRequest_ForwardsVerbatim(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, store.NewMemoryStore())
	caller := h.connect("A")
	receiver := h.connect("B")
	drainAll(caller, receiver)

	payload := `{"callerId":"A","receiverId":"B","callType":"video","offer":{"type":"offer","sdp":"v=0"}}`
	req.NoError(h.relay.CallRequest(context.Background(), caller.s, json.RawMessage(payload)))

	frames := receiver.frames()
	req.Len(frames, 1)
	req.Equal(domain.EventCallRequest, frames[0].Type)
	req.JSONEq(payload, string(frames[0].Payload))
	req.Empty(caller.frames())
}

func TestForward_SignalingEvents(t *testing.T) {
	events := []string{
		domain.EventCallAccepted,
		domain.EventCallRejected,
		domain.EventICECandidate,
		domain.EventWebRTCOffer,
		domain.EventWebRTCAnswer,
	}
	for _, event := range events {
		t.Run(event, func(t *testing.T) {
			req := require.New(t)
			h := newHarness(t, store.NewMemoryStore())
			a := h.connect("A")
			b := h.connect("B")
			drainAll(a, b)

			payload := `{"to":"A","from":"B","candidate":{"sdpMid":"0"}}`
			req.NoError(h.relay.Forward(context.Background(), b.s, event, json.RawMessage(payload)))
			frames := a.frames()
			req.Len(frames, 1)
			req.Equal(event, frames[0].Type)
			req.JSONEq(payload, string(frames[0].Payload))

			// Offline targets are dropped without telling the sender
			req.NoError(h.relay.Forward(context.Background(), b.s, event, json.RawMessage(`{"to":"ghost","from":"B"}`)))
			req.Empty(a.frames())
			req.Empty(b.frames())
		})
	}
}

func TestForward_MissingTo(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, store.NewMemoryStore())
	a := h.connect("A")
	a.drain()

	err := h.relay.Forward(context.Background(), a.s, domain.EventWebRTCOffer, json.RawMessage(`{"from":"A"}`))
	req.True(errors.Is(err, errs.ErrValidation))
	frames := a.frames()
	req.Len(frames, 1)
	req.Equal(domain.EventError, frames[0].Type)

	err = h.relay.Forward(context.Background(), a.s, domain.EventWebRTCOffer, json.RawMessage(`[1,2]`))
	req.True(errors.Is(err, errs.ErrValidation))
}

func TestCallEnded(t *testing.T) {
	req := require.New(t)
	h := newHarness(t, store.NewMemoryStore())
	a := h.connect("A")
	b := h.connect("B")
	drainAll(a, b)

	req.NoError(h.relay.CallEnded(context.Background(), a.s, json.RawMessage(`{"to":"B","from":"A","reason":"hangup"}`)))
	frames := b.frames()
	req.Len(frames, 1)
	req.Equal(domain.EventCallEnded, frames[0].Type)
	req.JSONEq(`{"from":"A"}`, string(frames[0].Payload))

	// Missing from aborts with a diagnostic to the origin
	err := h.relay.CallEnded(context.Background(), a.s, json.RawMessage(`{"to":"B"}`))
	req.True(errors.Is(err, errs.ErrValidation))
	req.Empty(b.frames())
	origin := a.frames()
	req.Len(origin, 1)
	req.Equal(domain.EventError, origin[0].Type)

	// Offline target is dropped
	req.NoError(h.relay.CallEnded(context.Background(), a.s, json.RawMessage(`{"to":"ghost","from":"A"}`)))
	req.Empty(a.frames())
}
