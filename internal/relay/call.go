package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/fathima-sithara/relay-service/internal/domain"
	"github.com/fathima-sithara/relay-service/internal/errs"
	"github.com/fathima-sithara/relay-service/internal/registry"
)

// Call signaling keeps no state. Each frame is validated for the routing
// fields it needs and forwarded unchanged to one peer.

type signal map[string]json.RawMessage

func parseSignal(payload json.RawMessage) (signal, error) {
	var sig signal
	if err := json.Unmarshal(payload, &sig); err != nil {
		return nil, fmt.Errorf("%w: signaling payload must be an object: %v", errs.ErrValidation, err)
	}
	if sig == nil {
		return nil, fmt.Errorf("%w: signaling payload is null", errs.ErrValidation)
	}
	return sig, nil
}

// str returns the field as a string, or "" when it is absent or not a string.
func (sig signal) str(key string) string {
	var s string
	if raw, ok := sig[key]; ok {
		_ = json.Unmarshal(raw, &s)
	}
	return s
}

// present reports a field that is set to something other than null or "".
func (sig signal) present(key string) bool {
	raw, ok := sig[key]
	if !ok {
		return false
	}
	switch string(raw) {
	case "null", `""`:
		return false
	}
	return true
}

// CallRequest forwards the request to the receiver, or answers the caller
// with CALL_REJECTED when the receiver is missing or offline.
func (r *Relay) CallRequest(ctx context.Context, s Session, payload json.RawMessage) error {
	sig, err := parseSignal(payload)
	if err != nil {
		return r.fail(ctx, s, "Invalid call request", err)
	}
	callerID := sig.str("callerId")
	if callerID == "" {
		callerID = s.User.UserID
	}
	receiverID := sig.str("receiverId")
	if receiverID == "" {
		r.emit(ctx, []registry.ConnRef{s.Ref}, domain.EventCallRejected, domain.CallRejectedEvent{
			To:      callerID,
			Message: "Invalid call request: Missing receiverId",
			Reason:  "invalid",
		})
		return fmt.Errorf("%w: call request without receiverId", errs.ErrValidation)
	}

	ref, ok, err := r.registry.Lookup(ctx, receiverID)
	if err != nil {
		return fmt.Errorf("lookup %s: %w", receiverID, err)
	}
	if !ok {
		r.emit(ctx, []registry.ConnRef{s.Ref}, domain.EventCallRejected, domain.CallRejectedEvent{
			To:      callerID,
			From:    receiverID,
			Message: "User is offline",
			Reason:  "offline",
		})
		return fmt.Errorf("%w: %s", errs.ErrOffline, receiverID)
	}
	r.emit(ctx, []registry.ConnRef{ref}, domain.EventCallRequest, payload)
	return nil
}

// Forward relays CALL_ACCEPTED, CALL_REJECTED, ICE_CANDIDATE, WEBRTC_OFFER
// and WEBRTC_ANSWER to the user named by "to". Offline targets are dropped.
func (r *Relay) Forward(ctx context.Context, s Session, event string, payload json.RawMessage) error {
	sig, err := parseSignal(payload)
	if err != nil {
		return r.fail(ctx, s, "Invalid "+event, err)
	}
	to := sig.str("to")
	if to == "" {
		return r.fail(ctx, s, "Invalid "+event, fmt.Errorf("%w: %s without to", errs.ErrValidation, event))
	}
	ref, ok, err := r.registry.Lookup(ctx, to)
	if err != nil {
		return fmt.Errorf("lookup %s: %w", to, err)
	}
	if !ok {
		r.log.Debugw("signal dropped, target offline", "event", event, "to", to)
		return nil
	}
	r.emit(ctx, []registry.ConnRef{ref}, event, payload)
	return nil
}

// CallEnded needs both "to" and "from" and forwards only {from}.
func (r *Relay) CallEnded(ctx context.Context, s Session, payload json.RawMessage) error {
	sig, err := parseSignal(payload)
	if err != nil {
		return r.fail(ctx, s, "Invalid call end", err)
	}
	to := sig.str("to")
	if to == "" || !sig.present("from") {
		return r.fail(ctx, s, "Invalid call end: to and from are required",
			fmt.Errorf("%w: call end without to or from", errs.ErrValidation))
	}
	ref, ok, err := r.registry.Lookup(ctx, to)
	if err != nil {
		return fmt.Errorf("lookup %s: %w", to, err)
	}
	if !ok {
		r.log.Infow("call end dropped, target offline", "to", to, "user_id", s.User.UserID)
		return nil
	}
	r.emit(ctx, []registry.ConnRef{ref}, domain.EventCallEnded, domain.CallEndedEvent{From: sig["from"]})
	return nil
}
