package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/fathima-sithara/relay-service/internal/metric"
	"github.com/fathima-sithara/relay-service/internal/registry"
)

// Delivery carries an encoded frame between relay instances. Targeted
// deliveries name connection ids on the receiving instance; broadcasts go to
// every local connection except Except.
type Delivery struct {
	Origin    string           `json:"origin"`
	Broadcast bool             `json:"broadcast,omitempty"`
	ConnIDs   []string         `json:"conn_ids,omitempty"`
	Except    registry.ConnRef `json:"except"`
	Frame     json.RawMessage  `json:"frame"`
}

// Bus moves deliveries to other instances.
type Bus interface {
	Send(ctx context.Context, instance string, d Delivery) error
	Broadcast(ctx context.Context, d Delivery) error
	// Subscribe blocks, handing every delivery addressed to instance (and
	// every broadcast) to fn until ctx ends.
	Subscribe(ctx context.Context, instance string, fn func(Delivery)) error
}

// Hub owns the connections of this instance. Frames for connections that
// live elsewhere are handed to the Bus, which may be nil for a single
// process deployment.
type Hub struct {
	instance string
	bus      Bus
	log      *zap.SugaredLogger

	mu    sync.RWMutex
	conns map[string]*Conn
}

func New(instance string, bus Bus, log *zap.SugaredLogger) *Hub {
	return &Hub{
		instance: instance,
		bus:      bus,
		log:      log,
		conns:    make(map[string]*Conn),
	}
}

func (h *Hub) Instance() string { return h.instance }

func (h *Hub) Ref(c *Conn) registry.ConnRef {
	return registry.ConnRef{Instance: h.instance, ConnID: c.ID}
}

func (h *Hub) Add(c *Conn) {
	h.mu.Lock()
	h.conns[c.ID] = c
	n := len(h.conns)
	h.mu.Unlock()
	metric.Connections.Set(float64(n))
}

// Remove drops c if it is still the connection stored under its id.
func (h *Hub) Remove(c *Conn) bool {
	h.mu.Lock()
	cur, ok := h.conns[c.ID]
	if ok && cur == c {
		delete(h.conns, c.ID)
	}
	n := len(h.conns)
	h.mu.Unlock()
	metric.Connections.Set(float64(n))
	return ok && cur == c
}

func (h *Hub) Get(id string) (*Conn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.conns[id]
	return c, ok
}

func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Emit sends one frame to each distinct ref. Missing connections are
// skipped; delivery is best effort.
func (h *Hub) Emit(ctx context.Context, refs []registry.ConnRef, event string, payload any) error {
	if len(refs) == 0 {
		return nil
	}
	frame, err := Encode(event, payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}

	seen := make(map[registry.ConnRef]struct{}, len(refs))
	remote := make(map[string][]string)
	for _, ref := range refs {
		if ref.IsZero() {
			continue
		}
		if _, dup := seen[ref]; dup {
			continue
		}
		seen[ref] = struct{}{}
		if ref.Instance == h.instance || ref.Instance == "" {
			h.deliverLocal(ref.ConnID, frame, event)
			continue
		}
		remote[ref.Instance] = append(remote[ref.Instance], ref.ConnID)
	}

	if len(remote) == 0 {
		return nil
	}
	if h.bus == nil {
		h.log.Warnw("no bus configured, dropping remote deliveries", "event", event, "instances", len(remote))
		return nil
	}
	var errs []error
	for instance, ids := range remote {
		d := Delivery{Origin: h.instance, ConnIDs: ids, Frame: frame}
		if err := h.bus.Send(ctx, instance, d); err != nil {
			errs = append(errs, fmt.Errorf("send to %s: %w", instance, err))
		}
	}
	return errors.Join(errs...)
}

// Broadcast sends one frame to every connection on every instance except
// the one named by except (zero value excludes nothing).
func (h *Hub) Broadcast(ctx context.Context, except registry.ConnRef, event string, payload any) error {
	frame, err := Encode(event, payload)
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	d := Delivery{Origin: h.instance, Broadcast: true, Except: except, Frame: frame}
	h.broadcastLocal(d, event)

	if h.bus == nil {
		return nil
	}
	if err := h.bus.Broadcast(ctx, d); err != nil {
		return fmt.Errorf("broadcast %s: %w", event, err)
	}
	return nil
}

// Deliver hands a delivery received from the bus to local connections.
// Broadcasts that originated here were already delivered locally.
func (h *Hub) Deliver(d Delivery) {
	if d.Broadcast {
		if d.Origin == h.instance {
			return
		}
		h.broadcastLocal(d, "")
		return
	}
	for _, id := range d.ConnIDs {
		h.deliverLocal(id, d.Frame, "")
	}
}

// Run consumes the bus until ctx ends. Without a bus it just waits.
func (h *Hub) Run(ctx context.Context) error {
	if h.bus == nil {
		<-ctx.Done()
		return nil
	}
	return h.bus.Subscribe(ctx, h.instance, h.Deliver)
}

func (h *Hub) broadcastLocal(d Delivery, event string) {
	h.mu.RLock()
	targets := make([]*Conn, 0, len(h.conns))
	for id, c := range h.conns {
		if d.Except.Instance == h.instance && d.Except.ConnID == id {
			continue
		}
		targets = append(targets, c)
	}
	h.mu.RUnlock()

	for _, c := range targets {
		h.enqueue(c, d.Frame, event)
	}
}

func (h *Hub) deliverLocal(connID string, frame []byte, event string) {
	c, ok := h.Get(connID)
	if !ok {
		return
	}
	h.enqueue(c, frame, event)
}

func (h *Hub) enqueue(c *Conn, frame []byte, event string) {
	if c.Enqueue(frame) {
		return
	}
	metric.DeliveriesDropped.Inc()
	h.log.Warnw("dropping frame for slow connection", "conn_id", c.ID, "user_id", c.UserID, "event", event)
}
