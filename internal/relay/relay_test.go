package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fathima-sithara/relay-service/internal/auth"
	"github.com/fathima-sithara/relay-service/internal/domain"
	"github.com/fathima-sithara/relay-service/internal/hub"
	"github.com/fathima-sithara/relay-service/internal/presence"
	"github.com/fathima-sithara/relay-service/internal/registry"
	"github.com/fathima-sithara/relay-service/internal/store"
)

var fixedNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []domain.StreamEvent
}

func (p *recordingPublisher) Publish(_ context.Context, e domain.StreamEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

type mockStore struct{ mock.Mock }

func (m *mockStore) CreateMessage(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	args := m.Called(ctx, msg)
	res, _ := args.Get(0).(*domain.Message)
	return res, args.Error(1)
}

func (m *mockStore) FindMessageByID(ctx context.Context, id string) (*domain.Message, error) {
	args := m.Called(ctx, id)
	res, _ := args.Get(0).(*domain.Message)
	return res, args.Error(1)
}

func (m *mockStore) UpdatePartial(ctx context.Context, id string, f store.Fields, opts store.UpdateOptions) (*domain.Message, error) {
	args := m.Called(ctx, id, f, opts)
	res, _ := args.Get(0).(*domain.Message)
	return res, args.Error(1)
}

func (m *mockStore) ToggleReaction(ctx context.Context, id string, r domain.Reaction) (*domain.Message, bool, error) {
	args := m.Called(ctx, id, r)
	res, _ := args.Get(0).(*domain.Message)
	return res, args.Bool(1), args.Error(2)
}

func (m *mockStore) FindChatByID(ctx context.Context, id string) (*domain.Chat, error) {
	args := m.Called(ctx, id)
	res, _ := args.Get(0).(*domain.Chat)
	return res, args.Error(1)
}

type harness struct {
	t      *testing.T
	hub    *hub.Hub
	reg    *registry.Memory
	online *presence.Memory
	relay  *Relay
	pub    *recordingPublisher
	seq    int
}

func newHarness(t *testing.T, st store.Store) *harness {
	t.Helper()
	log := zap.NewNop().Sugar()
	h := &harness{
		t:      t,
		hub:    hub.New("test", nil, log),
		reg:    registry.NewMemory(),
		online: presence.NewMemory(),
		pub:    &recordingPublisher{},
	}
	h.relay = New(h.reg, h.online, st, h.hub, log,
		WithPublisher(h.pub),
		WithClock(func() time.Time { return fixedNow }))
	return h
}

type client struct {
	t    *testing.T
	conn *hub.Conn
	s    Session
}

// connect opens a session for userID the way the websocket server does.
func (h *harness) connect(userID string) *client {
	h.t.Helper()
	h.seq++
	conn := hub.NewConn(fmt.Sprintf("%s-%d", userID, h.seq), userID, 64)
	h.hub.Add(conn)
	c := &client{
		t:    h.t,
		conn: conn,
		s:    Session{User: auth.Identity{UserID: userID, Name: "Name " + userID}, Ref: h.hub.Ref(conn)},
	}
	require.NoError(h.t, h.relay.Connect(context.Background(), c.s))
	return c
}

func (h *harness) disconnect(c *client) {
	h.t.Helper()
	require.NoError(h.t, h.relay.Disconnect(context.Background(), c.s))
	h.hub.Remove(c.conn)
	c.conn.Close()
}

func (c *client) frames() []hub.Envelope {
	var out []hub.Envelope
	for {
		select {
		case b, ok := <-c.conn.Send():
			if !ok {
				return out
			}
			var env hub.Envelope
			require.NoError(c.t, json.Unmarshal(b, &env))
			out = append(out, env)
		default:
			return out
		}
	}
}

func (c *client) drain() { c.frames() }

func ofType(frames []hub.Envelope, event string) []hub.Envelope {
	var out []hub.Envelope
	for _, f := range frames {
		if f.Type == event {
			out = append(out, f)
		}
	}
	return out
}

func decode[T any](t *testing.T, raw json.RawMessage) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(raw, &v))
	return v
}

func raw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func drainAll(clients ...*client) {
	for _, c := range clients {
		c.drain()
	}
}
