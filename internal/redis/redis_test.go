package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fathima-sithara/relay-service/internal/hub"
	"github.com/fathima-sithara/relay-service/internal/presence"
	"github.com/fathima-sithara/relay-service/internal/registry"
)

func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb, err := NewClient(context.Background(), Options{Addr: mr.Addr()}, time.Second, zap.NewNop().Sugar())
	require.NoError(t, err)
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

func TestRegistry(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	r := NewRegistry(newTestClient(t), "test")

	first := registry.ConnRef{Instance: "i1", ConnID: "c1"}
	second := registry.ConnRef{Instance: "i2", ConnID: "c2"}

	_, ok, err := r.Lookup(ctx, "alice")
	req.NoError(err)
	req.False(ok)

	// Given alice reconnected on another instance
	req.NoError(r.Register(ctx, "alice", first))
	req.NoError(r.Register(ctx, "alice", second))
	req.NoError(r.Register(ctx, "carol", first))

	ref, ok, err := r.Lookup(ctx, "alice")
	req.NoError(err)
	req.True(ok)
	req.Equal(second, ref)

	// When the stale session disconnects nothing is removed
	removed, err := r.Unregister(ctx, "alice", first)
	req.NoError(err)
	req.False(removed)

	refs, err := r.LookupMany(ctx, []string{"alice", "bob", "carol"})
	req.NoError(err)
	req.Equal([]registry.ConnRef{second, first}, refs)

	removed, err = r.Unregister(ctx, "alice", second)
	req.NoError(err)
	req.True(removed)
	_, ok, _ = r.Lookup(ctx, "alice")
	req.False(ok)

	refs, err = r.LookupMany(ctx, nil)
	req.NoError(err)
	req.Empty(refs)
}

func TestOnlineSet(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	s := NewOnlineSet(newTestClient(t), "test", zap.NewNop().Sugar())

	changes, cancel := s.Subscribe()
	defer cancel()

	for _, id := range []string{"carol", "alice", "bob"} {
		added, err := s.Add(ctx, id)
		req.NoError(err)
		req.True(added)
	}
	added, err := s.Add(ctx, "carol")
	req.NoError(err)
	req.False(added)

	list, err := s.List(ctx)
	req.NoError(err)
	req.Equal([]string{"carol", "alice", "bob"}, list)

	online, err := s.IsOnline(ctx, "alice")
	req.NoError(err)
	req.True(online)

	removed, err := s.Remove(ctx, "alice")
	req.NoError(err)
	req.True(removed)
	removed, err = s.Remove(ctx, "alice")
	req.NoError(err)
	req.False(removed)

	online, _ = s.IsOnline(ctx, "alice")
	req.False(online)

	var got []presence.Change
	timeout := time.After(2 * time.Second)
	for len(got) < 4 {
		select {
		case c := <-changes:
			got = append(got, c)
		case <-timeout:
			t.Fatalf("got %d changes, want 4", len(got))
		}
	}
	req.Equal(presence.Change{UserID: "alice", Online: false}, got[3])
}

func TestBus(t *testing.T) {
	req := require.New(t)
	rdb := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewBus(rdb, "test", zap.NewNop().Sugar())

	var mu sync.Mutex
	var got []hub.Delivery
	go func() {
		_ = bus.Subscribe(ctx, "i2", func(d hub.Delivery) {
			mu.Lock()
			got = append(got, d)
			mu.Unlock()
		})
	}()

	// Wait until the subscriber is attached to both channels
	req.Eventually(func() bool {
		n, err := rdb.PubSubNumSub(ctx, "test:instance:i2", "test:broadcast").Result()
		return err == nil && n["test:instance:i2"] == 1 && n["test:broadcast"] == 1
	}, 2*time.Second, 10*time.Millisecond)

	frame, _ := hub.Encode("X", nil)
	req.NoError(bus.Send(ctx, "i2", hub.Delivery{Origin: "i1", ConnIDs: []string{"c"}, Frame: frame}))
	req.NoError(bus.Send(ctx, "i3", hub.Delivery{Origin: "i1", ConnIDs: []string{"d"}, Frame: frame}))
	req.NoError(bus.Broadcast(ctx, hub.Delivery{Origin: "i1", Broadcast: true, Frame: frame}))

	req.Eventually(func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 2
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	req.Equal([]string{"c"}, got[0].ConnIDs)
	req.JSONEq(string(frame), string(got[0].Frame))
	req.True(got[1].Broadcast)
}
