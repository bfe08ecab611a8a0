package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fathima-sithara/relay-service/internal/hub"
)

// Bus fans deliveries out over pub/sub: one channel per instance for
// targeted frames, one shared channel for broadcasts.
type Bus struct {
	client *redis.Client
	prefix string
	log    *zap.SugaredLogger
}

var _ hub.Bus = (*Bus)(nil)

func NewBus(client *redis.Client, prefix string, log *zap.SugaredLogger) *Bus {
	return &Bus{client: client, prefix: prefix, log: log}
}

func (b *Bus) instanceChannel(instance string) string {
	return key(b.prefix, "instance:"+instance)
}

func (b *Bus) broadcastChannel() string { return key(b.prefix, "broadcast") }

func (b *Bus) Send(ctx context.Context, instance string, d hub.Delivery) error {
	return b.publish(ctx, b.instanceChannel(instance), d)
}

func (b *Bus) Broadcast(ctx context.Context, d hub.Delivery) error {
	return b.publish(ctx, b.broadcastChannel(), d)
}

func (b *Bus) Subscribe(ctx context.Context, instance string, fn func(hub.Delivery)) error {
	ps := b.client.Subscribe(ctx, b.instanceChannel(instance), b.broadcastChannel())
	defer ps.Close()
	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var d hub.Delivery
			if err := json.Unmarshal([]byte(msg.Payload), &d); err != nil {
				b.log.Warnw("bad delivery on bus", "channel", msg.Channel, "error", err)
				continue
			}
			fn(d)
		}
	}
}

func (b *Bus) publish(ctx context.Context, channel string, d hub.Delivery) error {
	payload, err := json.Marshal(d)
	if err != nil {
		return err
	}
	if err := b.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", channel, err)
	}
	return nil
}
