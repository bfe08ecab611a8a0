package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fathima-sithara/relay-service/internal/presence"
)

// OnlineSet is a sorted set scored by an arrival counter, so List returns
// users in first-arrival order across instances. Changes are published on a
// pub/sub channel.
type OnlineSet struct {
	client  *redis.Client
	key     string
	seqKey  string
	channel string
	log     *zap.SugaredLogger
}

var _ presence.OnlineSet = (*OnlineSet)(nil)

var addScript = redis.NewScript(`
if redis.call("ZSCORE", KEYS[1], ARGV[1]) then
	return 0
end
local seq = redis.call("INCR", KEYS[2])
redis.call("ZADD", KEYS[1], seq, ARGV[1])
return 1
`)

func NewOnlineSet(client *redis.Client, prefix string, log *zap.SugaredLogger) *OnlineSet {
	return &OnlineSet{
		client:  client,
		key:     key(prefix, "online"),
		seqKey:  key(prefix, "online:seq"),
		channel: key(prefix, "online:changes"),
		log:     log,
	}
}

func (s *OnlineSet) Add(ctx context.Context, userID string) (bool, error) {
	n, err := addScript.Run(ctx, s.client, []string{s.key, s.seqKey}, userID).Int()
	if err != nil {
		return false, fmt.Errorf("online add %s: %w", userID, err)
	}
	if n == 0 {
		return false, nil
	}
	s.publish(ctx, presence.Change{UserID: userID, Online: true})
	return true, nil
}

func (s *OnlineSet) Remove(ctx context.Context, userID string) (bool, error) {
	n, err := s.client.ZRem(ctx, s.key, userID).Result()
	if err != nil {
		return false, fmt.Errorf("online remove %s: %w", userID, err)
	}
	if n == 0 {
		return false, nil
	}
	s.publish(ctx, presence.Change{UserID: userID, Online: false})
	return true, nil
}

func (s *OnlineSet) IsOnline(ctx context.Context, userID string) (bool, error) {
	err := s.client.ZScore(ctx, s.key, userID).Err()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("online check %s: %w", userID, err)
	}
	return true, nil
}

func (s *OnlineSet) List(ctx context.Context) ([]string, error) {
	ids, err := s.client.ZRange(ctx, s.key, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("online list: %w", err)
	}
	return ids, nil
}

func (s *OnlineSet) Subscribe() (<-chan presence.Change, func()) {
	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan presence.Change, 64)
	ps := s.client.Subscribe(ctx, s.channel)
	if _, err := ps.Receive(ctx); err != nil {
		s.log.Warnw("online change subscribe failed", "error", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer close(out)
		ch := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var c presence.Change
				if err := json.Unmarshal([]byte(msg.Payload), &c); err != nil {
					s.log.Warnw("bad online change", "error", err)
					continue
				}
				select {
				case out <- c:
				default:
				}
			}
		}
	}()

	var once sync.Once
	return out, func() {
		once.Do(func() {
			cancel()
			_ = ps.Close()
			<-done
		})
	}
}

func (s *OnlineSet) publish(ctx context.Context, c presence.Change) {
	b, _ := json.Marshal(c)
	if err := s.client.Publish(ctx, s.channel, b).Err(); err != nil {
		s.log.Warnw("online change publish failed", "user_id", c.UserID, "error", err)
	}
}
