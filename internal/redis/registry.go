package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/fathima-sithara/relay-service/internal/registry"
)

// Registry keeps user -> connection refs in one hash so every instance sees
// the same single-connection mapping.
type Registry struct {
	client *redis.Client
	key    string
}

var _ registry.Registry = (*Registry)(nil)

// Deletes the field only while it still holds the caller's ref.
var unregisterScript = redis.NewScript(`
if redis.call("HGET", KEYS[1], ARGV[1]) == ARGV[2] then
	return redis.call("HDEL", KEYS[1], ARGV[1])
end
return 0
`)

func NewRegistry(client *redis.Client, prefix string) *Registry {
	return &Registry{client: client, key: key(prefix, "registry")}
}

func (r *Registry) Register(ctx context.Context, userID string, ref registry.ConnRef) error {
	b, err := json.Marshal(ref)
	if err != nil {
		return err
	}
	if err := r.client.HSet(ctx, r.key, userID, b).Err(); err != nil {
		return fmt.Errorf("register %s: %w", userID, err)
	}
	return nil
}

func (r *Registry) Unregister(ctx context.Context, userID string, ref registry.ConnRef) (bool, error) {
	b, err := json.Marshal(ref)
	if err != nil {
		return false, err
	}
	n, err := unregisterScript.Run(ctx, r.client, []string{r.key}, userID, string(b)).Int()
	if err != nil {
		return false, fmt.Errorf("unregister %s: %w", userID, err)
	}
	return n == 1, nil
}

func (r *Registry) Lookup(ctx context.Context, userID string) (registry.ConnRef, bool, error) {
	s, err := r.client.HGet(ctx, r.key, userID).Result()
	if errors.Is(err, redis.Nil) {
		return registry.ConnRef{}, false, nil
	}
	if err != nil {
		return registry.ConnRef{}, false, fmt.Errorf("lookup %s: %w", userID, err)
	}
	var ref registry.ConnRef
	if err := json.Unmarshal([]byte(s), &ref); err != nil {
		return registry.ConnRef{}, false, fmt.Errorf("decode ref for %s: %w", userID, err)
	}
	return ref, true, nil
}

func (r *Registry) LookupMany(ctx context.Context, ids []string) ([]registry.ConnRef, error) {
	if len(ids) == 0 {
		return []registry.ConnRef{}, nil
	}
	vals, err := r.client.HMGet(ctx, r.key, ids...).Result()
	if err != nil {
		return nil, fmt.Errorf("lookup many: %w", err)
	}
	out := make([]registry.ConnRef, 0, len(vals))
	for _, v := range vals {
		s, ok := v.(string)
		if !ok {
			continue
		}
		var ref registry.ConnRef
		if err := json.Unmarshal([]byte(s), &ref); err != nil {
			continue
		}
		out = append(out, ref)
	}
	return out, nil
}
