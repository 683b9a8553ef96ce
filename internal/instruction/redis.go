package instruction

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"

	"github.com/lexgate/dispatch/internal/observability"
)

const (
	keyPrefix  = "instructions:"
	defaultKey = keyPrefix + "default"
)

// Redis looks instructions up in Redis, so an administrative surface can
// edit them without redeploying. Misses fall through to the default key;
// connection errors degrade to absent.
type Redis struct {
	client *redis.Client
}

// NewRedis creates a Redis-backed instruction store.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{
		client: client,
	}
}

// Lookup returns the instruction for a model id, if any.
func (r *Redis) Lookup(ctx context.Context, modelID string) (string, bool) {
	if instruction, ok := r.get(ctx, keyPrefix+modelID); ok {
		return instruction, true
	}
	return r.get(ctx, defaultKey)
}

func (r *Redis) get(ctx context.Context, key string) (string, bool) {
	value, err := r.client.Get(ctx, key).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger := observability.FromContext(ctx)
			logger.Warn("instruction lookup failed, continuing without instruction",
				observability.String("key", key),
				observability.Error(err))
		}
		return "", false
	}
	if value == "" {
		return "", false
	}
	return value, true
}
