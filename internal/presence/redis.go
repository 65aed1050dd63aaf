package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const onlineKeyPrefix = "online:"

// RedisTracker stores presence entries in Redis with a server-side TTL,
// so liveness survives backend restarts and is shared across replicas.
type RedisTracker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisTracker constructs a tracker over the given Redis client.
func NewRedisTracker(client *redis.Client, ttl time.Duration) *RedisTracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisTracker{client: client, ttl: ttl}
}

// MarkOnline sets the presence key with the configured expiry. Safe to
// call repeatedly; each call pushes the expiry out.
func (t *RedisTracker) MarkOnline(ctx context.Context, userID string) error {
	if err := t.client.SetEx(ctx, onlineKey(userID), "1", t.ttl).Err(); err != nil {
		return fmt.Errorf("set presence key: %w", err)
	}
	return nil
}

// MarkOffline deletes the presence key immediately.
func (t *RedisTracker) MarkOffline(ctx context.Context, userID string) error {
	if err := t.client.Del(ctx, onlineKey(userID)).Err(); err != nil {
		return fmt.Errorf("delete presence key: %w", err)
	}
	return nil
}

// IsOnline checks for the presence key.
func (t *RedisTracker) IsOnline(ctx context.Context, userID string) (bool, error) {
	n, err := t.client.Exists(ctx, onlineKey(userID)).Result()
	if err != nil {
		return false, fmt.Errorf("check presence key: %w", err)
	}
	return n > 0, nil
}

// BulkIsOnline resolves many users in a single MGET round trip.
func (t *RedisTracker) BulkIsOnline(ctx context.Context, userIDs []string) (map[string]bool, error) {
	statuses := make(map[string]bool, len(userIDs))
	if len(userIDs) == 0 {
		return statuses, nil
	}

	keys := make([]string, len(userIDs))
	for i, id := range userIDs {
		keys[i] = onlineKey(id)
	}

	values, err := t.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("bulk check presence keys: %w", err)
	}

	for i, id := range userIDs {
		statuses[id] = values[i] != nil
	}
	return statuses, nil
}

func onlineKey(userID string) string {
	return onlineKeyPrefix + userID
}

var _ Tracker = (*RedisTracker)(nil)
var _ Tracker = (*MemoryTracker)(nil)
