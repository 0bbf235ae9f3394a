package replay

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"flock/pkg/platform/sentinel"
)

const nonceKeyPrefix = "checkin:nonce:"

// RedisGuard is the production replay guard for multi-instance
// deployments: all server instances share one consumed-nonce set.
type RedisGuard struct {
	client *redis.Client
}

// NewRedis constructs a Redis-backed replay guard.
func NewRedis(client *redis.Client) *RedisGuard {
	return &RedisGuard{client: client}
}

func (g *RedisGuard) Consume(ctx context.Context, nonce string, ttl time.Duration) error {
	if nonce == "" {
		return fmt.Errorf("nonce is required: %w", sentinel.ErrInvalidState)
	}
	if ttl <= 0 {
		ttl = time.Minute
	}

	// SET NX is the atomic claim; losing the race means the nonce was
	// already spent.
	set, err := g.client.SetNX(ctx, nonceKeyPrefix+nonce, "1", ttl).Result()
	if err != nil {
		return fmt.Errorf("consume nonce: %w", err)
	}
	if !set {
		return fmt.Errorf("nonce %s: %w", nonce, sentinel.ErrAlreadyUsed)
	}
	return nil
}
