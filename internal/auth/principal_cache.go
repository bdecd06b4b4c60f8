package auth

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"clinic-trash/internal/model"
)

const principalPrefix = "principal:"

// PrincipalCache keeps resolved principals in Redis for a bounded time so the
// auth middleware does not hit the users table on every request.
type PrincipalCache struct {
	client goredis.UniversalClient
	ttl    time.Duration
}

func NewPrincipalCache(client goredis.UniversalClient, ttl time.Duration) *PrincipalCache {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &PrincipalCache{client: client, ttl: ttl}
}

// Get reports ok=false on a miss.
func (c *PrincipalCache) Get(ctx context.Context, id string) (model.Principal, bool, error) {
	values, err := c.client.HGetAll(ctx, principalKey(id)).Result()
	if err != nil {
		return model.Principal{}, false, fmt.Errorf("get cached principal: %w", err)
	}
	if len(values) == 0 {
		return model.Principal{}, false, nil
	}

	return model.Principal{
		ID:          id,
		DisplayName: values["display_name"],
		Role:        values["role"],
	}, true, nil
}

func (c *PrincipalCache) Set(ctx context.Context, p model.Principal) error {
	key := principalKey(p.ID)

	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, key, map[string]any{
		"display_name": p.DisplayName,
		"role":         p.Role,
	})
	pipe.Expire(ctx, key, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("cache principal: %w", err)
	}
	return nil
}

func (c *PrincipalCache) Invalidate(ctx context.Context, id string) error {
	if err := c.client.Del(ctx, principalKey(id)).Err(); err != nil {
		return fmt.Errorf("invalidate principal: %w", err)
	}
	return nil
}

func principalKey(id string) string {
	return principalPrefix + id
}
