package cache

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

//go:embed lua/release.lua
var releaseScript string

var (
	_ MessageCache = (*RedisCache)(nil)
	_ DeliveryLock = (*RedisCache)(nil)
)

type RedisCache struct {
	rdb      redis.Cmdable
	ttl      time.Duration
	claimTTL time.Duration
	owner    string
}

func NewRedisCache(rdb redis.Cmdable, ttl, claimTTL time.Duration) *RedisCache {
	return &RedisCache{rdb: rdb, ttl: ttl, claimTTL: claimTTL, owner: uuid.NewString()}
}

type sentValue struct {
	ProviderMessageID string    `json:"providerMessageId"`
	SentAt            time.Time `json:"sentAt"`
}

func sentKey(id uuid.UUID) string  { return fmt.Sprintf("msg:%s", id) }
func claimKey(id uuid.UUID) string { return fmt.Sprintf("msg:%s:claim", id) }

func (c *RedisCache) StoreSent(ctx context.Context, id uuid.UUID, providerMessageID string, sentAt time.Time) error {
	val := sentValue{
		ProviderMessageID: providerMessageID,
		SentAt:            sentAt.UTC(),
	}

	b, err := json.Marshal(val)
	if err != nil {
		return err
	}

	return c.rdb.Set(ctx, sentKey(id), b, c.ttl).Err()
}

func (c *RedisCache) Claim(ctx context.Context, id uuid.UUID) (bool, error) {
	return c.rdb.SetNX(ctx, claimKey(id), c.owner, c.claimTTL).Result()
}

// Release drops the claim only if this process still holds it.
func (c *RedisCache) Release(ctx context.Context, id uuid.UUID) error {
	return c.rdb.Eval(ctx, releaseScript, []string{claimKey(id)}, c.owner).Err()
}
