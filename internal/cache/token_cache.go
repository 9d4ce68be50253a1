package cache

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenCache keeps the payment gateway bearer token in Redis so every
// server instance shares one grant.
type TokenCache struct {
	rdb *redis.Client
	key string
}

func NewTokenCache(rdb *redis.Client, key string) *TokenCache {
	if key == "" {
		key = "bkash:id_token"
	}
	return &TokenCache{rdb: rdb, key: key}
}

func (t *TokenCache) Get(ctx context.Context) (string, bool, error) {
	tok, err := t.rdb.Get(ctx, t.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return tok, true, nil
}

func (t *TokenCache) Set(ctx context.Context, token string, ttl time.Duration) error {
	return t.rdb.Set(ctx, t.key, token, ttl).Err()
}

func (t *TokenCache) Delete(ctx context.Context) error {
	return t.rdb.Del(ctx, t.key).Err()
}
