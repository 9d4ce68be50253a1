// Package cache holds the small Redis-backed stores used by the services:
// the profile view dedup guard and the bKash bearer token cache.
package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ViewGuard claims a (biodata, viewer) pair for a dedup window using
// SET NX EX, so concurrent requests from the same viewer agree on a single
// winner before touching the database.
type ViewGuard struct {
	rdb    *redis.Client
	prefix string
}

// NewViewGuard returns nil when rdb is nil.
func NewViewGuard(rdb *redis.Client, prefix string) *ViewGuard {
	if rdb == nil {
		return nil
	}
	if prefix == "" {
		prefix = "pv"
	}
	return &ViewGuard{rdb: rdb, prefix: prefix}
}

func (g *ViewGuard) key(biodataID uint64, viewerKey string) string {
	return fmt.Sprintf("%s:%d:%s", g.prefix, biodataID, viewerKey)
}

// Claim reports whether the caller is the first to view biodataID as
// viewerKey within window.
func (g *ViewGuard) Claim(ctx context.Context, biodataID uint64, viewerKey string, window time.Duration) (bool, error) {
	return g.rdb.SetNX(ctx, g.key(biodataID, viewerKey), 1, window).Result()
}

// Release drops a claim whose view could not be recorded so the viewer is
// not locked out for the whole window.
func (g *ViewGuard) Release(ctx context.Context, biodataID uint64, viewerKey string) error {
	return g.rdb.Del(ctx, g.key(biodataID, viewerKey)).Err()
}
