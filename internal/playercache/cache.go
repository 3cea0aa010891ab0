// Package playercache keeps a short-lived Redis copy of player aggregates in
// front of the database, and invalidates it when a finished game changes the
// numbers.
package playercache

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/arenachess/arena-server/internal/domain"
)

const defaultTTL = 6 * time.Hour

type Cache struct {
	rdb *redis.Client
	ttl time.Duration
	log *zap.Logger
}

func New(rdb *redis.Client, ttl time.Duration, logger *zap.Logger) *Cache {
	if ttl <= 0 {
		ttl = defaultTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{rdb: rdb, ttl: ttl, log: logger}
}

func statsKey(username string) string {
	return "arena:player:stats:" + strings.TrimSpace(username)
}

// Get returns the cached stats, or nil on a miss.
func (c *Cache) Get(ctx context.Context, username string) (*domain.PlayerStats, error) {
	raw, err := c.rdb.Get(ctx, statsKey(username)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var stats domain.PlayerStats
	if err := json.Unmarshal(raw, &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (c *Cache) Set(ctx context.Context, stats *domain.PlayerStats) error {
	if stats == nil {
		return nil
	}
	raw, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return c.rdb.Set(ctx, statsKey(stats.Username), raw, c.ttl).Err()
}

func (c *Cache) Invalidate(ctx context.Context, username string) error {
	return c.rdb.Del(ctx, statsKey(username)).Err()
}
