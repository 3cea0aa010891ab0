package playercache

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/arenachess/arena-server/internal/domain"
	"github.com/arenachess/arena-server/internal/persist"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(func() { mr.Close() })
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return New(rdb, time.Minute, nil)
}

func TestCacheRoundTrip(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	got, err := c.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("Get on empty cache: %v", err)
	}
	if got != nil {
		t.Fatalf("expected miss, got %+v", got)
	}

	if err := c.Set(ctx, &domain.PlayerStats{Username: "alice", Wins: 4, TotalGames: 7}); err != nil {
		t.Fatalf("Set: %v", err)
	}
	got, err = c.Get(ctx, "alice")
	if err != nil || got == nil {
		t.Fatalf("Get after Set: %+v, %v", got, err)
	}
	if got.Wins != 4 || got.TotalGames != 7 {
		t.Fatalf("cached stats mangled: %+v", got)
	}

	if err := c.Invalidate(ctx, "alice"); err != nil {
		t.Fatalf("Invalidate: %v", err)
	}
	got, err = c.Get(ctx, "alice")
	if err != nil || got != nil {
		t.Fatalf("expected miss after invalidate, got %+v, %v", got, err)
	}
}

func TestCachingRecorderLookupAndInvalidate(t *testing.T) {
	c := newTestCache(t)
	ctx := context.Background()

	repo := persist.NewMemoryRecorder(false)
	repo.Register("bob")
	rec := NewCachingRecorder(repo, c, nil)

	// first lookup populates the cache
	stats, err := rec.LookupPlayer(ctx, "bob")
	if err != nil {
		t.Fatalf("LookupPlayer: %v", err)
	}
	if stats.Username != "bob" {
		t.Fatalf("unexpected stats: %+v", stats)
	}
	cached, err := c.Get(ctx, "bob")
	if err != nil || cached == nil {
		t.Fatalf("cache not populated: %v", err)
	}

	// upsert bumps the repo and drops the cache entry
	if err := rec.UpsertPlayerStats(ctx, "bob", domain.StatsDelta{Wins: 1}); err != nil {
		t.Fatalf("UpsertPlayerStats: %v", err)
	}
	cached, err = c.Get(ctx, "bob")
	if err != nil || cached != nil {
		t.Fatalf("cache not invalidated: %+v, %v", cached, err)
	}

	stats, err = rec.LookupPlayer(ctx, "bob")
	if err != nil {
		t.Fatalf("LookupPlayer after upsert: %v", err)
	}
	if stats.Wins != 1 || stats.TotalGames != 1 {
		t.Fatalf("stats after upsert: %+v", stats)
	}
}
