package playercache

import (
	"context"

	"go.uber.org/zap"

	"github.com/arenachess/arena-server/internal/domain"
	"github.com/arenachess/arena-server/internal/persist"
)

// CachingRecorder wraps a persist.Recorder so player lookups hit Redis first
// and stats upserts drop the stale entry. Cache trouble is logged and
// swallowed; the database answer always wins.
type CachingRecorder struct {
	next  persist.Recorder
	cache *Cache
	log   *zap.Logger
}

func NewCachingRecorder(next persist.Recorder, cache *Cache, logger *zap.Logger) *CachingRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachingRecorder{next: next, cache: cache, log: logger}
}

func (r *CachingRecorder) LookupPlayer(ctx context.Context, username string) (*domain.PlayerStats, error) {
	if stats, err := r.cache.Get(ctx, username); err != nil {
		r.log.Warn("player cache read failed", zap.String("username", username), zap.Error(err))
	} else if stats != nil {
		return stats, nil
	}

	stats, err := r.next.LookupPlayer(ctx, username)
	if err != nil {
		return nil, err
	}
	if err := r.cache.Set(ctx, stats); err != nil {
		r.log.Warn("player cache write failed", zap.String("username", username), zap.Error(err))
	}
	return stats, nil
}

func (r *CachingRecorder) RecordGameStart(ctx context.Context, rec *domain.GameRecord) error {
	return r.next.RecordGameStart(ctx, rec)
}

func (r *CachingRecorder) RecordMove(ctx context.Context, mv *domain.MoveRecord) error {
	return r.next.RecordMove(ctx, mv)
}

func (r *CachingRecorder) RecordGameEnd(ctx context.Context, sessionID, finalFEN, result string, totalMoves int) error {
	return r.next.RecordGameEnd(ctx, sessionID, finalFEN, result, totalMoves)
}

func (r *CachingRecorder) UpsertPlayerStats(ctx context.Context, username string, delta domain.StatsDelta) error {
	if err := r.next.UpsertPlayerStats(ctx, username, delta); err != nil {
		return err
	}
	if err := r.cache.Invalidate(ctx, username); err != nil {
		r.log.Warn("player cache invalidate failed", zap.String("username", username), zap.Error(err))
	}
	return nil
}
