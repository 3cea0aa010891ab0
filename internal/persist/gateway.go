// Package persist is the durable mirror of completed and ongoing matches.
// The in-memory session is the source of truth during play; writes here are
// asynchronous and never roll back coordinator state.
package persist

import (
	"context"
	"errors"

	"github.com/arenachess/arena-server/internal/domain"
)

var (
	ErrPlayerNotFound = errors.New("player not found")
	ErrGameNotFound   = errors.New("game not found")
)

// Recorder is the narrow persistence contract the session coordinator
// consumes: register game rows, append moves, finalize results, and update
// player aggregates. LookupPlayer backs the username-keyed identity check on
// seat joins.
type Recorder interface {
	LookupPlayer(ctx context.Context, username string) (*domain.PlayerStats, error)
	RecordGameStart(ctx context.Context, rec *domain.GameRecord) error
	RecordMove(ctx context.Context, mv *domain.MoveRecord) error
	RecordGameEnd(ctx context.Context, sessionID, finalFEN, result string, totalMoves int) error
	UpsertPlayerStats(ctx context.Context, username string, delta domain.StatsDelta) error
}

// AnalyticsSource feeds the read-only analytics API.
type AnalyticsSource interface {
	GetGame(ctx context.Context, sessionID string) (*domain.GameRecord, error)
	CountMoves(ctx context.Context, sessionID string) (int, error)
	LookupPlayer(ctx context.Context, username string) (*domain.PlayerStats, error)
	GlobalStats(ctx context.Context) (*domain.GlobalStats, error)
}
