package persist

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/arenachess/arena-server/internal/domain"
)

// Repository persists games, moves, and player aggregates in Postgres. It
// implements both Recorder and AnalyticsSource.
type Repository struct {
	db *sql.DB
}

func NewRepository(databaseURL string) (*Repository, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(16)
	db.SetMaxIdleConns(8)
	db.SetConnMaxLifetime(30 * time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Repository{db: db}, nil
}

func (r *Repository) Close() error {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.Close()
}

// EnsureSchema creates the tables when they do not exist yet.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS players (
			id SERIAL PRIMARY KEY,
			username VARCHAR(50) NOT NULL UNIQUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			total_games INTEGER NOT NULL DEFAULT 0,
			wins INTEGER NOT NULL DEFAULT 0,
			losses INTEGER NOT NULL DEFAULT 0,
			draws INTEGER NOT NULL DEFAULT 0,
			average_move_time INTEGER NOT NULL DEFAULT 0
		);
		CREATE TABLE IF NOT EXISTS games (
			id SERIAL PRIMARY KEY,
			session_id VARCHAR(64) NOT NULL UNIQUE,
			white_username VARCHAR(50),
			black_username VARCHAR(50),
			is_ai_game BOOLEAN NOT NULL DEFAULT FALSE,
			ai_difficulty VARCHAR(10),
			start_time TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			end_time TIMESTAMPTZ,
			result VARCHAR(10),
			total_moves INTEGER NOT NULL DEFAULT 0,
			final_fen TEXT
		);
		CREATE TABLE IF NOT EXISTS moves (
			id SERIAL PRIMARY KEY,
			session_id VARCHAR(64) NOT NULL,
			mover VARCHAR(50),
			move_number INTEGER NOT NULL,
			move VARCHAR(10) NOT NULL,
			uci VARCHAR(10) NOT NULL,
			time_spent_ms INTEGER NOT NULL,
			fen TEXT NOT NULL,
			is_check BOOLEAN NOT NULL DEFAULT FALSE,
			is_capture BOOLEAN NOT NULL DEFAULT FALSE
		);
		CREATE INDEX IF NOT EXISTS idx_moves_session ON moves (session_id, move_number)`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// RegisterPlayer inserts a player row if the username is new.
func (r *Repository) RegisterPlayer(ctx context.Context, username string) error {
	const query = `
		INSERT INTO players (username)
		VALUES ($1)
		ON CONFLICT (username) DO NOTHING`
	if _, err := r.db.ExecContext(ctx, query, strings.TrimSpace(username)); err != nil {
		return fmt.Errorf("register player: %w", err)
	}
	return nil
}

func (r *Repository) LookupPlayer(ctx context.Context, username string) (*domain.PlayerStats, error) {
	const query = `
		SELECT id, username, total_games, wins, losses, draws, average_move_time, created_at
		FROM players
		WHERE username = $1`

	var (
		stats   domain.PlayerStats
		avgMS   int64
		created time.Time
	)
	err := r.db.QueryRowContext(ctx, query, strings.TrimSpace(username)).Scan(
		&stats.ID,
		&stats.Username,
		&stats.TotalGames,
		&stats.Wins,
		&stats.Losses,
		&stats.Draws,
		&avgMS,
		&created,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrPlayerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select player: %w", err)
	}
	stats.AvgMoveTime = time.Duration(avgMS) * time.Millisecond
	stats.CreatedAt = created
	return &stats, nil
}

// RecordGameStart upserts the game row. Called once per seat join so both
// player columns end up filled regardless of join order.
func (r *Repository) RecordGameStart(ctx context.Context, rec *domain.GameRecord) error {
	if rec == nil {
		return fmt.Errorf("nil game record")
	}
	const query = `
		INSERT INTO games (session_id, white_username, black_username, is_ai_game, ai_difficulty, start_time, result)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (session_id) DO UPDATE SET
			white_username = COALESCE(NULLIF(EXCLUDED.white_username, ''), games.white_username),
			black_username = COALESCE(NULLIF(EXCLUDED.black_username, ''), games.black_username)`
	_, err := r.db.ExecContext(ctx, query,
		rec.SessionID,
		rec.WhiteUsername,
		rec.BlackUsername,
		rec.IsAIGame,
		rec.AIDifficulty,
		rec.StartedAt,
		domain.ResultOngoing,
	)
	if err != nil {
		return fmt.Errorf("insert game: %w", err)
	}
	return nil
}

func (r *Repository) RecordMove(ctx context.Context, mv *domain.MoveRecord) error {
	if mv == nil {
		return fmt.Errorf("nil move record")
	}
	const insertMove = `
		INSERT INTO moves (session_id, mover, move_number, move, uci, time_spent_ms, fen, is_check, is_capture)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	_, err := r.db.ExecContext(ctx, insertMove,
		mv.SessionID,
		mv.Mover,
		mv.MoveNumber,
		mv.SAN,
		mv.UCI,
		mv.TimeSpent.Milliseconds(),
		mv.FENAfter,
		mv.IsCheck,
		mv.IsCapture,
	)
	if err != nil {
		return fmt.Errorf("insert move: %w", err)
	}

	// Writers are asynchronous; never let an earlier move overwrite a later
	// running total.
	const updateGame = `
		UPDATE games
		SET total_moves = $2, final_fen = $3
		WHERE session_id = $1 AND total_moves < $2`
	if _, err := r.db.ExecContext(ctx, updateGame, mv.SessionID, mv.MoveNumber, mv.FENAfter); err != nil {
		return fmt.Errorf("update game move count: %w", err)
	}
	return nil
}

func (r *Repository) RecordGameEnd(ctx context.Context, sessionID, finalFEN, result string, totalMoves int) error {
	const query = `
		UPDATE games
		SET end_time = NOW(), result = $2, final_fen = $3, total_moves = $4
		WHERE session_id = $1`
	if _, err := r.db.ExecContext(ctx, query, sessionID, result, finalFEN, totalMoves); err != nil {
		return fmt.Errorf("finalize game: %w", err)
	}
	return nil
}

func (r *Repository) UpsertPlayerStats(ctx context.Context, username string, delta domain.StatsDelta) error {
	const query = `
		UPDATE players
		SET wins = wins + $2,
			losses = losses + $3,
			draws = draws + $4,
			total_games = total_games + $5
		WHERE username = $1`
	res, err := r.db.ExecContext(ctx, query,
		strings.TrimSpace(username),
		delta.Wins,
		delta.Losses,
		delta.Draws,
		delta.GamesPlayed(),
	)
	if err != nil {
		return fmt.Errorf("update player stats: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrPlayerNotFound
	}
	return nil
}

func (r *Repository) GetGame(ctx context.Context, sessionID string) (*domain.GameRecord, error) {
	const query = `
		SELECT id, session_id, COALESCE(white_username, ''), COALESCE(black_username, ''),
			is_ai_game, COALESCE(ai_difficulty, ''), start_time, end_time,
			COALESCE(result, '*'), COALESCE(final_fen, ''), total_moves
		FROM games
		WHERE session_id = $1`

	var (
		rec   domain.GameRecord
		ended sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, sessionID).Scan(
		&rec.ID,
		&rec.SessionID,
		&rec.WhiteUsername,
		&rec.BlackUsername,
		&rec.IsAIGame,
		&rec.AIDifficulty,
		&rec.StartedAt,
		&ended,
		&rec.Result,
		&rec.FinalFEN,
		&rec.TotalMoves,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrGameNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select game: %w", err)
	}
	if ended.Valid {
		rec.EndedAt = ended.Time
	}
	return &rec, nil
}

func (r *Repository) CountMoves(ctx context.Context, sessionID string) (int, error) {
	const query = `SELECT COUNT(*) FROM moves WHERE session_id = $1`
	var n int
	if err := r.db.QueryRowContext(ctx, query, sessionID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count moves: %w", err)
	}
	return n, nil
}

func (r *Repository) GlobalStats(ctx context.Context) (*domain.GlobalStats, error) {
	const query = `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE end_time IS NOT NULL),
			COALESCE(AVG(total_moves) FILTER (WHERE end_time IS NOT NULL), 0),
			COUNT(*) FILTER (WHERE result = '1-0'),
			COUNT(*) FILTER (WHERE result = '0-1'),
			COUNT(*) FILTER (WHERE result = '1/2-1/2')
		FROM games`

	var (
		stats    domain.GlobalStats
		avgMoves float64
	)
	err := r.db.QueryRowContext(ctx, query).Scan(
		&stats.TotalGames,
		&stats.CompletedGames,
		&avgMoves,
		&stats.WhiteWins,
		&stats.BlackWins,
		&stats.Draws,
	)
	if err != nil {
		return nil, fmt.Errorf("global stats: %w", err)
	}
	stats.AverageMovesPerGame = int(avgMoves + 0.5)
	return &stats, nil
}
