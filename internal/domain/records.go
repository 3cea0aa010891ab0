package domain

import "time"

// Result tokens stored in the games table, PGN style.
const (
	ResultWhiteWins = "1-0"
	ResultBlackWins = "0-1"
	ResultDraw      = "1/2-1/2"
	ResultOngoing   = "*"
)

// GameRecord is the durable row for one match.
type GameRecord struct {
	ID            int64
	SessionID     string
	WhiteUsername string
	BlackUsername string
	IsAIGame      bool
	AIDifficulty  string
	StartedAt     time.Time
	EndedAt       time.Time
	Result        string
	FinalFEN      string
	TotalMoves    int
}

// MoveRecord is one accepted move, numbered from 1.
type MoveRecord struct {
	ID         int64
	SessionID  string
	Mover      string
	MoveNumber int
	SAN        string
	UCI        string
	FENAfter   string
	IsCheck    bool
	IsCapture  bool
	TimeSpent  time.Duration
}

// PlayerStats is the aggregate row per registered player.
type PlayerStats struct {
	ID          int64
	Username    string
	TotalGames  int
	Wins        int
	Losses      int
	Draws       int
	AvgMoveTime time.Duration
	CreatedAt   time.Time
}

// StatsDelta is applied to a player's aggregates when a game completes.
// TotalGames always advances by Wins+Losses+Draws.
type StatsDelta struct {
	Wins   int
	Losses int
	Draws  int
}

// GamesPlayed returns how many finished games the delta accounts for.
func (d StatsDelta) GamesPlayed() int {
	return d.Wins + d.Losses + d.Draws
}

// GlobalStats aggregates the whole games table for the analytics API.
type GlobalStats struct {
	TotalGames          int
	CompletedGames      int
	AverageMovesPerGame int
	WhiteWins           int
	BlackWins           int
	Draws               int
}
