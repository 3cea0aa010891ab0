// Package advisor produces moves for the automated opponent. The coordinator
// talks to the Advisor interface only; the concrete implementation speaks UCI
// to a Stockfish-compatible binary.
package advisor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrTimeout     = errors.New("advisor timeout")
	ErrUnavailable = errors.New("advisor unavailable")
)

// Difficulty selects how strongly and how long the opponent thinks.
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// ParseDifficulty normalizes a client-supplied difficulty string. Empty input
// falls back to medium.
func ParseDifficulty(s string) (Difficulty, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return DifficultyMedium, nil
	case "easy":
		return DifficultyEasy, nil
	case "medium":
		return DifficultyMedium, nil
	case "hard":
		return DifficultyHard, nil
	default:
		return "", fmt.Errorf("unknown difficulty %q", s)
	}
}

// Preset holds the engine parameters behind a difficulty.
type Preset struct {
	MoveTime   time.Duration
	SkillLevel int
}

// PresetFor maps difficulties onto engine settings. Skill level range is the
// engine's 0-20 scale.
func PresetFor(d Difficulty) Preset {
	switch d {
	case DifficultyEasy:
		return Preset{MoveTime: 500 * time.Millisecond, SkillLevel: 5}
	case DifficultyHard:
		return Preset{MoveTime: 2 * time.Second, SkillLevel: 20}
	default:
		return Preset{MoveTime: time.Second, SkillLevel: 10}
	}
}

// Request asks for one move in the given position. MovesUCI is the full move
// list from the start position; the engine replays it rather than trusting
// the FEN alone.
type Request struct {
	FEN        string
	MovesUCI   []string
	Difficulty Difficulty
}

// Result carries the proposed move and how long the engine actually thought.
type Result struct {
	MoveUCI  string
	Duration time.Duration
}

// Advisor proposes a move for the side to move. Implementations must honor
// ctx cancellation; at most one request per session is in flight at a time,
// enforced by the caller.
type Advisor interface {
	RequestMove(ctx context.Context, req Request) (Result, error)
}
