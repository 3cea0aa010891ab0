// Package session owns the authoritative runtime state of every live match.
// All mutations for one session are serialized through its coordinator under
// a per-session lock; sessions never share mutable state with each other.
package session

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/arenachess/arena-server/internal/advisor"
	"github.com/arenachess/arena-server/internal/board"
	"github.com/arenachess/arena-server/pkg/arenadto"
)

// Mode fixes who occupies the second seat, at creation time.
type Mode string

const (
	ModeHumanVsHuman Mode = "human-vs-human"
	ModeHumanVsAI    Mode = "human-vs-ai"
)

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "human-vs-human", "pvp":
		return ModeHumanVsHuman, nil
	case "human-vs-ai", "ai":
		return ModeHumanVsAI, nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}

// Role is a playing seat or the spectator pseudo-role. White moves first.
type Role string

const (
	RoleWhite     Role = "white"
	RoleBlack     Role = "black"
	RoleSpectator Role = "spectator"
)

func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "white":
		return RoleWhite, nil
	case "black":
		return RoleBlack, nil
	case "spectator":
		return RoleSpectator, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

type Status string

const (
	StatusActive    Status = "active"
	StatusCompleted Status = "completed"
)

// AIOccupantName labels the automated opponent in memberships and move
// records.
const AIOccupantName = "ai"

// Occupant is who holds a seat: nobody, a username, or the automated
// opponent.
type Occupant struct {
	Username string
	IsAI     bool
}

func (o Occupant) Empty() bool {
	return o.Username == "" && !o.IsAI
}

func (o Occupant) Label() string {
	if o.IsAI {
		return AIOccupantName
	}
	return o.Username
}

type ChatMessage struct {
	Author string
	Text   string
	At     time.Time
}

// Session is one match's complete authoritative runtime state. Fields below
// mu are guarded by it; the identity fields above are immutable after
// creation.
type Session struct {
	ID         string
	Mode       Mode
	Difficulty advisor.Difficulty
	CreatedAt  time.Time

	mu                sync.Mutex
	pos               *board.Position
	seats             map[Role]Occupant
	spectators        map[string]struct{}
	chatLog           []ChatMessage
	moveCount         int
	lastMoveStartedAt time.Time
	status            Status
	outcome           string
	pendingAI         bool
}

func newSession(id string, mode Mode, difficulty advisor.Difficulty) *Session {
	now := time.Now()
	s := &Session{
		ID:                id,
		Mode:              mode,
		Difficulty:        difficulty,
		CreatedAt:         now,
		pos:               board.New(),
		seats:             map[Role]Occupant{RoleWhite: {}, RoleBlack: {}},
		spectators:        make(map[string]struct{}),
		lastMoveStartedAt: now,
		status:            StatusActive,
	}
	if mode == ModeHumanVsAI {
		s.seats[RoleBlack] = Occupant{IsAI: true}
	}
	return s
}

// seatOf returns the role the identity currently plays, if any.
func (s *Session) seatOf(identity string) (Role, bool) {
	for _, role := range []Role{RoleWhite, RoleBlack} {
		occ := s.seats[role]
		if !occ.IsAI && occ.Username != "" && occ.Username == identity {
			return role, true
		}
	}
	return "", false
}

// abandoned reports whether no human is left in the session. The automated
// opponent does not keep a session alive.
func (s *Session) abandoned() bool {
	for _, occ := range s.seats {
		if !occ.IsAI && occ.Username != "" {
			return false
		}
	}
	return len(s.spectators) == 0
}

// stateLocked builds the broadcast snapshot. Callers hold s.mu.
func (s *Session) stateLocked() arenadto.SessionState {
	state := arenadto.SessionState{
		SessionID:  s.ID,
		FEN:        s.pos.FEN(),
		Turn:       s.pos.Turn(),
		InCheck:    s.pos.InCheck(),
		GameOver:   s.pos.IsGameOver(),
		Status:     string(s.status),
		Outcome:    s.outcome,
		MoveCount:  s.moveCount,
		Mode:       string(s.Mode),
		Difficulty: string(s.Difficulty),
	}
	if uci := s.pos.LastMoveUCI(); len(uci) >= 4 {
		state.LastMove = &arenadto.LastMove{
			From: uci[:2],
			To:   uci[2:4],
			SAN:  s.pos.LastMoveSAN(),
			UCI:  uci,
		}
	}
	return state
}

// membershipLocked builds the membership snapshot. Callers hold s.mu.
func (s *Session) membershipLocked() arenadto.Membership {
	return arenadto.Membership{
		White:      s.seats[RoleWhite].Label(),
		Black:      s.seats[RoleBlack].Label(),
		Spectators: len(s.spectators),
	}
}
