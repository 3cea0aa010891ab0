// Package board adapts the chess rules library into the narrow position
// interface the session coordinator needs: list destinations, apply a move,
// report game termination. It owns no concurrency; every Position belongs to
// exactly one session and is mutated only under that session's lock.
package board

import (
	"errors"
	"fmt"
	"strings"

	nchess "github.com/corentings/chess/v2"
)

var (
	ErrIllegalMove   = errors.New("illegal move")
	ErrInvalidSquare = errors.New("invalid square")
)

// Position wraps a single game's board state plus its applied move lists.
type Position struct {
	game     *nchess.Game
	movesUCI []string
	movesSAN []string
	lastSAN  string
	lastUCI  string
}

// New returns the standard starting position.
func New() *Position {
	return &Position{game: nchess.NewGame()}
}

// Replay rebuilds a position by applying stored UCI moves from the start
// position. Applying a stored FEN instead would double-apply moves, so the
// move list is the source of truth.
func Replay(movesUCI []string) (*Position, error) {
	p := New()
	for _, mv := range movesUCI {
		pos := p.game.Position()
		if err := p.game.PushNotationMove(mv, nchess.UCINotation{}, nil); err != nil {
			return nil, fmt.Errorf("replay move %q: %w", mv, err)
		}
		applied := p.game.Moves()
		san := nchess.AlgebraicNotation{}.Encode(pos, applied[len(applied)-1])
		p.movesUCI = append(p.movesUCI, mv)
		p.movesSAN = append(p.movesSAN, san)
		p.lastUCI = mv
		p.lastSAN = san
	}
	return p, nil
}

// MoveInfo describes a move that was just applied.
type MoveInfo struct {
	From      string
	To        string
	UCI       string
	SAN       string
	IsCheck   bool
	IsCapture bool
}

// Apply validates and applies a move given as origin/destination squares and
// an optional promotion piece letter (q, r, b, n). On failure the position is
// unchanged and ErrIllegalMove or ErrInvalidSquare is returned.
func (p *Position) Apply(from, to, promotion string) (MoveInfo, error) {
	from = strings.ToLower(strings.TrimSpace(from))
	to = strings.ToLower(strings.TrimSpace(to))
	promotion = strings.ToLower(strings.TrimSpace(promotion))
	if !validSquare(from) || !validSquare(to) {
		return MoveInfo{}, ErrInvalidSquare
	}
	if promotion != "" && (len(promotion) != 1 || !strings.Contains("qrbn", promotion)) {
		return MoveInfo{}, ErrIllegalMove
	}

	uci := from + to + promotion
	pos := p.game.Position()
	if err := p.game.PushNotationMove(uci, nchess.UCINotation{}, nil); err != nil {
		return MoveInfo{}, ErrIllegalMove
	}

	moves := p.game.Moves()
	last := moves[len(moves)-1]
	san := nchess.AlgebraicNotation{}.Encode(pos, last)

	p.movesUCI = append(p.movesUCI, uci)
	p.movesSAN = append(p.movesSAN, san)
	p.lastUCI = uci
	p.lastSAN = san

	return MoveInfo{
		From:      from,
		To:        to,
		UCI:       uci,
		SAN:       san,
		IsCheck:   strings.ContainsAny(san, "+#"),
		IsCapture: strings.Contains(san, "x"),
	}, nil
}

// DestinationsFrom lists the squares reachable from the given square in the
// current position. An empty result is not an error; a malformed square is.
func (p *Position) DestinationsFrom(square string) ([]string, error) {
	square = strings.ToLower(strings.TrimSpace(square))
	if !validSquare(square) {
		return nil, ErrInvalidSquare
	}
	seen := make(map[string]struct{})
	dests := []string{}
	for _, mv := range p.game.Position().ValidMoves() {
		uci := mv.String()
		if !strings.HasPrefix(uci, square) || len(uci) < 4 {
			continue
		}
		to := uci[2:4]
		if _, dup := seen[to]; dup {
			continue
		}
		seen[to] = struct{}{}
		dests = append(dests, to)
	}
	return dests, nil
}

// FEN returns the current position in Forsyth-Edwards notation.
func (p *Position) FEN() string {
	return p.game.FEN()
}

// Turn reports the side to move as "white" or "black".
func (p *Position) Turn() string {
	if p.game.Position().Turn() == nchess.White {
		return "white"
	}
	return "black"
}

// IsGameOver reports whether the position is terminal.
func (p *Position) IsGameOver() bool {
	return p.game.Outcome() != nchess.NoOutcome
}

// Result maps the library outcome onto the stored result token. Ongoing
// positions report "*".
func (p *Position) Result() string {
	switch p.game.Outcome() {
	case nchess.WhiteWon:
		return "1-0"
	case nchess.BlackWon:
		return "0-1"
	case nchess.Draw:
		return "1/2-1/2"
	default:
		return "*"
	}
}

// Method describes how the game ended ("Checkmate", "Stalemate", ...), empty
// while the game is in progress.
func (p *Position) Method() string {
	if p.game.Outcome() == nchess.NoOutcome {
		return ""
	}
	return p.game.Method().String()
}

// InCheck reports whether the side to move is currently in check. Derived
// from the SAN of the last applied move, which is how the record keeps check
// flags as well.
func (p *Position) InCheck() bool {
	return strings.ContainsAny(p.lastSAN, "+#")
}

// MovesUCI returns the applied moves in UCI notation, oldest first.
func (p *Position) MovesUCI() []string {
	return append([]string(nil), p.movesUCI...)
}

// MovesSAN returns the applied moves in algebraic notation, oldest first.
func (p *Position) MovesSAN() []string {
	return append([]string(nil), p.movesSAN...)
}

// LastMoveUCI returns the most recent move, empty on a fresh position.
func (p *Position) LastMoveUCI() string {
	return p.lastUCI
}

// LastMoveSAN returns the most recent move in algebraic notation.
func (p *Position) LastMoveSAN() string {
	return p.lastSAN
}

func validSquare(sq string) bool {
	if len(sq) != 2 {
		return false
	}
	return sq[0] >= 'a' && sq[0] <= 'h' && sq[1] >= '1' && sq[1] <= '8'
}
