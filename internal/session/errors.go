package session

import "errors"

var (
	ErrSessionNotFound   = errors.New("session not found")
	ErrRoleTaken         = errors.New("role already taken")
	ErrIdentityNotSeated = errors.New("identity does not hold a seat")
	ErrNotYourTurn       = errors.New("not your turn")
	ErrIllegalMove       = errors.New("illegal move")
	ErrInvalidSquare     = errors.New("invalid square")
	ErrPlayerNotFound    = errors.New("player not found")
)

// RejectKind maps a coordinator error to the machine-readable kind carried
// on rejected events. Unknown errors collapse to Internal so callers never
// see driver or engine internals.
func RejectKind(err error) string {
	switch {
	case errors.Is(err, ErrSessionNotFound):
		return "SessionNotFound"
	case errors.Is(err, ErrRoleTaken):
		return "RoleTaken"
	case errors.Is(err, ErrIdentityNotSeated):
		return "IdentityNotSeated"
	case errors.Is(err, ErrNotYourTurn):
		return "NotYourTurn"
	case errors.Is(err, ErrIllegalMove):
		return "IllegalMove"
	case errors.Is(err, ErrInvalidSquare):
		return "InvalidSquare"
	case errors.Is(err, ErrPlayerNotFound):
		return "PlayerNotFound"
	default:
		return "Internal"
	}
}
