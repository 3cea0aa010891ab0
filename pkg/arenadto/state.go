package arenadto

// LastMove describes the most recently applied move.
type LastMove struct {
	From string `json:"from"`
	To   string `json:"to"`
	SAN  string `json:"san"`
	UCI  string `json:"uci"`
}

// SessionState is the authoritative state snapshot broadcast after every
// accepted mutation. Clients replace their local state wholesale, so
// re-delivery is harmless.
type SessionState struct {
	SessionID  string    `json:"sessionId"`
	FEN        string    `json:"fen"`
	Turn       string    `json:"turn"`
	InCheck    bool      `json:"inCheck"`
	GameOver   bool      `json:"gameOver"`
	Status     string    `json:"status"`
	Outcome    string    `json:"outcome,omitempty"`
	LastMove   *LastMove `json:"lastMove,omitempty"`
	MoveCount  int       `json:"moveCount"`
	Mode       string    `json:"mode"`
	Difficulty string    `json:"difficulty,omitempty"`
}

// Membership lists who currently occupies the session.
type Membership struct {
	White      string `json:"white,omitempty"`
	Black      string `json:"black,omitempty"`
	Spectators int    `json:"spectators"`
}

type Created struct {
	SessionID string       `json:"sessionId"`
	State     SessionState `json:"state"`
}

type Joined struct {
	SessionID  string       `json:"sessionId"`
	State      SessionState `json:"state"`
	Membership Membership   `json:"membership"`
}

type LegalMoves struct {
	Square       string   `json:"square"`
	Destinations []string `json:"destinations"`
}

type Chat struct {
	Author    string `json:"author"`
	Text      string `json:"text"`
	Timestamp int64  `json:"timestamp"`
}

type MembershipChanged struct {
	SessionID  string     `json:"sessionId"`
	Membership Membership `json:"membership"`
}

type AIMoveFailed struct {
	SessionID string `json:"sessionId"`
}

type Rejected struct {
	Kind   string `json:"kind"`
	Detail string `json:"detail,omitempty"`
}
