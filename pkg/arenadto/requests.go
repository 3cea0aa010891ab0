package arenadto

// ClientEvent is the inbound envelope. Action selects which fields apply;
// unused fields stay empty. Field validation happens at the transport
// boundary before anything reaches the coordinator.
type ClientEvent struct {
	Action    string `json:"action"`
	SessionID string `json:"sessionId,omitempty"`

	// create
	Mode       string `json:"mode,omitempty"`
	Difficulty string `json:"difficulty,omitempty"`

	// join
	Identity string `json:"identity,omitempty"`
	Role     string `json:"role,omitempty"`

	// proposeMove
	From      string `json:"from,omitempty"`
	To        string `json:"to,omitempty"`
	Promotion string `json:"promotion,omitempty"`

	// getLegalMoves
	Square string `json:"square,omitempty"`

	// sendChat
	Text string `json:"text,omitempty"`
}
