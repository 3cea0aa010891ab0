package arenadto

// Event names carried in the outbound envelope. Clients switch on these.
const (
	EventCreated           = "created"
	EventJoined            = "joined"
	EventStateChanged      = "stateChanged"
	EventLegalMoves        = "legalMoves"
	EventChat              = "chat"
	EventMembershipChanged = "membershipChanged"
	EventAIMoveFailed      = "aiMoveFailed"
	EventRejected          = "rejected"
)

// Inbound event names accepted from clients.
const (
	ActionCreate        = "create"
	ActionJoin          = "join"
	ActionProposeMove   = "proposeMove"
	ActionGetLegalMoves = "getLegalMoves"
	ActionSendChat      = "sendChat"
	ActionLeave         = "leave"
)

// Envelope wraps every outbound message.
type Envelope struct {
	Event   string `json:"event"`
	Payload any    `json:"payload,omitempty"`
}
