package session

// Publisher delivers an event to every connection subscribed to a session.
// Implementations must not block; the coordinator calls Publish while
// holding the session lock so that delivery order matches acceptance order.
type Publisher interface {
	Publish(sessionID, event string, payload any)
}
