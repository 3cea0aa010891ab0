// Package broadcast fans session events out to subscribed connections.
package broadcast

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"

	"github.com/arenachess/arena-server/pkg/arenadto"
)

// Hub maps sessions to subscriber channels. Sends never block: a subscriber
// whose channel is full loses the frame, and the transport's write loop is
// expected to drain fast enough that this only happens to dead connections.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[chan []byte]struct{}
	log  *zap.Logger
}

func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		subs: make(map[string]map[chan []byte]struct{}),
		log:  logger,
	}
}

// Subscribe registers ch for every event published to the session.
func (h *Hub) Subscribe(sessionID string, ch chan []byte) {
	h.mu.Lock()
	set, ok := h.subs[sessionID]
	if !ok {
		set = make(map[chan []byte]struct{})
		h.subs[sessionID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()
}

// Unsubscribe drops ch from the session. The last subscriber removes the
// session entry entirely.
func (h *Hub) Unsubscribe(sessionID string, ch chan []byte) {
	h.mu.Lock()
	if set, ok := h.subs[sessionID]; ok {
		delete(set, ch)
		if len(set) == 0 {
			delete(h.subs, sessionID)
		}
	}
	h.mu.Unlock()
}

// Subscribers reports how many channels listen to the session.
func (h *Hub) Subscribers(sessionID string) int {
	h.mu.RLock()
	n := len(h.subs[sessionID])
	h.mu.RUnlock()
	return n
}

// Publish encodes the event envelope once and offers it to every
// subscriber. Implements the coordinator's Publisher contract.
func (h *Hub) Publish(sessionID, event string, payload any) {
	frame, err := Encode(event, payload)
	if err != nil {
		h.log.Error("encode event failed",
			zap.String("session_id", sessionID),
			zap.String("event", event),
			zap.Error(err))
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for ch := range h.subs[sessionID] {
		select {
		case ch <- frame:
		default:
			h.log.Warn("subscriber channel full, dropping frame",
				zap.String("session_id", sessionID),
				zap.String("event", event))
		}
	}
}

// Encode builds the wire frame for one event. Exposed so the transport can
// send caller-only replies through the same format.
func Encode(event string, payload any) ([]byte, error) {
	return json.Marshal(arenadto.Envelope{Event: event, Payload: payload})
}
