// Package transport exposes the session coordinator over websockets. Each
// connection runs one read loop and one write loop; outbound frames are
// queued on a buffered channel so broadcasts never block the hub.
package transport

import (
	"errors"
	"net/http"

	"go.uber.org/zap"
	"nhooyr.io/websocket"

	"github.com/arenachess/arena-server/internal/advisor"
	"github.com/arenachess/arena-server/internal/broadcast"
	"github.com/arenachess/arena-server/internal/msgcat"
	"github.com/arenachess/arena-server/internal/session"
)

type Server struct {
	coord             *session.Coordinator
	hub               *broadcast.Hub
	cat               *msgcat.Catalog
	chatMaxLen        int
	defaultDifficulty advisor.Difficulty
	log               *zap.Logger
}

func NewServer(coord *session.Coordinator, hub *broadcast.Hub, cat *msgcat.Catalog, chatMaxLen int, defaultDifficulty advisor.Difficulty, logger *zap.Logger) (*Server, error) {
	if coord == nil || hub == nil || cat == nil {
		return nil, errors.New("transport: coordinator, hub and catalog are required")
	}
	if chatMaxLen <= 0 {
		chatMaxLen = 500
	}
	if defaultDifficulty == "" {
		defaultDifficulty = advisor.DifficultyMedium
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		coord:             coord,
		hub:               hub,
		cat:               cat,
		chatMaxLen:        chatMaxLen,
		defaultDifficulty: defaultDifficulty,
		log:               logger,
	}, nil
}

// ServeHTTP upgrades the request and runs the connection until the peer
// goes away. Implements http.Handler so main can mount it directly.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		CompressionMode: websocket.CompressionNoContextTakeover,
		OriginPatterns:  []string{"*"},
	})
	if err != nil {
		s.log.Warn("websocket accept failed", zap.Error(err))
		return
	}

	c := newConnection(s, ws)
	s.log.Info("connection opened", zap.String("conn_id", c.id))
	c.run(r.Context())
	s.log.Info("connection closed", zap.String("conn_id", c.id))
}
