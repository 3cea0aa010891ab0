package transport

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/arenachess/arena-server/internal/advisor"
	"github.com/arenachess/arena-server/internal/broadcast"
	"github.com/arenachess/arena-server/internal/msgcat"
	"github.com/arenachess/arena-server/internal/session"
	"github.com/arenachess/arena-server/pkg/arenadto"
)

const (
	outBufferSize = 64
	writeTimeout  = 10 * time.Second
)

// connection is one websocket client. The read loop is the only goroutine
// touching joined and identity; the write loop only drains out.
type connection struct {
	id  string
	srv *Server
	ws  *websocket.Conn

	out chan []byte

	// sessionID -> identities joined with. One connection can hold several
	// memberships in a session, a seat plus a spectator slot for instance;
	// every one of them is replayed as a leave when the connection drops.
	joined map[string]map[string]struct{}

	// assigned to anonymous spectators on their first join.
	spectatorID string
}

func newConnection(srv *Server, ws *websocket.Conn) *connection {
	return &connection{
		id:     uuid.NewString(),
		srv:    srv,
		ws:     ws,
		out:    make(chan []byte, outBufferSize),
		joined: make(map[string]map[string]struct{}),
	}
}

func (c *connection) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go c.writeLoop(ctx)
	c.readLoop(ctx)

	c.leaveAll()
	_ = c.ws.Close(websocket.StatusNormalClosure, "bye")
}

func (c *connection) readLoop(ctx context.Context) {
	for {
		var ev arenadto.ClientEvent
		if err := wsjson.Read(ctx, c.ws, &ev); err != nil {
			return
		}
		c.handle(ctx, ev)
	}
}

func (c *connection) writeLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-c.out:
			if !ok {
				return
			}
			wctx, cancel := context.WithTimeout(ctx, writeTimeout)
			err := c.ws.Write(wctx, websocket.MessageText, frame)
			cancel()
			if err != nil {
				return
			}
		}
	}
}

// leaveAll vacates every membership this connection held. Run after the
// read loop exits, covering both clean leaves and dropped sockets.
func (c *connection) leaveAll() {
	for sessionID, identities := range c.joined {
		c.hubChannelUnsubscribe(sessionID)
		for identity := range identities {
			if err := c.srv.coord.Leave(sessionID, identity); err != nil && !errors.Is(err, session.ErrSessionNotFound) {
				c.srv.log.Warn("leave on disconnect failed",
					zap.String("conn_id", c.id),
					zap.String("session_id", sessionID),
					zap.String("identity", identity),
					zap.Error(err))
			}
		}
		delete(c.joined, sessionID)
	}
}

func (c *connection) addMembership(sessionID, identity string) {
	ids := c.joined[sessionID]
	if ids == nil {
		ids = make(map[string]struct{})
		c.joined[sessionID] = ids
	}
	ids[identity] = struct{}{}
}

// identityFor resolves which held identity a request acts as. An explicit
// identity must be one this connection joined with. Without one, a named
// identity wins over the generated spectator id; holding two named
// identities leaves the request ambiguous and unresolved.
func (c *connection) identityFor(sessionID, requested string) string {
	ids := c.joined[sessionID]
	if requested != "" {
		if _, ok := ids[requested]; ok {
			return requested
		}
		return ""
	}
	named := ""
	for id := range ids {
		if id == c.spectatorID {
			continue
		}
		if named != "" {
			return ""
		}
		named = id
	}
	if named != "" {
		return named
	}
	if _, ok := ids[c.spectatorID]; ok {
		return c.spectatorID
	}
	return ""
}

func (c *connection) hubChannelSubscribe(sessionID string) {
	c.srv.hub.Subscribe(sessionID, c.out)
}

func (c *connection) hubChannelUnsubscribe(sessionID string) {
	c.srv.hub.Unsubscribe(sessionID, c.out)
}

func (c *connection) handle(ctx context.Context, ev arenadto.ClientEvent) {
	switch ev.Action {
	case arenadto.ActionCreate:
		c.handleCreate(ev)
	case arenadto.ActionJoin:
		c.handleJoin(ctx, ev)
	case arenadto.ActionProposeMove:
		c.handleProposeMove(ev)
	case arenadto.ActionGetLegalMoves:
		c.handleGetLegalMoves(ev)
	case arenadto.ActionSendChat:
		c.handleSendChat(ev)
	case arenadto.ActionLeave:
		c.handleLeave(ev)
	default:
		c.reject("BadRequest", nil)
	}
}

func (c *connection) handleCreate(ev arenadto.ClientEvent) {
	mode, err := session.ParseMode(ev.Mode)
	if err != nil {
		c.reject("BadRequest", nil)
		return
	}
	difficulty := c.srv.defaultDifficulty
	if strings.TrimSpace(ev.Difficulty) != "" {
		difficulty, err = advisor.ParseDifficulty(ev.Difficulty)
		if err != nil {
			c.reject("BadRequest", nil)
			return
		}
	}

	created := c.srv.coord.Create(mode, difficulty)
	c.send(arenadto.EventCreated, created)
}

func (c *connection) handleJoin(ctx context.Context, ev arenadto.ClientEvent) {
	role, err := session.ParseRole(ev.Role)
	if err != nil {
		c.reject("BadRequest", nil)
		return
	}

	identity := strings.TrimSpace(ev.Identity)
	if role == session.RoleSpectator && identity == "" {
		if c.spectatorID == "" {
			c.spectatorID = "spectator-" + uuid.NewString()
		}
		identity = c.spectatorID
	}
	if identity == "" {
		c.reject("BadRequest", nil)
		return
	}

	// Subscribe first so the join broadcast reaches its own author.
	already := len(c.joined[ev.SessionID]) > 0
	if !already {
		c.hubChannelSubscribe(ev.SessionID)
	}

	if _, err := c.srv.coord.Join(ctx, ev.SessionID, identity, role); err != nil {
		if !already {
			c.hubChannelUnsubscribe(ev.SessionID)
		}
		c.rejectErr(err, map[string]any{
			"SessionID": ev.SessionID,
			"Username":  identity,
		})
		return
	}
	c.addMembership(ev.SessionID, identity)
}

func (c *connection) handleProposeMove(ev arenadto.ClientEvent) {
	identity := c.identityFor(ev.SessionID, strings.TrimSpace(ev.Identity))
	if identity == "" {
		c.reject("IdentityNotSeated", nil)
		return
	}
	if _, err := c.srv.coord.ProposeMove(ev.SessionID, identity, ev.From, ev.To, ev.Promotion); err != nil {
		c.rejectErr(err, map[string]any{
			"SessionID": ev.SessionID,
			"Square":    ev.From,
		})
	}
}

func (c *connection) handleGetLegalMoves(ev arenadto.ClientEvent) {
	lm, err := c.srv.coord.GetLegalMoves(ev.SessionID, ev.Square)
	if err != nil {
		c.rejectErr(err, map[string]any{
			"SessionID": ev.SessionID,
			"Square":    ev.Square,
		})
		return
	}
	c.send(arenadto.EventLegalMoves, lm)
}

func (c *connection) handleSendChat(ev arenadto.ClientEvent) {
	identity := c.identityFor(ev.SessionID, strings.TrimSpace(ev.Identity))
	if identity == "" {
		c.reject("IdentityNotSeated", nil)
		return
	}
	text := strings.TrimSpace(ev.Text)
	if text == "" {
		c.reject("BadRequest", nil)
		return
	}
	if len(text) > c.srv.chatMaxLen {
		c.reject("ChatTooLong", map[string]any{"Limit": c.srv.chatMaxLen})
		return
	}
	if err := c.srv.coord.SendChat(ev.SessionID, identity, text); err != nil {
		c.rejectErr(err, map[string]any{"SessionID": ev.SessionID})
	}
}

func (c *connection) handleLeave(ev arenadto.ClientEvent) {
	identity := c.identityFor(ev.SessionID, strings.TrimSpace(ev.Identity))
	if identity == "" {
		return
	}
	delete(c.joined[ev.SessionID], identity)
	if len(c.joined[ev.SessionID]) == 0 {
		delete(c.joined, ev.SessionID)
		c.hubChannelUnsubscribe(ev.SessionID)
	}
	if err := c.srv.coord.Leave(ev.SessionID, identity); err != nil && !errors.Is(err, session.ErrSessionNotFound) {
		c.rejectErr(err, map[string]any{"SessionID": ev.SessionID})
	}
}

func (c *connection) rejectErr(err error, data map[string]any) {
	c.reject(session.RejectKind(err), data)
}

func (c *connection) reject(kind string, data map[string]any) {
	detail := c.srv.cat.RenderOr(msgcat.RejectKey(kind), data, "request rejected")
	c.send(arenadto.EventRejected, arenadto.Rejected{Kind: kind, Detail: detail})
}

// send queues a caller-only frame. Frames are dropped rather than blocking
// when the peer stops draining.
func (c *connection) send(event string, payload any) {
	frame, err := broadcast.Encode(event, payload)
	if err != nil {
		c.srv.log.Error("encode reply failed",
			zap.String("conn_id", c.id),
			zap.String("event", event),
			zap.Error(err))
		return
	}
	select {
	case c.out <- frame:
	default:
		c.srv.log.Warn("reply dropped, out buffer full", zap.String("conn_id", c.id))
	}
}
