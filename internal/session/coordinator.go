package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/arenachess/arena-server/internal/advisor"
	"github.com/arenachess/arena-server/internal/board"
	"github.com/arenachess/arena-server/internal/domain"
	"github.com/arenachess/arena-server/internal/persist"
	"github.com/arenachess/arena-server/pkg/arenadto"
)

const persistTimeout = 5 * time.Second

// Coordinator executes every session operation. It is the only writer of
// session state; the advisor and the persistence layer are reached through
// goroutines so the per-session lock is never held across I/O.
type Coordinator struct {
	store   *Store
	pub     Publisher
	rec     persist.Recorder
	adv     advisor.Advisor
	log     *zap.Logger
	aiGrace time.Duration
}

// NewCoordinator wires the coordinator. adv may be nil; AI sessions then
// report aiMoveFailed instead of moving.
func NewCoordinator(store *Store, pub Publisher, rec persist.Recorder, adv advisor.Advisor, aiGrace time.Duration, logger *zap.Logger) (*Coordinator, error) {
	if store == nil || pub == nil || rec == nil {
		return nil, errors.New("session: store, publisher and recorder are required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if aiGrace <= 0 {
		aiGrace = time.Second
	}
	return &Coordinator{
		store:   store,
		pub:     pub,
		rec:     rec,
		adv:     adv,
		log:     logger,
		aiGrace: aiGrace,
	}, nil
}

// Create registers a fresh session at the starting position. In AI mode the
// black seat is occupied by the automated opponent from the start.
func (c *Coordinator) Create(mode Mode, difficulty advisor.Difficulty) *arenadto.Created {
	s := newSession(uuid.NewString(), mode, difficulty)
	c.store.Put(s)

	s.mu.Lock()
	created := &arenadto.Created{SessionID: s.ID, State: s.stateLocked()}
	s.mu.Unlock()

	c.log.Info("session created",
		zap.String("session_id", s.ID),
		zap.String("mode", string(mode)),
		zap.String("difficulty", string(difficulty)))
	return created
}

// Join seats the identity or adds it as a spectator. Seat joins require a
// registered player; spectator identities are not checked.
func (c *Coordinator) Join(ctx context.Context, sessionID, identity string, role Role) (*arenadto.Joined, error) {
	s, ok := c.store.Get(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}

	if role == RoleWhite || role == RoleBlack {
		if _, err := c.rec.LookupPlayer(ctx, identity); err != nil {
			if errors.Is(err, persist.ErrPlayerNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrPlayerNotFound, identity)
			}
			return nil, fmt.Errorf("lookup player: %w", err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch role {
	case RoleSpectator:
		s.spectators[identity] = struct{}{}
	case RoleWhite, RoleBlack:
		if !s.seats[role].Empty() {
			return nil, fmt.Errorf("%w: %s", ErrRoleTaken, role)
		}
		if held, seated := s.seatOf(identity); seated {
			return nil, fmt.Errorf("%w: %s already plays %s", ErrRoleTaken, identity, held)
		}
		s.seats[role] = Occupant{Username: identity}
		if s.moveCount == 0 && role == Role(s.pos.Turn()) {
			// The first mover's clock starts when their seat is filled, not
			// at session creation.
			s.lastMoveStartedAt = time.Now()
		}
	default:
		return nil, fmt.Errorf("unknown role %q", role)
	}

	joined := &arenadto.Joined{
		SessionID:  s.ID,
		State:      s.stateLocked(),
		Membership: s.membershipLocked(),
	}
	c.pub.Publish(s.ID, arenadto.EventJoined, joined)

	if role != RoleSpectator {
		rec := domain.GameRecord{
			SessionID:    s.ID,
			IsAIGame:     s.Mode == ModeHumanVsAI,
			AIDifficulty: string(s.Difficulty),
			StartedAt:    s.CreatedAt,
			Result:       domain.ResultOngoing,
		}
		if role == RoleWhite {
			rec.WhiteUsername = identity
		} else {
			rec.BlackUsername = identity
		}
		if s.seats[RoleBlack].IsAI {
			rec.BlackUsername = AIOccupantName
		}
		go c.persistGameStart(rec)
	}

	c.log.Info("session joined",
		zap.String("session_id", s.ID),
		zap.String("identity", identity),
		zap.String("role", string(role)))
	return joined, nil
}

// ProposeMove validates and applies a move by a seated player. On success
// the updated state is broadcast and, when the automated opponent is on
// turn, its reply is requested in the background.
func (c *Coordinator) ProposeMove(sessionID, identity, from, to, promotion string) (*arenadto.SessionState, error) {
	s, ok := c.store.Get(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != StatusActive {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	role, seated := s.seatOf(identity)
	if !seated {
		return nil, ErrIdentityNotSeated
	}
	if s.pos.Turn() != string(role) {
		// A failed advisor call leaves the session active with the AI on
		// turn. The next human attempt re-kicks the engine.
		c.maybeScheduleAILocked(s)
		return nil, ErrNotYourTurn
	}

	state, err := c.applyMoveLocked(s, identity, from, to, promotion)
	if err != nil {
		return nil, err
	}
	return &state, nil
}

// applyMoveLocked is the single path every move takes, human or AI. Callers
// hold s.mu. It mutates the position, records the move, broadcasts the new
// state and handles completion and AI scheduling.
func (c *Coordinator) applyMoveLocked(s *Session, mover, from, to, promotion string) (arenadto.SessionState, error) {
	info, err := s.pos.Apply(from, to, promotion)
	if err != nil {
		switch {
		case errors.Is(err, board.ErrInvalidSquare):
			return arenadto.SessionState{}, fmt.Errorf("%w: %s-%s", ErrInvalidSquare, from, to)
		case errors.Is(err, board.ErrIllegalMove):
			return arenadto.SessionState{}, fmt.Errorf("%w: %s%s", ErrIllegalMove, from, to)
		default:
			return arenadto.SessionState{}, err
		}
	}

	now := time.Now()
	s.moveCount++
	timeSpent := now.Sub(s.lastMoveStartedAt)
	s.lastMoveStartedAt = now

	move := domain.MoveRecord{
		SessionID:  s.ID,
		Mover:      mover,
		MoveNumber: s.moveCount,
		SAN:        info.SAN,
		UCI:        info.UCI,
		FENAfter:   s.pos.FEN(),
		IsCheck:    info.IsCheck,
		IsCapture:  info.IsCapture,
		TimeSpent:  timeSpent,
	}
	go c.persistMove(move)

	if s.pos.IsGameOver() {
		s.status = StatusCompleted
		s.outcome = s.pos.Result()
	}

	state := s.stateLocked()
	c.pub.Publish(s.ID, arenadto.EventStateChanged, state)

	if s.status == StatusCompleted {
		c.finishLocked(s)
	} else {
		c.maybeScheduleAILocked(s)
	}
	return state, nil
}

// maybeScheduleAILocked launches one advisor request when the automated
// opponent is on turn and none is in flight. Callers hold s.mu.
func (c *Coordinator) maybeScheduleAILocked(s *Session) {
	if s.status != StatusActive || s.pendingAI {
		return
	}
	if !s.seats[RoleBlack].IsAI || s.pos.Turn() != string(RoleBlack) {
		return
	}
	s.pendingAI = true
	moves := s.pos.MovesUCI()
	go c.runAdvisor(s, moves)
}

// finishLocked runs the completion side effects exactly once: close the
// durable record, update aggregates for human-vs-human games, and drop the
// session from the registry so late operations see SessionNotFound.
func (c *Coordinator) finishLocked(s *Session) {
	result := s.outcome
	finalFEN := s.pos.FEN()
	totalMoves := s.moveCount

	deltas := make(map[string]domain.StatsDelta)
	if s.Mode == ModeHumanVsHuman {
		white := s.seats[RoleWhite]
		black := s.seats[RoleBlack]
		switch result {
		case domain.ResultWhiteWins:
			addDelta(deltas, white, domain.StatsDelta{Wins: 1})
			addDelta(deltas, black, domain.StatsDelta{Losses: 1})
		case domain.ResultBlackWins:
			addDelta(deltas, white, domain.StatsDelta{Losses: 1})
			addDelta(deltas, black, domain.StatsDelta{Wins: 1})
		case domain.ResultDraw:
			addDelta(deltas, white, domain.StatsDelta{Draws: 1})
			addDelta(deltas, black, domain.StatsDelta{Draws: 1})
		}
	}
	go c.persistGameEnd(s.ID, finalFEN, result, totalMoves, deltas)

	c.store.Remove(s.ID)
	c.log.Info("session completed",
		zap.String("session_id", s.ID),
		zap.String("result", result),
		zap.Int("total_moves", totalMoves))
}

func addDelta(deltas map[string]domain.StatsDelta, occ Occupant, d domain.StatsDelta) {
	if occ.IsAI || occ.Username == "" {
		return
	}
	deltas[occ.Username] = d
}

// runAdvisor asks the engine for the reply and feeds it back through the
// regular move path. The session lock is not held during the engine call.
func (c *Coordinator) runAdvisor(s *Session, movesUCI []string) {
	preset := advisor.PresetFor(s.Difficulty)
	ctx, cancel := context.WithTimeout(context.Background(), preset.MoveTime+c.aiGrace)
	defer cancel()

	var (
		res advisor.Result
		err error
	)
	if c.adv == nil {
		err = advisor.ErrUnavailable
	} else {
		res, err = c.adv.RequestMove(ctx, advisor.Request{
			FEN:        "startpos",
			MovesUCI:   movesUCI,
			Difficulty: s.Difficulty,
		})
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, ok := c.store.Get(s.ID); !ok || cur != s {
		// Session ended or was abandoned while the engine was thinking.
		s.pendingAI = false
		return
	}

	if err == nil {
		uci := res.MoveUCI
		if len(uci) >= 4 {
			promotion := ""
			if len(uci) > 4 {
				promotion = uci[4:]
			}
			_, err = c.applyMoveLocked(s, AIOccupantName, uci[:2], uci[2:4], promotion)
		} else {
			err = fmt.Errorf("advisor returned malformed move %q", uci)
		}
	}
	s.pendingAI = false

	if err != nil {
		c.log.Warn("advisor move failed",
			zap.String("session_id", s.ID),
			zap.Error(err))
		c.pub.Publish(s.ID, arenadto.EventAIMoveFailed, arenadto.AIMoveFailed{SessionID: s.ID})
	}
}

// GetLegalMoves lists destination squares for the piece on square. Available
// to every participant, spectators included.
func (c *Coordinator) GetLegalMoves(sessionID, square string) (*arenadto.LegalMoves, error) {
	s, ok := c.store.Get(sessionID)
	if !ok {
		return nil, ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dests, err := s.pos.DestinationsFrom(square)
	if err != nil {
		if errors.Is(err, board.ErrInvalidSquare) {
			return nil, fmt.Errorf("%w: %s", ErrInvalidSquare, square)
		}
		return nil, err
	}
	return &arenadto.LegalMoves{Square: square, Destinations: dests}, nil
}

// SendChat appends a message to the session log and broadcasts it.
func (c *Coordinator) SendChat(sessionID, identity, text string) error {
	s, ok := c.store.Get(sessionID)
	if !ok {
		return ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	msg := ChatMessage{Author: identity, Text: text, At: time.Now()}
	s.chatLog = append(s.chatLog, msg)
	c.pub.Publish(s.ID, arenadto.EventChat, arenadto.Chat{
		Author:    msg.Author,
		Text:      msg.Text,
		Timestamp: msg.At.UnixMilli(),
	})
	return nil
}

// Leave vacates the identity's seat or spectator slot. When the last human
// is gone the session is dropped; otherwise the remaining participants are
// told about the change.
func (c *Coordinator) Leave(sessionID, identity string) error {
	s, ok := c.store.Get(sessionID)
	if !ok {
		return ErrSessionNotFound
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	changed := false
	if role, seated := s.seatOf(identity); seated {
		s.seats[role] = Occupant{}
		changed = true
	}
	if _, ok := s.spectators[identity]; ok {
		delete(s.spectators, identity)
		changed = true
	}
	if !changed {
		return nil
	}

	if s.abandoned() {
		c.store.Remove(s.ID)
		c.log.Info("session abandoned", zap.String("session_id", s.ID))
		return nil
	}

	c.pub.Publish(s.ID, arenadto.EventMembershipChanged, arenadto.MembershipChanged{
		SessionID:  s.ID,
		Membership: s.membershipLocked(),
	})
	return nil
}

func (c *Coordinator) persistGameStart(rec domain.GameRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := c.rec.RecordGameStart(ctx, &rec); err != nil {
		c.log.Error("record game start failed",
			zap.String("session_id", rec.SessionID),
			zap.Error(err))
	}
}

func (c *Coordinator) persistMove(move domain.MoveRecord) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := c.rec.RecordMove(ctx, &move); err != nil {
		c.log.Error("record move failed",
			zap.String("session_id", move.SessionID),
			zap.Int("move_number", move.MoveNumber),
			zap.Error(err))
	}
}

func (c *Coordinator) persistGameEnd(sessionID, finalFEN, result string, totalMoves int, deltas map[string]domain.StatsDelta) {
	ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
	defer cancel()
	if err := c.rec.RecordGameEnd(ctx, sessionID, finalFEN, result, totalMoves); err != nil {
		c.log.Error("record game end failed",
			zap.String("session_id", sessionID),
			zap.Error(err))
	}
	for username, delta := range deltas {
		if err := c.rec.UpsertPlayerStats(ctx, username, delta); err != nil {
			c.log.Error("update player stats failed",
				zap.String("username", username),
				zap.Error(err))
		}
	}
}
