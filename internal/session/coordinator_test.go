package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/arenachess/arena-server/internal/advisor"
	"github.com/arenachess/arena-server/internal/domain"
	"github.com/arenachess/arena-server/internal/persist"
	"github.com/arenachess/arena-server/pkg/arenadto"
)

type capturedEvent struct {
	SessionID string
	Event     string
	Payload   any
}

type capturePublisher struct {
	mu     sync.Mutex
	events []capturedEvent
}

func (p *capturePublisher) Publish(sessionID, event string, payload any) {
	p.mu.Lock()
	p.events = append(p.events, capturedEvent{SessionID: sessionID, Event: event, Payload: payload})
	p.mu.Unlock()
}

func (p *capturePublisher) byEvent(event string) []capturedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []capturedEvent
	for _, ev := range p.events {
		if ev.Event == event {
			out = append(out, ev)
		}
	}
	return out
}

type stubAdvisor struct {
	mu    sync.Mutex
	moves []string
	err   error
	calls int
}

func (a *stubAdvisor) RequestMove(ctx context.Context, req advisor.Request) (advisor.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls++
	if a.err != nil {
		return advisor.Result{}, a.err
	}
	if len(a.moves) == 0 {
		return advisor.Result{}, advisor.ErrUnavailable
	}
	mv := a.moves[0]
	a.moves = a.moves[1:]
	return advisor.Result{MoveUCI: mv}, nil
}

func (a *stubAdvisor) setErr(err error) {
	a.mu.Lock()
	a.err = err
	a.mu.Unlock()
}

func (a *stubAdvisor) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

func newTestCoordinator(t *testing.T, adv advisor.Advisor) (*Coordinator, *Store, *persist.MemoryRecorder, *capturePublisher) {
	t.Helper()
	store := NewStore()
	pub := &capturePublisher{}
	rec := persist.NewMemoryRecorder(false)
	rec.Register("alice")
	rec.Register("bob")
	c, err := NewCoordinator(store, pub, rec, adv, 200*time.Millisecond, zap.NewNop())
	if err != nil {
		t.Fatalf("NewCoordinator: %v", err)
	}
	return c, store, rec, pub
}

// waitFor polls until cond holds. Background persistence and advisor calls
// land asynchronously.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("condition not met within deadline")
}

func seatBoth(t *testing.T, c *Coordinator, sessionID string) {
	t.Helper()
	ctx := context.Background()
	if _, err := c.Join(ctx, sessionID, "alice", RoleWhite); err != nil {
		t.Fatalf("join white: %v", err)
	}
	if _, err := c.Join(ctx, sessionID, "bob", RoleBlack); err != nil {
		t.Fatalf("join black: %v", err)
	}
}

func TestCreateStartsAtInitialPosition(t *testing.T) {
	c, store, _, _ := newTestCoordinator(t, nil)

	created := c.Create(ModeHumanVsHuman, advisor.DifficultyMedium)
	if created.SessionID == "" {
		t.Fatal("expected a session id")
	}
	if created.State.Turn != "white" {
		t.Fatalf("turn = %q, want white", created.State.Turn)
	}
	if created.State.MoveCount != 0 || created.State.GameOver {
		t.Fatalf("unexpected initial state: %+v", created.State)
	}
	if _, ok := store.Get(created.SessionID); !ok {
		t.Fatal("session not registered in store")
	}
}

func TestJoinSeatsAndSpectators(t *testing.T) {
	c, _, _, pub := newTestCoordinator(t, nil)
	ctx := context.Background()
	created := c.Create(ModeHumanVsHuman, advisor.DifficultyMedium)

	joined, err := c.Join(ctx, created.SessionID, "alice", RoleWhite)
	if err != nil {
		t.Fatalf("join white: %v", err)
	}
	if joined.Membership.White != "alice" {
		t.Fatalf("white = %q, want alice", joined.Membership.White)
	}

	if _, err := c.Join(ctx, created.SessionID, "bob", RoleWhite); !errors.Is(err, ErrRoleTaken) {
		t.Fatalf("second white join err = %v, want ErrRoleTaken", err)
	}

	joined, err = c.Join(ctx, created.SessionID, "watcher-1", RoleSpectator)
	if err != nil {
		t.Fatalf("spectator join: %v", err)
	}
	if joined.Membership.Spectators != 1 {
		t.Fatalf("spectators = %d, want 1", joined.Membership.Spectators)
	}

	if got := len(pub.byEvent(arenadto.EventJoined)); got != 2 {
		t.Fatalf("joined broadcasts = %d, want 2", got)
	}
}

func TestJoinRejectsUnknownPlayerAndSession(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t, nil)
	ctx := context.Background()
	created := c.Create(ModeHumanVsHuman, advisor.DifficultyMedium)

	if _, err := c.Join(ctx, created.SessionID, "nobody", RoleWhite); !errors.Is(err, ErrPlayerNotFound) {
		t.Fatalf("unknown player err = %v, want ErrPlayerNotFound", err)
	}
	// Spectators skip the registration check.
	if _, err := c.Join(ctx, created.SessionID, "nobody", RoleSpectator); err != nil {
		t.Fatalf("spectator join: %v", err)
	}
	if _, err := c.Join(ctx, "missing", "alice", RoleWhite); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("missing session err = %v, want ErrSessionNotFound", err)
	}
}

func TestJoinRejectsIdentityAlreadySeated(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t, nil)
	ctx := context.Background()
	created := c.Create(ModeHumanVsHuman, advisor.DifficultyMedium)

	if _, err := c.Join(ctx, created.SessionID, "alice", RoleWhite); err != nil {
		t.Fatalf("join white: %v", err)
	}
	if _, err := c.Join(ctx, created.SessionID, "alice", RoleBlack); !errors.Is(err, ErrRoleTaken) {
		t.Fatalf("second seat for same identity = %v, want ErrRoleTaken", err)
	}
	// Spectating alongside a seat stays allowed.
	if _, err := c.Join(ctx, created.SessionID, "alice", RoleSpectator); err != nil {
		t.Fatalf("spectate while seated: %v", err)
	}
}

func TestFirstMoveTimeExcludesLobbyWait(t *testing.T) {
	c, _, rec, _ := newTestCoordinator(t, nil)
	created := c.Create(ModeHumanVsHuman, advisor.DifficultyMedium)

	lobbyWait := 80 * time.Millisecond
	time.Sleep(lobbyWait)
	seatBoth(t, c, created.SessionID)

	if _, err := c.ProposeMove(created.SessionID, "alice", "e2", "e4", ""); err != nil {
		t.Fatalf("propose: %v", err)
	}
	waitFor(t, func() bool { return len(rec.Moves(created.SessionID)) == 1 })

	if spent := rec.Moves(created.SessionID)[0].TimeSpent; spent >= lobbyWait {
		t.Fatalf("first move time %v includes the wait before white sat down", spent)
	}
}

func TestProposeMoveValidation(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t, nil)
	created := c.Create(ModeHumanVsHuman, advisor.DifficultyMedium)
	seatBoth(t, c, created.SessionID)

	if _, err := c.ProposeMove(created.SessionID, "bob", "e7", "e5", ""); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("black first err = %v, want ErrNotYourTurn", err)
	}
	if _, err := c.ProposeMove(created.SessionID, "watcher", "e2", "e4", ""); !errors.Is(err, ErrIdentityNotSeated) {
		t.Fatalf("unseated err = %v, want ErrIdentityNotSeated", err)
	}
	if _, err := c.ProposeMove(created.SessionID, "alice", "e2", "e5", ""); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("illegal err = %v, want ErrIllegalMove", err)
	}
	if _, err := c.ProposeMove(created.SessionID, "alice", "z9", "e4", ""); !errors.Is(err, ErrInvalidSquare) {
		t.Fatalf("invalid square err = %v, want ErrInvalidSquare", err)
	}

	state, err := c.ProposeMove(created.SessionID, "alice", "e2", "e4", "")
	if err != nil {
		t.Fatalf("legal move: %v", err)
	}
	if state.Turn != "black" || state.MoveCount != 1 {
		t.Fatalf("state after e2e4: turn=%q moves=%d", state.Turn, state.MoveCount)
	}
	if state.LastMove == nil || state.LastMove.UCI != "e2e4" {
		t.Fatalf("last move = %+v, want e2e4", state.LastMove)
	}
}

func TestDuplicateProposeSecondRejected(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t, nil)
	created := c.Create(ModeHumanVsHuman, advisor.DifficultyMedium)
	seatBoth(t, c, created.SessionID)

	if _, err := c.ProposeMove(created.SessionID, "alice", "e2", "e4", ""); err != nil {
		t.Fatalf("first propose: %v", err)
	}
	if _, err := c.ProposeMove(created.SessionID, "alice", "e2", "e4", ""); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("duplicate propose err = %v, want ErrNotYourTurn", err)
	}
}

func TestMovesAreRecorded(t *testing.T) {
	c, _, rec, _ := newTestCoordinator(t, nil)
	created := c.Create(ModeHumanVsHuman, advisor.DifficultyMedium)
	seatBoth(t, c, created.SessionID)

	if _, err := c.ProposeMove(created.SessionID, "alice", "e2", "e4", ""); err != nil {
		t.Fatalf("e2e4: %v", err)
	}
	if _, err := c.ProposeMove(created.SessionID, "bob", "d7", "d5", ""); err != nil {
		t.Fatalf("d7d5: %v", err)
	}
	if _, err := c.ProposeMove(created.SessionID, "alice", "e4", "d5", ""); err != nil {
		t.Fatalf("exd5: %v", err)
	}

	waitFor(t, func() bool { return len(rec.Moves(created.SessionID)) == 3 })
	moves := rec.Moves(created.SessionID)
	if moves[0].Mover != "alice" || moves[1].Mover != "bob" {
		t.Fatalf("movers = %q, %q", moves[0].Mover, moves[1].Mover)
	}
	if !moves[2].IsCapture {
		t.Fatalf("exd5 not flagged as capture: %+v", moves[2])
	}
	if moves[2].MoveNumber != 3 || moves[2].FENAfter == "" {
		t.Fatalf("bad move record: %+v", moves[2])
	}
}

func TestFoolsMateCompletesOnce(t *testing.T) {
	c, store, rec, pub := newTestCoordinator(t, nil)
	created := c.Create(ModeHumanVsHuman, advisor.DifficultyMedium)
	seatBoth(t, c, created.SessionID)

	moves := []struct {
		identity string
		from, to string
	}{
		{"alice", "f2", "f3"},
		{"bob", "e7", "e5"},
		{"alice", "g2", "g4"},
		{"bob", "d8", "h4"},
	}
	var last *arenadto.SessionState
	for _, mv := range moves {
		state, err := c.ProposeMove(created.SessionID, mv.identity, mv.from, mv.to, "")
		if err != nil {
			t.Fatalf("%s%s: %v", mv.from, mv.to, err)
		}
		last = state
	}

	if !last.GameOver || last.Status != string(StatusCompleted) {
		t.Fatalf("final state not completed: %+v", last)
	}
	if last.Outcome != domain.ResultBlackWins {
		t.Fatalf("outcome = %q, want %q", last.Outcome, domain.ResultBlackWins)
	}
	if _, ok := store.Get(created.SessionID); ok {
		t.Fatal("completed session still in store")
	}
	if _, err := c.ProposeMove(created.SessionID, "alice", "a2", "a3", ""); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("post-completion move err = %v, want ErrSessionNotFound", err)
	}

	waitFor(t, func() bool {
		g, err := rec.GetGame(context.Background(), created.SessionID)
		return err == nil && g.Result == domain.ResultBlackWins
	})
	g, _ := rec.GetGame(context.Background(), created.SessionID)
	if g.TotalMoves != 4 || g.EndedAt.IsZero() {
		t.Fatalf("game record = %+v", g)
	}

	waitFor(t, func() bool {
		p, err := rec.LookupPlayer(context.Background(), "bob")
		return err == nil && p.Wins == 1
	})
	alice, _ := rec.LookupPlayer(context.Background(), "alice")
	if alice.Losses != 1 || alice.TotalGames != 1 {
		t.Fatalf("loser stats = %+v", alice)
	}

	if got := len(pub.byEvent(arenadto.EventStateChanged)); got != 4 {
		t.Fatalf("stateChanged broadcasts = %d, want 4", got)
	}
}

func TestAIGameRepliesThroughSharedPath(t *testing.T) {
	adv := &stubAdvisor{moves: []string{"e7e5"}}
	c, _, rec, pub := newTestCoordinator(t, adv)
	ctx := context.Background()

	created := c.Create(ModeHumanVsAI, advisor.DifficultyEasy)
	joined, err := c.Join(ctx, created.SessionID, "alice", RoleWhite)
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if joined.Membership.Black != AIOccupantName {
		t.Fatalf("black seat = %q, want %q", joined.Membership.Black, AIOccupantName)
	}

	if _, err := c.ProposeMove(created.SessionID, "alice", "e2", "e4", ""); err != nil {
		t.Fatalf("human move: %v", err)
	}

	waitFor(t, func() bool { return len(rec.Moves(created.SessionID)) == 2 })
	moves := rec.Moves(created.SessionID)
	if moves[1].Mover != AIOccupantName || moves[1].UCI != "e7e5" {
		t.Fatalf("AI move record = %+v", moves[1])
	}
	waitFor(t, func() bool { return len(pub.byEvent(arenadto.EventStateChanged)) == 2 })
	if got := len(pub.byEvent(arenadto.EventAIMoveFailed)); got != 0 {
		t.Fatalf("aiMoveFailed broadcasts = %d, want 0", got)
	}
}

func TestAIFailureLeavesSessionActiveAndRetriggers(t *testing.T) {
	adv := &stubAdvisor{}
	adv.setErr(advisor.ErrTimeout)
	c, store, _, pub := newTestCoordinator(t, adv)
	ctx := context.Background()

	created := c.Create(ModeHumanVsAI, advisor.DifficultyEasy)
	if _, err := c.Join(ctx, created.SessionID, "alice", RoleWhite); err != nil {
		t.Fatalf("join: %v", err)
	}
	if _, err := c.ProposeMove(created.SessionID, "alice", "e2", "e4", ""); err != nil {
		t.Fatalf("human move: %v", err)
	}

	waitFor(t, func() bool { return len(pub.byEvent(arenadto.EventAIMoveFailed)) == 1 })
	if _, ok := store.Get(created.SessionID); !ok {
		t.Fatal("session evicted after advisor failure")
	}

	// The next human attempt is still out of turn but re-kicks the engine.
	adv.setErr(nil)
	adv.mu.Lock()
	adv.moves = []string{"e7e5"}
	adv.mu.Unlock()
	if _, err := c.ProposeMove(created.SessionID, "alice", "d2", "d4", ""); !errors.Is(err, ErrNotYourTurn) {
		t.Fatalf("retrigger attempt err = %v, want ErrNotYourTurn", err)
	}
	waitFor(t, func() bool { return adv.callCount() == 2 })
	waitFor(t, func() bool { return len(pub.byEvent(arenadto.EventStateChanged)) == 2 })
}

func TestGetLegalMoves(t *testing.T) {
	c, _, _, _ := newTestCoordinator(t, nil)
	created := c.Create(ModeHumanVsHuman, advisor.DifficultyMedium)

	lm, err := c.GetLegalMoves(created.SessionID, "e2")
	if err != nil {
		t.Fatalf("legal moves: %v", err)
	}
	if len(lm.Destinations) != 2 {
		t.Fatalf("destinations = %v, want e3 and e4", lm.Destinations)
	}
	if _, err := c.GetLegalMoves(created.SessionID, "x0"); !errors.Is(err, ErrInvalidSquare) {
		t.Fatalf("invalid square err = %v, want ErrInvalidSquare", err)
	}
	if _, err := c.GetLegalMoves("missing", "e2"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("missing session err = %v, want ErrSessionNotFound", err)
	}
}

func TestSendChatBroadcasts(t *testing.T) {
	c, _, _, pub := newTestCoordinator(t, nil)
	created := c.Create(ModeHumanVsHuman, advisor.DifficultyMedium)
	seatBoth(t, c, created.SessionID)

	if err := c.SendChat(created.SessionID, "alice", "good luck"); err != nil {
		t.Fatalf("send chat: %v", err)
	}
	chats := pub.byEvent(arenadto.EventChat)
	if len(chats) != 1 {
		t.Fatalf("chat broadcasts = %d, want 1", len(chats))
	}
	msg := chats[0].Payload.(arenadto.Chat)
	if msg.Author != "alice" || msg.Text != "good luck" || msg.Timestamp == 0 {
		t.Fatalf("chat payload = %+v", msg)
	}
}

func TestLeaveEvictsAbandonedSession(t *testing.T) {
	c, store, _, pub := newTestCoordinator(t, nil)
	ctx := context.Background()
	created := c.Create(ModeHumanVsHuman, advisor.DifficultyMedium)
	seatBoth(t, c, created.SessionID)

	if err := c.Leave(created.SessionID, "alice"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if got := len(pub.byEvent(arenadto.EventMembershipChanged)); got != 1 {
		t.Fatalf("membershipChanged broadcasts = %d, want 1", got)
	}
	if _, ok := store.Get(created.SessionID); !ok {
		t.Fatal("session evicted while bob remains")
	}

	// The vacated seat can be retaken.
	if _, err := c.Join(ctx, created.SessionID, "alice", RoleWhite); err != nil {
		t.Fatalf("rejoin white: %v", err)
	}
	if err := c.Leave(created.SessionID, "alice"); err != nil {
		t.Fatalf("leave again: %v", err)
	}
	if err := c.Leave(created.SessionID, "bob"); err != nil {
		t.Fatalf("leave bob: %v", err)
	}
	if _, ok := store.Get(created.SessionID); ok {
		t.Fatal("abandoned session still in store")
	}
	if err := c.Leave(created.SessionID, "bob"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("leave gone session err = %v, want ErrSessionNotFound", err)
	}
}

func TestAIGameSurvivesWhenOnlySpectatorLeaves(t *testing.T) {
	c, store, _, _ := newTestCoordinator(t, &stubAdvisor{})
	ctx := context.Background()
	created := c.Create(ModeHumanVsAI, advisor.DifficultyMedium)
	if _, err := c.Join(ctx, created.SessionID, "alice", RoleWhite); err != nil {
		t.Fatalf("join: %v", err)
	}

	// Only the AI seat remains after the human leaves; that does not keep
	// the session alive.
	if err := c.Leave(created.SessionID, "alice"); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if _, ok := store.Get(created.SessionID); ok {
		t.Fatal("AI-only session still in store")
	}
}
