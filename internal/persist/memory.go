package persist

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/arenachess/arena-server/internal/domain"
)

// MemoryRecorder is a development and test implementation of Recorder and
// AnalyticsSource, used when no DATABASE_URL is configured. With autoRegister
// set, unknown usernames are created on first lookup.
type MemoryRecorder struct {
	mu sync.RWMutex

	nextPlayerID int64
	players      map[string]*domain.PlayerStats
	games        map[string]*domain.GameRecord
	moves        map[string][]*domain.MoveRecord

	autoRegister bool
}

func NewMemoryRecorder(autoRegister bool) *MemoryRecorder {
	return &MemoryRecorder{
		players:      make(map[string]*domain.PlayerStats),
		games:        make(map[string]*domain.GameRecord),
		moves:        make(map[string][]*domain.MoveRecord),
		autoRegister: autoRegister,
	}
}

// Register creates a player row. Used to seed tests.
func (m *MemoryRecorder) Register(username string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registerLocked(username)
}

func (m *MemoryRecorder) registerLocked(username string) *domain.PlayerStats {
	username = strings.TrimSpace(username)
	if p, ok := m.players[username]; ok {
		return p
	}
	m.nextPlayerID++
	p := &domain.PlayerStats{
		ID:        m.nextPlayerID,
		Username:  username,
		CreatedAt: time.Now(),
	}
	m.players[username] = p
	return p
}

func (m *MemoryRecorder) LookupPlayer(ctx context.Context, username string) (*domain.PlayerStats, error) {
	username = strings.TrimSpace(username)

	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[username]
	if !ok {
		if !m.autoRegister {
			return nil, ErrPlayerNotFound
		}
		p = m.registerLocked(username)
	}
	cp := *p
	return &cp, nil
}

func (m *MemoryRecorder) RecordGameStart(ctx context.Context, rec *domain.GameRecord) error {
	if rec == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.games[rec.SessionID]; ok {
		if rec.WhiteUsername != "" {
			existing.WhiteUsername = rec.WhiteUsername
		}
		if rec.BlackUsername != "" {
			existing.BlackUsername = rec.BlackUsername
		}
		return nil
	}
	cp := *rec
	cp.Result = domain.ResultOngoing
	m.games[rec.SessionID] = &cp
	return nil
}

func (m *MemoryRecorder) RecordMove(ctx context.Context, mv *domain.MoveRecord) error {
	if mv == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *mv
	m.moves[mv.SessionID] = append(m.moves[mv.SessionID], &cp)
	// Writers are asynchronous, so inserts can arrive out of order.
	sort.Slice(m.moves[mv.SessionID], func(i, j int) bool {
		return m.moves[mv.SessionID][i].MoveNumber < m.moves[mv.SessionID][j].MoveNumber
	})
	if g, ok := m.games[mv.SessionID]; ok && mv.MoveNumber > g.TotalMoves {
		g.TotalMoves = mv.MoveNumber
		g.FinalFEN = mv.FENAfter
	}
	return nil
}

func (m *MemoryRecorder) RecordGameEnd(ctx context.Context, sessionID, finalFEN, result string, totalMoves int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.games[sessionID]
	if !ok {
		g = &domain.GameRecord{SessionID: sessionID, StartedAt: time.Now()}
		m.games[sessionID] = g
	}
	g.EndedAt = time.Now()
	g.Result = result
	g.FinalFEN = finalFEN
	g.TotalMoves = totalMoves
	return nil
}

func (m *MemoryRecorder) UpsertPlayerStats(ctx context.Context, username string, delta domain.StatsDelta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.players[strings.TrimSpace(username)]
	if !ok {
		if !m.autoRegister {
			return ErrPlayerNotFound
		}
		p = m.registerLocked(username)
	}
	p.Wins += delta.Wins
	p.Losses += delta.Losses
	p.Draws += delta.Draws
	p.TotalGames += delta.GamesPlayed()
	return nil
}

func (m *MemoryRecorder) GetGame(ctx context.Context, sessionID string) (*domain.GameRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.games[sessionID]
	if !ok {
		return nil, ErrGameNotFound
	}
	cp := *g
	return &cp, nil
}

func (m *MemoryRecorder) CountMoves(ctx context.Context, sessionID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.moves[sessionID]), nil
}

// Moves returns the recorded moves for a session, oldest first. Test helper.
func (m *MemoryRecorder) Moves(sessionID string) []*domain.MoveRecord {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.MoveRecord, len(m.moves[sessionID]))
	for i, mv := range m.moves[sessionID] {
		cp := *mv
		out[i] = &cp
	}
	return out
}

func (m *MemoryRecorder) GlobalStats(ctx context.Context) (*domain.GlobalStats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stats := &domain.GlobalStats{}
	totalMoves := 0
	for _, g := range m.games {
		stats.TotalGames++
		if g.EndedAt.IsZero() {
			continue
		}
		stats.CompletedGames++
		totalMoves += g.TotalMoves
		switch g.Result {
		case domain.ResultWhiteWins:
			stats.WhiteWins++
		case domain.ResultBlackWins:
			stats.BlackWins++
		case domain.ResultDraw:
			stats.Draws++
		}
	}
	if stats.CompletedGames > 0 {
		stats.AverageMovesPerGame = (totalMoves + stats.CompletedGames/2) / stats.CompletedGames
	}
	return stats, nil
}
