// Package analytics serves the read-only reporting API over the durable
// game records. It never touches live session state.
package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/arenachess/arena-server/internal/persist"
)

const requestTimeout = 5 * time.Second

type Server struct {
	src persist.AnalyticsSource
	log *zap.Logger
}

func NewServer(src persist.AnalyticsSource, logger *zap.Logger) (*Server, error) {
	if src == nil {
		return nil, errors.New("analytics: source is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{src: src, log: logger}, nil
}

type gameResponse struct {
	SessionID     string `json:"sessionId"`
	WhiteUsername string `json:"whiteUsername"`
	BlackUsername string `json:"blackUsername"`
	IsAIGame      bool   `json:"isAiGame"`
	AIDifficulty  string `json:"aiDifficulty,omitempty"`
	Result        string `json:"result"`
	FinalFEN      string `json:"finalFen,omitempty"`
	TotalMoves    int    `json:"totalMoves"`
	MoveCount     int    `json:"moveCount"`
	StartedAt     int64  `json:"startedAt"`
	EndedAt       int64  `json:"endedAt,omitempty"`
}

type playerResponse struct {
	Username   string `json:"username"`
	TotalGames int    `json:"totalGames"`
	Wins       int    `json:"wins"`
	Losses     int    `json:"losses"`
	Draws      int    `json:"draws"`
}

type globalResponse struct {
	TotalGames          int `json:"totalGames"`
	CompletedGames      int `json:"completedGames"`
	AverageMovesPerGame int `json:"averageMovesPerGame"`
	WhiteWins           int `json:"whiteWins"`
	BlackWins           int `json:"blackWins"`
	Draws               int `json:"draws"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler routes /analytics/* requests. Unknown paths return 404.
func (s *Server) Handler() fasthttp.RequestHandler {
	return func(rc *fasthttp.RequestCtx) {
		if !rc.IsGet() {
			writeJSON(rc, fasthttp.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()

		path := string(rc.Path())
		switch {
		case path == "/analytics/global":
			s.handleGlobal(ctx, rc)
		case strings.HasPrefix(path, "/analytics/game/"):
			s.handleGame(ctx, rc, strings.TrimPrefix(path, "/analytics/game/"))
		case strings.HasPrefix(path, "/analytics/player/"):
			s.handlePlayer(ctx, rc, strings.TrimPrefix(path, "/analytics/player/"))
		default:
			writeJSON(rc, fasthttp.StatusNotFound, errorResponse{Error: "not found"})
		}
	}
}

func (s *Server) handleGame(ctx context.Context, rc *fasthttp.RequestCtx, sessionID string) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" || strings.Contains(sessionID, "/") {
		writeJSON(rc, fasthttp.StatusBadRequest, errorResponse{Error: "bad session id"})
		return
	}
	g, err := s.src.GetGame(ctx, sessionID)
	if err != nil {
		if errors.Is(err, persist.ErrGameNotFound) {
			writeJSON(rc, fasthttp.StatusNotFound, errorResponse{Error: "game not found"})
			return
		}
		s.fail(rc, "get game", err)
		return
	}
	moveCount, err := s.src.CountMoves(ctx, sessionID)
	if err != nil {
		s.fail(rc, "count moves", err)
		return
	}

	resp := gameResponse{
		SessionID:     g.SessionID,
		WhiteUsername: g.WhiteUsername,
		BlackUsername: g.BlackUsername,
		IsAIGame:      g.IsAIGame,
		AIDifficulty:  g.AIDifficulty,
		Result:        g.Result,
		FinalFEN:      g.FinalFEN,
		TotalMoves:    g.TotalMoves,
		MoveCount:     moveCount,
		StartedAt:     g.StartedAt.UnixMilli(),
	}
	if !g.EndedAt.IsZero() {
		resp.EndedAt = g.EndedAt.UnixMilli()
	}
	writeJSON(rc, fasthttp.StatusOK, resp)
}

func (s *Server) handlePlayer(ctx context.Context, rc *fasthttp.RequestCtx, username string) {
	username = strings.TrimSpace(username)
	if username == "" || strings.Contains(username, "/") {
		writeJSON(rc, fasthttp.StatusBadRequest, errorResponse{Error: "bad username"})
		return
	}
	p, err := s.src.LookupPlayer(ctx, username)
	if err != nil {
		if errors.Is(err, persist.ErrPlayerNotFound) {
			writeJSON(rc, fasthttp.StatusNotFound, errorResponse{Error: "player not found"})
			return
		}
		s.fail(rc, "lookup player", err)
		return
	}
	writeJSON(rc, fasthttp.StatusOK, playerResponse{
		Username:   p.Username,
		TotalGames: p.TotalGames,
		Wins:       p.Wins,
		Losses:     p.Losses,
		Draws:      p.Draws,
	})
}

func (s *Server) handleGlobal(ctx context.Context, rc *fasthttp.RequestCtx) {
	stats, err := s.src.GlobalStats(ctx)
	if err != nil {
		s.fail(rc, "global stats", err)
		return
	}
	writeJSON(rc, fasthttp.StatusOK, globalResponse{
		TotalGames:          stats.TotalGames,
		CompletedGames:      stats.CompletedGames,
		AverageMovesPerGame: stats.AverageMovesPerGame,
		WhiteWins:           stats.WhiteWins,
		BlackWins:           stats.BlackWins,
		Draws:               stats.Draws,
	})
}

func (s *Server) fail(rc *fasthttp.RequestCtx, op string, err error) {
	s.log.Error("analytics query failed", zap.String("op", op), zap.Error(err))
	writeJSON(rc, fasthttp.StatusInternalServerError, errorResponse{Error: "internal error"})
}

func writeJSON(rc *fasthttp.RequestCtx, status int, v any) {
	rc.SetStatusCode(status)
	rc.SetContentType("application/json; charset=utf-8")
	if err := json.NewEncoder(rc).Encode(v); err != nil {
		rc.SetStatusCode(fasthttp.StatusInternalServerError)
	}
}
