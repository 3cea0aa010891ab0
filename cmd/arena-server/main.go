package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/valyala/fasthttp"
	"go.uber.org/zap"

	"github.com/arenachess/arena-server/internal/advisor"
	"github.com/arenachess/arena-server/internal/analytics"
	"github.com/arenachess/arena-server/internal/broadcast"
	appcfg "github.com/arenachess/arena-server/internal/config"
	"github.com/arenachess/arena-server/internal/msgcat"
	"github.com/arenachess/arena-server/internal/obslog"
	"github.com/arenachess/arena-server/internal/persist"
	"github.com/arenachess/arena-server/internal/playercache"
	"github.com/arenachess/arena-server/internal/session"
	"github.com/arenachess/arena-server/internal/transport"
)

func main() {
	cfg, err := appcfg.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if err := obslog.InitFromEnv(); err != nil {
		log.Fatalf("logger init error: %v", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	// Durable records: Postgres when configured, in-memory otherwise.
	var (
		recorder persist.Recorder
		source   persist.AnalyticsSource
	)
	if cfg.DatabaseURL != "" {
		repo, err := persist.NewRepository(cfg.DatabaseURL)
		if err != nil {
			logger.Fatal("postgres init failed", zap.Error(err))
		}
		defer func() { _ = repo.Close() }()
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if err := repo.EnsureSchema(ctx); err != nil {
			cancel()
			logger.Fatal("schema init failed", zap.Error(err))
		}
		cancel()
		recorder, source = repo, repo
		logger.Info("using postgres records")
	} else {
		mem := persist.NewMemoryRecorder(true)
		recorder, source = mem, mem
		logger.Warn("DATABASE_URL not set, using in-memory records")
	}

	// Optional Redis cache in front of player lookups.
	if cfg.RedisURL != "" {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Fatal("redis url invalid", zap.Error(err))
		}
		rdb := redis.NewClient(opts)
		defer func() { _ = rdb.Close() }()
		cache := playercache.New(rdb, time.Duration(cfg.PlayerCacheTTLSec)*time.Second, logger)
		recorder = playercache.NewCachingRecorder(recorder, cache, logger)
		logger.Info("player cache enabled")
	}

	// Optional engine for AI sessions.
	var adv advisor.Advisor
	if cfg.StockfishPath != "" {
		uci, err := advisor.NewUCIAdvisor(cfg.StockfishPath, time.Duration(cfg.AIGraceMS)*time.Millisecond, logger)
		if err != nil {
			logger.Fatal("engine init failed", zap.Error(err))
		}
		defer func() { _ = uci.Close() }()
		adv = uci
		logger.Info("engine ready", zap.String("path", cfg.StockfishPath))
	} else {
		logger.Warn("STOCKFISH_PATH not set, AI sessions will fail their moves")
	}

	defaultDifficulty, err := advisor.ParseDifficulty(cfg.AIDefaultDifficulty)
	if err != nil {
		logger.Fatal("bad AI_DEFAULT_DIFFICULTY", zap.Error(err))
	}

	cat, err := msgcat.New(cfg.MsgOverrideDir)
	if err != nil {
		logger.Fatal("message catalog init failed", zap.Error(err))
	}

	hub := broadcast.NewHub(logger)
	coord, err := session.NewCoordinator(session.NewStore(), hub, recorder, adv, time.Duration(cfg.AIGraceMS)*time.Millisecond, logger)
	if err != nil {
		logger.Fatal("coordinator init failed", zap.Error(err))
	}
	wsServer, err := transport.NewServer(coord, hub, cat, cfg.ChatMaxLen, defaultDifficulty, logger)
	if err != nil {
		logger.Fatal("transport init failed", zap.Error(err))
	}

	mux := http.NewServeMux()
	mux.Handle("/ws", wsServer)
	httpServer := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("websocket listener up", zap.String("addr", cfg.ListenAddr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("websocket listener failed", zap.Error(err))
		}
	}()

	analyticsServer, err := analytics.NewServer(source, logger)
	if err != nil {
		logger.Fatal("analytics init failed", zap.Error(err))
	}
	fhs := &fasthttp.Server{
		Handler:     analyticsServer.Handler(),
		ReadTimeout: 10 * time.Second,
	}
	go func() {
		logger.Info("analytics listener up", zap.String("addr", cfg.AnalyticsAddr))
		if err := fhs.ListenAndServe(cfg.AnalyticsAddr); err != nil {
			logger.Fatal("analytics listener failed", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("websocket shutdown error", zap.Error(err))
	}
	if err := fhs.ShutdownWithContext(shutdownCtx); err != nil {
		logger.Warn("analytics shutdown error", zap.Error(err))
	}
}
