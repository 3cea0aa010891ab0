package config

import (
	"os"
	"strconv"
	"strings"
)

// AppConfig is the full server configuration, loaded once from the
// environment at startup. Optional backends degrade gracefully: no
// DATABASE_URL means in-memory records, no REDIS_URL disables the player
// cache, no STOCKFISH_PATH leaves AI sessions without an engine.
type AppConfig struct {
	ListenAddr    string
	AnalyticsAddr string

	DatabaseURL string
	RedisURL    string

	StockfishPath       string
	AIDefaultDifficulty string
	AIGraceMS           int

	ChatMaxLen        int
	PlayerCacheTTLSec int

	MsgOverrideDir string
}

func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		ListenAddr:          ":3001",
		AnalyticsAddr:       ":3002",
		AIDefaultDifficulty: "medium",
		AIGraceMS:           1000,
		ChatMaxLen:          500,
		PlayerCacheTTLSec:   21600,
	}

	if v := strings.TrimSpace(os.Getenv("LISTEN_ADDR")); v != "" {
		cfg.ListenAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("ANALYTICS_ADDR")); v != "" {
		cfg.AnalyticsAddr = v
	}

	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.StockfishPath = strings.TrimSpace(os.Getenv("STOCKFISH_PATH"))
	cfg.MsgOverrideDir = strings.TrimSpace(os.Getenv("MSG_OVERRIDE_DIR"))

	if v := strings.TrimSpace(os.Getenv("AI_DEFAULT_DIFFICULTY")); v != "" {
		cfg.AIDefaultDifficulty = strings.ToLower(v)
	}
	if v := strings.TrimSpace(os.Getenv("AI_GRACE_MS")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.AIGraceMS = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("CHAT_MAX_LEN")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ChatMaxLen = n
		}
	}
	if v := strings.TrimSpace(os.Getenv("PLAYER_CACHE_TTL_SEC")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.PlayerCacheTTLSec = n
		}
	}

	return cfg, nil
}
