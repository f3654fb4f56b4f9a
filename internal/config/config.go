package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Backend string

const (
	BackendMemory   Backend = "memory"
	BackendRedis    Backend = "redis"
	BackendPostgres Backend = "postgres"
)

type AppConfig struct {
	HTTPAddr string

	StoreBackend Backend
	RedisURL     string
	DatabaseURL  string

	LockTTL           time.Duration
	LockRetries       int
	LockRetryInterval time.Duration

	IrisBaseURL string
	IrisWSURL   string

	BotPrefix string

	XUserID    string
	XUserEmail string
	XSessionID string

	AllowedRooms      []string
	ChatRatePerMinute int

	MessageDir string
}

// ChatEnabled reports whether enough Iris settings exist to run the chat bot.
func (c *AppConfig) ChatEnabled() bool {
	return c.IrisBaseURL != "" && c.IrisWSURL != "" && c.BotPrefix != ""
}

func Load() (*AppConfig, error) {
	// optional .env next to the binary
	_ = godotenv.Load()

	cfg := &AppConfig{
		HTTPAddr:          ":8080",
		StoreBackend:      BackendMemory,
		LockTTL:           5 * time.Second,
		LockRetries:       50,
		LockRetryInterval: 20 * time.Millisecond,
		ChatRatePerMinute: 20,
	}

	if v := strings.TrimSpace(os.Getenv("HTTP_ADDR")); v != "" {
		cfg.HTTPAddr = v
	}
	if v := strings.TrimSpace(os.Getenv("QUEUE_BACKEND")); v != "" {
		cfg.StoreBackend = Backend(strings.ToLower(v))
	}
	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))

	var err error
	if cfg.LockTTL, err = durationEnv("QUEUE_LOCK_TTL", cfg.LockTTL); err != nil {
		return nil, err
	}
	if cfg.LockRetryInterval, err = durationEnv("QUEUE_LOCK_RETRY_INTERVAL", cfg.LockRetryInterval); err != nil {
		return nil, err
	}
	if v := strings.TrimSpace(os.Getenv("QUEUE_LOCK_RETRIES")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.LockRetries = n
		}
	}

	cfg.IrisBaseURL = strings.TrimSpace(os.Getenv("IRIS_BASE_URL"))
	cfg.IrisWSURL = strings.TrimSpace(os.Getenv("IRIS_WS_URL"))
	cfg.BotPrefix = strings.TrimSpace(os.Getenv("BOT_PREFIX"))

	cfg.XUserID = strings.TrimSpace(os.Getenv("X_USER_ID"))
	cfg.XUserEmail = strings.TrimSpace(os.Getenv("X_USER_EMAIL"))
	cfg.XSessionID = strings.TrimSpace(os.Getenv("X_SESSION_ID"))

	if v := strings.TrimSpace(os.Getenv("ALLOWED_ROOMS")); v != "" {
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				cfg.AllowedRooms = append(cfg.AllowedRooms, s)
			}
		}
	}
	if v := strings.TrimSpace(os.Getenv("CHAT_RATE_PER_MINUTE")); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.ChatRatePerMinute = n
		}
	}
	cfg.MessageDir = strings.TrimSpace(os.Getenv("MESSAGE_DIR"))

	switch cfg.StoreBackend {
	case BackendMemory:
	case BackendRedis:
		if cfg.RedisURL == "" {
			return nil, errors.New("REDIS_URL is required for the redis backend")
		}
	case BackendPostgres:
		if cfg.DatabaseURL == "" {
			return nil, errors.New("DATABASE_URL is required for the postgres backend")
		}
	default:
		return nil, fmt.Errorf("unknown QUEUE_BACKEND %q", cfg.StoreBackend)
	}

	return cfg, nil
}

// durationEnv accepts Go durations ("750ms") or plain seconds ("5").
func durationEnv(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		if n <= 0 {
			return 0, fmt.Errorf("%s must be positive", key)
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}
