package config

import (
	"testing"
	"time"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"HTTP_ADDR", "QUEUE_BACKEND", "REDIS_URL", "DATABASE_URL",
		"QUEUE_LOCK_TTL", "QUEUE_LOCK_RETRIES", "QUEUE_LOCK_RETRY_INTERVAL",
		"IRIS_BASE_URL", "IRIS_WS_URL", "BOT_PREFIX", "ALLOWED_ROOMS",
		"CHAT_RATE_PER_MINUTE", "MESSAGE_DIR",
	} {
		t.Setenv(k, "")
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.StoreBackend != BackendMemory {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.LockTTL != 5*time.Second || cfg.LockRetries != 50 {
		t.Fatalf("unexpected lock defaults: ttl=%v retries=%d", cfg.LockTTL, cfg.LockRetries)
	}
	if cfg.ChatEnabled() {
		t.Fatalf("chat should be disabled without Iris settings")
	}
}

func TestLoadOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("QUEUE_BACKEND", "Redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/2")
	t.Setenv("QUEUE_LOCK_TTL", "750ms")
	t.Setenv("QUEUE_LOCK_RETRY_INTERVAL", "1")
	t.Setenv("ALLOWED_ROOMS", " court-1, ,court-2 ")
	t.Setenv("IRIS_BASE_URL", "http://iris")
	t.Setenv("IRIS_WS_URL", "ws://iris/ws")
	t.Setenv("BOT_PREFIX", "!")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.StoreBackend != BackendRedis {
		t.Fatalf("backend = %q", cfg.StoreBackend)
	}
	if cfg.LockTTL != 750*time.Millisecond || cfg.LockRetryInterval != time.Second {
		t.Fatalf("durations = %v / %v", cfg.LockTTL, cfg.LockRetryInterval)
	}
	if len(cfg.AllowedRooms) != 2 || cfg.AllowedRooms[1] != "court-2" {
		t.Fatalf("rooms = %v", cfg.AllowedRooms)
	}
	if !cfg.ChatEnabled() {
		t.Fatalf("chat should be enabled")
	}
}

func TestLoadValidation(t *testing.T) {
	clearEnv(t)
	t.Setenv("QUEUE_BACKEND", "postgres")
	if _, err := Load(); err == nil {
		t.Fatalf("postgres without DATABASE_URL should fail")
	}
	t.Setenv("QUEUE_BACKEND", "sqlite")
	if _, err := Load(); err == nil {
		t.Fatalf("unknown backend should fail")
	}
	t.Setenv("QUEUE_BACKEND", "")
	t.Setenv("QUEUE_LOCK_TTL", "-3s")
	if _, err := Load(); err == nil {
		t.Fatalf("negative TTL should fail")
	}
}
