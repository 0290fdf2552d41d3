package config

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
)

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"SHOP_STATE_CODE", "TX_MAX_ATTEMPTS", "TX_RETRY_BACKOFF_MS", "BATCH_CACHE_TTL_SECONDS", "LOG_LEVEL", "SNOWFLAKE_NODE"} {
		t.Setenv(key, "")
	}

	cfg := Load()
	if cfg.ShopStateCode != "33" {
		t.Fatalf("expected default shop state 33, got %q", cfg.ShopStateCode)
	}
	if cfg.TxMaxAttempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", cfg.TxMaxAttempts)
	}
	if cfg.TxRetryBackoff() != 25*time.Millisecond {
		t.Fatalf("expected 25ms backoff, got %s", cfg.TxRetryBackoff())
	}
	if cfg.BatchCacheTTL() != 30*time.Second {
		t.Fatalf("expected 30s cache ttl, got %s", cfg.BatchCacheTTL())
	}
	if cfg.LogLevel != logrus.InfoLevel {
		t.Fatalf("expected info level, got %s", cfg.LogLevel)
	}
	if cfg.SnowflakeNode != 1 {
		t.Fatalf("expected snowflake node 1, got %d", cfg.SnowflakeNode)
	}
}

func TestLoadFallsBackOnMalformedValues(t *testing.T) {
	t.Setenv("TX_RETRY_BACKOFF_MS", "soon")
	t.Setenv("BATCH_CACHE_TTL_SECONDS", "-4")
	t.Setenv("LOG_LEVEL", "chatty")
	t.Setenv("TX_MAX_ATTEMPTS", "7")

	cfg := Load()
	if cfg.TxRetryBackoffMS != 25 {
		t.Fatalf("expected fallback backoff, got %d", cfg.TxRetryBackoffMS)
	}
	if cfg.BatchCacheTTLSeconds != 30 {
		t.Fatalf("expected fallback ttl, got %d", cfg.BatchCacheTTLSeconds)
	}
	if cfg.LogLevel != logrus.InfoLevel {
		t.Fatalf("expected fallback level, got %s", cfg.LogLevel)
	}
	if cfg.TxMaxAttempts != 7 {
		t.Fatalf("expected 7 attempts, got %d", cfg.TxMaxAttempts)
	}
}
