package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"pharmaledger/backend/internal/cache"
	"pharmaledger/backend/internal/config"
	"pharmaledger/backend/internal/httpapi"
	"pharmaledger/backend/internal/service"
	"pharmaledger/backend/internal/store"
	"pharmaledger/backend/internal/store/memory"
	"pharmaledger/backend/internal/store/sqlstore"
	"pharmaledger/backend/internal/xid"
)

func main() {
	cfg := config.Load()

	logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
	logrus.SetLevel(cfg.LogLevel)
	log := logrus.StandardLogger()

	if err := validateConfig(cfg); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	if err := xid.Init(cfg.SnowflakeNode); err != nil {
		log.WithError(err).Fatal("invalid SNOWFLAKE_NODE")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	closers := make([]func() error, 0, 2)

	repo, backend, err := openRepository(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("repository unavailable; refusing to start with in-memory fallback")
	}
	closers = append(closers, repo.Close)
	log.WithField("backend", backend).Info("repository ready")

	batchCache := cache.BatchCache(cache.NoopBatchCache{})
	if cfg.RedisAddr != "" {
		redisCache := cache.NewRedisBatchCache(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err := redisCache.Ping(ctx); err != nil {
			log.WithError(err).Warn("redis unavailable, using noop batch cache")
			_ = redisCache.Close()
		} else {
			batchCache = redisCache
			closers = append(closers, redisCache.Close)
			log.Info("batch cache: redis")
		}
	} else {
		log.Info("batch cache: noop")
	}

	svc := service.New(repo, batchCache, service.Options{
		ShopStateCode: cfg.ShopStateCode,
		MaxTxAttempts: cfg.TxMaxAttempts,
		RetryBackoff:  cfg.TxRetryBackoff(),
		BatchCacheTTL: cfg.BatchCacheTTL(),
		Logger:        log,
	})
	api := httpapi.New(svc, httpapi.NewTokenVerifier(cfg.AuthSecret), cfg.AllowedOrigin, log)

	server := &http.Server{
		Addr:              cfg.Address(),
		Handler:           api.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.WithField("addr", cfg.Address()).Info("pharmacy ledger listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server error")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("shutdown error")
	}

	for _, closeFn := range closers {
		if err := closeFn(); err != nil {
			log.WithError(err).Warn("close error")
		}
	}

	log.Info("server stopped")
}

// openRepository picks PostgreSQL, then SQLite, then the seeded in-memory
// store. A configured database that cannot be opened is an error, never a
// silent fallback.
func openRepository(ctx context.Context, cfg config.Config) (store.Repository, string, error) {
	switch {
	case cfg.DatabaseURL != "":
		pg, err := sqlstore.OpenPostgres(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, "", fmt.Errorf("postgres: %w", err)
		}
		if err := pg.Migrate(ctx); err != nil {
			_ = pg.Close()
			return nil, "", fmt.Errorf("postgres migrate: %w", err)
		}
		return pg, "postgres", nil
	case cfg.SQLitePath != "":
		lite, err := sqlstore.OpenSQLite(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, "", fmt.Errorf("sqlite: %w", err)
		}
		if err := lite.Migrate(ctx); err != nil {
			_ = lite.Close()
			return nil, "", fmt.Errorf("sqlite migrate: %w", err)
		}
		return lite, "sqlite", nil
	default:
		return memory.NewSeeded(), "memory", nil
	}
}

func validateConfig(cfg config.Config) error {
	if len(cfg.AuthSecret) < 32 {
		return fmt.Errorf("AUTH_SECRET must be set and at least 32 characters")
	}
	if !isStateCode(cfg.ShopStateCode) {
		return fmt.Errorf("SHOP_STATE_CODE must be a two-digit GST state code, got %q", cfg.ShopStateCode)
	}
	if cfg.TxMaxAttempts < 1 || cfg.TxMaxAttempts > 10 {
		return fmt.Errorf("TX_MAX_ATTEMPTS must be between 1 and 10, got %d", cfg.TxMaxAttempts)
	}
	return nil
}

func isStateCode(code string) bool {
	if len(code) != 2 {
		return false
	}
	return code[0] >= '0' && code[0] <= '9' && code[1] >= '0' && code[1] <= '9'
}
