package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

type Config struct {
	Port                 string
	AllowedOrigin        string
	DatabaseURL          string
	SQLitePath           string
	RedisAddr            string
	RedisPassword        string
	RedisDB              int
	BatchCacheTTLSeconds int
	AuthSecret           string
	ShopStateCode        string
	TxMaxAttempts        int
	TxRetryBackoffMS     int
	LogLevel             logrus.Level
	SnowflakeNode        int64
}

// Load reads configuration from the environment. A .env file in the
// working directory is applied first when present; real environment
// variables win over it.
func Load() Config {
	_ = godotenv.Load()

	level, err := logrus.ParseLevel(getEnv("LOG_LEVEL", "info"))
	if err != nil {
		level = logrus.InfoLevel
	}

	cfg := Config{
		Port:                 getEnv("PORT", "8080"),
		AllowedOrigin:        getEnv("ALLOWED_ORIGIN", "http://127.0.0.1:3000"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		SQLitePath:           strings.TrimSpace(os.Getenv("SQLITE_PATH")),
		RedisAddr:            os.Getenv("REDIS_ADDR"),
		RedisPassword:        os.Getenv("REDIS_PASSWORD"),
		RedisDB:              getInt("REDIS_DB", 0, 0),
		BatchCacheTTLSeconds: getInt("BATCH_CACHE_TTL_SECONDS", 30, 1),
		AuthSecret:           strings.TrimSpace(os.Getenv("AUTH_SECRET")),
		ShopStateCode:        strings.TrimSpace(getEnv("SHOP_STATE_CODE", "33")),
		TxMaxAttempts:        getInt("TX_MAX_ATTEMPTS", 3, 0),
		TxRetryBackoffMS:     getInt("TX_RETRY_BACKOFF_MS", 25, 1),
		LogLevel:             level,
		SnowflakeNode:        int64(getInt("SNOWFLAKE_NODE", 1, 0)),
	}

	return cfg
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

func (c Config) BatchCacheTTL() time.Duration {
	return time.Duration(c.BatchCacheTTLSeconds) * time.Second
}

func (c Config) TxRetryBackoff() time.Duration {
	return time.Duration(c.TxRetryBackoffMS) * time.Millisecond
}

func getEnv(key string, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

// getInt falls back when the value is missing, malformed or below floor.
func getInt(key string, fallback int, floor int) int {
	n, err := strconv.Atoi(getEnv(key, strconv.Itoa(fallback)))
	if err != nil || n < floor {
		return fallback
	}
	return n
}
