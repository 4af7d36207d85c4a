package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// envPrefix namespaces every environment override.
const envPrefix = "PREDICTION_"

// Load builds the configuration: defaults, then the TOML file at path (skipped
// when path is empty), then .env, then PREDICTION_* environment variables.
// The result is not validated; callers invoke Validate.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, fmt.Errorf("decode config %s: %w", path, err)
		}
	}

	// Missing .env is fine.
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)
	return &cfg, nil
}

// applyEnvOverrides overwrites fields whose PREDICTION_* variable is set and non-empty.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.LogLevel, "LOG_LEVEL")

	// Server
	setStr(&cfg.Server.Addr, "SERVER_ADDR")
	setDuration(&cfg.Server.ReadTimeout, "SERVER_READ_TIMEOUT")
	setDuration(&cfg.Server.WriteTimeout, "SERVER_WRITE_TIMEOUT")
	setDuration(&cfg.Server.ShutdownTimeout, "SERVER_SHUTDOWN_TIMEOUT")
	setFloat64(&cfg.Server.RateLimit, "SERVER_RATE_LIMIT")
	setInt(&cfg.Server.RateBurst, "SERVER_RATE_BURST")

	// Ledger
	setStr(&cfg.Ledger.ProgramID, "LEDGER_PROGRAM_ID")
	setStr(&cfg.Ledger.Backend, "LEDGER_BACKEND")
	setStr(&cfg.Ledger.Locker, "LEDGER_LOCKER")
	setStr(&cfg.Ledger.Bus, "LEDGER_BUS")
	setStr(&cfg.Ledger.Activity, "LEDGER_ACTIVITY")
	setDuration(&cfg.Ledger.LockTimeout, "LEDGER_LOCK_TIMEOUT")

	// Postgres
	setStr(&cfg.Postgres.DSN, "POSTGRES_DSN")
	setInt32(&cfg.Postgres.MaxConns, "POSTGRES_MAX_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "POSTGRES_RUN_MIGRATIONS")

	// Badger
	setStr(&cfg.Badger.Path, "BADGER_PATH")
	setBool(&cfg.Badger.InMemory, "BADGER_IN_MEMORY")

	// ClickHouse
	setStr(&cfg.ClickHouse.DSN, "CLICKHOUSE_DSN")
	setBool(&cfg.ClickHouse.RunMigrations, "CLICKHOUSE_RUN_MIGRATIONS")

	// Redis
	setStr(&cfg.Redis.Addr, "REDIS_ADDR")
	setStr(&cfg.Redis.Password, "REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "REDIS_POOL_SIZE")
	setBool(&cfg.Redis.TLSEnabled, "REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.LockTTL, "REDIS_LOCK_TTL")
	setStr(&cfg.Redis.EventStream, "REDIS_EVENT_STREAM")

	// Log
	setStr(&cfg.Log.Format, "LOG_FORMAT")
	setStr(&cfg.Log.File, "LOG_FILE")
}

// Typed env helpers. Unparseable values are ignored and leave the field unchanged.

func setStr(dst *string, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(envPrefix + key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}
