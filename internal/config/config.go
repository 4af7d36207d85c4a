// Package config loads server configuration from built-in defaults, an
// optional TOML file, a .env file and PREDICTION_* environment variables.
package config

import (
	"fmt"
	"strings"
	"time"

	"memecoin-prediction-market/internal/address"
	"memecoin-prediction-market/internal/domain"
)

// Config is the root configuration.
type Config struct {
	LogLevel string `toml:"log_level"`

	Server     ServerConfig     `toml:"server"`
	Ledger     LedgerConfig     `toml:"ledger"`
	Postgres   PostgresConfig   `toml:"postgres"`
	Badger     BadgerConfig     `toml:"badger"`
	ClickHouse ClickHouseConfig `toml:"clickhouse"`
	Redis      RedisConfig      `toml:"redis"`
	Escrow     EscrowConfig     `toml:"escrow"`
	Log        LogConfig        `toml:"log"`
	Metrics    MetricsConfig    `toml:"metrics"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Addr            string   `toml:"addr"`
	ReadTimeout     duration `toml:"read_timeout"`
	WriteTimeout    duration `toml:"write_timeout"`
	ShutdownTimeout duration `toml:"shutdown_timeout"`
	// RateLimit is the sustained requests per second allowed per caller. Zero disables limiting.
	RateLimit float64 `toml:"rate_limit"`
	RateBurst int     `toml:"rate_burst"`
}

// LedgerConfig selects the ledger backends and coordination.
type LedgerConfig struct {
	ProgramID   string   `toml:"program_id"`
	Backend     string   `toml:"backend"`  // memory | postgres | badger
	Locker      string   `toml:"locker"`   // memory | redis
	Bus         string   `toml:"bus"`      // memory | redis
	Activity    string   `toml:"activity"` // memory | clickhouse | none
	LockTimeout duration `toml:"lock_timeout"`
	// TokenDecimals is used only when rendering UI amounts.
	TokenDecimals int32 `toml:"token_decimals"`
}

// PostgresConfig holds the ledger database connection.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	MaxConns      int32  `toml:"max_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// BadgerConfig holds the embedded key/value store location.
type BadgerConfig struct {
	Path     string `toml:"path"`
	InMemory bool   `toml:"in_memory"`
}

// ClickHouseConfig holds the activity log connection.
type ClickHouseConfig struct {
	DSN           string `toml:"dsn"`
	RunMigrations bool   `toml:"run_migrations"`
}

// RedisConfig holds the coordination server connection.
type RedisConfig struct {
	Addr       string   `toml:"addr"`
	Password   string   `toml:"password"`
	DB         int      `toml:"db"`
	PoolSize   int      `toml:"pool_size"`
	MaxRetries int      `toml:"max_retries"`
	TLSEnabled bool     `toml:"tls_enabled"`
	LockTTL    duration `toml:"lock_ttl"`
	KeyPrefix  string   `toml:"key_prefix"`
	// EventStream, when set, keeps a capped durable copy of published events.
	EventStream string `toml:"event_stream"`
}

// EscrowConfig holds the wallet balances minted into an empty ledger on first start.
type EscrowConfig struct {
	Genesis []Allocation `toml:"genesis"`
}

// Allocation credits Amount base units to Owner.
type Allocation struct {
	Owner  string `toml:"owner"`
	Amount uint64 `toml:"amount"`
}

// LogConfig holds log output parameters. The level comes from Config.LogLevel.
type LogConfig struct {
	Format     string `toml:"format"`
	File       string `toml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days"`
	Compress   bool   `toml:"compress"`
}

// MetricsConfig holds Prometheus parameters.
type MetricsConfig struct {
	Namespace string `toml:"namespace"`
}

// duration wraps time.Duration so TOML strings like "5s" decode.
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns the built-in configuration: a single process with
// in-memory storage and coordination.
func Defaults() Config {
	return Config{
		LogLevel: "info",
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeout:     duration{10 * time.Second},
			WriteTimeout:    duration{10 * time.Second},
			ShutdownTimeout: duration{15 * time.Second},
			RateLimit:       20,
			RateBurst:       40,
		},
		Ledger: LedgerConfig{
			ProgramID:     address.DefaultProgramID.String(),
			Backend:       "memory",
			Locker:        "memory",
			Bus:           "memory",
			Activity:      "memory",
			LockTimeout:   duration{5 * time.Second},
			TokenDecimals: 6,
		},
		Postgres: PostgresConfig{
			MaxConns:      10,
			RunMigrations: true,
		},
		Badger: BadgerConfig{
			Path: "data/badger",
		},
		ClickHouse: ClickHouseConfig{
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			LockTTL:    duration{10 * time.Second},
			KeyPrefix:  "prediction:lock:",
		},
		Log: LogConfig{
			Format:     "text",
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		Metrics: MetricsConfig{
			Namespace: "prediction_market",
		},
	}
}

var (
	validLogLevels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validBackends  = map[string]bool{"memory": true, "postgres": true, "badger": true}
	validLockers   = map[string]bool{"memory": true, "redis": true}
	validBuses     = map[string]bool{"memory": true, "redis": true}
	validActivity  = map[string]bool{"memory": true, "clickhouse": true, "none": true}
)

// Validate reports every problem found, not just the first.
func (c *Config) Validate() error {
	var errs []string

	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}
	if f := strings.ToLower(c.Log.Format); f != "text" && f != "json" {
		errs = append(errs, fmt.Sprintf("log: unknown format %q (valid: text, json)", c.Log.Format))
	}

	if c.Server.Addr == "" {
		errs = append(errs, "server: addr must not be empty")
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, "server: rate_limit must not be negative")
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst <= 0 {
		errs = append(errs, "server: rate_burst must be positive when rate_limit is set")
	}

	if _, err := domain.ParsePubkey(c.Ledger.ProgramID); err != nil {
		errs = append(errs, fmt.Sprintf("ledger: invalid program_id: %v", err))
	}
	if !validBackends[c.Ledger.Backend] {
		errs = append(errs, fmt.Sprintf("ledger: unknown backend %q (valid: memory, postgres, badger)", c.Ledger.Backend))
	}
	if !validLockers[c.Ledger.Locker] {
		errs = append(errs, fmt.Sprintf("ledger: unknown locker %q (valid: memory, redis)", c.Ledger.Locker))
	}
	if !validBuses[c.Ledger.Bus] {
		errs = append(errs, fmt.Sprintf("ledger: unknown bus %q (valid: memory, redis)", c.Ledger.Bus))
	}
	if !validActivity[c.Ledger.Activity] {
		errs = append(errs, fmt.Sprintf("ledger: unknown activity %q (valid: memory, clickhouse, none)", c.Ledger.Activity))
	}
	if c.Ledger.LockTimeout.Duration <= 0 {
		errs = append(errs, "ledger: lock_timeout must be positive")
	}
	if c.Ledger.TokenDecimals < 0 || c.Ledger.TokenDecimals > 18 {
		errs = append(errs, "ledger: token_decimals must be within 0..18")
	}

	if c.Ledger.Backend == "postgres" && c.Postgres.DSN == "" {
		errs = append(errs, "postgres: dsn is required for backend postgres")
	}
	if c.Ledger.Backend == "badger" && c.Badger.Path == "" && !c.Badger.InMemory {
		errs = append(errs, "badger: path is required unless in_memory is set")
	}
	if c.Ledger.Activity == "clickhouse" && c.ClickHouse.DSN == "" {
		errs = append(errs, "clickhouse: dsn is required for activity clickhouse")
	}
	if c.Ledger.Locker == "redis" || c.Ledger.Bus == "redis" {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr is required when locker or bus is redis")
		}
		if c.Ledger.Locker == "redis" && c.Redis.LockTTL.Duration <= 0 {
			errs = append(errs, "redis: lock_ttl must be positive")
		}
	}

	for i, a := range c.Escrow.Genesis {
		if _, err := domain.ParsePubkey(a.Owner); err != nil {
			errs = append(errs, fmt.Sprintf("escrow: genesis[%d]: invalid owner: %v", i, err))
		}
		if a.Amount == 0 {
			errs = append(errs, fmt.Sprintf("escrow: genesis[%d]: amount must be positive", i))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ProgramID returns the parsed ledger program id. Call after Validate.
func (c *Config) ProgramID() domain.Pubkey {
	pk, _ := domain.ParsePubkey(c.Ledger.ProgramID)
	return pk
}
