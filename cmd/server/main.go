// Package main runs the prediction market API server:
// config → storage backend → locker and bus → ledger service → HTTP + websocket.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"memecoin-prediction-market/internal/api"
	"memecoin-prediction-market/internal/cache/redis"
	"memecoin-prediction-market/internal/config"
	"memecoin-prediction-market/internal/domain"
	"memecoin-prediction-market/internal/escrow"
	"memecoin-prediction-market/internal/events"
	"memecoin-prediction-market/internal/ledger"
	"memecoin-prediction-market/internal/lock"
	"memecoin-prediction-market/internal/logging"
	"memecoin-prediction-market/internal/observability"
	"memecoin-prediction-market/internal/storage"
	badgerstore "memecoin-prediction-market/internal/storage/badger"
	chstore "memecoin-prediction-market/internal/storage/clickhouse"
	"memecoin-prediction-market/internal/storage/memory"
	"memecoin-prediction-market/internal/storage/migrations"
	pgstore "memecoin-prediction-market/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", os.Getenv("PREDICTION_CONFIG"), "Path to TOML config file (optional)")
	addr := flag.String("addr", "", "HTTP listen address (overrides config)")
	backend := flag.String("backend", "", "Ledger backend: memory, postgres, badger (overrides config)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *addr != "" {
		cfg.Server.Addr = *addr
	}
	if *backend != "" {
		cfg.Ledger.Backend = *backend
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}

	logger, logCloser, err := logging.New(logging.Config{
		Level:      cfg.LogLevel,
		Format:     cfg.Log.Format,
		OutputFile: cfg.Log.File,
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
		Compress:   cfg.Log.Compress,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer logCloser.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.WithError(err).Error("server exited with error")
		logCloser.Close()
		os.Exit(1)
	}
	logger.Info("shutdown complete")
}

// run wires every component and blocks until ctx is canceled or a component fails.
func run(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	metrics := newMetrics(cfg.Metrics.Namespace)

	backends, err := buildDeps(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer backends.close()

	if err := fundGenesis(ctx, cfg, backends.ledger, logger); err != nil {
		return err
	}

	svc, err := ledger.New(ledger.Options{
		Ledger:      backends.ledger,
		Locker:      backends.locker,
		ProgramID:   cfg.ProgramID(),
		Bus:         backends.bus,
		Activity:    backends.activity,
		Logger:      logger.WithField("component", "ledger"),
		Metrics:     metrics,
		LockTimeout: cfg.Ledger.LockTimeout.Duration,
		Backend:     cfg.Ledger.Backend,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)

	hub := api.NewHub(backends.bus, logger.WithField("component", "ws"), metrics)
	if err := hub.Start(gctx); err != nil {
		return err
	}

	server := api.NewServer(api.Config{
		Addr:          cfg.Server.Addr,
		ReadTimeout:   cfg.Server.ReadTimeout.Duration,
		WriteTimeout:  cfg.Server.WriteTimeout.Duration,
		RateLimit:     cfg.Server.RateLimit,
		RateBurst:     cfg.Server.RateBurst,
		TokenDecimals: cfg.Ledger.TokenDecimals,
	}, svc, hub, logger.WithField("component", "api"), metrics)

	logger.WithFields(logrus.Fields{
		"program_id": svc.ProgramID(),
		"backend":    cfg.Ledger.Backend,
		"locker":     cfg.Ledger.Locker,
		"bus":        cfg.Ledger.Bus,
		"activity":   cfg.Ledger.Activity,
	}).Info("prediction market ledger ready")

	g.Go(server.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout.Duration)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// fundGenesis applies the configured allocations to a ledger that holds no
// balances yet. Restarts and replicas sharing the ledger find it funded.
func fundGenesis(ctx context.Context, cfg *config.Config, l storage.Ledger, logger *logrus.Logger) error {
	allocations := make([]escrow.Allocation, 0, len(cfg.Escrow.Genesis))
	for _, a := range cfg.Escrow.Genesis {
		allocations = append(allocations, escrow.Allocation{
			Owner:  domain.MustParsePubkey(a.Owner),
			Amount: a.Amount,
		})
	}

	vault := escrow.NewVault(l, cfg.ProgramID())
	funded, err := vault.Genesis(ctx, allocations)
	if err != nil {
		return err
	}
	supply, err := vault.Total(ctx)
	if err != nil {
		return fmt.Errorf("read token supply: %w", err)
	}

	entry := logger.WithFields(logrus.Fields{"holders": len(allocations), "supply": supply})
	if funded {
		entry.Info("genesis allocations funded")
	} else if len(allocations) > 0 {
		entry.Info("ledger already funded; genesis skipped")
	}
	return nil
}

// newMetrics reuses DefaultMetrics for the default namespace so collectors
// are not registered twice.
func newMetrics(namespace string) *observability.Metrics {
	if namespace == "" || namespace == "prediction_market" {
		return observability.DefaultMetrics
	}
	return observability.NewMetrics(namespace)
}

// deps holds the selected backends and their cleanup.
type deps struct {
	ledger   storage.Ledger
	locker   lock.Locker
	bus      events.Bus
	activity storage.ActivityStore
	closers  []func()
}

// close releases resources in reverse order of acquisition.
func (d *deps) close() {
	for i := len(d.closers) - 1; i >= 0; i-- {
		d.closers[i]()
	}
}

func buildDeps(ctx context.Context, cfg *config.Config, logger *logrus.Logger) (_ *deps, err error) {
	d := &deps{}
	defer func() {
		if err != nil {
			d.close()
		}
	}()

	if err := d.openLedger(ctx, cfg, logger); err != nil {
		return nil, err
	}

	var rc *redis.Client
	if cfg.Ledger.Locker == "redis" || cfg.Ledger.Bus == "redis" {
		rc, err = redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			return nil, err
		}
		d.closers = append(d.closers, func() { _ = rc.Close() })
		logger.WithField("addr", cfg.Redis.Addr).Info("connected to redis")
	}

	switch cfg.Ledger.Locker {
	case "redis":
		d.locker = redis.NewLockManager(rc,
			redis.WithTTL(cfg.Redis.LockTTL.Duration),
			redis.WithKeyPrefix(cfg.Redis.KeyPrefix),
		)
	default:
		d.locker = lock.NewMemoryLocker()
	}

	switch cfg.Ledger.Bus {
	case "redis":
		d.bus = redis.NewEventBus(rc, cfg.Redis.EventStream)
	default:
		mb := events.NewMemoryBus()
		d.closers = append(d.closers, mb.Close)
		d.bus = mb
	}

	switch cfg.Ledger.Activity {
	case "clickhouse":
		var conn *chstore.Conn
		if cfg.ClickHouse.RunMigrations {
			conn, err = migrations.RunClickhouseMigrations(ctx, cfg.ClickHouse.DSN)
		} else {
			conn, err = chstore.NewConn(ctx, cfg.ClickHouse.DSN)
		}
		if err != nil {
			return nil, fmt.Errorf("clickhouse: %w", err)
		}
		d.closers = append(d.closers, func() { _ = conn.Close() })
		d.activity = chstore.NewActivityStore(conn)
		logger.Info("activity log on clickhouse")
	case "memory":
		d.activity = memory.NewActivityStore()
	}

	return d, nil
}

func (d *deps) openLedger(ctx context.Context, cfg *config.Config, logger *logrus.Logger) error {
	switch cfg.Ledger.Backend {
	case "postgres":
		pool, err := pgstore.NewPool(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConns)
		if err != nil {
			return err
		}
		d.closers = append(d.closers, pool.Close)
		if cfg.Postgres.RunMigrations {
			migrateCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()
			if err := migrations.RunPostgresMigrations(migrateCtx, pool); err != nil {
				return fmt.Errorf("postgres migrations: %w", err)
			}
		}
		d.ledger = pgstore.NewLedger(pool)
		logger.Info("ledger on postgres")

	case "badger":
		l, err := badgerstore.Open(badgerstore.OpenOptions{
			Path:     cfg.Badger.Path,
			InMemory: cfg.Badger.InMemory,
			Logger:   logger.WithField("component", "badger"),
		})
		if err != nil {
			return err
		}
		d.closers = append(d.closers, func() { _ = l.Close() })
		d.ledger = l
		logger.WithField("path", cfg.Badger.Path).Info("ledger on badger")

	default:
		d.ledger = memory.NewLedger()
		logger.Warn("ledger in memory; state is lost on exit")
	}
	return nil
}
