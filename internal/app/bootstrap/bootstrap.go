package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	governor "tokendao/contexts/treasury-governance/governor"
	"tokendao/contexts/treasury-governance/governor/adapters/memory"
	postgresadapter "tokendao/contexts/treasury-governance/governor/adapters/postgres"
	sqliteadapter "tokendao/contexts/treasury-governance/governor/adapters/sqlite"
	workerapp "tokendao/contexts/treasury-governance/governor/application/workers"
	"tokendao/contexts/treasury-governance/governor/ports"
	"tokendao/internal/platform/config"
	"tokendao/internal/platform/db"
	"tokendao/internal/platform/httpserver"
	"tokendao/internal/platform/messaging"
	"tokendao/internal/platform/metrics"
	platformotel "tokendao/internal/platform/otel"

	"golang.org/x/sync/errgroup"
)

// Package bootstrap is the composition root.
// Keep construction/wiring here so module code stays framework-agnostic.

type APIApp struct {
	server        *httpserver.Server
	runtime       *Runtime
	traceShutdown func(context.Context) error
	logger        *slog.Logger
}

type WorkerApp struct {
	runtime        *Runtime
	outboxRelay    workerapp.OutboxRelay
	keeper         *workerapp.ExecutionKeeper
	activity       *workerapp.ActivityConsumer
	bus            *messaging.Kafka
	outboxInterval time.Duration
	keeperInterval time.Duration
	traceShutdown  func(context.Context) error
	logger         *slog.Logger
}

// Runtime is a governor wired to the configured storage driver, plus the
// handles that must be released on shutdown.
type Runtime struct {
	Config  config.Config
	Module  governor.Module
	Outbox  ports.OutboxRepository
	Metrics *metrics.Governance
	Logger  *slog.Logger

	closers []io.Closer
}

func (r *Runtime) Close() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// NewLogger builds the process logger from LOG_FORMAT and LOG_LEVEL.
func NewLogger(cfg config.Config, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	level, err := cfg.SlogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.LogFormat == "text" {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}
	return slog.New(handler)
}

// BuildRuntime wires the governor against cfg.StorageDriver.
func BuildRuntime(ctx context.Context, cfg config.Config, logger *slog.Logger) (*Runtime, error) {
	if logger == nil {
		logger = slog.Default()
	}
	recorder := metrics.NewGovernance()
	runtime := &Runtime{
		Config:  cfg,
		Metrics: recorder,
		Logger:  logger,
	}
	settings := cfg.GovernorSettings()

	switch cfg.StorageDriver {
	case config.StorageMemory:
		ledger, err := loadLedger(cfg.LedgerSeedFile)
		if err != nil {
			return nil, err
		}
		module := governor.NewInMemoryModule(settings, ledger, recorder, logger)
		runtime.Module = module
		runtime.Outbox = module.Store

	case config.StoragePostgres:
		pg, err := db.Connect(cfg.PostgresDSN, logger)
		if err != nil {
			return nil, err
		}
		runtime.closers = append(runtime.closers, closerFunc(pg.Close))
		if err := postgresadapter.Migrate(ctx, pg.DB); err != nil {
			_ = runtime.Close()
			return nil, err
		}
		if err := postgresadapter.MigrateLedger(ctx, pg.DB); err != nil {
			_ = runtime.Close()
			return nil, err
		}
		repo := postgresadapter.NewRepository(pg.DB, logger)
		ledger := postgresadapter.NewLedger(pg.DB, settings.GovernanceToken, logger)
		runtime.Module = governor.NewModule(governor.Dependencies{
			Repository: repo,
			Oracle:     ledger,
			Treasury:   ledger,
			Clock:      postgresadapter.SystemClock{},
			IDGen:      postgresadapter.UUIDGenerator{},
			Settings:   settings,
			Recorder:   recorder,
			Logger:     logger,
		})
		runtime.Outbox = repo

	case config.StorageSQLite:
		store, err := sqliteadapter.Open(cfg.SQLitePath, logger)
		if err != nil {
			return nil, err
		}
		runtime.closers = append(runtime.closers, store)
		ledger := sqliteadapter.NewLedger(store, settings.GovernanceToken, logger)
		if err := seedSQLiteLedger(ctx, ledger, cfg.LedgerSeedFile); err != nil {
			_ = runtime.Close()
			return nil, err
		}
		runtime.Module = governor.NewModule(governor.Dependencies{
			Repository: store,
			Oracle:     ledger,
			Treasury:   ledger,
			Clock:      postgresadapter.SystemClock{},
			IDGen:      postgresadapter.UUIDGenerator{},
			Settings:   settings,
			Recorder:   recorder,
			Logger:     logger,
		})
		runtime.Outbox = store

	default:
		return nil, fmt.Errorf("unsupported STORAGE_DRIVER %q", cfg.StorageDriver)
	}

	logger.Info("governor runtime built",
		"event", "bootstrap_runtime_built",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"storage_driver", cfg.StorageDriver,
		"governance_token", settings.GovernanceToken,
		"quorum", settings.Quorum,
	)
	return runtime, nil
}

func loadLedger(seedFile string) (*memory.Ledger, error) {
	if strings.TrimSpace(seedFile) == "" {
		return memory.NewLedger(), nil
	}
	seed, err := memory.LoadLedgerSeed(seedFile)
	if err != nil {
		return nil, err
	}
	return memory.NewLedgerFromSeed(seed)
}

// seedSQLiteLedger loads the seed file into a database that has no ledger
// yet. Processes sharing the file all call it; only the first one writes.
func seedSQLiteLedger(ctx context.Context, ledger *sqliteadapter.Ledger, seedFile string) error {
	if strings.TrimSpace(seedFile) == "" {
		return nil
	}
	seed, err := memory.LoadLedgerSeed(seedFile)
	if err != nil {
		return err
	}
	seed, err = seed.Normalize()
	if err != nil {
		return err
	}
	_, err = ledger.Seed(ctx, seed.TotalSupply, seed.Treasury, seed.Balances)
	return err
}

func BuildAPI(ctx context.Context) (*APIApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := NewLogger(cfg, nil).With("service", cfg.ServiceName, "process", "api")

	traceShutdown, err := platformotel.Setup(ctx, cfg.ServiceName, cfg.OTELEndpoint)
	if err != nil {
		return nil, err
	}
	runtime, err := BuildRuntime(ctx, cfg, logger)
	if err != nil {
		_ = traceShutdown(ctx)
		return nil, err
	}

	server := httpserver.New(runtime.Module, runtime.Metrics.Handler(), logger, normalizeAddr(cfg.HTTPPort))
	return &APIApp{
		server:        server,
		runtime:       runtime,
		traceShutdown: traceShutdown,
		logger:        logger,
	}, nil
}

func BuildWorker(ctx context.Context) (*WorkerApp, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	logger := NewLogger(cfg, nil).With("service", cfg.ServiceName, "process", "worker")
	if cfg.StorageDriver == config.StorageMemory {
		return nil, errors.New("worker needs shared storage: set STORAGE_DRIVER to postgres or sqlite")
	}

	traceShutdown, err := platformotel.Setup(ctx, cfg.ServiceName, cfg.OTELEndpoint)
	if err != nil {
		return nil, err
	}
	runtime, err := BuildRuntime(ctx, cfg, logger)
	if err != nil {
		_ = traceShutdown(ctx)
		return nil, err
	}

	kafka, err := messaging.NewKafka(cfg.KafkaBrokers, logger)
	if err != nil {
		_ = runtime.Close()
		_ = traceShutdown(ctx)
		return nil, err
	}

	clock := postgresadapter.SystemClock{}
	return &WorkerApp{
		runtime: runtime,
		outboxRelay: workerapp.OutboxRelay{
			Outbox:    runtime.Outbox,
			Publisher: kafka,
			Clock:     clock,
			BatchSize: 100,
			Logger:    logger,
		},
		keeper: &workerapp.ExecutionKeeper{
			Repository: runtime.Repository(),
			Executor:   runtime.Module.Governor,
			Clock:      clock,
			Quorum:     cfg.GovernorSettings().Quorum,
			BatchSize:  50,
			Caller:     cfg.ServiceName + "-keeper",
			Logger:     logger,
		},
		activity: &workerapp.ActivityConsumer{
			Subscriber:    kafka,
			ConsumerGroup: cfg.ServiceName + "-activity",
			Logger:        logger,
		},
		bus:            kafka,
		outboxInterval: cfg.OutboxPollInterval,
		keeperInterval: cfg.KeeperPollInterval,
		traceShutdown:  traceShutdown,
		logger:         logger,
	}, nil
}

// Repository is the governor repository the runtime was wired with.
func (r *Runtime) Repository() ports.GovernorRepository {
	return r.Module.Governor.Repository
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests.
func (a *APIApp) Run(ctx context.Context) error {
	if a.logger != nil {
		a.logger.Info("api app started",
			"event", "bootstrap_api_started",
			"module", "internal/app/bootstrap",
			"layer", "platform",
		)
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(a.server.Start)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.server.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (a *APIApp) Close() error {
	var errs []error
	if a.runtime != nil {
		errs = append(errs, a.runtime.Close())
	}
	if a.traceShutdown != nil {
		errs = append(errs, a.traceShutdown(context.Background()))
	}
	return errors.Join(errs...)
}

// Run drives the outbox relay and the execution keeper on their own tickers
// and follows the relayed events. A failed pass is logged and retried on the
// next tick.
func (w *WorkerApp) Run(ctx context.Context) error {
	w.logger.Info("worker app started",
		"event", "bootstrap_worker_started",
		"module", "internal/app/bootstrap",
		"layer", "platform",
		"outbox_poll_interval", w.outboxInterval.String(),
		"keeper_poll_interval", w.keeperInterval.String(),
		"brokers", strings.Join(w.bus.Brokers(), ","),
	)

	g, gctx := errgroup.WithContext(ctx)
	if err := w.activity.Start(gctx); err != nil {
		return err
	}
	g.Go(func() error {
		return poll(gctx, w.outboxInterval, func(ctx context.Context) {
			_, _ = w.outboxRelay.RunOnce(ctx)
		})
	})
	g.Go(func() error {
		return poll(gctx, w.keeperInterval, func(ctx context.Context) {
			_, _ = w.keeper.RunOnce(ctx)
		})
	})
	return g.Wait()
}

func (w *WorkerApp) Close() error {
	var errs []error
	if w.runtime != nil {
		errs = append(errs, w.runtime.Close())
	}
	if w.traceShutdown != nil {
		errs = append(errs, w.traceShutdown(context.Background()))
	}
	return errors.Join(errs...)
}

func poll(ctx context.Context, interval time.Duration, pass func(context.Context)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		pass(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func normalizeAddr(port string) string {
	value := strings.TrimSpace(port)
	if value == "" {
		return ":8080"
	}
	if strings.HasPrefix(value, ":") {
		return value
	}
	return ":" + value
}
