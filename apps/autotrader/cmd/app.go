package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"strings"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"autotrader/apps/autotrader/internal/config"
	"autotrader/apps/autotrader/internal/executor"
	"autotrader/apps/autotrader/internal/ledger"
	"autotrader/apps/autotrader/internal/metrics"
	"autotrader/apps/autotrader/internal/notifier"
	"autotrader/apps/autotrader/internal/oracle"
	"autotrader/apps/autotrader/internal/repository"
	"autotrader/apps/autotrader/internal/scheduler"
)

// app holds the shared components every command runs against.
type app struct {
	cfg       *config.Config
	logger    *zap.Logger
	db        *sql.DB
	metrics   *metrics.Metrics
	intents   *repository.IntentRepository
	users     *repository.UserRepository
	outbox    *repository.NotificationRepository
	scheduler *scheduler.Scheduler
	closers   []func()
}

func withApp(ctx context.Context, run func(context.Context, *app) error) error {
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger, err := newLogger(cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to start", zap.Error(err))
		return err
	}
	defer a.close()

	return run(ctx, a)
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(lvl)
	return zc.Build()
}

func newApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	logger.Info("Starting application with configuration",
		zap.Int("api_port", cfg.Server.Port),
		zap.String("kafka_broker", cfg.Kafka.Broker),
		zap.String("oracle_url", cfg.Oracle.BaseURL),
		zap.String("ledger_rpc_url", cfg.Ledger.RPCURL),
		zap.String("executor_rpc_url", cfg.Executor.RPCURL),
		zap.Duration("tick_interval", cfg.Scheduler.TickInterval),
	)

	a := &app{cfg: cfg, logger: logger}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	a.closers = append(a.closers, func() { db.Close() })
	if err := db.PingContext(ctx); err != nil {
		a.close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	a.db = db

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	a.metrics = metrics.New(reg)

	a.intents = repository.NewIntentRepository(db, logger)
	a.users = repository.NewUserRepository(db, logger)
	a.outbox = repository.NewNotificationRepository(db, logger)

	priceOracle := oracle.NewHTTPOracle(cfg.Oracle.BaseURL, logger,
		oracle.WithHTTPClient(&http.Client{Timeout: cfg.Oracle.Timeout}),
		oracle.WithRateLimit(cfg.Oracle.RPS, cfg.Oracle.Burst),
	)

	balances, err := ledger.Dial(ctx, cfg.Ledger.RPCURL, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	a.closers = append(a.closers, balances.Close)

	trades, err := executor.Dial(ctx, cfg.Executor.RPCURL, cfg.Executor.Timeout, logger)
	if err != nil {
		a.close()
		return nil, err
	}
	a.closers = append(a.closers, trades.Close)

	a.scheduler = scheduler.New(scheduler.Deps{
		Store:    a.intents,
		Wallets:  a.users,
		Users:    a.users,
		Oracle:   priceOracle,
		Ledger:   balances,
		Executor: trades,
		Notifier: notifier.NewOutboxNotifier(a.outbox, logger),
		Metrics:  a.metrics,
	}, cfg.SchedulerConfig(), logger)

	return a, nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
