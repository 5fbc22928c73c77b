// Package scheduler runs the recurring evaluation loop: claim due intents, observe
// the market, evaluate, execute, commit and notify.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"autotrader/apps/autotrader/internal/executor"
	"autotrader/apps/autotrader/internal/ledger"
	"autotrader/apps/autotrader/internal/metrics"
	"autotrader/apps/autotrader/internal/model"
	"autotrader/apps/autotrader/internal/notifier"
	"autotrader/apps/autotrader/internal/oracle"
	"autotrader/apps/autotrader/internal/repository"
)

var (
	ErrTickInProgress = errors.New("tick already in progress")
	ErrDrainTimeout   = errors.New("timed out waiting for in-flight intents")
	ErrStopped        = errors.New("scheduler stopped")
)

type Deps struct {
	Store    repository.IntentStore
	Wallets  repository.WalletStore
	Users    repository.UserStore
	Oracle   oracle.Oracle
	Ledger   ledger.Ledger
	Executor executor.Executor
	Notifier notifier.Notifier
	Metrics  *metrics.Metrics
}

type Scheduler struct {
	store    repository.IntentStore
	wallets  repository.WalletStore
	users    repository.UserStore
	oracle   oracle.Oracle
	ledger   ledger.Ledger
	executor executor.Executor
	notifier notifier.Notifier
	metrics  *metrics.Metrics
	logger   *zap.Logger
	cfg      Config
	now      func() time.Time

	tickMu sync.Mutex // held for the duration of a tick

	// work outlives Stop until the drain timeout so in-flight intents can commit
	work       context.Context
	cancelWork context.CancelFunc
	running    atomic.Bool
	stopOnce   sync.Once
	stopCh     chan struct{}
	doneCh     chan struct{}
}

// TickReport summarizes one pass.
type TickReport struct {
	Reclaimed int
	Claimed   int
	Fired     int
	Committed int
}

func New(deps Deps, cfg Config, logger *zap.Logger) *Scheduler {
	if deps.Metrics == nil {
		deps.Metrics = metrics.New(nil)
	}
	work, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		store:      deps.Store,
		wallets:    deps.Wallets,
		users:      deps.Users,
		oracle:     deps.Oracle,
		ledger:     deps.Ledger,
		executor:   deps.Executor,
		notifier:   deps.Notifier,
		metrics:    deps.Metrics,
		logger:     logger,
		cfg:        cfg.withDefaults(),
		now:        time.Now,
		work:       work,
		cancelWork: cancel,
		stopCh:     make(chan struct{}),
		doneCh:     make(chan struct{}),
	}
}

// Run ticks every TickInterval until ctx is cancelled or Stop is called. It
// sweeps stale claims and runs a first tick immediately.
func (s *Scheduler) Run(ctx context.Context) {
	s.running.Store(true)
	defer close(s.doneCh)

	s.logger.Info("Starting scheduler",
		zap.Duration("tick_interval", s.cfg.TickInterval),
		zap.Int("batch_size", s.cfg.BatchSize),
		zap.Int("workers", s.cfg.Workers))

	if n, err := s.Sweep(s.work); err != nil {
		s.logger.Error("Startup sweep failed", zap.Error(err))
	} else if n > 0 {
		s.logger.Info("Reclaimed stale intents at startup", zap.Int("count", n))
	}

	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	s.runTick()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.runTick()
		}
	}
}

func (s *Scheduler) runTick() {
	report, err := s.Tick(s.work)
	switch {
	case errors.Is(err, ErrStopped):
	case errors.Is(err, ErrTickInProgress):
		s.logger.Warn("Skipping tick, previous tick still running")
	case err != nil:
		s.logger.Error("Tick aborted", zap.Error(err))
	case report.Claimed > 0:
		s.logger.Info("Tick completed",
			zap.Int("claimed", report.Claimed),
			zap.Int("fired", report.Fired),
			zap.Int("committed", report.Committed),
			zap.Int("reclaimed", report.Reclaimed))
	}
}

// Stop stops claiming and waits for the running tick. After DrainTimeout the
// in-flight work is cancelled; unfinished claims are left to the sweeper.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.stopOnce.Do(func() { close(s.stopCh) })
	if !s.running.Load() {
		s.cancelWork()
		return nil
	}

	timer := time.NewTimer(s.cfg.DrainTimeout)
	defer timer.Stop()

	select {
	case <-s.doneCh:
		s.cancelWork()
		s.logger.Info("Scheduler stopped")
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}

	s.cancelWork()
	<-s.doneCh
	s.logger.Warn("Scheduler stopped before in-flight intents finished")
	return ErrDrainTimeout
}

// Sweep returns stale processing intents to pending.
func (s *Scheduler) Sweep(ctx context.Context) (int, error) {
	n, err := s.store.ReclaimStale(ctx, s.now().UTC(), s.cfg.StaleThreshold)
	if err != nil {
		return 0, fmt.Errorf("failed to reclaim stale intents: %w", err)
	}
	if n > 0 {
		s.metrics.StaleReclaimed.Add(float64(n))
		s.logger.Info("Reclaimed stale intents", zap.Int("count", n), zap.Duration("threshold", s.cfg.StaleThreshold))
	}
	return n, nil
}

// Tick runs one full pass. It is also the admin "run now" entry point and fails
// with ErrTickInProgress instead of overlapping a running pass.
func (s *Scheduler) Tick(ctx context.Context) (TickReport, error) {
	if !s.tickMu.TryLock() {
		s.metrics.TicksTotal.WithLabelValues("skipped").Inc()
		return TickReport{}, ErrTickInProgress
	}
	defer s.tickMu.Unlock()

	start := time.Now()
	defer func() { s.metrics.TickDuration.Observe(time.Since(start).Seconds()) }()

	var report TickReport
	reclaimed, err := s.Sweep(ctx)
	if err != nil {
		s.metrics.TicksTotal.WithLabelValues("aborted").Inc()
		return report, err
	}
	report.Reclaimed = reclaimed

	// no new claims once Stop has been called
	if s.stopped() {
		s.metrics.TicksTotal.WithLabelValues("stopped").Inc()
		return report, ErrStopped
	}

	now := s.now().UTC()
	claimed, err := s.store.ClaimDue(ctx, now, s.cfg.BatchSize)
	if err != nil {
		s.metrics.TicksTotal.WithLabelValues("aborted").Inc()
		return report, fmt.Errorf("failed to claim due intents: %w", err)
	}
	report.Claimed = len(claimed)
	s.metrics.IntentsClaimed.Add(float64(len(claimed)))

	cache := newObservationCache(s.oracle, s.metrics, s.cfg.MaxStaleness)

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(s.cfg.Workers)
	for _, intent := range claimed {
		g.Go(func() error {
			res := s.process(ctx, intent, now, cache)
			mu.Lock()
			if res.fired {
				report.Fired++
			}
			if res.committed {
				report.Committed++
			}
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	s.metrics.TicksTotal.WithLabelValues("ok").Inc()
	return report, nil
}

func (s *Scheduler) stopped() bool {
	select {
	case <-s.stopCh:
		return true
	default:
		return false
	}
}

type processResult struct {
	fired     bool
	committed bool
}

func intentFields(intent model.Intent) []zap.Field {
	return []zap.Field{
		zap.String("intent_id", intent.ID),
		zap.String("user_id", intent.UserID),
		zap.String("kind", string(intent.Kind)),
	}
}
