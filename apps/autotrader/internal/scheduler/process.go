package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"autotrader/apps/autotrader/internal/evaluator"
	"autotrader/apps/autotrader/internal/executor"
	"autotrader/apps/autotrader/internal/model"
	"autotrader/apps/autotrader/internal/repository"
)

var errWalletMissing = errors.New("wallet not found")

func (s *Scheduler) process(ctx context.Context, intent model.Intent, now time.Time, cache *observationCache) processResult {
	log := s.logger.With(intentFields(intent)...)

	var obs *model.Observation
	if evaluator.NeedsObservation(intent) && !expired(intent, now) {
		o, err := cache.observe(ctx, intent.TokenAddress, now)
		if err != nil {
			log.Warn("Market observation unavailable, retrying next tick",
				zap.String("token_address", intent.TokenAddress),
				zap.Error(err))
			return processResult{committed: s.commit(ctx, log, intent, model.Outcome{Status: model.StatusPending, EvaluatedAt: now})}
		}
		obs = &o
	}

	decision := evaluator.Evaluate(intent, obs, now)
	switch decision.Action {
	case evaluator.Expire:
		reason := decision.Reason
		ok := s.commit(ctx, log, intent, model.Outcome{Status: model.StatusExpired, EvaluatedAt: now, FailureReason: &reason})
		if ok {
			s.notify(ctx, log, intent.UserID, expiredMessage(intent))
		}
		return processResult{committed: ok}
	case evaluator.Fire:
		s.metrics.IntentsFired.WithLabelValues(string(intent.Kind)).Inc()
		log.Info("Intent fired",
			zap.String("side", string(decision.Side)),
			zap.String("amount", decision.Amount.String()),
			zap.String("token_address", decision.TokenAddress))
		return processResult{fired: true, committed: s.fire(ctx, log, intent, decision, now)}
	}

	// a new firing starts with a full retry budget
	zero := 0
	outcome := model.Outcome{Status: model.StatusPending, EvaluatedAt: now, RetryCount: &zero}
	if intent.Kind == model.KindCopyTrade {
		// an unusable signal is dropped, and an empty queue parks the intent
		outcome.ConsumeSignal = true
	}
	log.Debug("Intent not triggered", zap.String("reason", decision.Reason))
	return processResult{committed: s.commit(ctx, log, intent, outcome)}
}

func (s *Scheduler) fire(ctx context.Context, log *zap.Logger, intent model.Intent, d evaluator.Decision, now time.Time) bool {
	wallet, err := s.resolveWallet(ctx, intent)
	switch {
	case errors.Is(err, errWalletMissing) && intent.Kind == model.KindDCA:
		log.Warn("Wallet not found, DCA order stays pending", zap.String("wallet_ref", intent.WalletRef))
		return s.commit(ctx, log, intent, model.Outcome{Status: model.StatusPending, EvaluatedAt: now})
	case errors.Is(err, errWalletMissing), errors.Is(err, executor.ErrInvalidWallet):
		return s.failIntent(ctx, log, intent, now, err.Error())
	case err != nil:
		log.Warn("Wallet lookup failed, retrying next tick", zap.Error(err))
		return s.commit(ctx, log, intent, model.Outcome{Status: model.StatusPending, EvaluatedAt: now})
	}

	order := executor.Order{
		ClientOrderID: clientOrderID(intent),
		WalletAddress: wallet.Address,
		SignerRef:     wallet.SignerRef,
		TokenAddress:  d.TokenAddress,
		Side:          d.Side,
		Amount:        d.Amount,
		Slippage:      s.slippage(ctx, intent.UserID),
	}

	trade, err := s.execute(ctx, order)
	switch {
	case err == nil:
		return s.succeed(ctx, log, intent, order, trade, now)
	case errors.Is(err, executor.ErrInvalidWallet):
		return s.failIntent(ctx, log, intent, now, executor.Reason(err))
	case executor.IsTerminal(err):
		log.Error("Trade rejected", zap.String("client_order_id", order.ClientOrderID), zap.Error(err))
		return s.failFiring(ctx, log, intent, now, executor.Reason(err))
	}
	return s.retry(ctx, log, intent, order, now, err)
}

func (s *Scheduler) resolveWallet(ctx context.Context, intent model.Intent) (*model.Wallet, error) {
	wallet, err := s.wallets.GetWallet(ctx, intent.WalletRef)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, errWalletMissing
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load wallet %s: %w", intent.WalletRef, err)
	}
	if wallet.UserID != intent.UserID {
		return nil, errWalletMissing
	}
	if err := model.ValidateWalletAddress(wallet.Address); err != nil {
		return nil, fmt.Errorf("%w: %v", executor.ErrInvalidWallet, err)
	}
	return wallet, nil
}

func (s *Scheduler) slippage(ctx context.Context, userID string) decimal.Decimal {
	user, err := s.users.GetUser(ctx, userID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			s.logger.Warn("Failed to load user settings, using default slippage", zap.String("user_id", userID), zap.Error(err))
		}
		return model.DefaultSlippage
	}
	return user.Settings.Slippage
}

// execute checks the wallet balance for buys before submitting.
func (s *Scheduler) execute(ctx context.Context, order executor.Order) (executor.Trade, error) {
	if order.Side == model.SideBuy {
		balance, err := s.ledger.Balance(ctx, order.WalletAddress)
		if err != nil {
			return executor.Trade{}, fmt.Errorf("%w: balance lookup: %w", executor.ErrSubmissionFailed, err)
		}
		if balance.LessThan(order.Amount) {
			return executor.Trade{}, fmt.Errorf("%w: balance %s below %s", executor.ErrInsufficientFunds, balance, order.Amount)
		}
	}

	start := time.Now()
	trade, err := s.executor.Execute(ctx, order)
	s.metrics.ExecutionLatency.Observe(time.Since(start).Seconds())
	return trade, err
}

func (s *Scheduler) succeed(ctx context.Context, log *zap.Logger, intent model.Intent, order executor.Order, trade executor.Trade, now time.Time) bool {
	ref := trade.Ref
	zero := 0
	outcome := model.Outcome{
		Status:             model.StatusCompleted,
		EvaluatedAt:        now,
		RetryCount:         &zero,
		TradeRef:           &ref,
		ClearFailureReason: true,
	}

	switch intent.Kind {
	case model.KindDCA:
		executed := intent.DCA.ExecutedOrders + 1
		next := now.Add(intent.DCA.Interval)
		outcome.ExecutedOrders = &executed
		outcome.LastExecutedAt = &now
		outcome.NextEligibleAt = &next
		if executed < intent.DCA.PlannedOrders {
			outcome.Status = model.StatusPending
		}
	case model.KindCopyTrade:
		outcome.Status = model.StatusPending
		outcome.ConsumeSignal = true
	}

	log.Info("Trade executed",
		zap.String("trade_ref", ref),
		zap.String("client_order_id", order.ClientOrderID),
		zap.String("status", string(outcome.Status)))
	ok := s.commit(ctx, log, intent, outcome)
	if ok {
		s.notify(ctx, log, intent.UserID, successMessage(intent, order, ref))
	}
	return ok
}

// failFiring records a terminal failure of one firing. Recurring kinds survive it.
func (s *Scheduler) failFiring(ctx context.Context, log *zap.Logger, intent model.Intent, now time.Time, reason string) bool {
	zero := 0
	switch intent.Kind {
	case model.KindDCA:
		next := now.Add(intent.DCA.Interval)
		ok := s.commit(ctx, log, intent, model.Outcome{
			Status:         model.StatusPending,
			EvaluatedAt:    now,
			NextEligibleAt: &next,
			RetryCount:     &zero,
			FailureReason:  &reason,
			LastExecutedAt: &now,
		})
		if ok {
			s.notify(ctx, log, intent.UserID, dcaSkippedMessage(intent, reason))
		}
		return ok
	case model.KindCopyTrade:
		ok := s.commit(ctx, log, intent, model.Outcome{
			Status:        model.StatusPending,
			EvaluatedAt:   now,
			RetryCount:    &zero,
			FailureReason: &reason,
			ConsumeSignal: true,
		})
		if ok {
			s.notify(ctx, log, intent.UserID, failureMessage(intent, reason))
		}
		return ok
	}
	return s.failIntent(ctx, log, intent, now, reason)
}

func (s *Scheduler) failIntent(ctx context.Context, log *zap.Logger, intent model.Intent, now time.Time, reason string) bool {
	log.Error("Intent failed", zap.String("reason", reason))
	ok := s.commit(ctx, log, intent, model.Outcome{Status: model.StatusFailed, EvaluatedAt: now, FailureReason: &reason})
	if ok {
		s.notify(ctx, log, intent.UserID, failureMessage(intent, reason))
	}
	return ok
}

// retry schedules another attempt of the same order after a transient failure,
// or gives up once MaxAttempts is reached.
func (s *Scheduler) retry(ctx context.Context, log *zap.Logger, intent model.Intent, order executor.Order, now time.Time, cause error) bool {
	attempt := intent.RetryCount + 1
	if attempt >= s.cfg.MaxAttempts {
		log.Error("Execution retries exhausted",
			zap.Int("attempts", attempt),
			zap.String("client_order_id", order.ClientOrderID),
			zap.Error(cause))
		return s.failFiring(ctx, log, intent, now, fmt.Sprintf("%s after %d attempts", executor.Reason(cause), attempt))
	}

	backoff := s.cfg.Backoff(attempt)
	next := now.Add(backoff)
	s.metrics.ExecutionRetries.Inc()
	log.Warn("Execution failed, scheduling retry",
		zap.Int("attempt", attempt),
		zap.Duration("backoff", backoff),
		zap.String("client_order_id", order.ClientOrderID),
		zap.Error(cause))
	return s.commit(ctx, log, intent, model.Outcome{
		Status:         model.StatusPending,
		EvaluatedAt:    now,
		NextEligibleAt: &next,
		RetryCount:     &attempt,
	})
}

func (s *Scheduler) commit(ctx context.Context, log *zap.Logger, intent model.Intent, outcome model.Outcome) bool {
	if err := s.store.Commit(ctx, intent.ID, outcome); err != nil {
		if errors.Is(err, repository.ErrNotProcessing) {
			log.Warn("Claim lost before commit", zap.Error(err))
		} else {
			log.Error("Failed to commit intent outcome", zap.String("status", string(outcome.Status)), zap.Error(err))
		}
		return false
	}
	s.metrics.IntentOutcomes.WithLabelValues(string(intent.Kind), string(outcome.Status)).Inc()
	return true
}

func (s *Scheduler) notify(ctx context.Context, log *zap.Logger, userID, message string) {
	if err := s.notifier.Notify(ctx, userID, message); err != nil {
		s.metrics.NotificationFailures.Inc()
		log.Warn("Failed to notify user", zap.Error(err))
	}
}

func expired(intent model.Intent, now time.Time) bool {
	return intent.ExpiresAt != nil && !now.Before(*intent.ExpiresAt)
}

// clientOrderID is stable across retries of one firing.
func clientOrderID(intent model.Intent) string {
	switch intent.Kind {
	case model.KindDCA:
		return fmt.Sprintf("%s:%d", intent.ID, intent.DCA.ExecutedOrders+1)
	case model.KindCopyTrade:
		if len(intent.CopyTrade.Signals) > 0 {
			return fmt.Sprintf("%s:%s", intent.ID, intent.CopyTrade.Signals[0].Signature)
		}
	}
	return intent.ID + ":1"
}
