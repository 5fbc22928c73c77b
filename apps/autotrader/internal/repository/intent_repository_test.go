package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"autotrader/apps/autotrader/internal/model"
)

func newIntent(kind model.IntentKind, at time.Time) model.Intent {
	next := at
	it := model.Intent{
		ID:             uuid.NewString(),
		UserID:         "user-1",
		WalletRef:      "wallet-1",
		TokenAddress:   "So11111111111111111111111111111111111111112",
		Kind:           kind,
		Status:         model.StatusPending,
		CreatedAt:      at,
		NextEligibleAt: &next,
	}
	switch kind {
	case model.KindLimit:
		it.Limit = &model.LimitParams{Side: model.SideSell, Amount: decimal.NewFromInt(2), TriggerPrice: decimal.RequireFromString("1.5")}
	case model.KindDCA:
		it.DCA = &model.DCAParams{TotalAmount: decimal.NewFromInt(4), Interval: time.Hour, PlannedOrders: 4}
	case model.KindCopyTrade:
		it.TokenAddress = ""
		it.NextEligibleAt = nil
		it.CopyTrade = &model.CopyTradeParams{TraderAddress: "trader-1", MaxAmountPerTrade: decimal.NewFromInt(1)}
	}
	return it
}

func TestIntentRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewIntentRepository(db, zap.NewNop())
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	t.Run("round trip keeps payload", func(t *testing.T) {
		it := newIntent(model.KindDCA, now)
		require.NoError(t, repo.Create(ctx, it))

		got, err := repo.Get(ctx, it.ID)
		require.NoError(t, err)
		assert.Equal(t, model.KindDCA, got.Kind)
		require.NotNil(t, got.DCA)
		assert.Equal(t, time.Hour, got.DCA.Interval)
		assert.Equal(t, 4, got.DCA.PlannedOrders)
		assert.True(t, got.DCA.TotalAmount.Equal(decimal.NewFromInt(4)))

		assert.ErrorIs(t, repo.Create(ctx, it), ErrDuplicateKey)
		_, err = repo.Get(ctx, "missing")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("concurrent claims never overlap", func(t *testing.T) {
		at := now.Add(time.Minute)
		for i := 0; i < 30; i++ {
			require.NoError(t, repo.Create(ctx, newIntent(model.KindLimit, at)))
		}

		var mu sync.Mutex
		seen := make(map[string]int)
		var wg sync.WaitGroup
		for w := 0; w < 6; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					claimed, err := repo.ClaimDue(ctx, at, 4)
					if err != nil || len(claimed) == 0 {
						return
					}
					mu.Lock()
					for _, it := range claimed {
						seen[it.ID]++
					}
					mu.Unlock()
				}
			}()
		}
		wg.Wait()

		assert.GreaterOrEqual(t, len(seen), 30)
		for id, n := range seen {
			assert.Equal(t, 1, n, "intent %s claimed twice", id)
		}
	})

	t.Run("no-op commit only moves last_evaluated_at", func(t *testing.T) {
		at := now.Add(2 * time.Hour)
		it := newIntent(model.KindLimit, at)
		require.NoError(t, repo.Create(ctx, it))
		before, err := repo.Get(ctx, it.ID)
		require.NoError(t, err)

		claimed, err := repo.ClaimDue(ctx, at, 100)
		require.NoError(t, err)
		require.NotEmpty(t, claimed)
		for _, c := range claimed {
			require.NoError(t, repo.Commit(ctx, c.ID, model.Outcome{Status: model.StatusPending, EvaluatedAt: at}))
		}

		after, err := repo.Get(ctx, it.ID)
		require.NoError(t, err)
		require.NotNil(t, after.LastEvaluatedAt)
		assert.True(t, after.LastEvaluatedAt.Equal(at))
		after.LastEvaluatedAt = before.LastEvaluatedAt
		assert.Equal(t, before, after)
	})

	t.Run("commit of unclaimed intent fails", func(t *testing.T) {
		it := newIntent(model.KindLimit, now.Add(48*time.Hour))
		require.NoError(t, repo.Create(ctx, it))
		err := repo.Commit(ctx, it.ID, model.Outcome{Status: model.StatusCompleted, EvaluatedAt: now})
		assert.ErrorIs(t, err, ErrNotProcessing)
	})

	t.Run("stale claims are reclaimed after threshold", func(t *testing.T) {
		at := now.Add(3 * time.Hour)
		it := newIntent(model.KindLimit, at)
		require.NoError(t, repo.Create(ctx, it))
		_, err := repo.ClaimDue(ctx, at, 100)
		require.NoError(t, err)

		_, err = repo.ReclaimStale(ctx, at.Add(4*time.Minute), 5*time.Minute)
		require.NoError(t, err)
		got, _ := repo.Get(ctx, it.ID)
		assert.Equal(t, model.StatusProcessing, got.Status)

		n, err := repo.ReclaimStale(ctx, at.Add(6*time.Minute), 5*time.Minute)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, n, 1)
		got, _ = repo.Get(ctx, it.ID)
		assert.Equal(t, model.StatusPending, got.Status)
		assert.Nil(t, got.ClaimedAt)
	})

	t.Run("dca progress and copy-trade signals", func(t *testing.T) {
		at := now.Add(4 * time.Hour)
		ct := newIntent(model.KindCopyTrade, at)
		ct.CopyTrade.TraderAddress = "trader-" + ct.ID
		require.NoError(t, repo.Create(ctx, ct))

		n, err := repo.AppendSignal(ctx, ct.CopyTrade.TraderAddress, model.TradeSignal{Signature: "sig-1", Amount: decimal.NewFromInt(3)}, at)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		_, err = repo.AppendSignal(ctx, ct.CopyTrade.TraderAddress, model.TradeSignal{Signature: "sig-2", Amount: decimal.NewFromInt(1)}, at)
		require.NoError(t, err)
		n, err = repo.AppendSignal(ctx, ct.CopyTrade.TraderAddress, model.TradeSignal{Signature: "sig-1", Amount: decimal.NewFromInt(3)}, at)
		require.NoError(t, err)
		assert.Zero(t, n, "signature already queued")

		got, err := repo.Get(ctx, ct.ID)
		require.NoError(t, err)
		require.Len(t, got.CopyTrade.Signals, 2)
		require.NotNil(t, got.NextEligibleAt)

		claimed, err := repo.ClaimDue(ctx, at, 100)
		require.NoError(t, err)
		for _, c := range claimed {
			o := model.Outcome{Status: model.StatusPending, EvaluatedAt: at, ConsumeSignal: c.Kind == model.KindCopyTrade}
			require.NoError(t, repo.Commit(ctx, c.ID, o))
		}
		got, err = repo.Get(ctx, ct.ID)
		require.NoError(t, err)
		require.Len(t, got.CopyTrade.Signals, 1)
		assert.Equal(t, "sig-2", got.CopyTrade.Signals[0].Signature)
		assert.NotNil(t, got.NextEligibleAt)

		dca := newIntent(model.KindDCA, at.Add(time.Hour))
		require.NoError(t, repo.Create(ctx, dca))
		_, err = repo.ClaimDue(ctx, at.Add(time.Hour), 100)
		require.NoError(t, err)
		executed := 1
		last := at.Add(time.Hour)
		next := last.Add(time.Hour)
		ref := "trade-dca-1"
		require.NoError(t, repo.Commit(ctx, dca.ID, model.Outcome{
			Status: model.StatusPending, EvaluatedAt: last, ExecutedOrders: &executed,
			LastExecutedAt: &last, NextEligibleAt: &next, TradeRef: &ref,
		}))
		got, err = repo.Get(ctx, dca.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.DCA.ExecutedOrders)
		assert.True(t, got.DCA.LastExecutedAt.Equal(last))
		assert.True(t, got.NextEligibleAt.Equal(next))
		assert.Equal(t, "trade-dca-1", *got.TradeRef)

		// a skipped firing records its reason until the next successful one
		_, err = repo.ClaimDue(ctx, next, 100)
		require.NoError(t, err)
		reason := "insufficient funds"
		skipNext := next.Add(time.Hour)
		require.NoError(t, repo.Commit(ctx, dca.ID, model.Outcome{
			Status: model.StatusPending, EvaluatedAt: next, LastExecutedAt: &next,
			NextEligibleAt: &skipNext, FailureReason: &reason,
		}))
		got, err = repo.Get(ctx, dca.ID)
		require.NoError(t, err)
		require.NotNil(t, got.FailureReason)
		assert.Equal(t, reason, *got.FailureReason)

		_, err = repo.ClaimDue(ctx, skipNext, 100)
		require.NoError(t, err)
		executed = 2
		ref = "trade-dca-2"
		require.NoError(t, repo.Commit(ctx, dca.ID, model.Outcome{
			Status: model.StatusPending, EvaluatedAt: skipNext, ExecutedOrders: &executed,
			LastExecutedAt: &skipNext, TradeRef: &ref, ClearFailureReason: true,
		}))
		got, err = repo.Get(ctx, dca.ID)
		require.NoError(t, err)
		assert.Nil(t, got.FailureReason)
		assert.Equal(t, 2, got.DCA.ExecutedOrders)
	})

	t.Run("cancel and find by user", func(t *testing.T) {
		it := newIntent(model.KindLimit, now.Add(72*time.Hour))
		it.UserID = "user-cancel"
		require.NoError(t, repo.Create(ctx, it))

		_, err := repo.Cancel(ctx, it.ID, "intruder")
		assert.ErrorIs(t, err, ErrNotFound)

		changed, err := repo.Cancel(ctx, it.ID, "user-cancel")
		require.NoError(t, err)
		assert.True(t, changed)
		changed, err = repo.Cancel(ctx, it.ID, "user-cancel")
		require.NoError(t, err)
		assert.False(t, changed)

		list, err := repo.FindByUser(ctx, "user-cancel")
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, model.StatusCancelled, list[0].Status)
	})
}
