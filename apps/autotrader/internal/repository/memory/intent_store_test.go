package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"autotrader/apps/autotrader/internal/model"
	"autotrader/apps/autotrader/internal/repository"
)

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func limitIntent(id string) model.Intent {
	next := t0
	return model.Intent{
		ID:             id,
		UserID:         "user-1",
		WalletRef:      "wallet-1",
		TokenAddress:   "token",
		Kind:           model.KindLimit,
		Status:         model.StatusPending,
		CreatedAt:      t0,
		NextEligibleAt: &next,
		Limit: &model.LimitParams{
			Side:         model.SideBuy,
			Amount:       decimal.NewFromInt(1),
			TriggerPrice: decimal.NewFromInt(10),
		},
	}
}

func TestClaimDueIsExclusiveUnderConcurrency(t *testing.T) {
	ctx := context.Background()
	store := NewIntentStore()
	for i := 0; i < 50; i++ {
		require.NoError(t, store.Create(ctx, limitIntent(fmt.Sprintf("intent-%02d", i))))
	}

	var mu sync.Mutex
	seen := make(map[string]int)
	var wg sync.WaitGroup
	for w := 0; w < 10; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				claimed, err := store.ClaimDue(ctx, t0, 3)
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

	assert.Len(t, seen, 50)
	for id, n := range seen {
		assert.Equal(t, 1, n, "intent %s claimed %d times", id, n)
	}
}

func TestClaimDueRespectsEligibility(t *testing.T) {
	ctx := context.Background()
	store := NewIntentStore()

	later := limitIntent("later")
	future := t0.Add(time.Hour)
	later.NextEligibleAt = &future
	require.NoError(t, store.Create(ctx, later))

	dormant := limitIntent("dormant")
	dormant.NextEligibleAt = nil
	require.NoError(t, store.Create(ctx, dormant))

	claimed, err := store.ClaimDue(ctx, t0, 10)
	require.NoError(t, err)
	assert.Empty(t, claimed)

	claimed, err = store.ClaimDue(ctx, future, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, "later", claimed[0].ID)
	assert.Equal(t, model.StatusProcessing, claimed[0].Status)
}

func TestCommitRequiresClaim(t *testing.T) {
	ctx := context.Background()
	store := NewIntentStore()
	require.NoError(t, store.Create(ctx, limitIntent("a")))

	err := store.Commit(ctx, "a", model.Outcome{Status: model.StatusCompleted, EvaluatedAt: t0})
	assert.ErrorIs(t, err, repository.ErrNotProcessing)

	_, err = store.ClaimDue(ctx, t0, 1)
	require.NoError(t, err)
	ref := "trade-1"
	require.NoError(t, store.Commit(ctx, "a", model.Outcome{Status: model.StatusCompleted, EvaluatedAt: t0, TradeRef: &ref}))

	err = store.Commit(ctx, "a", model.Outcome{Status: model.StatusCompleted, EvaluatedAt: t0})
	assert.ErrorIs(t, err, repository.ErrNotProcessing)

	got, err := store.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
	assert.Equal(t, "trade-1", *got.TradeRef)
	assert.Nil(t, got.ClaimedAt)
}

func TestReclaimStaleHonoursThreshold(t *testing.T) {
	ctx := context.Background()
	store := NewIntentStore()
	require.NoError(t, store.Create(ctx, limitIntent("a")))
	_, err := store.ClaimDue(ctx, t0, 1)
	require.NoError(t, err)

	n, err := store.ReclaimStale(ctx, t0.Add(5*time.Minute), 5*time.Minute)
	require.NoError(t, err)
	assert.Zero(t, n)
	got, _ := store.Get(ctx, "a")
	assert.Equal(t, model.StatusProcessing, got.Status)

	n, err = store.ReclaimStale(ctx, t0.Add(5*time.Minute+time.Second), 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, _ = store.Get(ctx, "a")
	assert.Equal(t, model.StatusPending, got.Status)

	claimed, err := store.ClaimDue(ctx, t0.Add(6*time.Minute), 1)
	require.NoError(t, err)
	assert.Len(t, claimed, 1)
}

func TestCancel(t *testing.T) {
	ctx := context.Background()
	store := NewIntentStore()
	require.NoError(t, store.Create(ctx, limitIntent("a")))
	require.NoError(t, store.Create(ctx, limitIntent("b")))

	_, err := store.Cancel(ctx, "a", "someone-else")
	assert.ErrorIs(t, err, repository.ErrNotFound)

	changed, err := store.Cancel(ctx, "a", "user-1")
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = store.Cancel(ctx, "a", "user-1")
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = store.ClaimDue(ctx, t0, 10)
	require.NoError(t, err)
	_, err = store.Cancel(ctx, "b", "user-1")
	assert.ErrorIs(t, err, repository.ErrIntentBusy)
}

func TestAppendSignalQueuesAndConsumes(t *testing.T) {
	ctx := context.Background()
	store := NewIntentStore()
	ct := model.Intent{
		ID: "ct", UserID: "user-1", WalletRef: "wallet-1", Kind: model.KindCopyTrade,
		Status: model.StatusPending, CreatedAt: t0,
		CopyTrade: &model.CopyTradeParams{TraderAddress: "trader", MaxAmountPerTrade: decimal.NewFromInt(1)},
	}
	require.NoError(t, store.Create(ctx, ct))

	n, err := store.AppendSignal(ctx, "nobody", model.TradeSignal{Signature: "x"}, t0)
	require.NoError(t, err)
	assert.Zero(t, n)

	for _, sig := range []string{"s1", "s2"} {
		n, err = store.AppendSignal(ctx, "trader", model.TradeSignal{Signature: sig}, t0)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	}

	// redelivered event
	n, err = store.AppendSignal(ctx, "trader", model.TradeSignal{Signature: "s1"}, t0)
	require.NoError(t, err)
	assert.Zero(t, n)

	claimed, err := store.ClaimDue(ctx, t0, 10)
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.Len(t, claimed[0].CopyTrade.Signals, 2)
	assert.Equal(t, "s1", claimed[0].CopyTrade.Signals[0].Signature)

	require.NoError(t, store.Commit(ctx, "ct", model.Outcome{Status: model.StatusPending, EvaluatedAt: t0, ConsumeSignal: true}))
	got, _ := store.Get(ctx, "ct")
	require.Len(t, got.CopyTrade.Signals, 1)
	assert.Equal(t, "s2", got.CopyTrade.Signals[0].Signature)
	require.NotNil(t, got.NextEligibleAt)

	_, err = store.ClaimDue(ctx, t0, 10)
	require.NoError(t, err)
	require.NoError(t, store.Commit(ctx, "ct", model.Outcome{Status: model.StatusPending, EvaluatedAt: t0, ConsumeSignal: true}))
	got, _ = store.Get(ctx, "ct")
	assert.Empty(t, got.CopyTrade.Signals)
	assert.Nil(t, got.NextEligibleAt)
}
