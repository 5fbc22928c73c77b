package scheduler

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"sync"
	"testing"
	"time"

	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"autotrader/apps/autotrader/internal/executor"
	"autotrader/apps/autotrader/internal/metrics"
	"autotrader/apps/autotrader/internal/model"
	"autotrader/apps/autotrader/internal/oracle"
	"autotrader/apps/autotrader/internal/repository/memory"
)

type fakeOracle struct {
	mu    sync.Mutex
	obs   map[string]model.Observation
	err   error
	calls map[string]int
}

func (o *fakeOracle) Observe(_ context.Context, token string) (model.Observation, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.calls[token]++
	if o.err != nil {
		return model.Observation{}, o.err
	}
	obs, ok := o.obs[token]
	if !ok {
		return model.Observation{}, oracle.ErrUnknownToken
	}
	return obs, nil
}

func (o *fakeOracle) callCount(token string) int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.calls[token]
}

type fakeLedger struct {
	mu      sync.Mutex
	balance decimal.Decimal
	err     error
}

func (l *fakeLedger) Balance(_ context.Context, _ string) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance, l.err
}

type fakeExecutor struct {
	mu     sync.Mutex
	orders []executor.Order
	fn     func(ctx context.Context, order executor.Order) (executor.Trade, error)
}

func (e *fakeExecutor) Execute(ctx context.Context, order executor.Order) (executor.Trade, error) {
	e.mu.Lock()
	e.orders = append(e.orders, order)
	fn := e.fn
	e.mu.Unlock()

	if fn != nil {
		return fn(ctx, order)
	}
	return executor.Trade{Ref: "trade-" + order.ClientOrderID}, nil
}

func (e *fakeExecutor) submitted() []executor.Order {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]executor.Order(nil), e.orders...)
}

type fakeNotifier struct {
	mu       sync.Mutex
	messages map[string][]string
}

func (n *fakeNotifier) Notify(_ context.Context, userID, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.messages[userID] = append(n.messages[userID], message)
	return nil
}

func (n *fakeNotifier) sent(userID string) []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.messages[userID]...)
}

type harness struct {
	t        *testing.T
	ctx      context.Context
	store    *memory.IntentStore
	users    *memory.UserStore
	oracle   *fakeOracle
	ledger   *fakeLedger
	exec     *fakeExecutor
	notifier *fakeNotifier
	sched    *Scheduler
	now      time.Time
}

func newHarness(t *testing.T, cfg Config) *harness {
	t.Helper()
	h := &harness{
		t:        t,
		ctx:      context.Background(),
		store:    memory.NewIntentStore(),
		users:    memory.NewUserStore(),
		oracle:   &fakeOracle{obs: map[string]model.Observation{}, calls: map[string]int{}},
		ledger:   &fakeLedger{balance: decimal.NewFromInt(1000)},
		exec:     &fakeExecutor{},
		notifier: &fakeNotifier{messages: map[string][]string{}},
		now:      time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}

	require.NoError(t, h.users.CreateUser(h.ctx, model.User{
		ID:           "u1",
		TelegramID:   1001,
		ReferralCode: "AAAA0001",
		Settings:     model.DefaultSettings(),
		CreatedAt:    h.now,
	}))
	require.NoError(t, h.users.AddWallet(h.ctx, model.Wallet{
		ID:        "w1",
		UserID:    "u1",
		Address:   newAddress(t),
		SignerRef: "signer-1",
		CreatedAt: h.now,
	}))

	h.sched = h.newScheduler(cfg)
	return h
}

func (h *harness) newScheduler(cfg Config) *Scheduler {
	s := New(Deps{
		Store:    h.store,
		Wallets:  h.users,
		Users:    h.users,
		Oracle:   h.oracle,
		Ledger:   h.ledger,
		Executor: h.exec,
		Notifier: h.notifier,
		Metrics:  metrics.New(nil),
	}, cfg, zap.NewNop())
	s.now = func() time.Time { return h.now }
	return s
}

func (h *harness) advance(d time.Duration) {
	h.now = h.now.Add(d)
}

func (h *harness) setPrice(token, price string) {
	h.oracle.mu.Lock()
	defer h.oracle.mu.Unlock()
	h.oracle.obs[token] = model.Observation{
		TokenAddress: token,
		Price:        decimal.RequireFromString(price),
		AsOf:         h.now,
	}
}

func (h *harness) create(intent model.Intent) model.Intent {
	h.t.Helper()
	require.NoError(h.t, h.store.Create(h.ctx, intent))
	return intent
}

func (h *harness) get(id string) *model.Intent {
	h.t.Helper()
	got, err := h.store.Get(h.ctx, id)
	require.NoError(h.t, err)
	return got
}

func (h *harness) tick() TickReport {
	h.t.Helper()
	report, err := h.sched.Tick(h.ctx)
	require.NoError(h.t, err)
	return report
}

func (h *harness) base(id string, kind model.IntentKind, token string) model.Intent {
	eligible := h.now
	return model.Intent{
		ID:             id,
		UserID:         "u1",
		WalletRef:      "w1",
		TokenAddress:   token,
		Kind:           kind,
		Status:         model.StatusPending,
		CreatedAt:      h.now.Add(-time.Minute),
		NextEligibleAt: &eligible,
	}
}

func (h *harness) snipe(id, token, amount, threshold string) model.Intent {
	intent := h.base(id, model.KindSnipe, token)
	intent.Snipe = &model.SnipeParams{
		Mode:      model.SnipeAbsolute,
		Amount:    decimal.RequireFromString(amount),
		Threshold: decimal.RequireFromString(threshold),
	}
	return intent
}

func (h *harness) limit(id, token string, side model.Side, amount, trigger string) model.Intent {
	intent := h.base(id, model.KindLimit, token)
	intent.Limit = &model.LimitParams{
		Side:         side,
		Amount:       decimal.RequireFromString(amount),
		TriggerPrice: decimal.RequireFromString(trigger),
	}
	return intent
}

func (h *harness) dca(id, token, total string, interval time.Duration, planned int) model.Intent {
	intent := h.base(id, model.KindDCA, token)
	intent.DCA = &model.DCAParams{
		TotalAmount:   decimal.RequireFromString(total),
		Interval:      interval,
		PlannedOrders: planned,
	}
	return intent
}

func (h *harness) copyTrade(id, trader, maxAmount string) model.Intent {
	intent := h.base(id, model.KindCopyTrade, "")
	intent.NextEligibleAt = nil
	intent.CopyTrade = &model.CopyTradeParams{
		TraderAddress:     trader,
		MaxAmountPerTrade: decimal.RequireFromString(maxAmount),
	}
	return intent
}

func newAddress(t *testing.T) string {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return base58.Encode(pub)
}

func encodeAddress(raw []byte) string {
	return base58.Encode(raw)
}
