package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type IntentKind string

const (
	KindSnipe     IntentKind = "snipe"
	KindLimit     IntentKind = "limit"
	KindDCA       IntentKind = "dca"
	KindCopyTrade IntentKind = "copy_trade"
)

type IntentStatus string

const (
	StatusPending    IntentStatus = "pending"
	StatusProcessing IntentStatus = "processing"
	StatusCompleted  IntentStatus = "completed"
	StatusFailed     IntentStatus = "failed"
	StatusCancelled  IntentStatus = "cancelled"
	StatusExpired    IntentStatus = "expired"
)

// Terminal reports whether no further transition is allowed from s.
func (s IntentStatus) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCancelled, StatusExpired:
		return true
	}
	return false
}

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

type SnipeMode string

const (
	SnipeAbsolute   SnipeMode = "absolute"
	SnipePercentage SnipeMode = "percentage"
)

// Intent is a user-registered conditional trade instruction. Exactly one of the
// kind payloads is set, matching Kind.
type Intent struct {
	ID              string       `db:"id"`
	UserID          string       `db:"user_id"`
	WalletRef       string       `db:"wallet_ref"`
	TokenAddress    string       `db:"token_address"`
	Kind            IntentKind   `db:"kind"`
	Status          IntentStatus `db:"status"`
	CreatedAt       time.Time    `db:"created_at"`
	ExpiresAt       *time.Time   `db:"expires_at"`
	NextEligibleAt  *time.Time   `db:"next_eligible_at"` // nil: not claimable until a signal arrives
	ClaimedAt       *time.Time   `db:"claimed_at"`
	LastEvaluatedAt *time.Time   `db:"last_evaluated_at"`
	RetryCount      int          `db:"retry_count"`
	TradeRef        *string      `db:"trade_ref"`
	FailureReason   *string      `db:"failure_reason"`

	Snipe     *SnipeParams     `json:"snipe,omitempty"`
	Limit     *LimitParams     `json:"limit,omitempty"`
	DCA       *DCAParams       `json:"dca,omitempty"`
	CopyTrade *CopyTradeParams `json:"copy_trade,omitempty"`
}

type SnipeParams struct {
	Mode      SnipeMode       `json:"mode"`
	Amount    decimal.Decimal `json:"amount"`
	Threshold decimal.Decimal `json:"threshold"` // max price, or min percent move in percentage mode
}

type LimitParams struct {
	Side         Side            `json:"side"`
	Amount       decimal.Decimal `json:"amount"`
	TriggerPrice decimal.Decimal `json:"trigger_price"`
}

type DCAParams struct {
	TotalAmount    decimal.Decimal `json:"total_amount"`
	Interval       time.Duration   `json:"interval"`
	PlannedOrders  int             `json:"planned_orders"`
	ExecutedOrders int             `json:"executed_orders"`
	LastExecutedAt *time.Time      `json:"last_executed_at,omitempty"`
}

// OrderAmount is the per-firing slice of the total.
func (p DCAParams) OrderAmount() decimal.Decimal {
	if p.PlannedOrders <= 0 {
		return decimal.Zero
	}
	return p.TotalAmount.DivRound(decimal.NewFromInt(int64(p.PlannedOrders)), 9)
}

type CopyTradeParams struct {
	TraderAddress     string          `json:"trader_address"`
	MaxAmountPerTrade decimal.Decimal `json:"max_amount_per_trade"`
	Signals           []TradeSignal   `json:"signals,omitempty"`
}

// TradeSignal is a trade observed on a followed trader's address, queued for mirroring.
type TradeSignal struct {
	Signature    string          `json:"signature"`
	TokenAddress string          `json:"token_address"`
	Side         Side            `json:"side"`
	Amount       decimal.Decimal `json:"amount"`
	ObservedAt   time.Time       `json:"observed_at"`
}

// Active reports whether a copy-trade subscription is still following its trader.
func (i *Intent) Active() bool {
	return i.Kind == KindCopyTrade && !i.Status.Terminal()
}

// Clone returns a deep copy so stores never share mutable payloads with callers.
func (i Intent) Clone() Intent {
	c := i
	c.ExpiresAt = cloneTime(i.ExpiresAt)
	c.NextEligibleAt = cloneTime(i.NextEligibleAt)
	c.ClaimedAt = cloneTime(i.ClaimedAt)
	c.LastEvaluatedAt = cloneTime(i.LastEvaluatedAt)
	c.TradeRef = cloneString(i.TradeRef)
	c.FailureReason = cloneString(i.FailureReason)
	if i.Snipe != nil {
		s := *i.Snipe
		c.Snipe = &s
	}
	if i.Limit != nil {
		l := *i.Limit
		c.Limit = &l
	}
	if i.DCA != nil {
		d := *i.DCA
		d.LastExecutedAt = cloneTime(i.DCA.LastExecutedAt)
		c.DCA = &d
	}
	if i.CopyTrade != nil {
		ct := *i.CopyTrade
		ct.Signals = append([]TradeSignal(nil), i.CopyTrade.Signals...)
		c.CopyTrade = &ct
	}
	return c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
