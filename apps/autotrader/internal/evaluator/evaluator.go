// Package evaluator decides, without side effects, whether a claimed intent fires.
package evaluator

import (
	"time"

	"github.com/shopspring/decimal"

	"autotrader/apps/autotrader/internal/model"
)

type Action int

const (
	NoOp Action = iota
	Fire
	Expire
)

func (a Action) String() string {
	switch a {
	case Fire:
		return "fire"
	case Expire:
		return "expire"
	}
	return "noop"
}

// Decision is the evaluator's verdict. Side, Amount and TokenAddress describe the
// order to submit when Action is Fire.
type Decision struct {
	Action       Action
	Side         model.Side
	Amount       decimal.Decimal
	TokenAddress string
	Reason       string
}

// NeedsObservation reports whether evaluating the intent requires a market price.
func NeedsObservation(intent model.Intent) bool {
	return intent.Kind == model.KindSnipe || intent.Kind == model.KindLimit
}

// Evaluate maps an intent and the latest observation to a decision. Threshold
// equality counts as firing. obs may be nil for kinds that do not need a price.
func Evaluate(intent model.Intent, obs *model.Observation, now time.Time) Decision {
	if intent.ExpiresAt != nil && !now.Before(*intent.ExpiresAt) {
		return Decision{Action: Expire, Reason: "intent expired"}
	}

	switch intent.Kind {
	case model.KindSnipe:
		return evaluateSnipe(intent, obs)
	case model.KindLimit:
		return evaluateLimit(intent, obs)
	case model.KindDCA:
		return evaluateDCA(intent, now)
	case model.KindCopyTrade:
		return evaluateCopyTrade(intent)
	}
	return Decision{Action: NoOp, Reason: "unknown kind"}
}

func evaluateSnipe(intent model.Intent, obs *model.Observation) Decision {
	p := intent.Snipe
	if p == nil || obs == nil {
		return Decision{Action: NoOp, Reason: "no observation"}
	}

	var hit bool
	switch p.Mode {
	case model.SnipePercentage:
		hit = obs.PercentChange.GreaterThanOrEqual(p.Threshold)
	default:
		hit = obs.Price.LessThanOrEqual(p.Threshold)
	}
	if !hit {
		return Decision{Action: NoOp, Reason: "threshold not reached"}
	}
	return Decision{Action: Fire, Side: model.SideBuy, Amount: p.Amount, TokenAddress: intent.TokenAddress}
}

func evaluateLimit(intent model.Intent, obs *model.Observation) Decision {
	p := intent.Limit
	if p == nil || obs == nil {
		return Decision{Action: NoOp, Reason: "no observation"}
	}

	var hit bool
	if p.Side == model.SideSell {
		hit = obs.Price.GreaterThanOrEqual(p.TriggerPrice)
	} else {
		hit = obs.Price.LessThanOrEqual(p.TriggerPrice)
	}
	if !hit {
		return Decision{Action: NoOp, Reason: "trigger not reached"}
	}
	return Decision{Action: Fire, Side: p.Side, Amount: p.Amount, TokenAddress: intent.TokenAddress}
}

func evaluateDCA(intent model.Intent, now time.Time) Decision {
	p := intent.DCA
	if p == nil || p.ExecutedOrders >= p.PlannedOrders {
		return Decision{Action: NoOp, Reason: "plan exhausted"}
	}
	if p.LastExecutedAt != nil && now.Before(p.LastExecutedAt.Add(p.Interval)) {
		return Decision{Action: NoOp, Reason: "interval not elapsed"}
	}

	amount := p.OrderAmount()
	if p.ExecutedOrders == p.PlannedOrders-1 {
		// last order absorbs the rounding remainder
		amount = p.TotalAmount.Sub(amount.Mul(decimal.NewFromInt(int64(p.PlannedOrders - 1))))
	}
	return Decision{Action: Fire, Side: model.SideBuy, Amount: amount, TokenAddress: intent.TokenAddress}
}

func evaluateCopyTrade(intent model.Intent) Decision {
	p := intent.CopyTrade
	if p == nil || len(p.Signals) == 0 {
		return Decision{Action: NoOp, Reason: "no trade observed"}
	}

	s := p.Signals[0]
	amount := decimal.Min(s.Amount, p.MaxAmountPerTrade)
	if !amount.IsPositive() {
		return Decision{Action: NoOp, Reason: "empty trade"}
	}
	side := s.Side
	if side != model.SideSell {
		side = model.SideBuy
	}
	return Decision{Action: Fire, Side: side, Amount: amount, TokenAddress: s.TokenAddress}
}
