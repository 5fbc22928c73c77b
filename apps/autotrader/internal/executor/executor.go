package executor

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"autotrader/apps/autotrader/internal/model"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrSlippageExceeded  = errors.New("slippage exceeded")
	ErrInvalidWallet     = errors.New("invalid wallet")
	ErrSubmissionFailed  = errors.New("submission failed")
	ErrTimeout           = errors.New("submission timed out")
)

// Order is a single trade submission. ClientOrderID is stable across retries of
// the same firing so the execution service can deduplicate.
type Order struct {
	ClientOrderID string
	WalletAddress string
	SignerRef     string
	TokenAddress  string
	Side          model.Side
	Amount        decimal.Decimal
	Slippage      decimal.Decimal
}

type Trade struct {
	Ref string
}

type Executor interface {
	Execute(ctx context.Context, order Order) (Trade, error)
}

// IsTransient reports whether a failed submission may be retried. Unclassified
// errors are treated as failed submissions.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	return !IsTerminal(err)
}

func IsTerminal(err error) bool {
	return errors.Is(err, ErrInsufficientFunds) ||
		errors.Is(err, ErrSlippageExceeded) ||
		errors.Is(err, ErrInvalidWallet)
}

// Reason is the short failure label persisted on the intent.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientFunds):
		return "insufficient funds"
	case errors.Is(err, ErrSlippageExceeded):
		return "slippage exceeded"
	case errors.Is(err, ErrInvalidWallet):
		return "invalid wallet"
	case errors.Is(err, ErrTimeout):
		return "submission timed out"
	case errors.Is(err, ErrSubmissionFailed):
		return "submission failed"
	}
	return err.Error()
}
