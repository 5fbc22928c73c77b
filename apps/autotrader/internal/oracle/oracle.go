package oracle

import (
	"context"
	"errors"

	"autotrader/apps/autotrader/internal/model"
)

var (
	ErrOracleUnavailable = errors.New("oracle unavailable")
	ErrUnknownToken      = errors.New("unknown token")
)

// Oracle supplies market observations. Every failure is transient from the
// scheduler's point of view.
type Oracle interface {
	Observe(ctx context.Context, tokenAddress string) (model.Observation, error)
}
