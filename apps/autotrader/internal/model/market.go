package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Observation is a market snapshot for one token.
type Observation struct {
	TokenAddress  string
	Price         decimal.Decimal
	PercentChange decimal.Decimal
	AsOf          time.Time
}
