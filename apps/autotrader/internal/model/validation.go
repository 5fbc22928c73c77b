package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"filippo.io/edwards25519"
	"github.com/mr-tron/base58"
	"github.com/shopspring/decimal"
)

const (
	AddressLength  = 32
	MaxDCAInterval = 365 * 24 * time.Hour
)

var maxSlippage = decimal.NewFromInt(100)

// ValidationError rejects user-entered input at creation time.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

func invalid(field, format string, args ...interface{}) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// ParseDecimal parses a user-entered number, rejecting empty and non-numeric input.
func ParseDecimal(field, raw string) (decimal.Decimal, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, invalid(field, "is required")
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, invalid(field, "%q is not a number", raw)
	}
	return d, nil
}

// ParsePositive parses a strictly positive amount.
func ParsePositive(field, raw string) (decimal.Decimal, error) {
	d, err := ParseDecimal(field, raw)
	if err != nil {
		return d, err
	}
	if !d.IsPositive() {
		return decimal.Zero, invalid(field, "must be greater than zero")
	}
	return d, nil
}

func ValidateSlippage(s decimal.Decimal) error {
	if s.IsNegative() || s.GreaterThan(maxSlippage) {
		return invalid("slippage", "must be between 0 and 100")
	}
	return nil
}

// ValidateAddress checks that s is a base58 encoded 32-byte account key.
func ValidateAddress(field, s string) error {
	if s == "" {
		return invalid(field, "is required")
	}
	raw, err := base58.Decode(s)
	if err != nil {
		return invalid(field, "not base58")
	}
	if len(raw) != AddressLength {
		return invalid(field, "expected %d bytes, got %d", AddressLength, len(raw))
	}
	return nil
}

// ValidateWalletAddress additionally requires the key to be an ed25519 point.
// Program derived addresses are off-curve and cannot sign, so they are rejected.
func ValidateWalletAddress(s string) error {
	if err := ValidateAddress("wallet_address", s); err != nil {
		return err
	}
	raw, _ := base58.Decode(s)
	if _, err := new(edwards25519.Point).SetBytes(raw); err != nil {
		return invalid("wallet_address", "not an ed25519 public key")
	}
	return nil
}

// Validate checks the kind payload of a freshly built intent.
func (i *Intent) Validate() error {
	if i.UserID == "" {
		return invalid("user_id", "is required")
	}
	if i.WalletRef == "" {
		return invalid("wallet_ref", "is required")
	}
	if i.Kind != KindCopyTrade {
		if err := ValidateAddress("token_address", i.TokenAddress); err != nil {
			return err
		}
	}
	if i.ExpiresAt != nil && !i.ExpiresAt.After(i.CreatedAt) {
		return invalid("expires_at", "must be in the future")
	}

	switch i.Kind {
	case KindSnipe:
		p := i.Snipe
		if p == nil {
			return invalid("snipe", "parameters missing")
		}
		if p.Mode != SnipeAbsolute && p.Mode != SnipePercentage {
			return invalid("mode", "unknown snipe mode %q", p.Mode)
		}
		if !p.Amount.IsPositive() {
			return invalid("amount", "must be greater than zero")
		}
		if !p.Threshold.IsPositive() {
			field := "max_price"
			if p.Mode == SnipePercentage {
				field = "target_percentage"
			}
			return invalid(field, "must be greater than zero")
		}
	case KindLimit:
		p := i.Limit
		if p == nil {
			return invalid("limit", "parameters missing")
		}
		if p.Side != SideBuy && p.Side != SideSell {
			return invalid("side", "must be buy or sell")
		}
		if !p.Amount.IsPositive() {
			return invalid("amount", "must be greater than zero")
		}
		if !p.TriggerPrice.IsPositive() {
			return invalid("price", "must be greater than zero")
		}
	case KindDCA:
		p := i.DCA
		if p == nil {
			return invalid("dca", "parameters missing")
		}
		if !p.TotalAmount.IsPositive() {
			return invalid("total_amount", "must be greater than zero")
		}
		if p.Interval < time.Minute {
			return invalid("interval", "must be at least one minute")
		}
		if p.Interval > MaxDCAInterval {
			return invalid("interval", "must be at most %s", MaxDCAInterval)
		}
		if p.PlannedOrders <= 0 {
			return invalid("number_of_orders", "must be at least 1")
		}
		if p.ExecutedOrders != 0 {
			return invalid("executed_orders", "must start at zero")
		}
	case KindCopyTrade:
		p := i.CopyTrade
		if p == nil {
			return invalid("copy_trade", "parameters missing")
		}
		if err := ValidateAddress("trader_address", p.TraderAddress); err != nil {
			return err
		}
		if !p.MaxAmountPerTrade.IsPositive() {
			return invalid("max_amount_per_trade", "must be greater than zero")
		}
	default:
		return invalid("kind", "unknown intent kind %q", i.Kind)
	}
	return nil
}
