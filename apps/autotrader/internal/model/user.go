package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var DefaultSlippage = decimal.NewFromFloat(0.5)

type User struct {
	ID           string    `db:"id"`
	TelegramID   int64     `db:"telegram_id"`
	ReferralCode string    `db:"referral_code"`
	ReferredBy   *string   `db:"referred_by"`
	Settings     Settings  `db:"settings"`
	CreatedAt    time.Time `db:"created_at"`
}

type Settings struct {
	Slippage decimal.Decimal `json:"slippage"` // percent, 0..100
	AutoBuy  bool            `json:"auto_buy"`
	AutoSell bool            `json:"auto_sell"`
}

func DefaultSettings() Settings {
	return Settings{Slippage: DefaultSlippage}
}

// Wallet never carries a balance; balances are read from the ledger on demand.
type Wallet struct {
	ID        string    `db:"id"`
	UserID    string    `db:"user_id"`
	Address   string    `db:"address"`
	SignerRef string    `db:"signer_ref"`
	CreatedAt time.Time `db:"created_at"`
}

// NewReferralCode returns an 8 character code derived from a random UUID.
func NewReferralCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
