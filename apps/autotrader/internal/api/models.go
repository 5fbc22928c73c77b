package api

import (
	"time"

	"github.com/shopspring/decimal"

	"autotrader/apps/autotrader/internal/model"
)

// ErrorResponse represents the API error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

type CreateUserRequest struct {
	TelegramID int64 `json:"telegram_id"`
}

type SetReferrerRequest struct {
	ReferralCode string `json:"referral_code"`
}

// UpdateSettingsRequest is a partial update; omitted fields keep their value.
type UpdateSettingsRequest struct {
	Slippage *string `json:"slippage,omitempty"`
	AutoBuy  *bool   `json:"auto_buy,omitempty"`
	AutoSell *bool   `json:"auto_sell,omitempty"`
}

type SettingsResponse struct {
	Slippage string `json:"slippage"`
	AutoBuy  bool   `json:"auto_buy"`
	AutoSell bool   `json:"auto_sell"`
}

type UserResponse struct {
	ID           string           `json:"id"`
	TelegramID   int64            `json:"telegram_id"`
	ReferralCode string           `json:"referral_code"`
	ReferredBy   *string          `json:"referred_by,omitempty"`
	Settings     SettingsResponse `json:"settings"`
	CreatedAt    time.Time        `json:"created_at"`
}

type AddWalletRequest struct {
	Address   string `json:"address"`
	SignerRef string `json:"signer_ref"`
}

type WalletResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Address   string    `json:"address"`
	CreatedAt time.Time `json:"created_at"`
}

// CreateIntentRequest carries numbers as strings so malformed input is reported per field.
type CreateIntentRequest struct {
	UserID       string            `json:"user_id"`
	WalletID     string            `json:"wallet_id"`
	Kind         string            `json:"kind"`
	TokenAddress string            `json:"token_address"`
	ExpiresAt    *time.Time        `json:"expires_at,omitempty"`
	Snipe        *SnipeRequest     `json:"snipe,omitempty"`
	Limit        *LimitRequest     `json:"limit,omitempty"`
	DCA          *DCARequest       `json:"dca,omitempty"`
	CopyTrade    *CopyTradeRequest `json:"copy_trade,omitempty"`
}

// SnipeRequest accepts mode absolute|percentage, or the bot flavours regular|pumpfun.
type SnipeRequest struct {
	Mode             string `json:"mode"`
	Amount           string `json:"amount"`
	MaxPrice         string `json:"max_price,omitempty"`
	TargetPercentage string `json:"target_percentage,omitempty"`
}

type LimitRequest struct {
	Side   string `json:"side"`
	Amount string `json:"amount"`
	Price  string `json:"price"`
}

// DCARequest takes the interval in hours or seconds; hours win when both are set.
type DCARequest struct {
	TotalAmount     string `json:"total_amount"`
	IntervalHours   string `json:"interval_hours,omitempty"`
	IntervalSeconds string `json:"interval_seconds,omitempty"`
	NumberOfOrders  int    `json:"number_of_orders"`
}

type CopyTradeRequest struct {
	TraderAddress     string `json:"trader_address"`
	MaxAmountPerTrade string `json:"max_amount_per_trade"`
}

type DCAResponse struct {
	TotalAmount     decimal.Decimal `json:"total_amount"`
	IntervalSeconds int64           `json:"interval_seconds"`
	PlannedOrders   int             `json:"planned_orders"`
	ExecutedOrders  int             `json:"executed_orders"`
	LastExecutedAt  *time.Time      `json:"last_executed_at,omitempty"`
}

type CopyTradeResponse struct {
	TraderAddress     string          `json:"trader_address"`
	MaxAmountPerTrade decimal.Decimal `json:"max_amount_per_trade"`
	PendingSignals    int             `json:"pending_signals"`
}

type IntentResponse struct {
	ID              string             `json:"id"`
	UserID          string             `json:"user_id"`
	WalletID        string             `json:"wallet_id"`
	TokenAddress    string             `json:"token_address,omitempty"`
	Kind            model.IntentKind   `json:"kind"`
	Status          model.IntentStatus `json:"status"`
	CreatedAt       time.Time          `json:"created_at"`
	ExpiresAt       *time.Time         `json:"expires_at,omitempty"`
	LastEvaluatedAt *time.Time         `json:"last_evaluated_at,omitempty"`
	RetryCount      int                `json:"retry_count"`
	TradeRef        *string            `json:"trade_ref,omitempty"`
	FailureReason   *string            `json:"failure_reason,omitempty"`
	Snipe           *model.SnipeParams `json:"snipe,omitempty"`
	Limit           *model.LimitParams `json:"limit,omitempty"`
	DCA             *DCAResponse       `json:"dca,omitempty"`
	CopyTrade       *CopyTradeResponse `json:"copy_trade,omitempty"`
}

type CancelIntentResponse struct {
	Cancelled bool           `json:"cancelled"`
	Intent    IntentResponse `json:"intent"`
}

type TickResponse struct {
	Reclaimed int `json:"reclaimed"`
	Claimed   int `json:"claimed"`
	Fired     int `json:"fired"`
	Committed int `json:"committed"`
}

type SweepResponse struct {
	Reclaimed int `json:"reclaimed"`
}

func toUserResponse(u *model.User) UserResponse {
	return UserResponse{
		ID:           u.ID,
		TelegramID:   u.TelegramID,
		ReferralCode: u.ReferralCode,
		ReferredBy:   u.ReferredBy,
		Settings: SettingsResponse{
			Slippage: u.Settings.Slippage.String(),
			AutoBuy:  u.Settings.AutoBuy,
			AutoSell: u.Settings.AutoSell,
		},
		CreatedAt: u.CreatedAt,
	}
}

func toWalletResponse(w model.Wallet) WalletResponse {
	return WalletResponse{ID: w.ID, UserID: w.UserID, Address: w.Address, CreatedAt: w.CreatedAt}
}

func toIntentResponse(i model.Intent) IntentResponse {
	resp := IntentResponse{
		ID:              i.ID,
		UserID:          i.UserID,
		WalletID:        i.WalletRef,
		TokenAddress:    i.TokenAddress,
		Kind:            i.Kind,
		Status:          i.Status,
		CreatedAt:       i.CreatedAt,
		ExpiresAt:       i.ExpiresAt,
		LastEvaluatedAt: i.LastEvaluatedAt,
		RetryCount:      i.RetryCount,
		TradeRef:        i.TradeRef,
		FailureReason:   i.FailureReason,
		Snipe:           i.Snipe,
		Limit:           i.Limit,
	}
	if i.DCA != nil {
		resp.DCA = &DCAResponse{
			TotalAmount:     i.DCA.TotalAmount,
			IntervalSeconds: int64(i.DCA.Interval / time.Second),
			PlannedOrders:   i.DCA.PlannedOrders,
			ExecutedOrders:  i.DCA.ExecutedOrders,
			LastExecutedAt:  i.DCA.LastExecutedAt,
		}
	}
	if i.CopyTrade != nil {
		resp.CopyTrade = &CopyTradeResponse{
			TraderAddress:     i.CopyTrade.TraderAddress,
			MaxAmountPerTrade: i.CopyTrade.MaxAmountPerTrade,
			PendingSignals:    len(i.CopyTrade.Signals),
		}
	}
	return resp
}
