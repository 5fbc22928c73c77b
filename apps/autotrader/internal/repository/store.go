package repository

import (
	"context"
	"time"

	"autotrader/apps/autotrader/internal/model"
)

// IntentStore is the durable intent repository. ClaimDue is the only mechanism
// that grants exclusive execution rights over an intent.
type IntentStore interface {
	Create(ctx context.Context, intent model.Intent) error
	Get(ctx context.Context, id string) (*model.Intent, error)
	// ClaimDue moves up to limit pending intents with next_eligible_at <= now to
	// processing and returns them. Concurrent callers never receive the same id.
	ClaimDue(ctx context.Context, now time.Time, limit int) ([]model.Intent, error)
	// Commit releases a claim. It fails with ErrNotProcessing if the intent is not claimed.
	Commit(ctx context.Context, id string, outcome model.Outcome) error
	// ReclaimStale returns processing intents claimed before now-threshold to pending.
	ReclaimStale(ctx context.Context, now time.Time, threshold time.Duration) (int, error)
	// Cancel reports whether the intent changed; terminal intents are left as is.
	Cancel(ctx context.Context, id, userID string) (bool, error)
	FindByUser(ctx context.Context, userID string) ([]model.Intent, error)
	// AppendSignal queues a trade on every active copy-trade intent following
	// traderAddress and makes them eligible at now. It returns how many were updated.
	AppendSignal(ctx context.Context, traderAddress string, signal model.TradeSignal, now time.Time) (int, error)
}

type UserStore interface {
	CreateUser(ctx context.Context, user model.User) error
	GetUser(ctx context.Context, id string) (*model.User, error)
	// SetReferrer records code as the user's referrer exactly once.
	SetReferrer(ctx context.Context, userID, code string) error
	UpdateSettings(ctx context.Context, userID string, settings model.Settings) error
}

type WalletStore interface {
	AddWallet(ctx context.Context, wallet model.Wallet) error
	GetWallet(ctx context.Context, id string) (*model.Wallet, error)
	ListWallets(ctx context.Context, userID string) ([]model.Wallet, error)
}

type NotificationOutbox interface {
	Enqueue(ctx context.Context, n model.Notification) error
	ClaimUnsent(ctx context.Context, limit int) ([]model.Notification, error)
	MarkSent(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}
