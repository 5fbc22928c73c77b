package events

import (
	"time"
)

// NotificationEvent is produced for the front-end, which relays Message to the user.
type NotificationEvent struct {
	NotificationID string    `json:"notification_id"`
	UserID         string    `json:"user_id"`
	Message        string    `json:"message"`
	CreatedAt      time.Time `json:"created_at"`
	Timestamp      time.Time `json:"timestamp"`
}

// TradeEvent is a swap observed on-chain for a watched trader address.
type TradeEvent struct {
	Signature     string    `json:"signature"`
	TraderAddress string    `json:"trader_address"`
	TokenAddress  string    `json:"token_address"`
	Side          string    `json:"side"`
	Amount        string    `json:"amount"`
	BlockTime     time.Time `json:"block_time"`
}
