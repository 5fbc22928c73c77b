package model

import (
	"time"
)

type OutboxStatus string

const (
	OutboxUnsent     OutboxStatus = "unsent"
	OutboxProcessing OutboxStatus = "processing"
	OutboxSent       OutboxStatus = "sent"
)

// Notification is a queued user message awaiting delivery to the front-end.
type Notification struct {
	ID        string       `db:"id"`
	UserID    string       `db:"user_id"`
	Message   string       `db:"message"`
	Status    OutboxStatus `db:"status"`
	CreatedAt time.Time    `db:"created_at"`
}
