package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// InitMigration creates the schema. Statements are idempotent so it runs on every start.
func InitMigration(ctx context.Context, db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (
			id VARCHAR(64) PRIMARY KEY,
			telegram_id BIGINT NOT NULL UNIQUE,
			referral_code VARCHAR(16) NOT NULL UNIQUE,
			referred_by VARCHAR(16),
			slippage DECIMAL(6,3) NOT NULL DEFAULT 0.5 CHECK (slippage >= 0 AND slippage <= 100),
			auto_buy BOOLEAN NOT NULL DEFAULT FALSE,
			auto_sell BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE TABLE IF NOT EXISTS wallets (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL REFERENCES users(id),
			address VARCHAR(44) NOT NULL,
			signer_ref TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			UNIQUE(user_id, address)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_wallets_user ON wallets (user_id)`,
		`CREATE TABLE IF NOT EXISTS intents (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			wallet_ref VARCHAR(64) NOT NULL,
			token_address VARCHAR(44) NOT NULL DEFAULT '',
			kind VARCHAR(20) NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'pending',
			payload JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			expires_at TIMESTAMPTZ,
			next_eligible_at TIMESTAMPTZ,
			claimed_at TIMESTAMPTZ,
			last_evaluated_at TIMESTAMPTZ,
			retry_count INTEGER NOT NULL DEFAULT 0,
			executed_orders INTEGER NOT NULL DEFAULT 0,
			last_executed_at TIMESTAMPTZ,
			trade_ref TEXT,
			failure_reason TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_intents_due ON intents (next_eligible_at, created_at) WHERE status = 'pending'`,
		`CREATE INDEX IF NOT EXISTS idx_intents_claimed ON intents (claimed_at) WHERE status = 'processing'`,
		`CREATE INDEX IF NOT EXISTS idx_intents_user ON intents (user_id, created_at DESC)`,
		`CREATE INDEX IF NOT EXISTS idx_intents_trader ON intents ((payload->'copy_trade'->>'trader_address')) WHERE kind = 'copy_trade'`,
		`CREATE TABLE IF NOT EXISTS notification_outbox (
			id VARCHAR(64) PRIMARY KEY,
			user_id VARCHAR(64) NOT NULL,
			message TEXT NOT NULL,
			status VARCHAR(20) NOT NULL DEFAULT 'unsent',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_notification_outbox_unsent ON notification_outbox (created_at) WHERE status = 'unsent'`,
	}

	for _, query := range queries {
		if _, err := db.ExecContext(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query %s: %w", query, err)
		}
	}
	return nil
}
