package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"
	"go.uber.org/zap"

	"autotrader/apps/autotrader/internal/model"
)

type NotificationRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

var _ NotificationOutbox = (*NotificationRepository)(nil)

func NewNotificationRepository(db *sql.DB, logger *zap.Logger) *NotificationRepository {
	return &NotificationRepository{db: db, logger: logger}
}

func (r *NotificationRepository) Enqueue(ctx context.Context, n model.Notification) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO notification_outbox (id, user_id, message, status, created_at)
		VALUES ($1, $2, $3, 'unsent', $4)
	`, n.ID, n.UserID, n.Message, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to store notification: %w", err)
	}

	r.logger.Debug("Stored notification", zap.String("notification_id", n.ID), zap.String("user_id", n.UserID))
	return nil
}

func (r *NotificationRepository) ClaimUnsent(ctx context.Context, limit int) ([]model.Notification, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	rows, err := tx.QueryContext(ctx, `
		SELECT id, user_id, message, status, created_at
		FROM notification_outbox
		WHERE status = 'unsent'
		ORDER BY created_at
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}

	var notifications []model.Notification
	var ids []string
	for rows.Next() {
		var n model.Notification
		var status string
		if err := rows.Scan(&n.ID, &n.UserID, &n.Message, &status, &n.CreatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		n.Status = model.OutboxProcessing
		notifications = append(notifications, n)
		ids = append(ids, n.ID)
	}
	rows.Close()

	if len(ids) > 0 {
		if _, err := tx.ExecContext(ctx, `
			UPDATE notification_outbox SET status = 'processing'
			WHERE id = ANY($1) AND status = 'unsent'
		`, pq.Array(ids)); err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return notifications, nil
}

func (r *NotificationRepository) MarkSent(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE notification_outbox SET status = 'sent' WHERE id = $1
	`, id)
	return err
}

// MarkFailed returns a claimed notification to unsent so the next poll retries it.
func (r *NotificationRepository) MarkFailed(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE notification_outbox SET status = 'unsent' WHERE id = $1 AND status = 'processing'
	`, id)
	return err
}
