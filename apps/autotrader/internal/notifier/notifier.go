package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"autotrader/apps/autotrader/internal/model"
	"autotrader/apps/autotrader/internal/repository"
)

// Notifier delivers a human readable message to a user. Delivery is best-effort.
type Notifier interface {
	Notify(ctx context.Context, userID, message string) error
}

// OutboxNotifier queues messages in the notification outbox; the Publisher
// forwards them to the front-end.
type OutboxNotifier struct {
	outbox repository.NotificationOutbox
	logger *zap.Logger
	now    func() time.Time
}

var _ Notifier = (*OutboxNotifier)(nil)

func NewOutboxNotifier(outbox repository.NotificationOutbox, logger *zap.Logger) *OutboxNotifier {
	return &OutboxNotifier{outbox: outbox, logger: logger, now: time.Now}
}

func (n *OutboxNotifier) Notify(ctx context.Context, userID, message string) error {
	notification := model.Notification{
		ID:        uuid.New().String(),
		UserID:    userID,
		Message:   message,
		Status:    model.OutboxUnsent,
		CreatedAt: n.now().UTC(),
	}
	if err := n.outbox.Enqueue(ctx, notification); err != nil {
		return fmt.Errorf("failed to queue notification for user %s: %w", userID, err)
	}
	n.logger.Debug("Queued notification", zap.String("user_id", userID), zap.String("notification_id", notification.ID))
	return nil
}
