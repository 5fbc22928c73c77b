package memory

import (
	"context"
	"sort"
	"sync"

	"autotrader/apps/autotrader/internal/model"
	"autotrader/apps/autotrader/internal/repository"
)

type Outbox struct {
	mu            sync.Mutex
	notifications map[string]*model.Notification
}

var _ repository.NotificationOutbox = (*Outbox)(nil)

func NewOutbox() *Outbox {
	return &Outbox{notifications: make(map[string]*model.Notification)}
}

func (o *Outbox) Enqueue(_ context.Context, n model.Notification) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	c := n
	c.Status = model.OutboxUnsent
	o.notifications[n.ID] = &c
	return nil
}

func (o *Outbox) ClaimUnsent(_ context.Context, limit int) ([]model.Notification, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	var unsent []*model.Notification
	for _, n := range o.notifications {
		if n.Status == model.OutboxUnsent {
			unsent = append(unsent, n)
		}
	}
	sort.Slice(unsent, func(i, j int) bool { return unsent[i].CreatedAt.Before(unsent[j].CreatedAt) })
	if len(unsent) > limit {
		unsent = unsent[:limit]
	}

	out := make([]model.Notification, 0, len(unsent))
	for _, n := range unsent {
		n.Status = model.OutboxProcessing
		out = append(out, *n)
	}
	return out, nil
}

func (o *Outbox) MarkSent(_ context.Context, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if n, ok := o.notifications[id]; ok {
		n.Status = model.OutboxSent
	}
	return nil
}

func (o *Outbox) MarkFailed(_ context.Context, id string) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if n, ok := o.notifications[id]; ok && n.Status == model.OutboxProcessing {
		n.Status = model.OutboxUnsent
	}
	return nil
}

// All returns every stored notification ordered by creation time.
func (o *Outbox) All() []model.Notification {
	o.mu.Lock()
	defer o.mu.Unlock()

	out := make([]model.Notification, 0, len(o.notifications))
	for _, n := range o.notifications {
		out = append(out, *n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
