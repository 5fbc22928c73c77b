package notifier

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"go.uber.org/zap"

	"autotrader/apps/autotrader/internal/events"
	"autotrader/apps/autotrader/internal/model"
	"autotrader/apps/autotrader/internal/repository"
)

const (
	DefaultPublishInterval = 3 * time.Second
	publishBatchSize       = 100
)

type producer interface {
	Produce(msg *kafka.Message, deliveryChan chan kafka.Event) error
	Close()
}

// Publisher drains the notification outbox into a Kafka topic.
type Publisher struct {
	logger   *zap.Logger
	producer producer
	topic    string
	outbox   repository.NotificationOutbox
	interval time.Duration
	mu       sync.Mutex // one publish pass at a time
}

func NewPublisher(kafkaBroker, topic string, outbox repository.NotificationOutbox, logger *zap.Logger) (*Publisher, error) {
	// Setup Kafka producer
	p, err := kafka.NewProducer(&kafka.ConfigMap{
		"bootstrap.servers": kafkaBroker,
		"acks":              "all",
		"retries":           3,
		"retry.backoff.ms":  100,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}
	return newPublisher(p, topic, outbox, logger), nil
}

func newPublisher(p producer, topic string, outbox repository.NotificationOutbox, logger *zap.Logger) *Publisher {
	return &Publisher{
		logger:   logger,
		producer: p,
		topic:    topic,
		outbox:   outbox,
		interval: DefaultPublishInterval,
	}
}

// Start polls the outbox until ctx is cancelled.
func (p *Publisher) Start(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.PublishPending(ctx); err != nil {
				p.logger.Error("Error publishing notifications to Kafka", zap.Error(err))
			}
		}
	}
}

// PublishPending runs one pass and returns how many notifications were delivered.
func (p *Publisher) PublishPending(ctx context.Context) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// Claim unsent notifications, skipping rows another publisher holds
	pending, err := p.outbox.ClaimUnsent(ctx, publishBatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to claim notifications: %w", err)
	}

	// Publish each notification to Kafka
	sent := 0
	for _, n := range pending {
		if err := p.publish(n); err != nil {
			p.logger.Error("Failed to publish notification",
				zap.String("notification_id", n.ID),
				zap.String("user_id", n.UserID),
				zap.Error(err))
			// Return to 'unsent' for the next pass
			if markErr := p.outbox.MarkFailed(ctx, n.ID); markErr != nil {
				p.logger.Error("Failed to return notification to outbox", zap.String("notification_id", n.ID), zap.Error(markErr))
			}
			continue
		}

		// Mark as sent
		if err := p.outbox.MarkSent(ctx, n.ID); err != nil {
			// delivered but left in processing, so it is never resent
			p.logger.Error("Failed to mark notification sent", zap.String("notification_id", n.ID), zap.Error(err))
			continue
		}
		sent++
	}

	if sent > 0 {
		p.logger.Info("Published notifications", zap.Int("sent", sent), zap.Int("attempted", len(pending)))
	}
	return sent, nil
}

func (p *Publisher) publish(n model.Notification) error {
	value, err := json.Marshal(events.NotificationEvent{
		NotificationID: n.ID,
		UserID:         n.UserID,
		Message:        n.Message,
		CreatedAt:      n.CreatedAt,
		Timestamp:      time.Now().UTC(),
	})
	if err != nil {
		return err
	}

	// Publish to Kafka
	deliveryChan := make(chan kafka.Event, 1)
	err = p.producer.Produce(&kafka.Message{
		TopicPartition: kafka.TopicPartition{Topic: &p.topic, Partition: kafka.PartitionAny},
		Key:            []byte(n.UserID), // keeps per-user ordering
		Value:          value,
	}, deliveryChan)
	if err != nil {
		return err
	}

	// Wait for delivery confirmation
	e := <-deliveryChan
	switch ev := e.(type) {
	case *kafka.Message:
		return ev.TopicPartition.Error
	default:
		return fmt.Errorf("unexpected kafka event type: %T", e)
	}
}

func (p *Publisher) Close() {
	if p.producer != nil {
		p.producer.Close()
	}
}
