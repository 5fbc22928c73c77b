package copytrade

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/confluentinc/confluent-kafka-go/kafka"
	"go.uber.org/zap"

	"autotrader/apps/autotrader/internal/events"
	"autotrader/apps/autotrader/internal/metrics"
	"autotrader/apps/autotrader/internal/model"
	"autotrader/apps/autotrader/internal/repository"
)

const pollTimeout = time.Second

// Consumer reads observed trades of watched addresses from Kafka and queues them
// as signals on the copy-trade intents that follow those addresses.
type Consumer struct {
	logger        *zap.Logger
	kafkaConsumer *kafka.Consumer
	store         repository.IntentStore
	kafkaTopic    string
	metrics       *metrics.Metrics
	now           func() time.Time
}

func NewConsumer(kafkaBroker, kafkaTopic, groupID string, store repository.IntentStore, m *metrics.Metrics, logger *zap.Logger) (*Consumer, error) {
	// Setup Kafka consumer
	consumer, err := kafka.NewConsumer(&kafka.ConfigMap{
		"bootstrap.servers": kafkaBroker,
		"group.id":          groupID,
		"auto.offset.reset": "earliest",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka consumer: %w", err)
	}

	return &Consumer{
		logger:        logger,
		kafkaConsumer: consumer,
		store:         store,
		kafkaTopic:    kafkaTopic,
		metrics:       m,
		now:           time.Now,
	}, nil
}

// Start blocks consuming the trade topic until ctx is cancelled.
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("Starting copy-trade consumer", zap.String("topic", c.kafkaTopic))

	// Subscribe to the topic
	if err := c.kafkaConsumer.Subscribe(c.kafkaTopic, nil); err != nil {
		return fmt.Errorf("failed to subscribe to topic %s: %w", c.kafkaTopic, err)
	}

	// Start consuming messages
	for {
		if ctx.Err() != nil {
			return nil
		}

		msg, err := c.kafkaConsumer.ReadMessage(pollTimeout)
		if err != nil {
			var kerr kafka.Error
			if errors.As(err, &kerr) && kerr.Code() == kafka.ErrTimedOut {
				continue
			}
			c.logger.Error("Error reading message from Kafka", zap.Error(err))
			continue
		}

		if err := c.handleMessage(ctx, msg.Value); err != nil {
			c.logger.Error("Error processing trade event",
				zap.String("topic", *msg.TopicPartition.Topic),
				zap.Int32("partition", msg.TopicPartition.Partition),
				zap.String("key", string(msg.Key)),
				zap.Error(err))
		}
	}
}

func (c *Consumer) handleMessage(ctx context.Context, value []byte) error {
	// Parse the Kafka message
	var ev events.TradeEvent
	if err := json.Unmarshal(value, &ev); err != nil {
		return fmt.Errorf("failed to unmarshal trade event: %w", err)
	}

	signal, err := toSignal(ev)
	if err != nil {
		return err
	}

	// Queue on every follower; a redelivered signature is skipped
	n, err := c.store.AppendSignal(ctx, ev.TraderAddress, signal, c.now().UTC())
	if err != nil {
		return fmt.Errorf("failed to queue signal %s: %w", ev.Signature, err)
	}

	if c.metrics != nil && n > 0 {
		c.metrics.SignalsQueued.Add(float64(n))
	}

	c.logger.Info("Queued copy-trade signal",
		zap.String("trader_address", ev.TraderAddress),
		zap.String("signature", ev.Signature),
		zap.String("side", string(signal.Side)),
		zap.Int("followers", n))
	return nil
}

func toSignal(ev events.TradeEvent) (model.TradeSignal, error) {
	if ev.Signature == "" {
		return model.TradeSignal{}, errors.New("trade event has no signature")
	}
	if err := model.ValidateAddress("trader_address", ev.TraderAddress); err != nil {
		return model.TradeSignal{}, err
	}
	if err := model.ValidateAddress("token_address", ev.TokenAddress); err != nil {
		return model.TradeSignal{}, err
	}

	side := model.Side(strings.ToLower(ev.Side))
	switch side {
	case "":
		side = model.SideBuy
	case model.SideBuy, model.SideSell:
	default:
		return model.TradeSignal{}, fmt.Errorf("trade event %s has unknown side %q", ev.Signature, ev.Side)
	}

	amount, err := model.ParsePositive("amount", ev.Amount)
	if err != nil {
		return model.TradeSignal{}, err
	}

	observed := ev.BlockTime
	if observed.IsZero() {
		observed = time.Now()
	}

	return model.TradeSignal{
		Signature:    ev.Signature,
		TokenAddress: ev.TokenAddress,
		Side:         side,
		Amount:       amount,
		ObservedAt:   observed.UTC(),
	}, nil
}

func (c *Consumer) Close() error {
	return c.kafkaConsumer.Close()
}
