package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"

	"pixelevents/pkg/logger"
)

// ReceiptStore records that a push message reached the channel
type ReceiptStore interface {
	MarkDelivered(ctx context.Context, recipientID string, id uuid.UUID, at time.Time) error
}

type ConsumerConfig struct {
	Brokers              []string
	GroupID              string
	Topics               []string
	ClientID             string
	SessionTimeout       time.Duration
	Heartbeat            time.Duration
	MaxProcessingTime    time.Duration
	OffsetOldest         bool
	MaxRetries           int
	RetryBackoffDuration time.Duration
}

func DefaultConsumerConfig() *ConsumerConfig {
	return &ConsumerConfig{
		Brokers:              []string{"localhost:9092"},
		GroupID:              "notification-receipts",
		Topics:               []string{"entrant-notifications"},
		ClientID:             "pixelevents",
		SessionTimeout:       30 * time.Second,
		Heartbeat:            3 * time.Second,
		MaxProcessingTime:    time.Minute,
		OffsetOldest:         false,
		MaxRetries:           3,
		RetryBackoffDuration: time.Second,
	}
}

// DeliveryConsumer reads published push messages and stamps delivered_at on
// the recipient's inbox copy
type DeliveryConsumer struct {
	consumerGroup sarama.ConsumerGroup
	handler       *ConsumerGroupHandler
	topics        []string
	log           *logger.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewDeliveryConsumer(config *ConsumerConfig, receipts ReceiptStore, log *logger.Logger) (*DeliveryConsumer, error) {
	if config == nil {
		config = DefaultConsumerConfig()
	}

	saramaConfig := sarama.NewConfig()
	saramaConfig.ClientID = config.ClientID
	saramaConfig.Consumer.Group.Session.Timeout = config.SessionTimeout
	saramaConfig.Consumer.Group.Heartbeat.Interval = config.Heartbeat
	saramaConfig.Consumer.MaxProcessingTime = config.MaxProcessingTime
	saramaConfig.Consumer.Return.Errors = true
	saramaConfig.Consumer.Offsets.AutoCommit.Enable = true
	saramaConfig.Consumer.Offsets.AutoCommit.Interval = time.Second

	if config.OffsetOldest {
		saramaConfig.Consumer.Offsets.Initial = sarama.OffsetOldest
	} else {
		saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	}

	consumerGroup, err := sarama.NewConsumerGroup(config.Brokers, config.GroupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create consumer group: %w", err)
	}

	return newDeliveryConsumer(consumerGroup, config, receipts, log), nil
}

func newDeliveryConsumer(group sarama.ConsumerGroup, config *ConsumerConfig, receipts ReceiptStore, log *logger.Logger) *DeliveryConsumer {
	if log == nil {
		log = logger.GetDefault()
	}
	return &DeliveryConsumer{
		consumerGroup: group,
		handler:       NewConsumerGroupHandler(receipts, config.MaxRetries, config.RetryBackoffDuration, log),
		topics:        config.Topics,
		log:           log,
	}
}

// Start consumes until Stop is called or ctx ends
func (dc *DeliveryConsumer) Start(ctx context.Context) {
	ctx, dc.cancel = context.WithCancel(ctx)

	dc.wg.Add(2)
	go func() {
		defer dc.wg.Done()
		for err := range dc.consumerGroup.Errors() {
			dc.log.Error("Consumer group error", "error", err)
		}
	}()
	go func() {
		defer dc.wg.Done()
		dc.run(ctx)
	}()

	dc.log.Info("Delivery receipt consumer started", "topics", dc.topics)
}

func (dc *DeliveryConsumer) run(ctx context.Context) {
	for {
		// Consume returns on every rebalance and must be called again
		err := dc.consumerGroup.Consume(ctx, dc.topics, dc.handler)
		if errors.Is(err, sarama.ErrClosedConsumerGroup) {
			return
		}
		if err != nil {
			dc.log.Error("Error consuming messages", "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

func (dc *DeliveryConsumer) Stop() error {
	if dc.cancel != nil {
		dc.cancel()
	}

	err := dc.consumerGroup.Close()
	dc.wg.Wait()
	if err != nil {
		return fmt.Errorf("failed to close consumer group: %w", err)
	}

	dc.log.Info("Delivery receipt consumer stopped")
	return nil
}

type ConsumerGroupHandler struct {
	receipts   ReceiptStore
	maxRetries int
	backoff    time.Duration
	log        *logger.Logger
	now        func() time.Time
}

func NewConsumerGroupHandler(receipts ReceiptStore, maxRetries int, backoff time.Duration, log *logger.Logger) *ConsumerGroupHandler {
	if log == nil {
		log = logger.GetDefault()
	}
	return &ConsumerGroupHandler{
		receipts:   receipts,
		maxRetries: maxRetries,
		backoff:    backoff,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

func (h *ConsumerGroupHandler) Setup(sarama.ConsumerGroupSession) error {
	h.log.Debug("Consumer group session started")
	return nil
}

func (h *ConsumerGroupHandler) Cleanup(sarama.ConsumerGroupSession) error {
	h.log.Debug("Consumer group session ended")
	return nil
}

func (h *ConsumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}

			if err := h.processMessage(session.Context(), message); err != nil {
				h.log.Error("Error processing push message",
					"error", err,
					"partition", message.Partition,
					"offset", message.Offset,
				)
				// Malformed payloads never succeed, skip past them
				if !errors.Is(err, errMalformedPush) {
					continue
				}
			}
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

var errMalformedPush = errors.New("malformed push message")

func (h *ConsumerGroupHandler) processMessage(ctx context.Context, message *sarama.ConsumerMessage) error {
	var push PushMessage
	if err := json.Unmarshal(message.Value, &push); err != nil {
		return fmt.Errorf("%w: %w", errMalformedPush, err)
	}
	if push.ID == uuid.Nil || push.RecipientID == "" {
		return errMalformedPush
	}

	return h.executeWithRetry(ctx, &push)
}

func (h *ConsumerGroupHandler) executeWithRetry(ctx context.Context, push *PushMessage) error {
	var err error
	for attempt := 0; attempt <= h.maxRetries; attempt++ {
		err = h.receipts.MarkDelivered(ctx, push.RecipientID, push.ID, h.now())
		if err == nil {
			return nil
		}
		if attempt == h.maxRetries {
			break
		}

		// Exponential backoff
		delay := h.backoff * time.Duration(1<<attempt)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return fmt.Errorf("failed to record delivery after %d attempts: %w", h.maxRetries+1, err)
}
