package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/IBM/sarama"

	"pixelevents/pkg/logger"
)

// Channel pushes a notification to the recipient's device. Delivery is best
// effort; the inbox copy stays authoritative.
type Channel interface {
	Send(ctx context.Context, notification *Notification) error
	Close() error
}

// KafkaChannelConfig contains configuration for the Kafka push channel
type KafkaChannelConfig struct {
	Brokers          []string
	Topic            string
	ClientID         string
	RetryMax         int
	Timeout          time.Duration
	RequiredAcks     sarama.RequiredAcks
	CompressionType  sarama.CompressionCodec
	IdempotentWrites bool
	MaxMessageBytes  int
}

// DefaultKafkaChannelConfig returns a default channel configuration
func DefaultKafkaChannelConfig() *KafkaChannelConfig {
	return &KafkaChannelConfig{
		Brokers:          []string{"localhost:9092"},
		Topic:            "entrant-notifications",
		ClientID:         "pixelevents",
		RetryMax:         3,
		Timeout:          10 * time.Second,
		RequiredAcks:     sarama.WaitForAll,
		CompressionType:  sarama.CompressionSnappy,
		IdempotentWrites: true,
		MaxMessageBytes:  1000000,
	}
}

// SaramaConfig builds the producer configuration
func (c *KafkaChannelConfig) SaramaConfig() *sarama.Config {
	saramaConfig := sarama.NewConfig()
	saramaConfig.ClientID = c.ClientID

	saramaConfig.Producer.Return.Successes = true
	saramaConfig.Producer.Return.Errors = true
	saramaConfig.Producer.RequiredAcks = c.RequiredAcks
	saramaConfig.Producer.Compression = c.CompressionType
	saramaConfig.Producer.Retry.Max = c.RetryMax
	saramaConfig.Producer.Timeout = c.Timeout
	saramaConfig.Producer.Idempotent = c.IdempotentWrites
	saramaConfig.Producer.MaxMessageBytes = c.MaxMessageBytes

	// Idempotent producers require a single in-flight request
	if c.IdempotentWrites {
		saramaConfig.Net.MaxOpenRequests = 1
	}

	// Hash partitioner keeps one recipient's messages in order
	saramaConfig.Producer.Partitioner = sarama.NewHashPartitioner
	return saramaConfig
}

// KafkaChannel publishes push messages to a Kafka topic
type KafkaChannel struct {
	producer sarama.SyncProducer
	topic    string
	log      *logger.Logger
}

// NewKafkaChannel connects a producer to the configured brokers
func NewKafkaChannel(config *KafkaChannelConfig, log *logger.Logger) (*KafkaChannel, error) {
	if config == nil {
		config = DefaultKafkaChannelConfig()
	}

	producer, err := sarama.NewSyncProducer(config.Brokers, config.SaramaConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to create Kafka producer: %w", err)
	}

	return NewKafkaChannelWithProducer(producer, config.Topic, log), nil
}

// NewKafkaChannelWithProducer wraps an existing producer
func NewKafkaChannelWithProducer(producer sarama.SyncProducer, topic string, log *logger.Logger) *KafkaChannel {
	if log == nil {
		log = logger.GetDefault()
	}
	return &KafkaChannel{
		producer: producer,
		topic:    topic,
		log:      log,
	}
}

func (kc *KafkaChannel) Send(ctx context.Context, notification *Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	push := notification.ToPushMessage()
	messageBytes, err := push.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to marshal push message: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic:     kc.topic,
		Key:       sarama.StringEncoder(push.GetPartitionKey()),
		Value:     sarama.ByteEncoder(messageBytes),
		Headers:   createHeaders(notification),
		Timestamp: notification.CreatedAt,
	}

	partition, offset, err := kc.producer.SendMessage(message)
	if err != nil {
		return fmt.Errorf("failed to send push message to Kafka: %w", err)
	}

	kc.log.Debug("Push message published",
		"topic", kc.topic,
		"partition", partition,
		"offset", offset,
		"notification_id", notification.ID.String(),
		"recipient_id", notification.RecipientID,
	)
	return nil
}

func (kc *KafkaChannel) Close() error {
	if kc.producer == nil {
		return nil
	}
	if err := kc.producer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka producer: %w", err)
	}
	return nil
}

func createHeaders(notification *Notification) []sarama.RecordHeader {
	return []sarama.RecordHeader{
		{Key: []byte("notification_id"), Value: []byte(notification.ID.String())},
		{Key: []byte("notification_type"), Value: []byte(notification.Type)},
		{Key: []byte("recipient_id"), Value: []byte(notification.RecipientID)},
		{Key: []byte("event_id"), Value: []byte(notification.EventID)},
		{Key: []byte("producer"), Value: []byte("pixelevents-notifications")},
		{Key: []byte("created_at"), Value: []byte(notification.CreatedAt.Format(time.RFC3339))},
	}
}

// LogChannel only logs. Used when Kafka is disabled.
type LogChannel struct {
	log *logger.Logger
}

func NewLogChannel(log *logger.Logger) *LogChannel {
	if log == nil {
		log = logger.GetDefault()
	}
	return &LogChannel{log: log}
}

func (lc *LogChannel) Send(ctx context.Context, notification *Notification) error {
	lc.log.InfoContext(ctx, "Push skipped, no channel configured",
		"notification_id", notification.ID.String(),
		"recipient_id", notification.RecipientID,
		"type", string(notification.Type),
	)
	return nil
}

func (lc *LogChannel) Close() error { return nil }
