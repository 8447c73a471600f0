package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKafkaChannelPublishesPushMessage(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	channel := NewKafkaChannelWithProducer(producer, "entrant-notifications", nil)
	defer channel.Close()

	n := buildNotification("alice", time.Now())

	producer.ExpectSendMessageWithCheckerFunctionAndSucceed(func(value []byte) error {
		var push PushMessage
		if err := json.Unmarshal(value, &push); err != nil {
			return err
		}
		if push.ID != n.ID || push.RecipientID != "alice" {
			return errors.New("unexpected payload")
		}
		return nil
	})

	require.NoError(t, channel.Send(context.Background(), n))
}

func TestKafkaChannelSurfacesProducerErrors(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	channel := NewKafkaChannelWithProducer(producer, "entrant-notifications", nil)
	defer channel.Close()

	producer.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)

	err := channel.Send(context.Background(), buildNotification("alice", time.Now()))
	assert.ErrorIs(t, err, sarama.ErrOutOfBrokers)
}

func TestKafkaChannelHonorsCancelledContext(t *testing.T) {
	producer := mocks.NewSyncProducer(t, nil)
	channel := NewKafkaChannelWithProducer(producer, "entrant-notifications", nil)
	defer channel.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := channel.Send(ctx, buildNotification("alice", time.Now()))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCreateHeaders(t *testing.T) {
	n := buildNotification("alice", time.Now())

	headers := map[string]string{}
	for _, h := range createHeaders(n) {
		headers[string(h.Key)] = string(h.Value)
	}

	assert.Equal(t, n.ID.String(), headers["notification_id"])
	assert.Equal(t, "LOTTERY_WIN", headers["notification_type"])
	assert.Equal(t, "alice", headers["recipient_id"])
	assert.Equal(t, "evt-1", headers["event_id"])
}

func TestKafkaChannelConfig(t *testing.T) {
	cfg := DefaultKafkaChannelConfig()
	saramaConfig := cfg.SaramaConfig()

	assert.True(t, saramaConfig.Producer.Return.Successes)
	assert.True(t, saramaConfig.Producer.Idempotent)
	assert.Equal(t, 1, saramaConfig.Net.MaxOpenRequests)
	assert.Equal(t, sarama.WaitForAll, saramaConfig.Producer.RequiredAcks)
	require.NoError(t, saramaConfig.Validate())
}
