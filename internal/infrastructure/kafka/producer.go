package kafka

import (
	"context"
	"fmt"

	"github.com/andreyxaxa/Notify-Router/internal/entity"
	"github.com/andreyxaxa/Notify-Router/pkg/kafka/producer"
	"github.com/segmentio/kafka-go"
)

const (
	HeaderOutboxID   = "outbox_id"
	HeaderDeliveryID = "delivery_id"
)

type DispatchProducer struct {
	*producer.Producer
	topic string
}

func NewDispatchProducer(producer *producer.Producer, topic string) *DispatchProducer {
	return &DispatchProducer{
		producer,
		topic,
	}
}

// SendMessages keys every message by its event id so one event's deliveries
// share a partition and reach the same batch window.
func (dp *DispatchProducer) SendMessages(ctx context.Context, messages []*entity.OutboxMessage) error {
	if len(messages) == 0 {
		return nil
	}

	return dp.write(ctx, toKafkaMessages(dp.topic, messages))
}

func (dp *DispatchProducer) write(ctx context.Context, msgs []kafka.Message) error {
	err := dp.Writer.WriteMessages(ctx, msgs...)
	if err != nil {
		return fmt.Errorf("DispatchProducer - SendMessages - dp.Writer.WriteMessages: %w", err)
	}

	return nil
}

func toKafkaMessages(topic string, messages []*entity.OutboxMessage) []kafka.Message {
	msgs := make([]kafka.Message, 0, len(messages))

	for _, m := range messages {
		msgs = append(msgs, kafka.Message{
			Topic: topic,
			Key:   []byte(m.AggregateID.String()),
			Value: m.Payload,
			Headers: []kafka.Header{
				{Key: HeaderOutboxID, Value: []byte(m.ID.String())},
				{Key: HeaderDeliveryID, Value: []byte(m.DeliveryID.String())},
			},
		})
	}

	return msgs
}

func (dp *DispatchProducer) Close() error {
	err := dp.Producer.Close()
	if err != nil {
		return fmt.Errorf("DispatchProducer - Close: %w", err)
	}

	return nil
}
