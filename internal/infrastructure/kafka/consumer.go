package kafka

import (
	"context"
	"fmt"

	"github.com/andreyxaxa/Notify-Router/pkg/kafka/consumer"
	"github.com/segmentio/kafka-go"
)

type DispatchConsumer struct {
	*consumer.Consumer
}

func NewDispatchConsumer(consumer *consumer.Consumer) *DispatchConsumer {
	return &DispatchConsumer{consumer}
}

func (dc *DispatchConsumer) ReadMessage(ctx context.Context) (kafka.Message, error) {
	msg, err := dc.Reader.FetchMessage(ctx)
	if err != nil {
		return kafka.Message{}, fmt.Errorf("DispatchConsumer - ReadMessage - dc.Reader.FetchMessage: %w", err)
	}

	return msg, nil
}

func (dc *DispatchConsumer) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	if len(msgs) == 0 {
		return nil
	}

	err := dc.Reader.CommitMessages(ctx, msgs...)
	if err != nil {
		return fmt.Errorf("DispatchConsumer - CommitMessages - dc.Reader.CommitMessages: %w", err)
	}

	return nil
}

func (dc *DispatchConsumer) Close() error {
	err := dc.Consumer.Close()
	if err != nil {
		return fmt.Errorf("DispatchConsumer - Close: %w", err)
	}

	return nil
}
