package infrastructure

import (
	"context"

	"github.com/andreyxaxa/Notify-Router/internal/entity"
)

type (
	// MessagesSender publishes staged outbox messages to the dispatch topic.
	MessagesSender interface {
		SendMessages(ctx context.Context, messages []*entity.OutboxMessage) error
		Close() error
	}
)
