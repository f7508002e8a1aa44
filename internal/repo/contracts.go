package repo

import (
	"context"
	"time"

	"github.com/andreyxaxa/Notify-Router/internal/entity"
	"github.com/google/uuid"
)

type (
	Transactor interface {
		WithinTransaction(ctx context.Context, f func(ctx context.Context) error) error
	}

	EventRepo interface {
		Create(ctx context.Context, event *entity.Event) error
		GetByID(ctx context.Context, id uuid.UUID) (*entity.Event, error)
		MarkProcessed(ctx context.Context, id uuid.UUID, deliveriesCount int, at time.Time) error
	}

	// PolicyRepo reads routing policies. A nil clientID selects only default
	// (client-null) policies; a non-nil one selects only that client's policies.
	PolicyRepo interface {
		ListEnabled(ctx context.Context, service, topic string, clientID *string) ([]*entity.RoutingPolicy, error)
	}

	DirectoryRepo interface {
		// ListActiveMembers returns active contacts of an active group.
		ListActiveMembers(ctx context.Context, groupID uuid.UUID) ([]*entity.Contact, error)
	}

	DeliveryRepo interface {
		CreateBatch(ctx context.Context, deliveries []*entity.Delivery) error
		GetByID(ctx context.Context, id uuid.UUID) (*entity.Delivery, error)
		GetByIDs(ctx context.Context, ids uuid.UUIDs) ([]*entity.Delivery, error)
		ListByEvent(ctx context.Context, eventID uuid.UUID) ([]*entity.Delivery, error)

		// MarkProcessing moves pending or retryably failed rows to processing and
		// returns only the rows this call transitioned.
		MarkProcessing(ctx context.Context, ids uuid.UUIDs) ([]*entity.Delivery, error)
		MarkDelivered(ctx context.Context, ids uuid.UUIDs, externalID string) error
		MarkFailed(ctx context.Context, ids uuid.UUIDs, failure entity.DeliveryFailure) error
		// Rearm moves a row from `from` back to pending, clearing error and schedule.
		Rearm(ctx context.Context, id uuid.UUID, from entity.DeliveryStatus) (*entity.Delivery, error)
		Cancel(ctx context.Context, id uuid.UUID) (*entity.Delivery, error)

		ListDueForRetry(ctx context.Context, now time.Time, maxAttempts, limit int) ([]*entity.Delivery, error)
		ListStuckProcessing(ctx context.Context, olderThan time.Time, limit int) ([]*entity.Delivery, error)
		CountByStatus(ctx context.Context) (entity.DeliveryStats, error)
	}

	OutboxRepo interface {
		CreateBatch(ctx context.Context, messages []*entity.OutboxMessage) error
		GetPendingMessages(ctx context.Context, limit int, maxRetries int) ([]*entity.OutboxMessage, error)
		MarkAsProcessingBatch(ctx context.Context, IDs uuid.UUIDs) error
		MarkAsProcessedBatch(ctx context.Context, IDs uuid.UUIDs) error
		IncrementRetryCountBatch(ctx context.Context, IDs uuid.UUIDs) error
		MarkMaxRetriesAsFailed(ctx context.Context, maxRetries int) error
		RequeueStuckProcessing(ctx context.Context, olderThan time.Time) (int64, error)
		DeleteOldProcessedAndFailed(ctx context.Context, olderThan time.Time) (int64, error)
	}

	ArchiveRepo interface {
		Put(ctx context.Context, key string, data []byte, contentType string) error
	}
)
