package usecase

import (
	"context"
	"time"

	"github.com/andreyxaxa/Notify-Router/internal/dto"
	"github.com/andreyxaxa/Notify-Router/internal/entity"
	"github.com/google/uuid"
)

type (
	PolicyResolver interface {
		Resolve(ctx context.Context, service, topic string, clientID *string, severity entity.Severity) ([]entity.Assignment, error)
	}

	NotificationUseCase interface {
		PublishEvent(ctx context.Context, in dto.PublishEvent) (dto.PublishResult, error)
		GetEvent(ctx context.Context, id uuid.UUID) (*entity.Event, error)
		ListDeliveries(ctx context.Context, eventID uuid.UUID) ([]*entity.Delivery, error)
		GetDelivery(ctx context.Context, id uuid.UUID) (*entity.Delivery, error)
		Stats(ctx context.Context) (entity.DeliveryStats, error)
		RetryDelivery(ctx context.Context, id uuid.UUID) (*entity.Delivery, error)
		CancelDelivery(ctx context.Context, id uuid.UUID) (*entity.Delivery, error)
	}

	DispatchUseCase interface {
		HandleBatch(ctx context.Context, messages []entity.DispatchMessage) error
		HandleSingle(ctx context.Context, msg entity.DispatchMessage) error
	}

	OutboxUseCase interface {
		RelayPending(ctx context.Context, limit, maxRetries int) (int, error)
		MarkMaxRetriesAsFailed(ctx context.Context, maxRetries int) error
		RequeueStuckOutbox(ctx context.Context, olderThan time.Duration) (int64, error)
		CleanupOutbox(ctx context.Context, olderThan time.Duration) (int64, error)
		RetryDue(ctx context.Context, maxAttempts, limit int) (int, error)
		RecoverStuck(ctx context.Context, olderThan time.Duration, limit int) (int, error)
	}
)
