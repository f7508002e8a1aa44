// Package outbox relays staged dispatch messages and re-arms deliveries
// that need another attempt.
package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andreyxaxa/Notify-Router/internal/entity"
	"github.com/andreyxaxa/Notify-Router/internal/infrastructure"
	"github.com/andreyxaxa/Notify-Router/internal/metrics"
	"github.com/andreyxaxa/Notify-Router/internal/repo"
	"github.com/andreyxaxa/Notify-Router/pkg/logger"
	"github.com/andreyxaxa/Notify-Router/pkg/types/errs"
	"github.com/google/uuid"
)

type UseCase struct {
	outbox     repo.OutboxRepo
	deliveries repo.DeliveryRepo
	events     repo.EventRepo
	transactor repo.Transactor
	sender     infrastructure.MessagesSender

	metrics *metrics.Metrics
	logger  logger.Interface
	now     func() time.Time
}

func New(
	outbox repo.OutboxRepo,
	deliveries repo.DeliveryRepo,
	events repo.EventRepo,
	transactor repo.Transactor,
	sender infrastructure.MessagesSender,
	m *metrics.Metrics,
	l logger.Interface,
) *UseCase {
	return &UseCase{
		outbox:     outbox,
		deliveries: deliveries,
		events:     events,
		transactor: transactor,
		sender:     sender,
		metrics:    m,
		logger:     l,
		now:        time.Now,
	}
}

// RelayPending claims up to limit pending messages, publishes them and
// records the outcome. It returns the number of messages published.
func (uc *UseCase) RelayPending(ctx context.Context, limit, maxRetries int) (int, error) {
	var messages []*entity.OutboxMessage

	// 1. claim pending rows; SKIP LOCKED keeps concurrent relays apart
	err := uc.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		messages, err = uc.outbox.GetPendingMessages(ctx, limit, maxRetries)
		if err != nil {
			return fmt.Errorf("UseCase - RelayPending - uc.outbox.GetPendingMessages: %w", err)
		}
		if len(messages) == 0 {
			return nil
		}

		err = uc.outbox.MarkAsProcessingBatch(ctx, ids(messages))
		if err != nil {
			return fmt.Errorf("UseCase - RelayPending - uc.outbox.MarkAsProcessingBatch: %w", err)
		}

		return nil
	})
	if err != nil {
		return 0, err
	}
	if len(messages) == 0 {
		return 0, nil
	}

	// 2. publish
	err = uc.sender.SendMessages(ctx, messages)
	if err != nil {
		uc.metrics.OutboxRelayed("failed", len(messages))

		// 2.1 back to pending with one more retry on the counter
		incErr := uc.outbox.IncrementRetryCountBatch(ctx, ids(messages))
		if incErr != nil {
			uc.logger.Error(incErr, "UseCase - RelayPending - uc.outbox.IncrementRetryCountBatch")
		}

		return 0, fmt.Errorf("UseCase - RelayPending - uc.sender.SendMessages: %w", err)
	}

	// 3. done
	err = uc.outbox.MarkAsProcessedBatch(ctx, ids(messages))
	if err != nil {
		return len(messages), fmt.Errorf("UseCase - RelayPending - uc.outbox.MarkAsProcessedBatch: %w", err)
	}

	uc.metrics.OutboxRelayed("published", len(messages))

	return len(messages), nil
}

func (uc *UseCase) MarkMaxRetriesAsFailed(ctx context.Context, maxRetries int) error {
	err := uc.outbox.MarkMaxRetriesAsFailed(ctx, maxRetries)
	if err != nil {
		return fmt.Errorf("UseCase - MarkMaxRetriesAsFailed - uc.outbox.MarkMaxRetriesAsFailed: %w", err)
	}

	return nil
}

func (uc *UseCase) RequeueStuckOutbox(ctx context.Context, olderThan time.Duration) (int64, error) {
	n, err := uc.outbox.RequeueStuckProcessing(ctx, uc.now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("UseCase - RequeueStuckOutbox - uc.outbox.RequeueStuckProcessing: %w", err)
	}

	return n, nil
}

func (uc *UseCase) CleanupOutbox(ctx context.Context, olderThan time.Duration) (int64, error) {
	n, err := uc.outbox.DeleteOldProcessedAndFailed(ctx, uc.now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("UseCase - CleanupOutbox - uc.outbox.DeleteOldProcessedAndFailed: %w", err)
	}

	return n, nil
}

// RetryDue re-arms failed deliveries whose next_retry_at has passed.
func (uc *UseCase) RetryDue(ctx context.Context, maxAttempts, limit int) (int, error) {
	due, err := uc.deliveries.ListDueForRetry(ctx, uc.now(), maxAttempts, limit)
	if err != nil {
		return 0, fmt.Errorf("UseCase - RetryDue - uc.deliveries.ListDueForRetry: %w", err)
	}

	n := uc.requeue(ctx, due, entity.DeliveryFailed)
	uc.metrics.SweepRequeued("retry", n)

	return n, nil
}

// RecoverStuck requeues deliveries left in processing by a crashed or
// cancelled attempt.
func (uc *UseCase) RecoverStuck(ctx context.Context, olderThan time.Duration, limit int) (int, error) {
	stuck, err := uc.deliveries.ListStuckProcessing(ctx, uc.now().Add(-olderThan), limit)
	if err != nil {
		return 0, fmt.Errorf("UseCase - RecoverStuck - uc.deliveries.ListStuckProcessing: %w", err)
	}

	n := uc.requeue(ctx, stuck, entity.DeliveryProcessing)
	uc.metrics.SweepRequeued("recovery", n)

	return n, nil
}

// requeue moves each row from -> pending and stages a fresh dispatch message,
// one transaction per row. Rows another worker already moved are skipped.
func (uc *UseCase) requeue(ctx context.Context, deliveries []*entity.Delivery, from entity.DeliveryStatus) int {
	events := make(map[uuid.UUID]*entity.Event)
	requeued := 0

	for _, d := range deliveries {
		event, ok := events[d.EventID]
		if !ok {
			var err error
			event, err = uc.events.GetByID(ctx, d.EventID)
			if err != nil {
				uc.logger.Error(err, "UseCase - requeue - uc.events.GetByID", "delivery_id", d.ID)
				continue
			}
			events[d.EventID] = event
		}

		err := uc.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
			rearmed, err := uc.deliveries.Rearm(ctx, d.ID, from)
			if err != nil {
				return fmt.Errorf("UseCase - requeue - uc.deliveries.Rearm: %w", err)
			}

			messages, err := NewMessages(event, []*entity.Delivery{rearmed}, uc.now())
			if err != nil {
				return err
			}

			return uc.outbox.CreateBatch(ctx, messages)
		})
		if err != nil {
			if errors.Is(err, errs.ErrInvalidTransition) {
				continue
			}
			uc.logger.Error(err, "UseCase - requeue", "delivery_id", d.ID)
			continue
		}

		requeued++
	}

	return requeued
}

func ids(messages []*entity.OutboxMessage) uuid.UUIDs {
	out := make(uuid.UUIDs, 0, len(messages))
	for _, m := range messages {
		out = append(out, m.ID)
	}
	return out
}
