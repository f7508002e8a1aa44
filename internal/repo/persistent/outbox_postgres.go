package persistent

import (
	"context"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/andreyxaxa/Notify-Router/internal/entity"
	"github.com/andreyxaxa/Notify-Router/pkg/postgres"
	"github.com/andreyxaxa/Notify-Router/pkg/types/errs"
	"github.com/google/uuid"
)

const (
	// Table
	outboxTable = "delivery_outbox"

	// Columns
	outboxIDColumn          = "id"
	outboxAggregateIDColumn = "aggregate_id"
	outboxDeliveryIDColumn  = "delivery_id"
	outboxPayloadColumn     = "payload"
	outboxStatusColumn      = "status"
	outboxCreatedAtColumn   = "created_at"
	outboxLockedAtColumn    = "locked_at"
	outboxProcessedAtColumn = "processed_at"
	outboxRetryCountColumn  = "retry_count"
)

type OutboxRepo struct {
	*postgres.Postgres
}

func NewOutboxRepo(pg *postgres.Postgres) *OutboxRepo {
	return &OutboxRepo{pg}
}

func (r *OutboxRepo) CreateBatch(ctx context.Context, messages []*entity.OutboxMessage) error {
	if len(messages) == 0 {
		return nil
	}

	builder := r.Builder.
		Insert(outboxTable).
		Columns(
			outboxIDColumn,
			outboxAggregateIDColumn,
			outboxDeliveryIDColumn,
			outboxPayloadColumn,
			outboxStatusColumn,
			outboxCreatedAtColumn,
			outboxRetryCountColumn,
		)

	for _, m := range messages {
		builder = builder.Values(
			m.ID,
			m.AggregateID,
			m.DeliveryID,
			m.Payload,
			m.Status,
			m.CreatedAt,
			m.RetryCount,
		)
	}

	sql, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("OutboxRepo - CreateBatch - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	_, err = executor.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("OutboxRepo - CreateBatch - executor.Exec: %w", err)
	}

	return nil
}

// GetPendingMessages locks the selected rows so concurrent relays do not pick
// the same batch; the caller marks them processing in the same transaction.
func (r *OutboxRepo) GetPendingMessages(ctx context.Context, limit int, maxRetries int) ([]*entity.OutboxMessage, error) {
	sql, args, err := r.Builder.
		Select(
			outboxIDColumn,
			outboxAggregateIDColumn,
			outboxDeliveryIDColumn,
			outboxPayloadColumn,
			outboxStatusColumn,
			outboxCreatedAtColumn,
			outboxProcessedAtColumn,
			outboxRetryCountColumn,
		).
		From(outboxTable).
		Where(squirrel.And{
			squirrel.Eq{outboxStatusColumn: entity.Pending},
			squirrel.Lt{outboxRetryCountColumn: maxRetries},
		}).
		OrderBy(outboxCreatedAtColumn + " ASC").
		Limit(uint64(limit)). //nolint:gosec // limit comes from config
		Suffix("FOR UPDATE SKIP LOCKED").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("OutboxRepo - GetPendingMessages - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	rows, err := executor.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("OutboxRepo - GetPendingMessages - executor.Query: %w", err)
	}
	defer rows.Close()

	messages := make([]*entity.OutboxMessage, 0, limit)
	for rows.Next() {
		var m entity.OutboxMessage
		err = rows.Scan(
			&m.ID,
			&m.AggregateID,
			&m.DeliveryID,
			&m.Payload,
			&m.Status,
			&m.CreatedAt,
			&m.ProcessedAt,
			&m.RetryCount,
		)
		if err != nil {
			return nil, fmt.Errorf("OutboxRepo - GetPendingMessages - rows.Scan: %w", err)
		}
		messages = append(messages, &m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("OutboxRepo - GetPendingMessages - rows.Err: %w", err)
	}

	return messages, nil
}

func (r *OutboxRepo) MarkAsProcessingBatch(ctx context.Context, IDs uuid.UUIDs) error {
	return r.setStatus(ctx, "MarkAsProcessingBatch", IDs, squirrel.Eq{outboxStatusColumn: entity.Pending},
		map[string]any{
			outboxStatusColumn:   entity.Processing,
			outboxLockedAtColumn: time.Now(),
		})
}

func (r *OutboxRepo) MarkAsProcessedBatch(ctx context.Context, IDs uuid.UUIDs) error {
	return r.setStatus(ctx, "MarkAsProcessedBatch", IDs, squirrel.Eq{outboxStatusColumn: entity.Processing},
		map[string]any{
			outboxStatusColumn:      entity.Processed,
			outboxProcessedAtColumn: time.Now(),
		})
}

func (r *OutboxRepo) IncrementRetryCountBatch(ctx context.Context, IDs uuid.UUIDs) error {
	return r.setStatus(ctx, "IncrementRetryCountBatch", IDs, squirrel.Eq{outboxStatusColumn: entity.Processing},
		map[string]any{
			outboxRetryCountColumn: squirrel.Expr(outboxRetryCountColumn + " + 1"),
			outboxStatusColumn:     entity.Pending,
			outboxLockedAtColumn:   nil,
		})
}

func (r *OutboxRepo) setStatus(ctx context.Context, op string, IDs uuid.UUIDs, guard squirrel.Sqlizer, set map[string]any) error {
	if len(IDs) == 0 {
		return nil
	}

	sql, args, err := r.Builder.
		Update(outboxTable).
		SetMap(set).
		Where(squirrel.And{
			squirrel.Eq{outboxIDColumn: IDs},
			guard,
		}).
		ToSql()
	if err != nil {
		return fmt.Errorf("OutboxRepo - %s - r.Builder.ToSql: %w", op, err)
	}

	executor := r.GetExecutor(ctx)

	tag, err := executor.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("OutboxRepo - %s - executor.Exec: %w", op, err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("OutboxRepo - %s: %w", op, errs.ErrRecordNotFound)
	}

	return nil
}

func (r *OutboxRepo) MarkMaxRetriesAsFailed(ctx context.Context, maxRetries int) error {
	sql, args, err := r.Builder.
		Update(outboxTable).
		Set(outboxStatusColumn, entity.Failed).
		Where(squirrel.And{
			squirrel.Eq{outboxStatusColumn: string(entity.Pending)},
			squirrel.GtOrEq{outboxRetryCountColumn: maxRetries},
		}).
		ToSql()
	if err != nil {
		return fmt.Errorf("OutboxRepo - MarkMaxRetriesAsFailed - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	_, err = executor.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("OutboxRepo - MarkMaxRetriesAsFailed - executor.Exec: %w", err)
	}

	return nil
}

// RequeueStuckProcessing returns rows a crashed relay left in processing.
func (r *OutboxRepo) RequeueStuckProcessing(ctx context.Context, olderThan time.Time) (int64, error) {
	sql, args, err := r.Builder.
		Update(outboxTable).
		Set(outboxStatusColumn, entity.Pending).
		Set(outboxLockedAtColumn, nil).
		Where(squirrel.And{
			squirrel.Eq{outboxStatusColumn: string(entity.Processing)},
			squirrel.Lt{outboxLockedAtColumn: olderThan},
		}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("OutboxRepo - RequeueStuckProcessing - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	tag, err := executor.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("OutboxRepo - RequeueStuckProcessing - executor.Exec: %w", err)
	}

	return tag.RowsAffected(), nil
}

func (r *OutboxRepo) DeleteOldProcessedAndFailed(ctx context.Context, olderThan time.Time) (int64, error) {
	sql, args, err := r.Builder.
		Delete(outboxTable).
		Where(squirrel.And{
			squirrel.Eq{outboxStatusColumn: []string{string(entity.Processed), string(entity.Failed)}},
			squirrel.Lt{outboxCreatedAtColumn: olderThan},
		}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("OutboxRepo - DeleteOldProcessedAndFailed - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)
	tag, err := executor.Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("OutboxRepo - DeleteOldProcessedAndFailed - executor.Exec: %w", err)
	}

	return tag.RowsAffected(), nil
}
