package persistent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/andreyxaxa/Notify-Router/internal/entity"
	"github.com/andreyxaxa/Notify-Router/pkg/postgres"
	"github.com/andreyxaxa/Notify-Router/pkg/types/errs"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const (
	// Table
	eventsTable = "events"

	// Columns
	eventIDColumn              = "id"
	eventServiceColumn         = "service"
	eventTopicColumn           = "topic"
	eventClientIDColumn        = "client_id"
	eventSeverityColumn        = "severity"
	eventTemplateIDColumn      = "template_id"
	eventSubjectColumn         = "subject"
	eventBodyColumn            = "body"
	eventPayloadColumn         = "payload"
	eventSagaIDColumn          = "saga_id"
	eventCorrelationIDColumn   = "correlation_id"
	eventDeliveriesCountColumn = "deliveries_count"
	eventCreatedAtColumn       = "created_at"
	eventProcessedAtColumn     = "processed_at"
)

type EventRepo struct {
	*postgres.Postgres
}

func NewEventRepo(pg *postgres.Postgres) *EventRepo {
	return &EventRepo{pg}
}

func (r *EventRepo) Create(ctx context.Context, event *entity.Event) error {
	sql, args, err := r.Builder.
		Insert(eventsTable).
		Columns(
			eventIDColumn,
			eventServiceColumn,
			eventTopicColumn,
			eventClientIDColumn,
			eventSeverityColumn,
			eventTemplateIDColumn,
			eventSubjectColumn,
			eventBodyColumn,
			eventPayloadColumn,
			eventSagaIDColumn,
			eventCorrelationIDColumn,
			eventDeliveriesCountColumn,
			eventCreatedAtColumn,
		).
		Values(
			event.ID,
			event.Service,
			event.Topic,
			event.ClientID,
			event.Severity,
			event.TemplateID,
			event.Subject,
			event.Body,
			event.Payload,
			event.SagaID,
			event.CorrelationID,
			event.DeliveriesCount,
			event.CreatedAt,
		).ToSql()
	if err != nil {
		return fmt.Errorf("EventRepo - Create - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	_, err = executor.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("EventRepo - Create - executor.Exec: %w", err)
	}

	return nil
}

func (r *EventRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.Event, error) {
	sql, args, err := r.Builder.
		Select(
			eventIDColumn,
			eventServiceColumn,
			eventTopicColumn,
			eventClientIDColumn,
			eventSeverityColumn,
			eventTemplateIDColumn,
			eventSubjectColumn,
			eventBodyColumn,
			eventPayloadColumn,
			eventSagaIDColumn,
			eventCorrelationIDColumn,
			eventDeliveriesCountColumn,
			eventCreatedAtColumn,
			eventProcessedAtColumn,
		).
		From(eventsTable).
		Where(squirrel.Eq{eventIDColumn: id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("EventRepo - GetByID - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	var e entity.Event
	err = executor.QueryRow(ctx, sql, args...).Scan(
		&e.ID,
		&e.Service,
		&e.Topic,
		&e.ClientID,
		&e.Severity,
		&e.TemplateID,
		&e.Subject,
		&e.Body,
		&e.Payload,
		&e.SagaID,
		&e.CorrelationID,
		&e.DeliveriesCount,
		&e.CreatedAt,
		&e.ProcessedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("EventRepo - GetByID: %w", errs.ErrRecordNotFound)
		}
		return nil, fmt.Errorf("EventRepo - GetByID - executor.QueryRow: %w", err)
	}

	return &e, nil
}

// MarkProcessed stamps completion once; a second stamp is a no-op.
func (r *EventRepo) MarkProcessed(ctx context.Context, id uuid.UUID, deliveriesCount int, at time.Time) error {
	sql, args, err := r.Builder.
		Update(eventsTable).
		Set(eventDeliveriesCountColumn, deliveriesCount).
		Set(eventProcessedAtColumn, at).
		Where(squirrel.And{
			squirrel.Eq{eventIDColumn: id},
			squirrel.Eq{eventProcessedAtColumn: nil},
		}).
		ToSql()
	if err != nil {
		return fmt.Errorf("EventRepo - MarkProcessed - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	tag, err := executor.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("EventRepo - MarkProcessed - executor.Exec: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return fmt.Errorf("EventRepo - MarkProcessed: %w", errs.ErrRecordNotFound)
	}

	return nil
}
