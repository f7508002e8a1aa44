package persistent

import (
	"context"
	"errors"
	"fmt"
	"strings"
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
	deliveriesTable = "outbound_deliveries"

	// Columns
	deliveryIDColumn           = "id"
	deliveryEventIDColumn      = "event_id"
	deliveryPolicyIDColumn     = "policy_id"
	deliveryContactIDColumn    = "contact_id"
	deliveryChannelColumn      = "channel"
	deliveryRoleColumn         = "role"
	deliveryAddressColumn      = "recipient_address"
	deliveryStatusColumn       = "status"
	deliveryErrorColumn        = "error_message"
	deliveryAttemptCountColumn = "attempt_count"
	deliveryNextRetryAtColumn  = "next_retry_at"
	deliveryExternalIDColumn   = "external_id"
	deliveryCreatedAtColumn    = "created_at"
	deliveryUpdatedAtColumn    = "updated_at"
	deliverySentAtColumn       = "sent_at"
	deliveryDeliveredAtColumn  = "delivered_at"
	deliveryFailedAtColumn     = "failed_at"
)

var deliveryColumns = []string{
	deliveryIDColumn,
	deliveryEventIDColumn,
	deliveryPolicyIDColumn,
	deliveryContactIDColumn,
	deliveryChannelColumn,
	deliveryRoleColumn,
	deliveryAddressColumn,
	deliveryStatusColumn,
	deliveryErrorColumn,
	deliveryAttemptCountColumn,
	deliveryNextRetryAtColumn,
	deliveryExternalIDColumn,
	deliveryCreatedAtColumn,
	deliveryUpdatedAtColumn,
	deliverySentAtColumn,
	deliveryDeliveredAtColumn,
	deliveryFailedAtColumn,
}

// claimableCond mirrors entity.Delivery.Claimable: terminal failures have no
// next_retry_at and stay failed.
var claimableCond = squirrel.Or{
	squirrel.Eq{deliveryStatusColumn: string(entity.DeliveryPending)},
	squirrel.And{
		squirrel.Eq{deliveryStatusColumn: string(entity.DeliveryFailed)},
		squirrel.NotEq{deliveryNextRetryAtColumn: nil},
	},
}

var returningDeliveryColumns = "RETURNING " + strings.Join(deliveryColumns, ", ")

// DeliveryRepo is the delivery state store. Every status change is a single
// UPDATE guarded by the statuses it may legally leave.
type DeliveryRepo struct {
	*postgres.Postgres
}

func NewDeliveryRepo(pg *postgres.Postgres) *DeliveryRepo {
	return &DeliveryRepo{pg}
}

func (r *DeliveryRepo) CreateBatch(ctx context.Context, deliveries []*entity.Delivery) error {
	if len(deliveries) == 0 {
		return nil
	}

	builder := r.Builder.
		Insert(deliveriesTable).
		Columns(
			deliveryIDColumn,
			deliveryEventIDColumn,
			deliveryPolicyIDColumn,
			deliveryContactIDColumn,
			deliveryChannelColumn,
			deliveryRoleColumn,
			deliveryAddressColumn,
			deliveryStatusColumn,
			deliveryAttemptCountColumn,
			deliveryCreatedAtColumn,
			deliveryUpdatedAtColumn,
		)

	for _, d := range deliveries {
		builder = builder.Values(
			d.ID,
			d.EventID,
			d.PolicyID,
			d.ContactID,
			d.Channel,
			d.Role,
			d.RecipientAddress,
			d.Status,
			d.AttemptCount,
			d.CreatedAt,
			d.UpdatedAt,
		)
	}

	sql, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("DeliveryRepo - CreateBatch - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	_, err = executor.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("DeliveryRepo - CreateBatch - executor.Exec: %w", err)
	}

	return nil
}

func (r *DeliveryRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.Delivery, error) {
	sql, args, err := r.Builder.
		Select(deliveryColumns...).
		From(deliveriesTable).
		Where(squirrel.Eq{deliveryIDColumn: id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("DeliveryRepo - GetByID - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	d, err := scanDelivery(executor.QueryRow(ctx, sql, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("DeliveryRepo - GetByID: %w", errs.ErrRecordNotFound)
		}
		return nil, fmt.Errorf("DeliveryRepo - GetByID - scanDelivery: %w", err)
	}

	return d, nil
}

func (r *DeliveryRepo) GetByIDs(ctx context.Context, ids uuid.UUIDs) ([]*entity.Delivery, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	return r.list(ctx, "GetByIDs", r.Builder.
		Select(deliveryColumns...).
		From(deliveriesTable).
		Where(squirrel.Eq{deliveryIDColumn: ids}).
		OrderBy(deliveryCreatedAtColumn+" ASC", deliveryIDColumn+" ASC"))
}

func (r *DeliveryRepo) ListByEvent(ctx context.Context, eventID uuid.UUID) ([]*entity.Delivery, error) {
	return r.list(ctx, "ListByEvent", r.Builder.
		Select(deliveryColumns...).
		From(deliveriesTable).
		Where(squirrel.Eq{deliveryEventIDColumn: eventID}).
		OrderBy(deliveryChannelColumn+" ASC", deliveryRoleColumn+" ASC", deliveryIDColumn+" ASC"))
}

func (r *DeliveryRepo) MarkProcessing(ctx context.Context, ids uuid.UUIDs) ([]*entity.Delivery, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	now := time.Now()

	return r.list(ctx, "MarkProcessing", r.Builder.
		Update(deliveriesTable).
		Set(deliveryStatusColumn, entity.DeliveryProcessing).
		Set(deliveryAttemptCountColumn, squirrel.Expr(deliveryAttemptCountColumn+" + 1")).
		Set(deliveryUpdatedAtColumn, now).
		Where(squirrel.And{
			squirrel.Eq{deliveryIDColumn: ids},
			claimableCond,
		}).
		Suffix(returningDeliveryColumns))
}

func (r *DeliveryRepo) MarkDelivered(ctx context.Context, ids uuid.UUIDs, externalID string) error {
	if len(ids) == 0 {
		return nil
	}

	now := time.Now()

	sql, args, err := r.Builder.
		Update(deliveriesTable).
		Set(deliveryStatusColumn, entity.DeliveryDelivered).
		Set(deliveryExternalIDColumn, nullable(externalID)).
		Set(deliveryErrorColumn, nil).
		Set(deliveryNextRetryAtColumn, nil).
		Set(deliverySentAtColumn, now).
		Set(deliveryDeliveredAtColumn, now).
		Set(deliveryUpdatedAtColumn, now).
		Where(squirrel.And{
			squirrel.Eq{deliveryIDColumn: ids},
			squirrel.Eq{deliveryStatusColumn: statusStrings(entity.SourcesOf(entity.DeliveryDelivered))},
		}).
		ToSql()
	if err != nil {
		return fmt.Errorf("DeliveryRepo - MarkDelivered - r.Builder.ToSql: %w", err)
	}

	return r.exec(ctx, "MarkDelivered", sql, args)
}

func (r *DeliveryRepo) MarkFailed(ctx context.Context, ids uuid.UUIDs, failure entity.DeliveryFailure) error {
	if len(ids) == 0 {
		return nil
	}

	now := time.Now()

	var nextRetryAt *time.Time
	if failure.Retryable {
		nextRetryAt = failure.NextRetryAt
	}

	sql, args, err := r.Builder.
		Update(deliveriesTable).
		Set(deliveryStatusColumn, entity.DeliveryFailed).
		Set(deliveryErrorColumn, failure.Reason).
		Set(deliveryNextRetryAtColumn, nextRetryAt).
		Set(deliveryFailedAtColumn, now).
		Set(deliveryUpdatedAtColumn, now).
		Where(squirrel.And{
			squirrel.Eq{deliveryIDColumn: ids},
			squirrel.Eq{deliveryStatusColumn: statusStrings(entity.SourcesOf(entity.DeliveryFailed))},
		}).
		ToSql()
	if err != nil {
		return fmt.Errorf("DeliveryRepo - MarkFailed - r.Builder.ToSql: %w", err)
	}

	return r.exec(ctx, "MarkFailed", sql, args)
}

func (r *DeliveryRepo) Rearm(ctx context.Context, id uuid.UUID, from entity.DeliveryStatus) (*entity.Delivery, error) {
	if !from.CanTransitionTo(entity.DeliveryPending) {
		return nil, fmt.Errorf("DeliveryRepo - Rearm - %s -> %s: %w", from, entity.DeliveryPending, errs.ErrInvalidTransition)
	}

	return r.transition(ctx, "Rearm", id, []entity.DeliveryStatus{from}, map[string]any{
		deliveryStatusColumn:      entity.DeliveryPending,
		deliveryErrorColumn:       nil,
		deliveryNextRetryAtColumn: nil,
		deliveryUpdatedAtColumn:   time.Now(),
	})
}

func (r *DeliveryRepo) Cancel(ctx context.Context, id uuid.UUID) (*entity.Delivery, error) {
	return r.transition(ctx, "Cancel", id, entity.SourcesOf(entity.DeliveryCancelled), map[string]any{
		deliveryStatusColumn:      entity.DeliveryCancelled,
		deliveryNextRetryAtColumn: nil,
		deliveryUpdatedAtColumn:   time.Now(),
	})
}

// transition updates one row out of one of the from statuses. When nothing
// matched it tells a missing row apart from a row in the wrong state.
func (r *DeliveryRepo) transition(
	ctx context.Context,
	op string,
	id uuid.UUID,
	from []entity.DeliveryStatus,
	set map[string]any,
) (*entity.Delivery, error) {
	sql, args, err := r.Builder.
		Update(deliveriesTable).
		SetMap(set).
		Where(squirrel.And{
			squirrel.Eq{deliveryIDColumn: id},
			squirrel.Eq{deliveryStatusColumn: statusStrings(from)},
		}).
		Suffix(returningDeliveryColumns).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("DeliveryRepo - %s - r.Builder.ToSql: %w", op, err)
	}

	executor := r.GetExecutor(ctx)

	d, err := scanDelivery(executor.QueryRow(ctx, sql, args...))
	if err == nil {
		return d, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("DeliveryRepo - %s - scanDelivery: %w", op, err)
	}

	current, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("DeliveryRepo - %s: %w", op, err)
	}

	return nil, fmt.Errorf("DeliveryRepo - %s - status %s: %w", op, current.Status, errs.ErrInvalidTransition)
}

func (r *DeliveryRepo) ListDueForRetry(ctx context.Context, now time.Time, maxAttempts, limit int) ([]*entity.Delivery, error) {
	return r.list(ctx, "ListDueForRetry", r.Builder.
		Select(deliveryColumns...).
		From(deliveriesTable).
		Where(squirrel.And{
			squirrel.Eq{deliveryStatusColumn: string(entity.DeliveryFailed)},
			squirrel.NotEq{deliveryNextRetryAtColumn: nil},
			squirrel.LtOrEq{deliveryNextRetryAtColumn: now},
			squirrel.Lt{deliveryAttemptCountColumn: maxAttempts},
		}).
		OrderBy(deliveryNextRetryAtColumn+" ASC").
		Limit(uint64(limit))) //nolint:gosec // limit comes from config
}

func (r *DeliveryRepo) ListStuckProcessing(ctx context.Context, olderThan time.Time, limit int) ([]*entity.Delivery, error) {
	return r.list(ctx, "ListStuckProcessing", r.Builder.
		Select(deliveryColumns...).
		From(deliveriesTable).
		Where(squirrel.And{
			squirrel.Eq{deliveryStatusColumn: string(entity.DeliveryProcessing)},
			squirrel.Lt{deliveryUpdatedAtColumn: olderThan},
		}).
		OrderBy(deliveryUpdatedAtColumn+" ASC").
		Limit(uint64(limit))) //nolint:gosec // limit comes from config
}

func (r *DeliveryRepo) CountByStatus(ctx context.Context) (entity.DeliveryStats, error) {
	sql, args, err := r.Builder.
		Select(deliveryStatusColumn, "COUNT(*)").
		From(deliveriesTable).
		GroupBy(deliveryStatusColumn).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("DeliveryRepo - CountByStatus - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	rows, err := executor.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("DeliveryRepo - CountByStatus - executor.Query: %w", err)
	}
	defer rows.Close()

	stats := make(entity.DeliveryStats)
	for rows.Next() {
		var (
			status entity.DeliveryStatus
			count  int64
		)
		if err = rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("DeliveryRepo - CountByStatus - rows.Scan: %w", err)
		}
		stats[status] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("DeliveryRepo - CountByStatus - rows.Err: %w", err)
	}

	return stats, nil
}

func (r *DeliveryRepo) list(ctx context.Context, op string, q squirrel.Sqlizer) ([]*entity.Delivery, error) {
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("DeliveryRepo - %s - r.Builder.ToSql: %w", op, err)
	}

	executor := r.GetExecutor(ctx)

	rows, err := executor.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("DeliveryRepo - %s - executor.Query: %w", op, err)
	}
	defer rows.Close()

	var deliveries []*entity.Delivery
	for rows.Next() {
		d, err := scanDelivery(rows)
		if err != nil {
			return nil, fmt.Errorf("DeliveryRepo - %s - scanDelivery: %w", op, err)
		}
		deliveries = append(deliveries, d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("DeliveryRepo - %s - rows.Err: %w", op, err)
	}

	return deliveries, nil
}

func (r *DeliveryRepo) exec(ctx context.Context, op, sql string, args []any) error {
	executor := r.GetExecutor(ctx)

	_, err := executor.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("DeliveryRepo - %s - executor.Exec: %w", op, err)
	}

	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDelivery(row rowScanner) (*entity.Delivery, error) {
	var d entity.Delivery
	err := row.Scan(
		&d.ID,
		&d.EventID,
		&d.PolicyID,
		&d.ContactID,
		&d.Channel,
		&d.Role,
		&d.RecipientAddress,
		&d.Status,
		&d.ErrorMessage,
		&d.AttemptCount,
		&d.NextRetryAt,
		&d.ExternalID,
		&d.CreatedAt,
		&d.UpdatedAt,
		&d.SentAt,
		&d.DeliveredAt,
		&d.FailedAt,
	)
	if err != nil {
		return nil, err
	}

	return &d, nil
}

func statusStrings(statuses []entity.DeliveryStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
