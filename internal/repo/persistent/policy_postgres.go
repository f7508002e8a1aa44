package persistent

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/andreyxaxa/Notify-Router/internal/entity"
	"github.com/andreyxaxa/Notify-Router/pkg/postgres"
)

const (
	policiesTable = "routing_policies"

	policyIDColumn          = "id"
	policyServiceColumn     = "service"
	policyTopicColumn       = "topic"
	policyClientIDColumn    = "client_id"
	policyMinSeverityColumn = "min_severity"
	policyChannelColumn     = "channel"
	policyGroupIDColumn     = "group_id"
	policyRoleColumn        = "role"
	policyEnabledColumn     = "enabled"
	policyPriorityColumn    = "priority"
	policyUpdatedAtColumn   = "updated_at"
	policyUpdatedByColumn   = "updated_by"
)

// PolicyRepo is a read-only view over routing policies maintained elsewhere.
type PolicyRepo struct {
	*postgres.Postgres
}

func NewPolicyRepo(pg *postgres.Postgres) *PolicyRepo {
	return &PolicyRepo{pg}
}

func (r *PolicyRepo) ListEnabled(ctx context.Context, service, topic string, clientID *string) ([]*entity.RoutingPolicy, error) {
	var clientCond squirrel.Sqlizer = squirrel.Eq{policyClientIDColumn: nil}
	if clientID != nil {
		clientCond = squirrel.Eq{policyClientIDColumn: *clientID}
	}

	sql, args, err := r.Builder.
		Select(
			policyIDColumn,
			policyServiceColumn,
			policyTopicColumn,
			policyClientIDColumn,
			policyMinSeverityColumn,
			policyChannelColumn,
			policyGroupIDColumn,
			policyRoleColumn,
			policyEnabledColumn,
			policyPriorityColumn,
			policyUpdatedAtColumn,
			policyUpdatedByColumn,
		).
		From(policiesTable).
		Where(squirrel.And{
			squirrel.Eq{policyServiceColumn: service},
			squirrel.Eq{policyTopicColumn: topic},
			squirrel.Eq{policyEnabledColumn: true},
			clientCond,
		}).
		OrderBy(policyPriorityColumn+" DESC", policyIDColumn+" ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("PolicyRepo - ListEnabled - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	rows, err := executor.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("PolicyRepo - ListEnabled - executor.Query: %w", err)
	}
	defer rows.Close()

	var policies []*entity.RoutingPolicy
	for rows.Next() {
		var p entity.RoutingPolicy
		err = rows.Scan(
			&p.ID,
			&p.Service,
			&p.Topic,
			&p.ClientID,
			&p.MinSeverity,
			&p.Channel,
			&p.GroupID,
			&p.Role,
			&p.Enabled,
			&p.Priority,
			&p.UpdatedAt,
			&p.UpdatedBy,
		)
		if err != nil {
			return nil, fmt.Errorf("PolicyRepo - ListEnabled - rows.Scan: %w", err)
		}
		policies = append(policies, &p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("PolicyRepo - ListEnabled - rows.Err: %w", err)
	}

	return policies, nil
}
