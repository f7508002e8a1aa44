package persistent

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/andreyxaxa/Notify-Router/internal/entity"
	"github.com/andreyxaxa/Notify-Router/pkg/postgres"
	"github.com/google/uuid"
)

const (
	contactsTable    = "contacts"
	groupsTable      = "recipient_groups"
	membershipsTable = "group_memberships"
)

// DirectoryRepo reads groups and contacts maintained by the administration surface.
type DirectoryRepo struct {
	*postgres.Postgres
}

func NewDirectoryRepo(pg *postgres.Postgres) *DirectoryRepo {
	return &DirectoryRepo{pg}
}

func (r *DirectoryRepo) ListActiveMembers(ctx context.Context, groupID uuid.UUID) ([]*entity.Contact, error) {
	sql, args, err := r.Builder.
		Select(
			"c.id",
			"c.name",
			"COALESCE(c.email, '')",
			"COALESCE(c.phone, '')",
			"c.client_id",
			"c.active",
		).
		From(contactsTable + " c").
		Join(membershipsTable + " m ON m.contact_id = c.id").
		Join(groupsTable + " g ON g.id = m.group_id").
		Where(squirrel.And{
			squirrel.Eq{"m.group_id": groupID},
			squirrel.Eq{"g.active": true},
			squirrel.Eq{"c.active": true},
		}).
		OrderBy("c.id ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("DirectoryRepo - ListActiveMembers - r.Builder.ToSql: %w", err)
	}

	executor := r.GetExecutor(ctx)

	rows, err := executor.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("DirectoryRepo - ListActiveMembers - executor.Query: %w", err)
	}
	defer rows.Close()

	var contacts []*entity.Contact
	for rows.Next() {
		var c entity.Contact
		err = rows.Scan(&c.ID, &c.Name, &c.Email, &c.Phone, &c.ClientID, &c.Active)
		if err != nil {
			return nil, fmt.Errorf("DirectoryRepo - ListActiveMembers - rows.Scan: %w", err)
		}
		contacts = append(contacts, &c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("DirectoryRepo - ListActiveMembers - rows.Err: %w", err)
	}

	return contacts, nil
}
