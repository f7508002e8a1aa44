//go:build integration

package persistent_test

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/andreyxaxa/Notify-Router/internal/entity"
	"github.com/andreyxaxa/Notify-Router/internal/repo/persistent"
	"github.com/andreyxaxa/Notify-Router/migrations"
	"github.com/andreyxaxa/Notify-Router/pkg/migrator"
	"github.com/andreyxaxa/Notify-Router/pkg/postgres"
	"github.com/andreyxaxa/Notify-Router/pkg/types/errs"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

var pg *postgres.Postgres

func TestMain(m *testing.M) {
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			Env:          map[string]string{"POSTGRES_PASSWORD": "secret", "POSTGRES_USER": "postgres", "POSTGRES_DB": "notify"},
			ExposedPorts: []string{"5432/tcp"},
			WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to start postgres container: %v\n", err)
		os.Exit(1)
	}

	code := 0
	if err = setup(ctx, container); err != nil {
		fmt.Fprintf(os.Stderr, "postgres integration tests skipped: %v\n", err)
	} else {
		code = m.Run()
		pg.Close()
	}

	_ = container.Terminate(ctx)
	os.Exit(code)
}

func setup(ctx context.Context, container testcontainers.Container) error {
	host, err := container.Host(ctx)
	if err != nil {
		return fmt.Errorf("container host: %w", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		return fmt.Errorf("container port: %w", err)
	}
	dsn := fmt.Sprintf("postgres://postgres:secret@%s:%s/notify?sslmode=disable", host, port.Port())

	mg, err := migrator.New(ctx, dsn, migrations.FS, ".")
	if err != nil {
		return err
	}
	defer mg.Close()

	if err = mg.Up(); err != nil {
		return err
	}

	pg, err = postgres.New(dsn, postgres.MaxPoolSize(4))
	return err
}

type fixture struct {
	groupID, aliceID, bobID, policyID uuid.UUID
	clientID                          string
}

func seed(t *testing.T, ctx context.Context) fixture {
	t.Helper()

	f := fixture{
		groupID:  uuid.New(),
		aliceID:  uuid.New(),
		bobID:    uuid.New(),
		policyID: uuid.New(),
		clientID: "client-" + uuid.NewString()[:8],
	}
	service := "svc-" + f.clientID

	stmts := []struct {
		sql  string
		args []any
	}{
		{`INSERT INTO recipient_groups (id, name) VALUES ($1, 'ops')`, []any{f.groupID}},
		{`INSERT INTO contacts (id, name, email) VALUES ($1, 'alice', 'alice@x.io')`, []any{f.aliceID}},
		{`INSERT INTO contacts (id, name, email, active) VALUES ($1, 'bob', 'bob@x.io', FALSE)`, []any{f.bobID}},
		{`INSERT INTO group_memberships (group_id, contact_id) VALUES ($1, $2), ($1, $3)`, []any{f.groupID, f.aliceID, f.bobID}},
		{`INSERT INTO routing_policies (id, service, topic, client_id, min_severity, channel, group_id, role, priority)
		  VALUES ($1, $2, 'deploy', $3, 'warning', 'email', $4, 'cc', 5)`, []any{f.policyID, service, f.clientID, f.groupID}},
		{`INSERT INTO routing_policies (id, service, topic, channel, group_id, enabled)
		  VALUES ($1, $2, 'deploy', 'sms', $3, FALSE)`, []any{uuid.New(), service, f.groupID}},
	}
	for _, s := range stmts {
		_, err := pg.Pool.Exec(ctx, s.sql, s.args...)
		require.NoError(t, err)
	}

	return f
}

func TestPolicyAndDirectory(t *testing.T) {
	ctx := context.Background()
	f := seed(t, ctx)

	policies, err := persistent.NewPolicyRepo(pg).ListEnabled(ctx, "svc-"+f.clientID, "deploy", &f.clientID)
	require.NoError(t, err)
	require.Len(t, policies, 1)
	assert.Equal(t, f.policyID, policies[0].ID)
	assert.Equal(t, entity.RoleCc, policies[0].Role)
	require.NotNil(t, policies[0].MinSeverity)
	assert.Equal(t, entity.SeverityWarning, *policies[0].MinSeverity)

	defaults, err := persistent.NewPolicyRepo(pg).ListEnabled(ctx, "svc-"+f.clientID, "deploy", nil)
	require.NoError(t, err)
	assert.Empty(t, defaults)

	members, err := persistent.NewDirectoryRepo(pg).ListActiveMembers(ctx, f.groupID)
	require.NoError(t, err)
	require.Len(t, members, 1)
	assert.Equal(t, "alice@x.io", members[0].Email)
}

func TestDeliveryLifecycle(t *testing.T) {
	ctx := context.Background()
	f := seed(t, ctx)

	events := persistent.NewEventRepo(pg)
	deliveries := persistent.NewDeliveryRepo(pg)
	outbox := persistent.NewOutboxRepo(pg)

	now := time.Now().UTC().Truncate(time.Microsecond)
	event := &entity.Event{
		ID: uuid.New(), Service: "svc", Topic: "deploy", Severity: entity.SeverityError,
		Subject: "s", Body: "b", Payload: []byte(`{"k":1}`), CreatedAt: now,
	}
	d := &entity.Delivery{
		ID: uuid.New(), EventID: event.ID, PolicyID: f.policyID, ContactID: f.aliceID,
		Channel: entity.ChannelEmail, Role: entity.RoleTo, RecipientAddress: "alice@x.io",
		Status: entity.DeliveryPending, CreatedAt: now, UpdatedAt: now,
	}
	msg := &entity.OutboxMessage{
		ID: uuid.New(), AggregateID: event.ID, DeliveryID: d.ID,
		Payload: []byte(`{"delivery_id":"x"}`), Status: entity.Pending, CreatedAt: now,
	}

	// staged atomically
	err := pg.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := events.Create(ctx, event); err != nil {
			return err
		}
		if err := deliveries.CreateBatch(ctx, []*entity.Delivery{d}); err != nil {
			return err
		}
		if err := outbox.CreateBatch(ctx, []*entity.OutboxMessage{msg}); err != nil {
			return err
		}
		return events.MarkProcessed(ctx, event.ID, 1, now)
	})
	require.NoError(t, err)

	got, err := events.GetByID(ctx, event.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.DeliveriesCount)
	assert.NotNil(t, got.ProcessedAt)

	// second claim is a no-op
	claimed, err := deliveries.MarkProcessing(ctx, uuid.UUIDs{d.ID})
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	assert.Equal(t, 1, claimed[0].AttemptCount)

	claimed, err = deliveries.MarkProcessing(ctx, uuid.UUIDs{d.ID})
	require.NoError(t, err)
	assert.Empty(t, claimed)

	retryAt := now.Add(-time.Second)
	require.NoError(t, deliveries.MarkFailed(ctx, uuid.UUIDs{d.ID}, entity.DeliveryFailure{
		Reason: "throttled", Retryable: true, NextRetryAt: &retryAt,
	}))

	due, err := deliveries.ListDueForRetry(ctx, time.Now(), 5, 10)
	require.NoError(t, err)
	assert.Contains(t, ids(due), d.ID)

	rearmed, err := deliveries.Rearm(ctx, d.ID, entity.DeliveryFailed)
	require.NoError(t, err)
	assert.Equal(t, entity.DeliveryPending, rearmed.Status)
	assert.Nil(t, rearmed.ErrorMessage)

	_, err = deliveries.Rearm(ctx, d.ID, entity.DeliveryFailed)
	assert.ErrorIs(t, err, errs.ErrInvalidTransition)

	// a terminal failure is never claimed again
	claimed, err = deliveries.MarkProcessing(ctx, uuid.UUIDs{d.ID})
	require.NoError(t, err)
	require.Len(t, claimed, 1)
	require.NoError(t, deliveries.MarkFailed(ctx, uuid.UUIDs{d.ID}, entity.DeliveryFailure{Reason: "bad sender"}))

	claimed, err = deliveries.MarkProcessing(ctx, uuid.UUIDs{d.ID})
	require.NoError(t, err)
	assert.Empty(t, claimed)

	cancelled, err := deliveries.Cancel(ctx, d.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.DeliveryCancelled, cancelled.Status)

	_, err = deliveries.Cancel(ctx, uuid.New())
	assert.ErrorIs(t, err, errs.ErrRecordNotFound)

	stats, err := deliveries.CountByStatus(ctx)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stats[entity.DeliveryCancelled], int64(1))
}

func TestOutboxClaim(t *testing.T) {
	ctx := context.Background()
	f := seed(t, ctx)

	events := persistent.NewEventRepo(pg)
	deliveries := persistent.NewDeliveryRepo(pg)
	outbox := persistent.NewOutboxRepo(pg)

	now := time.Now().UTC()
	event := &entity.Event{ID: uuid.New(), Service: "svc", Topic: "t", Severity: entity.SeverityInfo, CreatedAt: now}
	require.NoError(t, events.Create(ctx, event))

	d := &entity.Delivery{
		ID: uuid.New(), EventID: event.ID, PolicyID: f.policyID, ContactID: f.aliceID,
		Channel: entity.ChannelEmail, Role: entity.RoleTo, Status: entity.DeliveryPending,
		CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, deliveries.CreateBatch(ctx, []*entity.Delivery{d}))

	msg := &entity.OutboxMessage{
		ID: uuid.New(), AggregateID: event.ID, DeliveryID: d.ID,
		Payload: []byte(`{}`), Status: entity.Pending, CreatedAt: now.Add(-time.Hour),
	}
	require.NoError(t, outbox.CreateBatch(ctx, []*entity.OutboxMessage{msg}))

	err := pg.WithinTransaction(ctx, func(ctx context.Context) error {
		pending, err := outbox.GetPendingMessages(ctx, 1000, 3)
		if err != nil {
			return err
		}
		var claim uuid.UUIDs
		for _, m := range pending {
			if m.ID == msg.ID {
				claim = append(claim, m.ID)
			}
		}
		require.Len(t, claim, 1)
		return outbox.MarkAsProcessingBatch(ctx, claim)
	})
	require.NoError(t, err)

	require.NoError(t, outbox.IncrementRetryCountBatch(ctx, uuid.UUIDs{msg.ID}))
	require.ErrorIs(t, outbox.MarkAsProcessedBatch(ctx, uuid.UUIDs{msg.ID}), errs.ErrRecordNotFound)
}

func ids(ds []*entity.Delivery) uuid.UUIDs {
	out := make(uuid.UUIDs, 0, len(ds))
	for _, d := range ds {
		out = append(out, d.ID)
	}
	return out
}
