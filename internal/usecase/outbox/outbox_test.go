package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/andreyxaxa/Notify-Router/internal/entity"
	"github.com/andreyxaxa/Notify-Router/internal/repo/repotest"
	"github.com/andreyxaxa/Notify-Router/pkg/logger"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeSender struct {
	sent [][]*entity.OutboxMessage
	err  error
}

func (f *fakeSender) SendMessages(_ context.Context, messages []*entity.OutboxMessage) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, messages)
	return nil
}

func (f *fakeSender) Close() error { return nil }

func newUseCase(store *repotest.Store, sender *fakeSender) *UseCase {
	return New(store.Outbox(), store.Deliveries(), store.Events(), store, sender, nil, logger.NewWithZap(zap.NewNop()))
}

func seed(t *testing.T, store *repotest.Store, n int) *entity.Event {
	t.Helper()

	event := &entity.Event{ID: uuid.New(), Subject: "s", Body: "b"}
	store.PutEvent(event)

	deliveries := make([]*entity.Delivery, 0, n)
	for i := 0; i < n; i++ {
		d := &entity.Delivery{ID: uuid.New(), EventID: event.ID, Channel: entity.ChannelEmail, Role: entity.RoleTo, Status: entity.DeliveryPending}
		store.PutDelivery(d)
		deliveries = append(deliveries, d)
	}

	messages, err := NewMessages(event, deliveries, time.Now())
	require.NoError(t, err)
	require.NoError(t, store.Outbox().CreateBatch(context.Background(), messages))

	return event
}

func TestNewMessages(t *testing.T) {
	t.Parallel()

	event := &entity.Event{ID: uuid.New(), Subject: "s", Body: "b", ClientID: func() *string { s := "HenryCounty"; return &s }()}
	delivery := &entity.Delivery{ID: uuid.New(), ContactID: uuid.New(), Channel: entity.ChannelSMS, Role: entity.RoleTo, RecipientAddress: "+15550100"}

	messages, err := NewMessages(event, []*entity.Delivery{delivery}, time.Now())
	require.NoError(t, err)
	require.Len(t, messages, 1)
	assert.Equal(t, event.ID, messages[0].AggregateID)
	assert.Equal(t, delivery.ID, messages[0].DeliveryID)
	assert.Equal(t, entity.Pending, messages[0].Status)

	var dm entity.DispatchMessage
	require.NoError(t, json.Unmarshal(messages[0].Payload, &dm))
	assert.Equal(t, delivery.ID, dm.DeliveryID)
	assert.Equal(t, event.ID, dm.EventID)
	assert.Equal(t, entity.ChannelSMS, dm.Channel)
	assert.Equal(t, "+15550100", dm.RecipientAddress)
	require.NotNil(t, dm.ClientID)
	assert.Equal(t, "HenryCounty", *dm.ClientID)
}

func TestRelayPending(t *testing.T) {
	t.Parallel()

	store := repotest.New()
	seed(t, store, 3)
	sender := &fakeSender{}

	n, err := newUseCase(store, sender).RelayPending(context.Background(), 10, 5)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	require.Len(t, sender.sent, 1)

	for _, m := range store.AllOutbox() {
		assert.Equal(t, entity.Processed, m.Status)
	}

	n, err = newUseCase(store, sender).RelayPending(context.Background(), 10, 5)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestRelayPending_SendFailureIncrementsRetry(t *testing.T) {
	t.Parallel()

	store := repotest.New()
	seed(t, store, 2)
	uc := newUseCase(store, &fakeSender{err: errors.New("broker down")})

	_, err := uc.RelayPending(context.Background(), 10, 5)
	require.Error(t, err)

	for _, m := range store.AllOutbox() {
		assert.Equal(t, entity.Pending, m.Status)
		assert.Equal(t, 1, m.RetryCount)
	}

	require.NoError(t, uc.MarkMaxRetriesAsFailed(context.Background(), 1))
	for _, m := range store.AllOutbox() {
		assert.Equal(t, entity.Failed, m.Status)
	}
}

func TestRetryDue(t *testing.T) {
	t.Parallel()

	store := repotest.New()
	event := &entity.Event{ID: uuid.New()}
	store.PutEvent(event)

	past, future := time.Now().Add(-time.Minute), time.Now().Add(time.Hour)
	due := &entity.Delivery{ID: uuid.New(), EventID: event.ID, Status: entity.DeliveryFailed, AttemptCount: 1, NextRetryAt: &past}
	notYet := &entity.Delivery{ID: uuid.New(), EventID: event.ID, Status: entity.DeliveryFailed, AttemptCount: 1, NextRetryAt: &future}
	exhausted := &entity.Delivery{ID: uuid.New(), EventID: event.ID, Status: entity.DeliveryFailed, AttemptCount: 5, NextRetryAt: &past}
	terminal := &entity.Delivery{ID: uuid.New(), EventID: event.ID, Status: entity.DeliveryFailed, AttemptCount: 1}
	for _, d := range []*entity.Delivery{due, notYet, exhausted, terminal} {
		store.PutDelivery(d)
	}

	n, err := newUseCase(store, &fakeSender{}).RetryDue(context.Background(), 5, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.Deliveries().GetByID(context.Background(), due.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.DeliveryPending, got.Status)
	assert.Nil(t, got.NextRetryAt)

	messages := store.AllOutbox()
	require.Len(t, messages, 1)
	assert.Equal(t, due.ID, messages[0].DeliveryID)
}

func TestRecoverStuck(t *testing.T) {
	t.Parallel()

	store := repotest.New()
	event := &entity.Event{ID: uuid.New()}
	store.PutEvent(event)

	stuck := &entity.Delivery{ID: uuid.New(), EventID: event.ID, Status: entity.DeliveryProcessing, UpdatedAt: time.Now().Add(-time.Hour)}
	fresh := &entity.Delivery{ID: uuid.New(), EventID: event.ID, Status: entity.DeliveryProcessing, UpdatedAt: time.Now()}
	orphan := &entity.Delivery{ID: uuid.New(), EventID: uuid.New(), Status: entity.DeliveryProcessing, UpdatedAt: time.Now().Add(-time.Hour)}
	for _, d := range []*entity.Delivery{stuck, fresh, orphan} {
		store.PutDelivery(d)
	}

	n, err := newUseCase(store, &fakeSender{}).RecoverStuck(context.Background(), 10*time.Minute, 100)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	got, err := store.Deliveries().GetByID(context.Background(), stuck.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.DeliveryPending, got.Status)

	got, err = store.Deliveries().GetByID(context.Background(), fresh.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.DeliveryProcessing, got.Status)

	assert.Len(t, store.AllOutbox(), 1)
}

func TestCleanupOutbox(t *testing.T) {
	t.Parallel()

	store := repotest.New()
	seed(t, store, 2)
	uc := newUseCase(store, &fakeSender{})

	_, err := uc.RelayPending(context.Background(), 10, 5)
	require.NoError(t, err)

	n, err := uc.CleanupOutbox(context.Background(), -time.Minute)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.Empty(t, store.AllOutbox())
}
