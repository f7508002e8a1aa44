package dispatch

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/andreyxaxa/Notify-Router/internal/entity"
	"github.com/andreyxaxa/Notify-Router/internal/infrastructure/channel"
	"github.com/andreyxaxa/Notify-Router/internal/repo/repotest"
	"github.com/andreyxaxa/Notify-Router/pkg/logger"
	"github.com/andreyxaxa/Notify-Router/pkg/types/errs"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeDispatcher struct {
	mu       sync.Mutex
	emails   []channel.EmailMessage
	singles  []*entity.Delivery
	emailRes channel.Result
	single   channel.Result
}

func newFakeDispatcher() *fakeDispatcher {
	return &fakeDispatcher{
		emailRes: channel.Succeeded("msg-1"),
		single:   channel.Succeeded("single-1"),
	}
}

func (f *fakeDispatcher) Dispatch(_ context.Context, d *entity.Delivery, _ *entity.Event) channel.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.singles = append(f.singles, d)
	return f.single
}

func (f *fakeDispatcher) SendEmail(_ context.Context, msg channel.EmailMessage) channel.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.emails = append(f.emails, msg)
	return f.emailRes
}

type fakeArchive struct {
	mu   sync.Mutex
	keys []string
}

func (f *fakeArchive) Put(_ context.Context, key string, _ []byte, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	return nil
}

type fixture struct {
	store      *repotest.Store
	dispatcher *fakeDispatcher
	archive    *fakeArchive
	uc         *UseCase
	event      *entity.Event
}

func newFixture() *fixture {
	store := repotest.New()
	d := newFakeDispatcher()
	a := &fakeArchive{}
	event := &entity.Event{ID: uuid.New(), Subject: "Reconciliation complete", Body: "done"}
	store.PutEvent(event)

	return &fixture{
		store:      store,
		dispatcher: d,
		archive:    a,
		event:      event,
		uc: New(store.Deliveries(), store.Events(), d, nil, logger.NewWithZap(zap.NewNop()),
			WithArchive(a),
			WithWorkers(2),
			WithRetrySchedule(RetrySchedule{Base: time.Minute, Max: time.Hour}),
		),
	}
}

func (f *fixture) add(ch entity.Channel, role entity.Role, address string) entity.DispatchMessage {
	d := &entity.Delivery{
		ID:               uuid.New(),
		EventID:          f.event.ID,
		ContactID:        uuid.New(),
		Channel:          ch,
		Role:             role,
		RecipientAddress: address,
		Status:           entity.DeliveryPending,
		UpdatedAt:        time.Now(),
	}
	f.store.PutDelivery(d)

	return entity.DispatchMessage{
		DeliveryID:       d.ID,
		EventID:          d.EventID,
		ContactID:        d.ContactID,
		Channel:          ch,
		Role:             role,
		RecipientAddress: address,
	}
}

func (f *fixture) status(t *testing.T, id uuid.UUID) *entity.Delivery {
	t.Helper()
	d, err := f.store.Deliveries().GetByID(context.Background(), id)
	require.NoError(t, err)
	return d
}

func TestHandleBatch_AggregatesByRole(t *testing.T) {
	t.Parallel()

	f := newFixture()
	msgs := []entity.DispatchMessage{
		f.add(entity.ChannelEmail, entity.RoleTo, "x1@example.com"),
		f.add(entity.ChannelEmail, entity.RoleTo, "x2@example.com"),
		f.add(entity.ChannelEmail, entity.RoleCc, "y1@example.com"),
		f.add(entity.ChannelEmail, entity.RoleBcc, "X1@example.com"),
	}

	require.NoError(t, f.uc.HandleBatch(context.Background(), msgs))

	require.Len(t, f.dispatcher.emails, 1)
	sent := f.dispatcher.emails[0]
	assert.Equal(t, []string{"x1@example.com", "x2@example.com"}, sent.To)
	assert.Equal(t, []string{"y1@example.com"}, sent.Cc)
	assert.Empty(t, sent.Bcc)
	assert.Equal(t, f.event.Subject, sent.Subject)

	for _, m := range msgs {
		d := f.status(t, m.DeliveryID)
		assert.Equal(t, entity.DeliveryDelivered, d.Status)
		require.NotNil(t, d.ExternalID)
		assert.Equal(t, "msg-1", *d.ExternalID)
	}

	require.Len(t, f.archive.keys, 1)
	assert.Equal(t, "archive/"+f.event.ID.String()+"/msg-1.json", f.archive.keys[0])
}

func TestHandleBatch_RedeliveryAfterSuccessIsNoop(t *testing.T) {
	t.Parallel()

	f := newFixture()
	msgs := []entity.DispatchMessage{
		f.add(entity.ChannelEmail, entity.RoleTo, "a@example.com"),
		f.add(entity.ChannelEmail, entity.RoleTo, "b@example.com"),
		f.add(entity.ChannelEmail, entity.RoleTo, "c@example.com"),
	}

	require.NoError(t, f.uc.HandleBatch(context.Background(), msgs))
	require.NoError(t, f.uc.HandleBatch(context.Background(), msgs))

	assert.Len(t, f.dispatcher.emails, 1)
	for _, m := range msgs {
		assert.Equal(t, entity.DeliveryDelivered, f.status(t, m.DeliveryID).Status)
	}
}

func TestHandleBatch_CcBccOnlyFailsTerminally(t *testing.T) {
	t.Parallel()

	f := newFixture()
	msgs := []entity.DispatchMessage{
		f.add(entity.ChannelEmail, entity.RoleCc, "a@example.com"),
		f.add(entity.ChannelEmail, entity.RoleBcc, "b@example.com"),
	}

	require.NoError(t, f.uc.HandleBatch(context.Background(), msgs))

	assert.Empty(t, f.dispatcher.emails)
	for _, m := range msgs {
		d := f.status(t, m.DeliveryID)
		assert.Equal(t, entity.DeliveryFailed, d.Status)
		assert.Nil(t, d.NextRetryAt)
		require.NotNil(t, d.ErrorMessage)
	}
}

func TestHandleBatch_MissingAddressFailsIndependently(t *testing.T) {
	t.Parallel()

	f := newFixture()
	ok1 := f.add(entity.ChannelEmail, entity.RoleTo, "a@example.com")
	ok2 := f.add(entity.ChannelEmail, entity.RoleCc, "b@example.com")
	missing := f.add(entity.ChannelEmail, entity.RoleTo, "")

	require.NoError(t, f.uc.HandleBatch(context.Background(), []entity.DispatchMessage{ok1, ok2, missing}))

	require.Len(t, f.dispatcher.emails, 1)
	assert.Equal(t, entity.DeliveryDelivered, f.status(t, ok1.DeliveryID).Status)
	assert.Equal(t, entity.DeliveryDelivered, f.status(t, ok2.DeliveryID).Status)

	d := f.status(t, missing.DeliveryID)
	assert.Equal(t, entity.DeliveryFailed, d.Status)
	assert.Nil(t, d.NextRetryAt)
}

func TestHandleBatch_RetryableFailureSurfaces(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.dispatcher.emailRes = channel.Retryable(errors.New("503 from provider"))
	msgs := []entity.DispatchMessage{
		f.add(entity.ChannelEmail, entity.RoleTo, "a@example.com"),
		f.add(entity.ChannelEmail, entity.RoleCc, "b@example.com"),
	}

	err := f.uc.HandleBatch(context.Background(), msgs)
	require.Error(t, err)
	assert.True(t, IsRetryable(err))

	for _, m := range msgs {
		d := f.status(t, m.DeliveryID)
		assert.Equal(t, entity.DeliveryFailed, d.Status)
		require.NotNil(t, d.NextRetryAt)
		assert.Equal(t, 1, d.AttemptCount)
	}

	// redelivery picks the failed rows up again
	f.dispatcher.mu.Lock()
	f.dispatcher.emailRes = channel.Succeeded("msg-2")
	f.dispatcher.mu.Unlock()

	require.NoError(t, f.uc.HandleBatch(context.Background(), msgs))
	for _, m := range msgs {
		d := f.status(t, m.DeliveryID)
		assert.Equal(t, entity.DeliveryDelivered, d.Status)
		assert.Equal(t, 2, d.AttemptCount)
	}
	assert.Len(t, f.dispatcher.emails, 2)
}

func TestHandleBatch_TerminalFailureIsSwallowed(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.dispatcher.single = channel.Terminal(errors.New("unsupported"))
	msg := f.add(entity.ChannelChat, entity.RoleTo, "")

	require.NoError(t, f.uc.HandleBatch(context.Background(), []entity.DispatchMessage{msg}))
	assert.Equal(t, entity.DeliveryFailed, f.status(t, msg.DeliveryID).Status)
}

func TestHandleBatch_TerminalFailureNotResentOnRedelivery(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.dispatcher.emailRes = channel.Terminal(fmt.Errorf("ses: %w", errs.ErrSenderConfiguration))
	f.dispatcher.single = channel.Terminal(fmt.Errorf("sns: %w", errs.ErrSenderConfiguration))
	msgs := []entity.DispatchMessage{
		f.add(entity.ChannelEmail, entity.RoleTo, "a@example.com"),
		f.add(entity.ChannelEmail, entity.RoleTo, "b@example.com"),
		f.add(entity.ChannelSMS, entity.RoleTo, "+15550100"),
	}

	require.NoError(t, f.uc.HandleBatch(context.Background(), msgs))
	require.Len(t, f.dispatcher.emails, 1)
	require.Len(t, f.dispatcher.singles, 1)
	for _, m := range msgs {
		d := f.status(t, m.DeliveryID)
		require.Equal(t, entity.DeliveryFailed, d.Status)
		require.Nil(t, d.NextRetryAt)
	}

	// the broker hands the same messages back
	f.dispatcher.mu.Lock()
	f.dispatcher.emailRes = channel.Succeeded("msg-2")
	f.dispatcher.single = channel.Succeeded("single-2")
	f.dispatcher.mu.Unlock()

	require.NoError(t, f.uc.HandleBatch(context.Background(), msgs))
	require.NoError(t, f.uc.HandleSingle(context.Background(), msgs[2]))

	assert.Len(t, f.dispatcher.emails, 1)
	assert.Len(t, f.dispatcher.singles, 1)
	for _, m := range msgs {
		d := f.status(t, m.DeliveryID)
		assert.Equal(t, entity.DeliveryFailed, d.Status)
		assert.Equal(t, 1, d.AttemptCount)
	}
}

func TestHandleBatch_ConcurrentRedeliverySendsOnce(t *testing.T) {
	t.Parallel()

	f := newFixture()
	msgs := []entity.DispatchMessage{
		f.add(entity.ChannelEmail, entity.RoleTo, "a@example.com"),
		f.add(entity.ChannelEmail, entity.RoleCc, "b@example.com"),
		f.add(entity.ChannelSMS, entity.RoleTo, "+15550100"),
	}

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.uc.HandleBatch(context.Background(), msgs))
		}()
	}
	wg.Wait()

	f.dispatcher.mu.Lock()
	defer f.dispatcher.mu.Unlock()
	assert.Len(t, f.dispatcher.emails, 1)
	assert.Len(t, f.dispatcher.singles, 1)
	for _, m := range msgs {
		d := f.status(t, m.DeliveryID)
		assert.Equal(t, entity.DeliveryDelivered, d.Status)
		assert.Equal(t, 1, d.AttemptCount)
	}
}

func TestHandleBatch_NonEmailDispatchedSingly(t *testing.T) {
	t.Parallel()

	f := newFixture()
	email := f.add(entity.ChannelEmail, entity.RoleTo, "a@example.com")
	sms1 := f.add(entity.ChannelSMS, entity.RoleTo, "+15550100")
	sms2 := f.add(entity.ChannelSMS, entity.RoleTo, "+15550101")

	require.NoError(t, f.uc.HandleBatch(context.Background(), []entity.DispatchMessage{email, sms1, sms2, sms1}))

	// a lone email falls through to single dispatch
	assert.Empty(t, f.dispatcher.emails)
	assert.Len(t, f.dispatcher.singles, 3)
	for _, m := range []entity.DispatchMessage{email, sms1, sms2} {
		assert.Equal(t, entity.DeliveryDelivered, f.status(t, m.DeliveryID).Status)
	}
}

func TestHandleSingle_DropsMissingRows(t *testing.T) {
	t.Parallel()

	f := newFixture()
	require.NoError(t, f.uc.HandleSingle(context.Background(), entity.DispatchMessage{DeliveryID: uuid.New()}))

	orphan := &entity.Delivery{ID: uuid.New(), EventID: uuid.New(), Channel: entity.ChannelSMS, Status: entity.DeliveryPending}
	f.store.PutDelivery(orphan)
	require.NoError(t, f.uc.HandleSingle(context.Background(), entity.DispatchMessage{DeliveryID: orphan.ID}))

	assert.Empty(t, f.dispatcher.singles)
	assert.Equal(t, entity.DeliveryPending, f.status(t, orphan.ID).Status)
}

func TestHandleSingle_SkipsTerminal(t *testing.T) {
	t.Parallel()

	f := newFixture()
	msg := f.add(entity.ChannelSMS, entity.RoleTo, "+15550100")
	_, err := f.store.Deliveries().Cancel(context.Background(), msg.DeliveryID)
	require.NoError(t, err)

	require.NoError(t, f.uc.HandleSingle(context.Background(), msg))
	assert.Empty(t, f.dispatcher.singles)
}

func TestHandleBatch_InfrastructureErrorIsNotRetryableError(t *testing.T) {
	t.Parallel()

	f := newFixture()
	f.store.FailOn["deliveries.GetByIDs"] = errors.New("connection refused")
	msgs := []entity.DispatchMessage{
		f.add(entity.ChannelEmail, entity.RoleTo, "a@example.com"),
		f.add(entity.ChannelEmail, entity.RoleTo, "b@example.com"),
	}

	err := f.uc.HandleBatch(context.Background(), msgs)
	require.Error(t, err)
	assert.False(t, IsRetryable(err))
	assert.Empty(t, f.dispatcher.emails)
}
