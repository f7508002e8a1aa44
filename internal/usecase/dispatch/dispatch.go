// Package dispatch consumes dispatch messages: it re-loads the authoritative
// delivery rows, aggregates email per event and records every outcome.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/andreyxaxa/Notify-Router/internal/entity"
	"github.com/andreyxaxa/Notify-Router/internal/infrastructure/channel"
	"github.com/andreyxaxa/Notify-Router/internal/metrics"
	"github.com/andreyxaxa/Notify-Router/internal/repo"
	"github.com/andreyxaxa/Notify-Router/pkg/logger"
	"github.com/andreyxaxa/Notify-Router/pkg/types/errs"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
)

const _defaultUpdateTimeout = 5 * time.Second

const (
	outcomeDelivered       = "delivered"
	outcomeFailedTerminal  = "failed_terminal"
	outcomeFailedRetryable = "failed_retryable"
	outcomeSkipped         = "skipped"
)

type Dispatcher interface {
	Dispatch(ctx context.Context, d *entity.Delivery, e *entity.Event) channel.Result
	SendEmail(ctx context.Context, msg channel.EmailMessage) channel.Result
}

type UseCase struct {
	deliveries repo.DeliveryRepo
	events     repo.EventRepo
	archive    repo.ArchiveRepo
	dispatcher Dispatcher

	schedule      RetrySchedule
	workers       int
	updateTimeout time.Duration

	metrics *metrics.Metrics
	logger  logger.Interface
	now     func() time.Time
}

type Option func(*UseCase)

// WithArchive stores a copy of every sent aggregated email.
func WithArchive(a repo.ArchiveRepo) Option {
	return func(uc *UseCase) {
		uc.archive = a
	}
}

func WithWorkers(n int) Option {
	return func(uc *UseCase) {
		if n > 0 {
			uc.workers = n
		}
	}
}

func WithRetrySchedule(s RetrySchedule) Option {
	return func(uc *UseCase) {
		uc.schedule = s
	}
}

// WithUpdateTimeout bounds status writes made after the run context is cancelled.
func WithUpdateTimeout(d time.Duration) Option {
	return func(uc *UseCase) {
		if d > 0 {
			uc.updateTimeout = d
		}
	}
}

func New(
	deliveries repo.DeliveryRepo,
	events repo.EventRepo,
	dispatcher Dispatcher,
	m *metrics.Metrics,
	l logger.Interface,
	opts ...Option,
) *UseCase {
	uc := &UseCase{
		deliveries:    deliveries,
		events:        events,
		dispatcher:    dispatcher,
		schedule:      RetrySchedule{Base: _defaultRetryBase, Max: _defaultRetryMax},
		workers:       runtime.GOMAXPROCS(0),
		updateTimeout: _defaultUpdateTimeout,
		metrics:       m,
		logger:        l,
		now:           time.Now,
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}

// HandleBatch groups a window of messages by event. Email deliveries of one
// event become one aggregated email; everything else is dispatched singly.
// A *RetryableError in the result means the batch must be redelivered.
func (uc *UseCase) HandleBatch(ctx context.Context, messages []entity.DispatchMessage) error {
	type group struct {
		eventID uuid.UUID
		email   uuid.UUIDs
	}

	var (
		groups  []*group
		byEvent = make(map[uuid.UUID]*group)
		singles []entity.DispatchMessage
		seen    = make(map[uuid.UUID]struct{}, len(messages))
	)

	for _, m := range messages {
		if _, dup := seen[m.DeliveryID]; dup {
			continue
		}
		seen[m.DeliveryID] = struct{}{}

		if m.Channel != entity.ChannelEmail {
			singles = append(singles, m)
			continue
		}

		g, ok := byEvent[m.EventID]
		if !ok {
			g = &group{eventID: m.EventID}
			byEvent[m.EventID] = g
			groups = append(groups, g)
		}
		g.email = append(g.email, m.DeliveryID)
	}

	p := pool.New().WithErrors().WithMaxGoroutines(uc.workers)

	for _, g := range groups {
		p.Go(func() error {
			return uc.handleEmailGroup(ctx, g.eventID, g.email)
		})
	}
	for _, m := range singles {
		p.Go(func() error {
			return uc.HandleSingle(ctx, m)
		})
	}

	return p.Wait()
}

// HandleSingle dispatches one delivery on its own channel.
func (uc *UseCase) HandleSingle(ctx context.Context, msg entity.DispatchMessage) error {
	// 1. authoritative row
	d, err := uc.deliveries.GetByID(ctx, msg.DeliveryID)
	if err != nil {
		if errors.Is(err, errs.ErrRecordNotFound) {
			uc.logger.Warn("dispatch message for missing delivery %s dropped", msg.DeliveryID)
			return nil
		}
		return fmt.Errorf("UseCase - HandleSingle - uc.deliveries.GetByID: %w", err)
	}
	if !d.Claimable() {
		uc.metrics.DispatchOutcome(string(d.Channel), outcomeSkipped, 1)
		return nil
	}

	// 2. parent event
	event, err := uc.loadEvent(ctx, d.EventID)
	if err != nil || event == nil {
		return err
	}

	// 3. claim
	claimed, err := uc.deliveries.MarkProcessing(ctx, uuid.UUIDs{d.ID})
	if err != nil {
		return fmt.Errorf("UseCase - HandleSingle - uc.deliveries.MarkProcessing: %w", err)
	}
	if len(claimed) == 0 {
		uc.metrics.DispatchOutcome(string(d.Channel), outcomeSkipped, 1)
		return nil
	}

	// 4. send and record
	return uc.dispatchClaimed(ctx, claimed[0], event)
}

func (uc *UseCase) handleEmailGroup(ctx context.Context, eventID uuid.UUID, ids uuid.UUIDs) error {
	// 1. authoritative rows, minus those no attempt may claim
	rows, err := uc.deliveries.GetByIDs(ctx, ids)
	if err != nil {
		return fmt.Errorf("UseCase - handleEmailGroup - uc.deliveries.GetByIDs: %w", err)
	}
	if len(rows) < len(ids) {
		uc.logger.Warn("event %s: %d dispatch messages reference missing deliveries", eventID, len(ids)-len(rows))
	}

	live := make(uuid.UUIDs, 0, len(rows))
	for _, d := range rows {
		if !d.Claimable() {
			continue
		}
		if d.Channel != entity.ChannelEmail || d.EventID != eventID {
			// message disagrees with the row; the row wins
			if err := uc.HandleSingle(ctx, entity.DispatchMessage{DeliveryID: d.ID}); err != nil {
				return err
			}
			continue
		}
		live = append(live, d.ID)
	}

	// 2. nothing pending
	if len(live) == 0 {
		uc.metrics.DispatchOutcome(string(entity.ChannelEmail), outcomeSkipped, len(ids))
		return nil
	}

	// 3. shared subject and body
	event, err := uc.loadEvent(ctx, eventID)
	if err != nil || event == nil {
		return err
	}

	// 4. claim
	claimed, err := uc.deliveries.MarkProcessing(ctx, live)
	if err != nil {
		return fmt.Errorf("UseCase - handleEmailGroup - uc.deliveries.MarkProcessing: %w", err)
	}

	switch len(claimed) {
	case 0:
		return nil
	case 1:
		// 5. nothing to aggregate
		return uc.dispatchClaimed(ctx, claimed[0], event)
	}

	// 6. partition by role
	agg := Aggregate(claimed, event)

	// 7. rows without an address fail on their own
	if len(agg.MissingAddress) > 0 {
		uc.fail(ctx, agg.MissingAddress, entity.ChannelEmail, channel.Terminal(fmt.Errorf("%w: email", errs.ErrMissingAddress)))
	}
	if len(agg.Included) == 0 {
		return nil
	}

	// 8. an email must have at least one To
	if len(agg.Message.To) == 0 {
		uc.fail(ctx, agg.Included, entity.ChannelEmail, channel.Terminal(errs.ErrNoToRecipients))
		return nil
	}

	// 9. one send for the whole group
	uc.metrics.AggregatedEmail(len(agg.Included))

	res := uc.dispatcher.SendEmail(ctx, agg.Message)
	if err := uc.record(ctx, agg.Included, entity.ChannelEmail, res); err != nil {
		return err
	}

	if res.Success {
		uc.archiveEmail(ctx, eventID, res.ExternalID, agg)
	}

	return nil
}

func (uc *UseCase) dispatchClaimed(ctx context.Context, d *entity.Delivery, event *entity.Event) error {
	res := uc.dispatcher.Dispatch(ctx, d, event)

	return uc.record(ctx, []*entity.Delivery{d}, d.Channel, res)
}

// record stores the outcome of one channel call for every delivery it
// covered and surfaces retryable failures.
func (uc *UseCase) record(ctx context.Context, deliveries []*entity.Delivery, ch entity.Channel, res channel.Result) error {
	if !res.Success {
		uc.fail(ctx, deliveries, ch, res)
		if res.Retryable {
			return &RetryableError{DeliveryIDs: deliveryIDs(deliveries), Reason: res.Error}
		}
		return nil
	}

	ctx, cancel := uc.updateContext(ctx)
	defer cancel()

	err := uc.deliveries.MarkDelivered(ctx, deliveryIDs(deliveries), res.ExternalID)
	if err != nil {
		return fmt.Errorf("UseCase - record - uc.deliveries.MarkDelivered: %w", err)
	}

	uc.metrics.DispatchOutcome(string(ch), outcomeDelivered, len(deliveries))

	return nil
}

func (uc *UseCase) fail(ctx context.Context, deliveries []*entity.Delivery, ch entity.Channel, res channel.Result) {
	failure := entity.DeliveryFailure{
		Reason:    res.Error,
		Retryable: res.Retryable,
	}

	outcome := outcomeFailedTerminal
	if res.Retryable {
		outcome = outcomeFailedRetryable

		attempt := 1
		for _, d := range deliveries {
			if d.AttemptCount > attempt {
				attempt = d.AttemptCount
			}
		}
		next := uc.now().Add(uc.schedule.Delay(attempt))
		failure.NextRetryAt = &next
	}

	ctx, cancel := uc.updateContext(ctx)
	defer cancel()

	err := uc.deliveries.MarkFailed(ctx, deliveryIDs(deliveries), failure)
	if err != nil {
		uc.logger.Error(err, "UseCase - fail - uc.deliveries.MarkFailed")
	}

	uc.metrics.DispatchOutcome(string(ch), outcome, len(deliveries))
}

// updateContext keeps status writes alive for a short while after the run
// context is cancelled.
func (uc *UseCase) updateContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), uc.updateTimeout)
}

// loadEvent returns (nil, nil) for a missing event: the message is dropped.
func (uc *UseCase) loadEvent(ctx context.Context, id uuid.UUID) (*entity.Event, error) {
	event, err := uc.events.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, errs.ErrRecordNotFound) {
			uc.logger.Warn("dispatch message for missing event %s dropped", id)
			return nil, nil
		}
		return nil, fmt.Errorf("UseCase - loadEvent - uc.events.GetByID: %w", err)
	}

	return event, nil
}

type archivedEmail struct {
	EventID     uuid.UUID            `json:"event_id"`
	ExternalID  string               `json:"external_id"`
	DeliveryIDs uuid.UUIDs           `json:"delivery_ids"`
	Message     channel.EmailMessage `json:"message"`
	SentAt      time.Time            `json:"sent_at"`
}

func (uc *UseCase) archiveEmail(ctx context.Context, eventID uuid.UUID, externalID string, agg Aggregated) {
	if uc.archive == nil {
		return
	}

	data, err := json.Marshal(archivedEmail{
		EventID:     eventID,
		ExternalID:  externalID,
		DeliveryIDs: deliveryIDs(agg.Included),
		Message:     agg.Message,
		SentAt:      uc.now(),
	})
	if err != nil {
		uc.logger.Error(err, "UseCase - archiveEmail - json.Marshal")
		return
	}

	name := externalID
	if name == "" {
		name = uuid.NewString()
	}

	err = uc.archive.Put(ctx, fmt.Sprintf("archive/%s/%s.json", eventID, name), data, "application/json")
	if err != nil {
		uc.logger.Error(err, "UseCase - archiveEmail - uc.archive.Put", "event_id", eventID)
	}
}

func deliveryIDs(deliveries []*entity.Delivery) uuid.UUIDs {
	out := make(uuid.UUIDs, 0, len(deliveries))
	for _, d := range deliveries {
		out = append(out, d.ID)
	}
	return out
}
