// Package repotest provides an in-memory implementation of the repository
// contracts for use-case tests.
package repotest

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/andreyxaxa/Notify-Router/internal/entity"
	"github.com/andreyxaxa/Notify-Router/internal/repo"
	"github.com/andreyxaxa/Notify-Router/pkg/types/errs"
	"github.com/google/uuid"
)

// Store keeps every table in memory. WithinTransaction restores the previous
// state when f fails.
type Store struct {
	mu sync.Mutex

	events     map[uuid.UUID]entity.Event
	deliveries map[uuid.UUID]entity.Delivery
	outbox     map[uuid.UUID]entity.OutboxMessage
	members    map[uuid.UUID][]*entity.Contact

	// FailOn makes the named operation return an error, e.g. "outbox.CreateBatch".
	FailOn map[string]error
}

var (
	_ repo.Transactor    = (*Store)(nil)
	_ repo.EventRepo     = (*EventRepo)(nil)
	_ repo.DirectoryRepo = (*DirectoryRepo)(nil)
	_ repo.DeliveryRepo  = (*DeliveryRepo)(nil)
	_ repo.OutboxRepo    = (*OutboxRepo)(nil)
)

func New() *Store {
	return &Store{
		events:     make(map[uuid.UUID]entity.Event),
		deliveries: make(map[uuid.UUID]entity.Delivery),
		outbox:     make(map[uuid.UUID]entity.OutboxMessage),
		members:    make(map[uuid.UUID][]*entity.Contact),
		FailOn:     make(map[string]error),
	}
}

func (s *Store) Events() *EventRepo { return &EventRepo{s} }
func (s *Store) Directory() *DirectoryRepo { return &DirectoryRepo{s} }
func (s *Store) Deliveries() *DeliveryRepo { return &DeliveryRepo{s} }
func (s *Store) Outbox() *OutboxRepo { return &OutboxRepo{s} }

// AddGroup registers the members of a group.
func (s *Store) AddGroup(groupID uuid.UUID, contacts ...*entity.Contact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.members[groupID] = append(s.members[groupID], contacts...)
}

// PutEvent and PutDelivery seed rows directly.
func (s *Store) PutEvent(e *entity.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[e.ID] = *e
}

func (s *Store) PutDelivery(d *entity.Delivery) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deliveries[d.ID] = *d
}

func (s *Store) AllDeliveries() []*entity.Delivery {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*entity.Delivery, 0, len(s.deliveries))
	for _, d := range s.deliveries {
		d := d
		out = append(out, &d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out
}

func (s *Store) AllOutbox() []*entity.OutboxMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*entity.OutboxMessage, 0, len(s.outbox))
	for _, m := range s.outbox {
		m := m
		out = append(out, &m)
	}
	return out
}

func (s *Store) AllEvents() []*entity.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*entity.Event, 0, len(s.events))
	for _, e := range s.events {
		e := e
		out = append(out, &e)
	}
	return out
}

func (s *Store) WithinTransaction(ctx context.Context, f func(ctx context.Context) error) error {
	s.mu.Lock()
	events := clone(s.events)
	deliveries := clone(s.deliveries)
	outbox := clone(s.outbox)
	s.mu.Unlock()

	if err := f(ctx); err != nil {
		s.mu.Lock()
		s.events, s.deliveries, s.outbox = events, deliveries, outbox
		s.mu.Unlock()
		return err
	}

	return nil
}

func (s *Store) fail(op string) error {
	if err, ok := s.FailOn[op]; ok {
		return fmt.Errorf("repotest - %s: %w", op, err)
	}
	return nil
}

func clone[K comparable, V any](m map[K]V) map[K]V {
	out := make(map[K]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

type EventRepo struct{ s *Store }

func (r *EventRepo) Create(_ context.Context, e *entity.Event) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("events.Create"); err != nil {
		return err
	}
	r.s.events[e.ID] = *e
	return nil
}

func (r *EventRepo) GetByID(_ context.Context, id uuid.UUID) (*entity.Event, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.events[id]
	if !ok {
		return nil, errs.ErrRecordNotFound
	}
	return &e, nil
}

func (r *EventRepo) MarkProcessed(_ context.Context, id uuid.UUID, count int, at time.Time) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("events.MarkProcessed"); err != nil {
		return err
	}
	e, ok := r.s.events[id]
	if !ok {
		return errs.ErrRecordNotFound
	}
	if e.ProcessedAt == nil {
		e.ProcessedAt = &at
		e.DeliveriesCount = count
		r.s.events[id] = e
	}
	return nil
}

type DirectoryRepo struct{ s *Store }

func (r *DirectoryRepo) ListActiveMembers(_ context.Context, groupID uuid.UUID) ([]*entity.Contact, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("directory.ListActiveMembers"); err != nil {
		return nil, err
	}
	var out []*entity.Contact
	for _, c := range r.s.members[groupID] {
		if c.Active {
			out = append(out, c)
		}
	}
	return out, nil
}

type DeliveryRepo struct{ s *Store }

func (r *DeliveryRepo) CreateBatch(_ context.Context, deliveries []*entity.Delivery) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("deliveries.CreateBatch"); err != nil {
		return err
	}
	for _, d := range deliveries {
		r.s.deliveries[d.ID] = *d
	}
	return nil
}

func (r *DeliveryRepo) GetByID(_ context.Context, id uuid.UUID) (*entity.Delivery, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.deliveries[id]
	if !ok {
		return nil, errs.ErrRecordNotFound
	}
	return &d, nil
}

func (r *DeliveryRepo) GetByIDs(_ context.Context, ids uuid.UUIDs) ([]*entity.Delivery, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("deliveries.GetByIDs"); err != nil {
		return nil, err
	}
	var out []*entity.Delivery
	for _, id := range ids {
		if d, ok := r.s.deliveries[id]; ok {
			out = append(out, &d)
		}
	}
	return out, nil
}

func (r *DeliveryRepo) ListByEvent(_ context.Context, eventID uuid.UUID) ([]*entity.Delivery, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.Delivery
	for _, d := range r.s.deliveries {
		if d.EventID == eventID {
			d := d
			out = append(out, &d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return out, nil
}

func (r *DeliveryRepo) MarkProcessing(_ context.Context, ids uuid.UUIDs) ([]*entity.Delivery, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.Delivery
	for _, id := range ids {
		d, ok := r.s.deliveries[id]
		if !ok || !d.Claimable() {
			continue
		}
		d.Status = entity.DeliveryProcessing
		d.AttemptCount++
		d.UpdatedAt = time.Now()
		r.s.deliveries[id] = d
		out = append(out, &d)
	}
	return out, nil
}

func (r *DeliveryRepo) MarkDelivered(_ context.Context, ids uuid.UUIDs, externalID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := time.Now()
	for _, id := range ids {
		d, ok := r.s.deliveries[id]
		if !ok || !d.Status.CanTransitionTo(entity.DeliveryDelivered) {
			continue
		}
		d.Status = entity.DeliveryDelivered
		if externalID != "" {
			d.ExternalID = &externalID
		}
		d.ErrorMessage, d.NextRetryAt = nil, nil
		d.SentAt, d.DeliveredAt = &now, &now
		r.s.deliveries[id] = d
	}
	return nil
}

func (r *DeliveryRepo) MarkFailed(_ context.Context, ids uuid.UUIDs, failure entity.DeliveryFailure) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	now := time.Now()
	for _, id := range ids {
		d, ok := r.s.deliveries[id]
		if !ok || !d.Status.CanTransitionTo(entity.DeliveryFailed) {
			continue
		}
		reason := failure.Reason
		d.Status = entity.DeliveryFailed
		d.ErrorMessage = &reason
		d.NextRetryAt = nil
		if failure.Retryable {
			d.NextRetryAt = failure.NextRetryAt
		}
		d.FailedAt = &now
		r.s.deliveries[id] = d
	}
	return nil
}

func (r *DeliveryRepo) Rearm(_ context.Context, id uuid.UUID, from entity.DeliveryStatus) (*entity.Delivery, error) {
	return r.transition(id, []entity.DeliveryStatus{from}, func(d *entity.Delivery) {
		d.Status = entity.DeliveryPending
		d.ErrorMessage, d.NextRetryAt = nil, nil
	})
}

func (r *DeliveryRepo) Cancel(_ context.Context, id uuid.UUID) (*entity.Delivery, error) {
	return r.transition(id, entity.SourcesOf(entity.DeliveryCancelled), func(d *entity.Delivery) {
		d.Status = entity.DeliveryCancelled
		d.NextRetryAt = nil
	})
}

func (r *DeliveryRepo) transition(id uuid.UUID, from []entity.DeliveryStatus, apply func(*entity.Delivery)) (*entity.Delivery, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	d, ok := r.s.deliveries[id]
	if !ok {
		return nil, errs.ErrRecordNotFound
	}
	allowed := false
	for _, s := range from {
		if d.Status == s {
			allowed = true
		}
	}
	if !allowed {
		return nil, fmt.Errorf("status %s: %w", d.Status, errs.ErrInvalidTransition)
	}
	apply(&d)
	d.UpdatedAt = time.Now()
	r.s.deliveries[id] = d
	return &d, nil
}

func (r *DeliveryRepo) ListDueForRetry(_ context.Context, now time.Time, maxAttempts, limit int) ([]*entity.Delivery, error) {
	return r.filter(limit, func(d entity.Delivery) bool {
		return d.Status == entity.DeliveryFailed && d.NextRetryAt != nil &&
			!d.NextRetryAt.After(now) && d.AttemptCount < maxAttempts
	}), nil
}

func (r *DeliveryRepo) ListStuckProcessing(_ context.Context, olderThan time.Time, limit int) ([]*entity.Delivery, error) {
	return r.filter(limit, func(d entity.Delivery) bool {
		return d.Status == entity.DeliveryProcessing && d.UpdatedAt.Before(olderThan)
	}), nil
}

func (r *DeliveryRepo) filter(limit int, keep func(entity.Delivery) bool) []*entity.Delivery {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.Delivery
	for _, d := range r.s.deliveries {
		if keep(d) && len(out) < limit {
			d := d
			out = append(out, &d)
		}
	}
	return out
}

func (r *DeliveryRepo) CountByStatus(context.Context) (entity.DeliveryStats, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	stats := make(entity.DeliveryStats)
	for _, d := range r.s.deliveries {
		stats[d.Status]++
	}
	return stats, nil
}

type OutboxRepo struct{ s *Store }

func (r *OutboxRepo) CreateBatch(_ context.Context, messages []*entity.OutboxMessage) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if err := r.s.fail("outbox.CreateBatch"); err != nil {
		return err
	}
	for _, m := range messages {
		r.s.outbox[m.ID] = *m
	}
	return nil
}

func (r *OutboxRepo) GetPendingMessages(_ context.Context, limit int, maxRetries int) ([]*entity.OutboxMessage, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*entity.OutboxMessage
	for _, m := range r.s.outbox {
		if m.Status == entity.Pending && m.RetryCount < maxRetries {
			m := m
			out = append(out, &m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *OutboxRepo) MarkAsProcessingBatch(_ context.Context, ids uuid.UUIDs) error {
	return r.set(ids, entity.Pending, func(m *entity.OutboxMessage) { m.Status = entity.Processing })
}

func (r *OutboxRepo) MarkAsProcessedBatch(_ context.Context, ids uuid.UUIDs) error {
	now := time.Now()
	return r.set(ids, entity.Processing, func(m *entity.OutboxMessage) {
		m.Status = entity.Processed
		m.ProcessedAt = &now
	})
}

func (r *OutboxRepo) IncrementRetryCountBatch(_ context.Context, ids uuid.UUIDs) error {
	return r.set(ids, entity.Processing, func(m *entity.OutboxMessage) {
		m.Status = entity.Pending
		m.RetryCount++
	})
}

func (r *OutboxRepo) set(ids uuid.UUIDs, from entity.Status, apply func(*entity.OutboxMessage)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, id := range ids {
		m, ok := r.s.outbox[id]
		if !ok || m.Status != from {
			continue
		}
		apply(&m)
		r.s.outbox[id] = m
	}
	return nil
}

func (r *OutboxRepo) MarkMaxRetriesAsFailed(_ context.Context, maxRetries int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for id, m := range r.s.outbox {
		if m.Status == entity.Pending && m.RetryCount >= maxRetries {
			m.Status = entity.Failed
			r.s.outbox[id] = m
		}
	}
	return nil
}

func (r *OutboxRepo) RequeueStuckProcessing(context.Context, time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, m := range r.s.outbox {
		if m.Status == entity.Processing {
			m.Status = entity.Pending
			r.s.outbox[id] = m
			n++
		}
	}
	return n, nil
}

func (r *OutboxRepo) DeleteOldProcessedAndFailed(_ context.Context, olderThan time.Time) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, m := range r.s.outbox {
		if (m.Status == entity.Processed || m.Status == entity.Failed) && m.CreatedAt.Before(olderThan) {
			delete(r.s.outbox, id)
			n++
		}
	}
	return n, nil
}
