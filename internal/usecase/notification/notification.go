package notification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/andreyxaxa/Notify-Router/internal/dto"
	"github.com/andreyxaxa/Notify-Router/internal/entity"
	"github.com/andreyxaxa/Notify-Router/internal/metrics"
	"github.com/andreyxaxa/Notify-Router/internal/repo"
	"github.com/andreyxaxa/Notify-Router/internal/usecase"
	"github.com/andreyxaxa/Notify-Router/internal/usecase/outbox"
	"github.com/andreyxaxa/Notify-Router/pkg/logger"
	"github.com/andreyxaxa/Notify-Router/pkg/types/errs"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const _maxGroupLookups = 8

// Renderer turns a template and payload into subject and body.
type Renderer interface {
	Render(templateID string, payload []byte) (subject, body string, err error)
}

type UseCase struct {
	events     repo.EventRepo
	directory  repo.DirectoryRepo
	deliveries repo.DeliveryRepo
	outbox     repo.OutboxRepo
	transactor repo.Transactor
	resolver   usecase.PolicyResolver
	renderer   Renderer

	metrics *metrics.Metrics
	logger  logger.Interface
	now     func() time.Time
}

func New(
	events repo.EventRepo,
	directory repo.DirectoryRepo,
	deliveries repo.DeliveryRepo,
	outboxRepo repo.OutboxRepo,
	transactor repo.Transactor,
	resolver usecase.PolicyResolver,
	renderer Renderer,
	m *metrics.Metrics,
	l logger.Interface,
) *UseCase {
	return &UseCase{
		events:     events,
		directory:  directory,
		deliveries: deliveries,
		outbox:     outboxRepo,
		transactor: transactor,
		resolver:   resolver,
		renderer:   renderer,
		metrics:    m,
		logger:     l,
		now:        time.Now,
	}
}

// PublishEvent records the event and stages one delivery and one dispatch
// message per resolved recipient in a single transaction. An event no policy
// matches is still recorded, as processed with zero deliveries.
func (uc *UseCase) PublishEvent(ctx context.Context, in dto.PublishEvent) (dto.PublishResult, error) {
	event, err := uc.newEvent(in)
	if err != nil {
		return dto.PublishResult{}, err
	}

	// 1. resolve policies
	assignments, err := uc.resolver.Resolve(ctx, event.Service, event.Topic, event.ClientID, event.Severity)
	if err != nil {
		return dto.PublishResult{}, fmt.Errorf("UseCase - PublishEvent - uc.resolver.Resolve: %w", err)
	}

	// 2. expand groups
	members, err := uc.expandGroups(ctx, assignments)
	if err != nil {
		return dto.PublishResult{}, err
	}

	// 3. dedupe into deliveries
	deliveries := FanOut(event.ID, assignments, members, event.CreatedAt)

	messages, err := outbox.NewMessages(event, deliveries, event.CreatedAt)
	if err != nil {
		return dto.PublishResult{}, fmt.Errorf("UseCase - PublishEvent - outbox.NewMessages: %w", err)
	}

	// 4. event, deliveries and dispatch messages in one transaction
	err = uc.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		if err := uc.events.Create(ctx, event); err != nil {
			return fmt.Errorf("UseCase - PublishEvent - uc.events.Create: %w", err)
		}

		if err := uc.deliveries.CreateBatch(ctx, deliveries); err != nil {
			return fmt.Errorf("UseCase - PublishEvent - uc.deliveries.CreateBatch: %w", err)
		}

		if err := uc.outbox.CreateBatch(ctx, messages); err != nil {
			return fmt.Errorf("UseCase - PublishEvent - uc.outbox.CreateBatch: %w", err)
		}

		// 5. stamp completion
		if err := uc.events.MarkProcessed(ctx, event.ID, len(deliveries), uc.now()); err != nil {
			return fmt.Errorf("UseCase - PublishEvent - uc.events.MarkProcessed: %w", err)
		}

		return nil
	})
	if err != nil {
		return dto.PublishResult{}, err
	}

	uc.metrics.EventPublished(len(deliveries))
	for _, d := range deliveries {
		uc.metrics.DeliveryCreated(string(d.Channel), string(d.Role))
	}

	if len(deliveries) == 0 {
		uc.logger.Warn("event %s (%s/%s) routed to zero deliveries", event.ID, event.Service, event.Topic)
	}

	return dto.PublishResult{EventID: event.ID, DeliveriesCount: len(deliveries)}, nil
}

func (uc *UseCase) newEvent(in dto.PublishEvent) (*entity.Event, error) {
	service := strings.TrimSpace(in.Service)
	topic := strings.TrimSpace(in.Topic)
	if service == "" || topic == "" {
		return nil, fmt.Errorf("%w: service and topic are required", errs.ErrValidation)
	}

	severity := entity.SeverityInfo
	if in.Severity != "" {
		var err error
		severity, err = entity.ParseSeverity(in.Severity)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrValidation, err)
		}
	}

	var subject, body string
	if in.Subject != nil {
		subject = *in.Subject
	}
	if in.Body != nil {
		body = *in.Body
	}

	if subject == "" && body == "" && in.TemplateID != nil && *in.TemplateID != "" {
		if uc.renderer == nil {
			return nil, fmt.Errorf("%w: template rendering is not configured", errs.ErrValidation)
		}

		var err error
		subject, body, err = uc.renderer.Render(*in.TemplateID, in.Payload)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errs.ErrValidation, err)
		}
	}

	if subject == "" && body == "" && len(in.Payload) == 0 {
		return nil, fmt.Errorf("%w: subject, body, template or payload is required", errs.ErrValidation)
	}

	clientID := in.ClientID
	if clientID != nil && strings.TrimSpace(*clientID) == "" {
		clientID = nil
	}

	return &entity.Event{
		ID:            uuid.New(),
		Service:       service,
		Topic:         topic,
		ClientID:      clientID,
		Severity:      severity,
		TemplateID:    in.TemplateID,
		Subject:       subject,
		Body:          body,
		Payload:       in.Payload,
		SagaID:        in.SagaID,
		CorrelationID: in.CorrelationID,
		CreatedAt:     uc.now(),
	}, nil
}

// expandGroups loads the active members of every distinct group concurrently.
func (uc *UseCase) expandGroups(ctx context.Context, assignments []entity.Assignment) (map[uuid.UUID][]*entity.Contact, error) {
	groups := make([]uuid.UUID, 0, len(assignments))
	seen := make(map[uuid.UUID]struct{}, len(assignments))
	for _, a := range assignments {
		if _, ok := seen[a.GroupID]; ok {
			continue
		}
		seen[a.GroupID] = struct{}{}
		groups = append(groups, a.GroupID)
	}

	results := make([][]*entity.Contact, len(groups))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(_maxGroupLookups)

	for i, groupID := range groups {
		g.Go(func() error {
			contacts, err := uc.directory.ListActiveMembers(gctx, groupID)
			if err != nil {
				return fmt.Errorf("UseCase - expandGroups - uc.directory.ListActiveMembers(%s): %w", groupID, err)
			}
			results[i] = contacts
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	members := make(map[uuid.UUID][]*entity.Contact, len(groups))
	for i, groupID := range groups {
		members[groupID] = results[i]
	}

	return members, nil
}

func (uc *UseCase) GetEvent(ctx context.Context, id uuid.UUID) (*entity.Event, error) {
	event, err := uc.events.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("UseCase - GetEvent - uc.events.GetByID: %w", err)
	}

	return event, nil
}

func (uc *UseCase) ListDeliveries(ctx context.Context, eventID uuid.UUID) ([]*entity.Delivery, error) {
	if _, err := uc.events.GetByID(ctx, eventID); err != nil {
		return nil, fmt.Errorf("UseCase - ListDeliveries - uc.events.GetByID: %w", err)
	}

	deliveries, err := uc.deliveries.ListByEvent(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("UseCase - ListDeliveries - uc.deliveries.ListByEvent: %w", err)
	}

	return deliveries, nil
}

func (uc *UseCase) GetDelivery(ctx context.Context, id uuid.UUID) (*entity.Delivery, error) {
	d, err := uc.deliveries.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("UseCase - GetDelivery - uc.deliveries.GetByID: %w", err)
	}

	return d, nil
}

func (uc *UseCase) Stats(ctx context.Context) (entity.DeliveryStats, error) {
	stats, err := uc.deliveries.CountByStatus(ctx)
	if err != nil {
		return nil, fmt.Errorf("UseCase - Stats - uc.deliveries.CountByStatus: %w", err)
	}

	return stats, nil
}

// RetryDelivery re-arms a failed delivery and stages a new dispatch message
// for it in the same transaction.
func (uc *UseCase) RetryDelivery(ctx context.Context, id uuid.UUID) (*entity.Delivery, error) {
	current, err := uc.deliveries.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("UseCase - RetryDelivery - uc.deliveries.GetByID: %w", err)
	}

	event, err := uc.events.GetByID(ctx, current.EventID)
	if err != nil {
		return nil, fmt.Errorf("UseCase - RetryDelivery - uc.events.GetByID: %w", err)
	}

	var rearmed *entity.Delivery

	err = uc.transactor.WithinTransaction(ctx, func(ctx context.Context) error {
		var err error
		rearmed, err = uc.deliveries.Rearm(ctx, id, entity.DeliveryFailed)
		if err != nil {
			return fmt.Errorf("UseCase - RetryDelivery - uc.deliveries.Rearm: %w", err)
		}

		messages, err := outbox.NewMessages(event, []*entity.Delivery{rearmed}, uc.now())
		if err != nil {
			return fmt.Errorf("UseCase - RetryDelivery - outbox.NewMessages: %w", err)
		}

		if err := uc.outbox.CreateBatch(ctx, messages); err != nil {
			return fmt.Errorf("UseCase - RetryDelivery - uc.outbox.CreateBatch: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return rearmed, nil
}

func (uc *UseCase) CancelDelivery(ctx context.Context, id uuid.UUID) (*entity.Delivery, error) {
	d, err := uc.deliveries.Cancel(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("UseCase - CancelDelivery - uc.deliveries.Cancel: %w", err)
	}

	return d, nil
}
