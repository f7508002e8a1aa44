package response

import (
	"time"

	"github.com/andreyxaxa/Notify-Router/internal/dto"
	"github.com/andreyxaxa/Notify-Router/internal/entity"
)

const timeLayout = "2006-01-02T15:04:05Z07:00"

type Error struct {
	Error string `json:"error" example:"message"`
}

type PublishEvent struct {
	EventID         string `json:"event_id"`
	DeliveriesCount int    `json:"deliveries_count"`
}

func NewPublishEvent(res dto.PublishResult) PublishEvent {
	return PublishEvent{
		EventID:         res.EventID.String(),
		DeliveriesCount: res.DeliveriesCount,
	}
}

type Event struct {
	ID              string  `json:"id"`
	Service         string  `json:"service"`
	Topic           string  `json:"topic"`
	ClientID        *string `json:"client_id,omitempty"`
	Severity        string  `json:"severity"`
	TemplateID      *string `json:"template_id,omitempty"`
	Subject         string  `json:"subject"`
	SagaID          *string `json:"saga_id,omitempty"`
	CorrelationID   *string `json:"correlation_id,omitempty"`
	DeliveriesCount int     `json:"deliveries_count"`
	CreatedAt       string  `json:"created_at"`
	ProcessedAt     *string `json:"processed_at,omitempty"`
}

func NewEvent(e *entity.Event) Event {
	return Event{
		ID:              e.ID.String(),
		Service:         e.Service,
		Topic:           e.Topic,
		ClientID:        e.ClientID,
		Severity:        string(e.Severity),
		TemplateID:      e.TemplateID,
		Subject:         e.Subject,
		SagaID:          e.SagaID,
		CorrelationID:   e.CorrelationID,
		DeliveriesCount: e.DeliveriesCount,
		CreatedAt:       e.CreatedAt.Format(timeLayout),
		ProcessedAt:     formatTime(e.ProcessedAt),
	}
}

type Delivery struct {
	ID               string  `json:"id"`
	EventID          string  `json:"event_id"`
	PolicyID         string  `json:"policy_id"`
	ContactID        string  `json:"contact_id"`
	Channel          string  `json:"channel"`
	Role             string  `json:"role"`
	RecipientAddress string  `json:"recipient_address"`
	Status           string  `json:"status"`
	ErrorMessage     *string `json:"error_message,omitempty"`
	AttemptCount     int     `json:"attempt_count"`
	NextRetryAt      *string `json:"next_retry_at,omitempty"`
	ExternalID       *string `json:"external_id,omitempty"`
	CreatedAt        string  `json:"created_at"`
	UpdatedAt        string  `json:"updated_at"`
	SentAt           *string `json:"sent_at,omitempty"`
	DeliveredAt      *string `json:"delivered_at,omitempty"`
	FailedAt         *string `json:"failed_at,omitempty"`
}

func NewDelivery(d *entity.Delivery) Delivery {
	return Delivery{
		ID:               d.ID.String(),
		EventID:          d.EventID.String(),
		PolicyID:         d.PolicyID.String(),
		ContactID:        d.ContactID.String(),
		Channel:          string(d.Channel),
		Role:             string(d.Role),
		RecipientAddress: d.RecipientAddress,
		Status:           string(d.Status),
		ErrorMessage:     d.ErrorMessage,
		AttemptCount:     d.AttemptCount,
		NextRetryAt:      formatTime(d.NextRetryAt),
		ExternalID:       d.ExternalID,
		CreatedAt:        d.CreatedAt.Format(timeLayout),
		UpdatedAt:        d.UpdatedAt.Format(timeLayout),
		SentAt:           formatTime(d.SentAt),
		DeliveredAt:      formatTime(d.DeliveredAt),
		FailedAt:         formatTime(d.FailedAt),
	}
}

type Deliveries struct {
	Deliveries []Delivery `json:"deliveries"`
}

func NewDeliveries(ds []*entity.Delivery) Deliveries {
	out := Deliveries{Deliveries: make([]Delivery, 0, len(ds))}
	for _, d := range ds {
		out.Deliveries = append(out.Deliveries, NewDelivery(d))
	}
	return out
}

// Stats always lists every status, zero counts included.
type Stats map[string]int64

func NewStats(s entity.DeliveryStats) Stats {
	out := Stats{}
	for _, st := range []entity.DeliveryStatus{
		entity.DeliveryPending,
		entity.DeliveryProcessing,
		entity.DeliveryDelivered,
		entity.DeliveryFailed,
		entity.DeliveryCancelled,
	} {
		out[string(st)] = s[st]
	}
	return out
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.Format(timeLayout)
	return &s
}
