package request

import (
	"github.com/andreyxaxa/Notify-Router/internal/dto"
	"github.com/goccy/go-json"
)

type PublishEvent struct {
	Service       string          `json:"service" example:"billing"`
	Topic         string          `json:"topic" example:"invoice.overdue"`
	ClientID      *string         `json:"client_id,omitempty"`
	Severity      string          `json:"severity,omitempty" example:"warning"`
	TemplateID    *string         `json:"template_id,omitempty"`
	Subject       *string         `json:"subject,omitempty"`
	Body          *string         `json:"body,omitempty"`
	Payload       json.RawMessage `json:"payload,omitempty" swaggertype:"object"`
	SagaID        *string         `json:"saga_id,omitempty"`
	CorrelationID *string         `json:"correlation_id,omitempty"`
}

func (p PublishEvent) ToDTO() dto.PublishEvent {
	return dto.PublishEvent{
		Service:       p.Service,
		Topic:         p.Topic,
		ClientID:      p.ClientID,
		Severity:      p.Severity,
		TemplateID:    p.TemplateID,
		Subject:       p.Subject,
		Body:          p.Body,
		Payload:       p.Payload,
		SagaID:        p.SagaID,
		CorrelationID: p.CorrelationID,
	}
}
