package dto

import "github.com/google/uuid"

// PublishEvent is the inbound shape of the publish-event capability.
type PublishEvent struct {
	Service       string  `json:"service"`
	Topic         string  `json:"topic"`
	ClientID      *string `json:"client_id,omitempty"`
	Severity      string  `json:"severity"`
	TemplateID    *string `json:"template_id,omitempty"`
	Subject       *string `json:"subject,omitempty"`
	Body          *string `json:"body,omitempty"`
	Payload       []byte  `json:"payload,omitempty"`
	SagaID        *string `json:"saga_id,omitempty"`
	CorrelationID *string `json:"correlation_id,omitempty"`
}

// PublishResult is returned once fan-out is staged.
type PublishResult struct {
	EventID         uuid.UUID `json:"event_id"`
	DeliveriesCount int       `json:"deliveries_count"`
}
