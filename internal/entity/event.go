package entity

import (
	"time"

	"github.com/google/uuid"
)

type Event struct {
	ID uuid.UUID `json:"id"`

	Service  string   `json:"service"`
	Topic    string   `json:"topic"`
	ClientID *string  `json:"client_id,omitempty"`
	Severity Severity `json:"severity"`

	TemplateID *string `json:"template_id,omitempty"`
	Subject    string  `json:"subject"`
	Body       string  `json:"body"`
	Payload    []byte  `json:"payload,omitempty"`

	SagaID        *string `json:"saga_id,omitempty"`
	CorrelationID *string `json:"correlation_id,omitempty"`

	DeliveriesCount int        `json:"deliveries_count"`
	CreatedAt       time.Time  `json:"created_at"`
	ProcessedAt     *time.Time `json:"processed_at,omitempty"` // set once fan-out is staged
}
