package entity

import (
	"time"

	"github.com/google/uuid"
)

// DispatchMessage is the wire record published for every staged delivery.
// Consumers must treat it as a hint and re-load the delivery row.
type DispatchMessage struct {
	DeliveryID       uuid.UUID `json:"delivery_id"`
	EventID          uuid.UUID `json:"event_id"`
	ContactID        uuid.UUID `json:"contact_id"`
	Channel          Channel   `json:"channel"`
	Role             Role      `json:"role"`
	RecipientAddress string    `json:"recipient_address,omitempty"`
	Subject          string    `json:"subject,omitempty"`
	Body             string    `json:"body,omitempty"`
	ClientID         *string   `json:"client_id,omitempty"`
	CorrelationID    *string   `json:"correlation_id,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
}
