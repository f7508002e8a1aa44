package entity

import (
	"time"

	"github.com/google/uuid"
)

// OutboxMessage is a dispatch message staged in the same transaction as its delivery row.
type OutboxMessage struct {
	ID          uuid.UUID  `json:"id"`
	AggregateID uuid.UUID  `json:"aggregate_id"` // event id, used as the kafka key
	DeliveryID  uuid.UUID  `json:"delivery_id"`
	Payload     []byte     `json:"payload"`
	Status      Status     `json:"status"` // pending, processing, processed, failed
	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	RetryCount  int        `json:"retry_count"`
}
