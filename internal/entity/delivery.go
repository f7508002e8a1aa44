package entity

import (
	"time"

	"github.com/google/uuid"
)

type DeliveryStatus string

const (
	DeliveryPending    DeliveryStatus = "pending"
	DeliveryProcessing DeliveryStatus = "processing"
	DeliveryDelivered  DeliveryStatus = "delivered"
	DeliveryFailed     DeliveryStatus = "failed"
	DeliveryCancelled  DeliveryStatus = "cancelled"
)

// IsTerminal reports whether the status is a rest state the pipeline never leaves.
func (s DeliveryStatus) IsTerminal() bool {
	return s == DeliveryDelivered || s == DeliveryCancelled
}

func (s DeliveryStatus) IsValid() bool {
	switch s {
	case DeliveryPending, DeliveryProcessing, DeliveryDelivered, DeliveryFailed, DeliveryCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether s -> next is allowed.
//
// Failed -> Processing is the redelivery path of a dispatch message whose
// previous attempt failed retryably (see Delivery.Claimable); Processing ->
// Pending is only used by the recovery sweep for rows abandoned mid-attempt.
func (s DeliveryStatus) CanTransitionTo(next DeliveryStatus) bool {
	switch s {
	case DeliveryPending:
		return next == DeliveryProcessing || next == DeliveryCancelled
	case DeliveryProcessing:
		return next == DeliveryDelivered || next == DeliveryFailed || next == DeliveryPending
	case DeliveryFailed:
		return next == DeliveryPending || next == DeliveryCancelled || next == DeliveryProcessing
	default:
		return false
	}
}

// SourcesOf lists every status that may transition into next.
func SourcesOf(next DeliveryStatus) []DeliveryStatus {
	var from []DeliveryStatus
	for _, s := range []DeliveryStatus{DeliveryPending, DeliveryProcessing, DeliveryDelivered, DeliveryFailed, DeliveryCancelled} {
		if s.CanTransitionTo(next) {
			from = append(from, s)
		}
	}
	return from
}

type Delivery struct {
	ID       uuid.UUID `json:"id"`
	EventID  uuid.UUID `json:"event_id"`
	PolicyID uuid.UUID `json:"policy_id"`

	ContactID        uuid.UUID `json:"contact_id"`
	Channel          Channel   `json:"channel"`
	Role             Role      `json:"role"`
	RecipientAddress string    `json:"recipient_address"` // snapshot taken at fan-out

	Status       DeliveryStatus `json:"status"`
	ErrorMessage *string        `json:"error_message,omitempty"`
	AttemptCount int            `json:"attempt_count"`
	NextRetryAt  *time.Time     `json:"next_retry_at,omitempty"`
	ExternalID   *string        `json:"external_id,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	SentAt      *time.Time `json:"sent_at,omitempty"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
	FailedAt    *time.Time `json:"failed_at,omitempty"`
}

// Claimable reports whether a dispatch attempt may claim the row: pending, or
// failed with a scheduled retry. Terminal failures carry no retry time and are
// never claimed again.
func (d *Delivery) Claimable() bool {
	switch d.Status {
	case DeliveryPending:
		return true
	case DeliveryFailed:
		return d.NextRetryAt != nil
	default:
		return false
	}
}

// DeliveryFailure is what the state store records for a failed attempt.
type DeliveryFailure struct {
	Reason      string
	Retryable   bool
	NextRetryAt *time.Time
}

// DeliveryStats is the count of deliveries per status.
type DeliveryStats map[DeliveryStatus]int64
