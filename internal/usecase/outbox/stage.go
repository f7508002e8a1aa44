package outbox

import (
	"fmt"
	"time"

	"github.com/andreyxaxa/Notify-Router/internal/entity"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
)

// NewMessages builds one pending outbox message per delivery of event.
func NewMessages(event *entity.Event, deliveries []*entity.Delivery, now time.Time) ([]*entity.OutboxMessage, error) {
	messages := make([]*entity.OutboxMessage, 0, len(deliveries))

	for _, d := range deliveries {
		payload, err := json.Marshal(entity.DispatchMessage{
			DeliveryID:       d.ID,
			EventID:          event.ID,
			ContactID:        d.ContactID,
			Channel:          d.Channel,
			Role:             d.Role,
			RecipientAddress: d.RecipientAddress,
			Subject:          event.Subject,
			Body:             event.Body,
			ClientID:         event.ClientID,
			CorrelationID:    event.CorrelationID,
			CreatedAt:        now,
		})
		if err != nil {
			return nil, fmt.Errorf("outbox - NewMessages - json.Marshal: %w", err)
		}

		messages = append(messages, &entity.OutboxMessage{
			ID:          uuid.New(),
			AggregateID: event.ID,
			DeliveryID:  d.ID,
			Payload:     payload,
			Status:      entity.Pending,
			CreatedAt:   now,
		})
	}

	return messages, nil
}
