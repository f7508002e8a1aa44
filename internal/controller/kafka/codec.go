package kafka

import (
	"fmt"

	"github.com/andreyxaxa/Notify-Router/internal/entity"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

func decode(msg kafka.Message) (entity.DispatchMessage, error) {
	var dm entity.DispatchMessage
	if err := json.Unmarshal(msg.Value, &dm); err != nil {
		return entity.DispatchMessage{}, fmt.Errorf("decode - json.Unmarshal: %w", err)
	}

	if dm.DeliveryID == uuid.Nil || dm.EventID == uuid.Nil {
		return entity.DispatchMessage{}, fmt.Errorf("decode: delivery_id and event_id are required")
	}

	return dm, nil
}
