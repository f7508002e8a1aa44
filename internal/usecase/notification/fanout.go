package notification

import (
	"time"

	"github.com/andreyxaxa/Notify-Router/internal/entity"
	"github.com/google/uuid"
)

type target struct {
	contactID uuid.UUID
	channel   entity.Channel
}

// FanOut expands resolved assignments into pending deliveries. A contact gets
// at most one delivery per channel; when several roles apply the most
// visible one wins (To > Cc > Bcc).
func FanOut(
	eventID uuid.UUID,
	assignments []entity.Assignment,
	members map[uuid.UUID][]*entity.Contact,
	now time.Time,
) []*entity.Delivery {
	chosen := make(map[target]*entity.Delivery)
	order := make([]target, 0)

	for _, a := range assignments {
		for _, c := range members[a.GroupID] {
			if c == nil || !c.Active {
				continue
			}

			address := c.AddressFor(a.Channel)
			if address == "" && requiresAddress(a.Channel) {
				continue
			}

			key := target{contactID: c.ID, channel: a.Channel}
			if cur, ok := chosen[key]; ok {
				if a.Role.Outranks(cur.Role) {
					cur.Role = a.Role
					cur.PolicyID = a.PolicyID
				}
				continue
			}

			chosen[key] = &entity.Delivery{
				ID:               uuid.New(),
				EventID:          eventID,
				PolicyID:         a.PolicyID,
				ContactID:        c.ID,
				Channel:          a.Channel,
				Role:             a.Role,
				RecipientAddress: address,
				Status:           entity.DeliveryPending,
				CreatedAt:        now,
				UpdatedAt:        now,
			}
			order = append(order, key)
		}
	}

	deliveries := make([]*entity.Delivery, 0, len(order))
	for _, key := range order {
		deliveries = append(deliveries, chosen[key])
	}

	return deliveries
}

// requiresAddress reports whether the channel sends to an address stored on
// the contact. Chat destinations are resolved at dispatch time.
func requiresAddress(ch entity.Channel) bool {
	return ch == entity.ChannelEmail || ch == entity.ChannelSMS
}
