package dispatch

import (
	"strings"

	"github.com/andreyxaxa/Notify-Router/internal/entity"
	"github.com/andreyxaxa/Notify-Router/internal/infrastructure/channel"
)

// Aggregated is one email built from all pending deliveries of an event.
type Aggregated struct {
	Message channel.EmailMessage

	// Included are covered by Message; MissingAddress have nothing to send to.
	Included       []*entity.Delivery
	MissingAddress []*entity.Delivery
}

// Aggregate partitions deliveries into To/Cc/Bcc address lists. An address
// is listed once, under the most visible role any delivery gives it.
func Aggregate(deliveries []*entity.Delivery, event *entity.Event) Aggregated {
	var out Aggregated

	roles := make(map[string]entity.Role)
	order := make([]string, 0, len(deliveries))
	original := make(map[string]string)

	for _, d := range deliveries {
		address := strings.TrimSpace(d.RecipientAddress)
		if address == "" {
			out.MissingAddress = append(out.MissingAddress, d)
			continue
		}
		out.Included = append(out.Included, d)

		key := strings.ToLower(address)
		cur, ok := roles[key]
		if !ok {
			order = append(order, key)
			original[key] = address
			roles[key] = d.Role
			continue
		}
		if d.Role.Outranks(cur) {
			roles[key] = d.Role
		}
	}

	for _, key := range order {
		switch roles[key] {
		case entity.RoleTo:
			out.Message.To = append(out.Message.To, original[key])
		case entity.RoleCc:
			out.Message.Cc = append(out.Message.Cc, original[key])
		case entity.RoleBcc:
			out.Message.Bcc = append(out.Message.Bcc, original[key])
		}
	}

	if event != nil {
		out.Message.Subject = event.Subject
		out.Message.Body = event.Body
	}

	return out
}
