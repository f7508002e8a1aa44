package entity

import "github.com/google/uuid"

type Contact struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	Phone    string    `json:"phone"`
	ClientID *string   `json:"client_id,omitempty"`
	Active   bool      `json:"active"`
}

// AddressFor returns the contact address used on the channel. Chat destinations
// are not stored on the contact, so chat always yields an empty address.
func (c *Contact) AddressFor(ch Channel) string {
	switch ch {
	case ChannelEmail:
		return c.Email
	case ChannelSMS:
		return c.Phone
	default:
		return ""
	}
}

type RecipientGroup struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	ClientID *string   `json:"client_id,omitempty"`
	Active   bool      `json:"active"`
}
