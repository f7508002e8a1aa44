package entity

import (
	"time"

	"github.com/google/uuid"
)

type RoutingPolicy struct {
	ID uuid.UUID `json:"id"`

	Service     string    `json:"service"`
	Topic       string    `json:"topic"`
	ClientID    *string   `json:"client_id,omitempty"` // nil for the default policy
	MinSeverity *Severity `json:"min_severity,omitempty"`

	Channel Channel   `json:"channel"`
	GroupID uuid.UUID `json:"group_id"`
	Role    Role      `json:"role"`

	Enabled  bool `json:"enabled"`
	Priority int  `json:"priority"`

	UpdatedAt time.Time `json:"updated_at"`
	UpdatedBy string    `json:"updated_by"`
}

// IsClientSpecific reports whether the policy is scoped to a client.
func (p *RoutingPolicy) IsClientSpecific() bool {
	return p.ClientID != nil
}

// Assignment is one resolved (group, channel, role) target of an event.
type Assignment struct {
	PolicyID uuid.UUID `json:"policy_id"`
	GroupID  uuid.UUID `json:"group_id"`
	Channel  Channel   `json:"channel"`
	Role     Role      `json:"role"`
}
