package entity

import (
	"fmt"
	"strings"
)

type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelChat  Channel = "chat"
	// ChannelInApp is the real-time in-app channel. It is not an outbound channel.
	ChannelInApp Channel = "in_app"
)

// IsOutbound reports whether the channel can be selected for outbound routing.
func (c Channel) IsOutbound() bool {
	switch c {
	case ChannelEmail, ChannelSMS, ChannelChat:
		return true
	default:
		return false
	}
}

func (c Channel) order() int {
	switch c {
	case ChannelEmail:
		return 0
	case ChannelSMS:
		return 1
	case ChannelChat:
		return 2
	default:
		return 3
	}
}

// Less orders channels email, sms, chat, then everything else.
func (c Channel) Less(other Channel) bool {
	if c.order() != other.order() {
		return c.order() < other.order()
	}
	return c < other
}

func ParseChannel(raw string) (Channel, error) {
	c := Channel(strings.ToLower(strings.TrimSpace(raw)))
	switch c {
	case ChannelEmail, ChannelSMS, ChannelChat, ChannelInApp:
		return c, nil
	default:
		return "", fmt.Errorf("unknown channel %q", raw)
	}
}

// Role is the recipient visibility class of a delivery.
type Role string

const (
	RoleTo  Role = "to"
	RoleCc  Role = "cc"
	RoleBcc Role = "bcc"
)

// Precedence is higher for more visible roles: To > Cc > Bcc.
func (r Role) Precedence() int {
	switch r {
	case RoleTo:
		return 3
	case RoleCc:
		return 2
	case RoleBcc:
		return 1
	default:
		return 0
	}
}

// Outranks reports whether r wins over other when both target the same contact.
func (r Role) Outranks(other Role) bool {
	return r.Precedence() > other.Precedence()
}

func ParseRole(raw string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(raw)))
	switch r {
	case RoleTo, RoleCc, RoleBcc:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", raw)
	}
}

type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Rank orders severities; unknown values rank lowest.
func (s Severity) Rank() int {
	switch s {
	case SeverityInfo:
		return 1
	case SeverityWarning:
		return 2
	case SeverityError:
		return 3
	case SeverityCritical:
		return 4
	default:
		return 0
	}
}

// AtLeast reports whether s is not strictly below min.
func (s Severity) AtLeast(min Severity) bool {
	return s.Rank() >= min.Rank()
}

func ParseSeverity(raw string) (Severity, error) {
	s := Severity(strings.ToLower(strings.TrimSpace(raw)))
	if s.Rank() == 0 {
		return "", fmt.Errorf("unknown severity %q", raw)
	}
	return s, nil
}
