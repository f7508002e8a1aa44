package channel

import (
	"context"
	"fmt"
	"time"

	"github.com/andreyxaxa/Notify-Router/internal/entity"
	"github.com/andreyxaxa/Notify-Router/internal/metrics"
	"github.com/andreyxaxa/Notify-Router/pkg/types/errs"
)

// Dispatcher is a flat strategy map keyed by channel.
type Dispatcher struct {
	strategies map[entity.Channel]Strategy
	email      *EmailStrategy
}

func NewDispatcher(opts ...Option) *Dispatcher {
	d := &Dispatcher{
		strategies: make(map[entity.Channel]Strategy),
	}

	for _, opt := range opts {
		opt(d)
	}

	return d
}

type Option func(*Dispatcher)

func WithEmail(s EmailSender, g *Guard, m *metrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.email = &EmailStrategy{sender: s, guard: g, metrics: m}
		d.strategies[entity.ChannelEmail] = d.email
	}
}

func WithSMS(s SMSSender, g *Guard, m *metrics.Metrics) Option {
	return func(d *Dispatcher) {
		d.strategies[entity.ChannelSMS] = &SMSStrategy{sender: s, guard: g, metrics: m}
	}
}

func WithChat(s ChatSender, r DestinationResolver, g *Guard, m *metrics.Metrics) Option {
	return func(d *Dispatcher) {
		if r == nil {
			r = UnresolvedDestinations{}
		}
		d.strategies[entity.ChannelChat] = &ChatStrategy{sender: s, resolver: r, guard: g, metrics: m}
	}
}

// Dispatch sends one delivery. Channels without a strategy, including the
// in-app channel, fail terminally.
func (d *Dispatcher) Dispatch(ctx context.Context, delivery *entity.Delivery, event *entity.Event) Result {
	s, ok := d.strategies[delivery.Channel]
	if !ok {
		return Terminal(fmt.Errorf("%w: %s", errs.ErrUnsupportedChannel, delivery.Channel))
	}

	return s.Dispatch(ctx, delivery, event)
}

// SendEmail sends one email with combined recipient lists.
func (d *Dispatcher) SendEmail(ctx context.Context, msg EmailMessage) Result {
	if d.email == nil {
		return Terminal(fmt.Errorf("%w: %s", errs.ErrUnsupportedChannel, entity.ChannelEmail))
	}

	return d.email.Send(ctx, msg)
}

func timed(m *metrics.Metrics, ch entity.Channel, fn func() (string, error)) (string, error) {
	start := time.Now()
	id, err := fn()
	m.SenderLatency(string(ch), time.Since(start))
	return id, err
}
