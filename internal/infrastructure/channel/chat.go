package channel

import (
	"context"
	"errors"
	"fmt"

	"github.com/andreyxaxa/Notify-Router/internal/entity"
	"github.com/andreyxaxa/Notify-Router/internal/metrics"
	"github.com/andreyxaxa/Notify-Router/pkg/types/errs"
)

type ChatStrategy struct {
	sender   ChatSender
	resolver DestinationResolver
	guard    *Guard
	metrics  *metrics.Metrics
}

func (s *ChatStrategy) Dispatch(ctx context.Context, d *entity.Delivery, e *entity.Event) Result {
	destination, err := s.resolver.ResolveChatDestination(ctx, d)
	if err != nil || destination == "" {
		if err == nil {
			err = errs.ErrDestinationUnresolved
		}
		return Terminal(fmt.Errorf("ChatStrategy - Dispatch - resolve: %w", err))
	}

	if s.sender == nil {
		return Terminal(fmt.Errorf("%w: %s", errs.ErrUnsupportedChannel, entity.ChannelChat))
	}

	id, err := s.guard.Do(ctx, func(ctx context.Context) (string, error) {
		return timed(s.metrics, entity.ChannelChat, func() (string, error) {
			return s.sender.SendChat(ctx, destination, e.Subject, e.Body)
		})
	})
	if err != nil {
		if errors.Is(err, errs.ErrNonRetryable) || errors.Is(err, errs.ErrSenderConfiguration) {
			return Terminal(err)
		}
		return Retryable(err)
	}

	return Succeeded(id)
}

// UnresolvedDestinations is the resolver used until contacts and groups carry
// webhook metadata: every chat delivery fails terminally.
type UnresolvedDestinations struct{}

func (UnresolvedDestinations) ResolveChatDestination(context.Context, *entity.Delivery) (string, error) {
	return "", errs.ErrDestinationUnresolved
}

// FixedDestination sends every chat delivery to one webhook.
type FixedDestination string

func (f FixedDestination) ResolveChatDestination(context.Context, *entity.Delivery) (string, error) {
	if f == "" {
		return "", errs.ErrDestinationUnresolved
	}
	return string(f), nil
}
