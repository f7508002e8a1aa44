package channel

import (
	"context"
	"errors"
	"fmt"

	"github.com/andreyxaxa/Notify-Router/internal/entity"
	"github.com/andreyxaxa/Notify-Router/internal/metrics"
	"github.com/andreyxaxa/Notify-Router/pkg/types/errs"
)

type SMSStrategy struct {
	sender  SMSSender
	guard   *Guard
	metrics *metrics.Metrics
}

func (s *SMSStrategy) Dispatch(ctx context.Context, d *entity.Delivery, e *entity.Event) Result {
	if d.RecipientAddress == "" {
		return Terminal(fmt.Errorf("%w: sms", errs.ErrMissingAddress))
	}

	body := e.Body
	if body == "" {
		body = e.Subject
	}

	id, err := s.guard.Do(ctx, func(ctx context.Context) (string, error) {
		return timed(s.metrics, entity.ChannelSMS, func() (string, error) {
			return s.sender.SendSMS(ctx, d.RecipientAddress, body)
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
