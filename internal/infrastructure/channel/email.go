package channel

import (
	"context"
	"errors"
	"fmt"

	"github.com/andreyxaxa/Notify-Router/internal/entity"
	"github.com/andreyxaxa/Notify-Router/internal/metrics"
	"github.com/andreyxaxa/Notify-Router/pkg/types/errs"
)

type EmailStrategy struct {
	sender  EmailSender
	guard   *Guard
	metrics *metrics.Metrics
}

func (s *EmailStrategy) Dispatch(ctx context.Context, d *entity.Delivery, e *entity.Event) Result {
	if d.RecipientAddress == "" {
		return Terminal(fmt.Errorf("%w: email", errs.ErrMissingAddress))
	}

	// A lone delivery is addressed To its recipient whatever its role.
	msg := EmailMessage{
		To:      []string{d.RecipientAddress},
		Subject: e.Subject,
		Body:    e.Body,
	}

	return s.Send(ctx, msg)
}

// Send classifies sender configuration errors as terminal and everything else as retryable.
func (s *EmailStrategy) Send(ctx context.Context, msg EmailMessage) Result {
	if len(msg.To) == 0 {
		return Terminal(errs.ErrNoToRecipients)
	}

	id, err := s.guard.Do(ctx, func(ctx context.Context) (string, error) {
		return timed(s.metrics, entity.ChannelEmail, func() (string, error) {
			return s.sender.SendEmail(ctx, msg)
		})
	})
	if err != nil {
		if errors.Is(err, errs.ErrSenderConfiguration) {
			return Terminal(err)
		}
		return Retryable(err)
	}

	return Succeeded(id)
}
