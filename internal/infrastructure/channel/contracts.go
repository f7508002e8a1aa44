// Package channel routes deliveries to channel senders and classifies the
// outcome as delivered, retryable failure or terminal failure.
package channel

import (
	"context"

	"github.com/andreyxaxa/Notify-Router/internal/entity"
)

type (
	EmailMessage struct {
		To      []string `json:"to"`
		Cc      []string `json:"cc,omitempty"`
		Bcc     []string `json:"bcc,omitempty"`
		Subject string   `json:"subject"`
		Body    string   `json:"body"`
	}

	// EmailSender reports configuration problems wrapped in errs.ErrSenderConfiguration.
	EmailSender interface {
		SendEmail(ctx context.Context, msg EmailMessage) (messageID string, err error)
	}

	// SMSSender marks failures that must not be retried with errs.ErrNonRetryable.
	SMSSender interface {
		SendSMS(ctx context.Context, phone, body string) (messageID string, err error)
	}

	ChatSender interface {
		SendChat(ctx context.Context, destination, subject, body string) (messageID string, err error)
	}

	// DestinationResolver finds the chat webhook of a delivery's contact or group.
	DestinationResolver interface {
		ResolveChatDestination(ctx context.Context, d *entity.Delivery) (string, error)
	}

	// Strategy dispatches one delivery over one channel.
	Strategy interface {
		Dispatch(ctx context.Context, d *entity.Delivery, e *entity.Event) Result
	}
)

// Result is the outcome of one channel call.
type Result struct {
	Success    bool
	ExternalID string
	Error      string
	Retryable  bool
}

func Succeeded(externalID string) Result {
	return Result{Success: true, ExternalID: externalID}
}

func Terminal(err error) Result {
	return Result{Error: err.Error()}
}

func Retryable(err error) Result {
	return Result{Error: err.Error(), Retryable: true}
}
