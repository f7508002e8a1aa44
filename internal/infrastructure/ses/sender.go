// Package ses sends outbound email through AWS SES v2.
package ses

import (
	"context"
	"errors"
	"fmt"

	"github.com/andreyxaxa/Notify-Router/internal/infrastructure/channel"
	"github.com/andreyxaxa/Notify-Router/pkg/awsclient"
	"github.com/andreyxaxa/Notify-Router/pkg/types/errs"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"
)

type API interface {
	SendEmail(ctx context.Context, in *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

type Sender struct {
	api  API
	from string

	configurationSet string
}

func New(c *awsclient.Client, from, configurationSet string) *Sender {
	api := sesv2.NewFromConfig(c.Config, func(o *sesv2.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
		}
	})

	return NewWithAPI(api, from, configurationSet)
}

func NewWithAPI(api API, from, configurationSet string) *Sender {
	return &Sender{
		api:              api,
		from:             from,
		configurationSet: configurationSet,
	}
}

func (s *Sender) SendEmail(ctx context.Context, msg channel.EmailMessage) (string, error) {
	if s.from == "" {
		return "", fmt.Errorf("%w: ses from address is empty", errs.ErrSenderConfiguration)
	}

	in := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination: &types.Destination{
			ToAddresses:  msg.To,
			CcAddresses:  msg.Cc,
			BccAddresses: msg.Bcc,
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &types.Body{
					Text: &types.Content{Data: aws.String(msg.Body), Charset: aws.String("UTF-8")},
				},
			},
		},
	}
	if s.configurationSet != "" {
		in.ConfigurationSetName = aws.String(s.configurationSet)
	}

	out, err := s.api.SendEmail(ctx, in)
	if err != nil {
		return "", classify(err)
	}

	return aws.ToString(out.MessageId), nil
}

// classify wraps account and request errors SES will keep returning in errs.ErrSenderConfiguration.
func classify(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "MessageRejected",
			"MailFromDomainNotVerifiedException",
			"AccountSuspendedException",
			"SendingPausedException",
			"BadRequestException",
			"NotFoundException":
			return fmt.Errorf("%w: ses - %s: %s", errs.ErrSenderConfiguration, apiErr.ErrorCode(), apiErr.ErrorMessage())
		}
	}

	return fmt.Errorf("Sender - SendEmail - s.api.SendEmail: %w", err)
}
