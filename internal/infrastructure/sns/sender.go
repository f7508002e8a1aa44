// Package sns sends SMS through AWS SNS direct publish.
package sns

import (
	"context"
	"errors"
	"fmt"

	"github.com/andreyxaxa/Notify-Router/pkg/awsclient"
	"github.com/andreyxaxa/Notify-Router/pkg/types/errs"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/aws/smithy-go"
)

type API interface {
	Publish(ctx context.Context, in *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type Sender struct {
	api      API
	senderID string
}

func New(c *awsclient.Client, senderID string) *Sender {
	api := sns.NewFromConfig(c.Config, func(o *sns.Options) {
		if c.Endpoint != "" {
			o.BaseEndpoint = aws.String(c.Endpoint)
		}
	})

	return NewWithAPI(api, senderID)
}

func NewWithAPI(api API, senderID string) *Sender {
	return &Sender{api: api, senderID: senderID}
}

func (s *Sender) SendSMS(ctx context.Context, phone, body string) (string, error) {
	attrs := map[string]types.MessageAttributeValue{
		"AWS.SNS.SMS.SMSType": {
			DataType:    aws.String("String"),
			StringValue: aws.String("Transactional"),
		},
	}
	if s.senderID != "" {
		attrs["AWS.SNS.SMS.SenderID"] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(s.senderID),
		}
	}

	out, err := s.api.Publish(ctx, &sns.PublishInput{
		PhoneNumber:       aws.String(phone),
		Message:           aws.String(body),
		MessageAttributes: attrs,
	})
	if err != nil {
		return "", classify(err)
	}

	return aws.ToString(out.MessageId), nil
}

func classify(err error) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "InvalidParameter", "InvalidParameterValue", "OptedOut":
			return fmt.Errorf("%w: sns - %s: %s", errs.ErrNonRetryable, apiErr.ErrorCode(), apiErr.ErrorMessage())
		case "AuthorizationError":
			return fmt.Errorf("%w: sns - %s: %s", errs.ErrSenderConfiguration, apiErr.ErrorCode(), apiErr.ErrorMessage())
		}
	}

	return fmt.Errorf("Sender - SendSMS - s.api.Publish: %w", err)
}
