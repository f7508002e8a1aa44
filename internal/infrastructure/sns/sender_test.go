package sns

import (
	"context"
	"errors"
	"testing"

	"github.com/andreyxaxa/Notify-Router/pkg/types/errs"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	in  *sns.PublishInput
	err error
}

func (f *fakeAPI) Publish(_ context.Context, in *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.in = in
	if f.err != nil {
		return nil, f.err
	}
	return &sns.PublishOutput{MessageId: aws.String("sns-1")}, nil
}

func TestSendSMS(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	id, err := NewWithAPI(api, "NOTIFY").SendSMS(context.Background(), "+15550100", "hello")
	require.NoError(t, err)
	assert.Equal(t, "sns-1", id)
	assert.Equal(t, "+15550100", aws.ToString(api.in.PhoneNumber))
	assert.Equal(t, "hello", aws.ToString(api.in.Message))
	assert.Contains(t, api.in.MessageAttributes, "AWS.SNS.SMS.SenderID")
}

func TestSendSMS_Classification(t *testing.T) {
	t.Parallel()

	_, err := NewWithAPI(&fakeAPI{err: &smithy.GenericAPIError{Code: "InvalidParameter"}}, "").
		SendSMS(context.Background(), "bad", "x")
	assert.ErrorIs(t, err, errs.ErrNonRetryable)

	_, err = NewWithAPI(&fakeAPI{err: &smithy.GenericAPIError{Code: "AuthorizationError"}}, "").
		SendSMS(context.Background(), "+15550100", "x")
	assert.ErrorIs(t, err, errs.ErrSenderConfiguration)

	_, err = NewWithAPI(&fakeAPI{err: errors.New("timeout")}, "").
		SendSMS(context.Background(), "+15550100", "x")
	require.Error(t, err)
	assert.False(t, errors.Is(err, errs.ErrNonRetryable))
	assert.False(t, errors.Is(err, errs.ErrSenderConfiguration))
}
