package dispatch

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// RetryableError reports deliveries whose attempt failed transiently. The
// caller must redeliver the messages that produced it.
type RetryableError struct {
	DeliveryIDs uuid.UUIDs
	Reason      string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable delivery failure for %d deliveries: %s", len(e.DeliveryIDs), e.Reason)
}

func IsRetryable(err error) bool {
	var re *RetryableError
	return errors.As(err, &re)
}
