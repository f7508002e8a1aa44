package errs

import "errors"

var (
	ErrRecordNotFound    = errors.New("record not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrValidation        = errors.New("validation failed")
	ErrAlreadyStarted    = errors.New("already started")

	// Channel classification.
	ErrNonRetryable          = errors.New("non-retryable delivery failure")
	ErrSenderConfiguration   = errors.New("sender configuration error")
	ErrMissingAddress        = errors.New("recipient has no address for channel")
	ErrNoToRecipients        = errors.New("aggregated email has no To recipients")
	ErrUnsupportedChannel    = errors.New("unsupported channel")
	ErrDestinationUnresolved = errors.New("chat destination unresolved")
	ErrCircuitOpen           = errors.New("channel circuit open")
)
