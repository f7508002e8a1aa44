package dispatch

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

const (
	_defaultRetryBase = 30 * time.Second
	_defaultRetryMax  = 30 * time.Minute
)

// RetrySchedule computes next_retry_at for a failed attempt.
type RetrySchedule struct {
	Base time.Duration
	Max  time.Duration
}

// Delay doubles Base for every attempt after the first, capped at Max.
func (s RetrySchedule) Delay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.Base
	b.MaxInterval = s.Max
	b.Multiplier = 2
	b.RandomizationFactor = 0

	if b.InitialInterval <= 0 {
		b.InitialInterval = _defaultRetryBase
	}
	if b.MaxInterval <= 0 {
		b.MaxInterval = _defaultRetryMax
	}

	d := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		d = b.NextBackOff()
	}

	return d
}
