package channel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/andreyxaxa/Notify-Router/pkg/types/errs"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"
)

// Guard rate-limits and circuit-breaks calls to one channel sender.
// A nil *Guard calls straight through.
type Guard struct {
	limiter *rate.Limiter
	breaker *gobreaker.CircuitBreaker
}

type GuardConfig struct {
	Name string

	// RatePerSecond <= 0 disables limiting.
	RatePerSecond float64
	Burst         int

	// ConsecutiveFailures <= 0 disables the breaker.
	ConsecutiveFailures uint32
	OpenTimeout         time.Duration
	HalfOpenRequests    uint32
}

func NewGuard(cfg GuardConfig, onStateChange func(name string, from, to string)) *Guard {
	g := &Guard{}

	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	if cfg.ConsecutiveFailures > 0 {
		g.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        cfg.Name,
			MaxRequests: cfg.HalfOpenRequests,
			Timeout:     cfg.OpenTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
			},
			// Classified rejections and caller cancellation say nothing about sender health.
			IsSuccessful: func(err error) bool {
				return err == nil ||
					errors.Is(err, errs.ErrNonRetryable) ||
					errors.Is(err, context.Canceled)
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				if onStateChange != nil {
					onStateChange(name, from.String(), to.String())
				}
			},
		})
	}

	return g
}

func (g *Guard) Do(ctx context.Context, fn func(ctx context.Context) (string, error)) (string, error) {
	if g == nil {
		return fn(ctx)
	}

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return "", fmt.Errorf("Guard - Do - g.limiter.Wait: %w", err)
		}
	}

	if g.breaker == nil {
		return fn(ctx)
	}

	out, err := g.breaker.Execute(func() (interface{}, error) {
		return fn(ctx)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return "", fmt.Errorf("%w: %w", errs.ErrCircuitOpen, err)
		}
		return "", err
	}

	id, _ := out.(string)

	return id, nil
}
