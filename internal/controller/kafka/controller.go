package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andreyxaxa/Notify-Router/internal/entity"
	"github.com/andreyxaxa/Notify-Router/internal/usecase"
	"github.com/andreyxaxa/Notify-Router/internal/usecase/dispatch"
	"github.com/andreyxaxa/Notify-Router/pkg/logger"
	"github.com/cenkalti/backoff/v5"
	"github.com/segmentio/kafka-go"
)

type MessageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type Config struct {
	BatchSize          int
	BatchWindow        time.Duration
	ProcessTimeout     time.Duration
	CommitTimeout      time.Duration
	RedeliveryAttempts int
	// RedeliveryInitial and RedeliveryMax also pace the fetch loop after a
	// reader error.
	RedeliveryInitial time.Duration
	RedeliveryMax     time.Duration
}

// KafkaController buffers dispatch messages into size- or time-bounded
// batches, hands each batch to the dispatch use case and commits it once
// handled. Batches run one at a time so offsets are committed in order.
type KafkaController struct {
	dispatch usecase.DispatchUseCase
	reader   MessageReader
	logger   logger.Interface
	cfg      Config

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	started atomic.Bool
}

func New(d usecase.DispatchUseCase, r MessageReader, l logger.Interface, cfg Config) *KafkaController {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	if cfg.BatchWindow <= 0 {
		cfg.BatchWindow = 200 * time.Millisecond
	}
	if cfg.RedeliveryAttempts <= 0 {
		cfg.RedeliveryAttempts = 1
	}
	if cfg.CommitTimeout <= 0 {
		cfg.CommitTimeout = 5 * time.Second
	}

	return &KafkaController{
		dispatch: d,
		reader:   r,
		logger:   l,
		cfg:      cfg,
	}
}

func (c *KafkaController) Start(ctx context.Context) error {
	if !c.started.CompareAndSwap(false, true) {
		return fmt.Errorf("KafkaController - Start - controller already started")
	}

	c.ctx, c.cancel = context.WithCancel(ctx)

	messages := make(chan kafka.Message, c.cfg.BatchSize*2)

	// 1. fetch loop
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		defer close(messages)

		b := c.newBackOff()

		for {
			msg, err := c.reader.ReadMessage(c.ctx)
			if err != nil {
				if c.ctx.Err() != nil {
					return
				}
				sleep := next(b)
				c.logger.Error(err, "KafkaController - Start - c.reader.ReadMessage", "retry_in", sleep)

				select {
				case <-c.ctx.Done():
					return
				case <-time.After(sleep):
				}
				continue
			}
			b.Reset()

			select {
			case messages <- msg:
			case <-c.ctx.Done():
				return
			}
		}
	}()

	// 2. batcher
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.batch(messages)
	}()

	return nil
}

func (c *KafkaController) batch(messages <-chan kafka.Message) {
	buf := make([]kafka.Message, 0, c.cfg.BatchSize)

	timer := time.NewTimer(c.cfg.BatchWindow)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()

	flush := func() {
		if len(buf) == 0 {
			return
		}
		c.handle(buf)
		buf = make([]kafka.Message, 0, c.cfg.BatchSize)
	}

	for {
		select {
		case msg, ok := <-messages:
			if !ok {
				return
			}

			// the window opens with the first message of a batch
			if len(buf) == 0 {
				timer.Reset(c.cfg.BatchWindow)
			}
			buf = append(buf, msg)

			if len(buf) >= c.cfg.BatchSize {
				if !timer.Stop() {
					select {
					case <-timer.C:
					default:
					}
				}
				flush()
			}
		case <-timer.C:
			flush()
		}
	}
}

func (c *KafkaController) handle(batch []kafka.Message) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error(fmt.Errorf("panic %v", r), "KafkaController - handle - panic")
		}
	}()

	decoded := make([]entity.DispatchMessage, 0, len(batch))
	for _, msg := range batch {
		dm, err := decode(msg)
		if err != nil {
			c.logger.Error(err, "KafkaController - handle - decode", "offset", msg.Offset, "partition", msg.Partition)
			continue
		}
		decoded = append(decoded, dm)
	}

	if len(decoded) > 0 && !c.process(decoded) {
		return
	}

	commitCtx, commitCancel := context.WithTimeout(context.WithoutCancel(c.ctx), c.cfg.CommitTimeout)
	defer commitCancel()

	err := c.reader.CommitMessages(commitCtx, batch...)
	if err != nil {
		c.logger.Error(err, "KafkaController - handle - c.reader.CommitMessages")
	}
}

// process reports whether the batch may be committed. Retryable delivery
// failures are redelivered in-process a bounded number of times and then left
// to the retry sweep; any other error is retried until it clears or the
// controller stops.
func (c *KafkaController) process(messages []entity.DispatchMessage) bool {
	b := c.newBackOff()
	attempts := 0

	for {
		ctx, cancel := c.processContext()
		err := c.dispatch.HandleBatch(ctx, messages)
		cancel()
		if err == nil {
			return true
		}

		if dispatch.IsRetryable(err) {
			attempts++
			if attempts >= c.cfg.RedeliveryAttempts {
				c.logger.Warn("batch of %d messages still failing after %d attempts, left to retry sweep: %v", len(messages), attempts, err)
				return true
			}
		} else {
			c.logger.Error(err, "KafkaController - process - c.dispatch.HandleBatch")
		}

		select {
		case <-c.ctx.Done():
			return false
		case <-time.After(next(b)):
		}
	}
}

func (c *KafkaController) newBackOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if c.cfg.RedeliveryInitial > 0 {
		b.InitialInterval = c.cfg.RedeliveryInitial
	}
	if c.cfg.RedeliveryMax > 0 {
		b.MaxInterval = c.cfg.RedeliveryMax
	}
	// the constructor already primed the current interval with the defaults
	b.Reset()
	return b
}

func next(b *backoff.ExponentialBackOff) time.Duration {
	sleep := b.NextBackOff()
	if sleep == backoff.Stop {
		sleep = b.MaxInterval
	}
	return sleep
}

func (c *KafkaController) processContext() (context.Context, context.CancelFunc) {
	if c.cfg.ProcessTimeout <= 0 {
		return context.WithCancel(c.ctx)
	}
	return context.WithTimeout(c.ctx, c.cfg.ProcessTimeout)
}

func (c *KafkaController) Shutdown(ctx context.Context) error {
	if !c.started.Load() {
		return nil
	}

	if c.cancel != nil {
		c.cancel()
	}

	done := make(chan struct{})

	go func() {
		c.wg.Wait()
		if err := c.reader.Close(); err != nil && !errors.Is(err, context.Canceled) {
			c.logger.Error(err, "KafkaController - Shutdown - c.reader.Close")
		}
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
