package outbox

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/andreyxaxa/Notify-Router/internal/usecase"
	"github.com/andreyxaxa/Notify-Router/pkg/logger"
)

type Config struct {
	PollInterval        time.Duration
	ProcessBatchTimeout time.Duration
	BatchSize           int
	MaxRetries          int

	MarkFailedInterval time.Duration
	CleanupInterval    time.Duration
	CleanupOlderThan   time.Duration
	StuckAfter         time.Duration

	RetrySweepInterval   time.Duration
	RetryMaxAttempts     int
	RecoveryInterval     time.Duration
	StuckProcessingAfter time.Duration
	SweepBatchSize       int
}

type OutboxRelay struct {
	uc     usecase.OutboxUseCase
	closer interface{ Close() error }
	logger logger.Interface
	cfg    Config

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	started atomic.Bool
}

// New builds the relay; closer is the message sender, closed on shutdown.
func New(uc usecase.OutboxUseCase, closer interface{ Close() error }, l logger.Interface, cfg Config) *OutboxRelay {
	return &OutboxRelay{
		uc:     uc,
		closer: closer,
		logger: l,
		cfg:    cfg,
	}
}

func (r *OutboxRelay) Start(ctx context.Context) error {
	if !r.started.CompareAndSwap(false, true) {
		return fmt.Errorf("OutboxRelay - Start - worker already started")
	}

	r.ctx, r.cancel = context.WithCancel(ctx)

	// 1. publish staged dispatch messages
	r.worker(r.cfg.PollInterval, func() {
		batchCtx, batchCancel := context.WithTimeout(r.ctx, r.cfg.ProcessBatchTimeout)
		defer batchCancel()

		_, err := r.uc.RelayPending(batchCtx, r.cfg.BatchSize, r.cfg.MaxRetries)
		if err != nil {
			r.logger.Error(err, "OutboxRelay - Start - worker - r.uc.RelayPending")
		}
	})

	// 2. give up on messages that exhausted their retries
	r.worker(r.cfg.MarkFailedInterval, func() {
		err := r.uc.MarkMaxRetriesAsFailed(r.ctx, r.cfg.MaxRetries)
		if err != nil {
			r.logger.Error(err, "OutboxRelay - Start - worker - r.uc.MarkMaxRetriesAsFailed")
		}

		n, err := r.uc.RequeueStuckOutbox(r.ctx, r.cfg.StuckAfter)
		if err != nil {
			r.logger.Error(err, "OutboxRelay - Start - worker - r.uc.RequeueStuckOutbox")
		} else if n > 0 {
			r.logger.Warn("requeued %d outbox messages stuck in processing", n)
		}
	})

	// 3. drop processed and failed rows
	r.worker(r.cfg.CleanupInterval, func() {
		_, err := r.uc.CleanupOutbox(r.ctx, r.cfg.CleanupOlderThan)
		if err != nil {
			r.logger.Error(err, "OutboxRelay - Start - worker - r.uc.CleanupOutbox")
		}
	})

	// 4. re-arm failed deliveries whose retry time has come
	r.worker(r.cfg.RetrySweepInterval, func() {
		n, err := r.uc.RetryDue(r.ctx, r.cfg.RetryMaxAttempts, r.cfg.SweepBatchSize)
		if err != nil {
			r.logger.Error(err, "OutboxRelay - Start - worker - r.uc.RetryDue")
		} else if n > 0 {
			r.logger.Info("re-armed %d failed deliveries", n)
		}
	})

	// 5. requeue deliveries abandoned in processing
	r.worker(r.cfg.RecoveryInterval, func() {
		n, err := r.uc.RecoverStuck(r.ctx, r.cfg.StuckProcessingAfter, r.cfg.SweepBatchSize)
		if err != nil {
			r.logger.Error(err, "OutboxRelay - Start - worker - r.uc.RecoverStuck")
		} else if n > 0 {
			r.logger.Warn("requeued %d deliveries stuck in processing", n)
		}
	})

	return nil
}

// worker runs task every interval; a non-positive interval disables it.
func (r *OutboxRelay) worker(interval time.Duration, task func()) {
	if interval <= 0 {
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-r.ctx.Done():
				return
			case <-ticker.C:
				task()
			}
		}
	}()
}

func (r *OutboxRelay) Shutdown(ctx context.Context) error {
	if !r.started.Load() {
		return nil
	}

	if r.cancel != nil {
		r.cancel()
	}

	done := make(chan struct{})

	go func() {
		r.wg.Wait()
		if r.closer != nil {
			if err := r.closer.Close(); err != nil {
				r.logger.Error(err, "OutboxRelay - Shutdown - r.closer.Close")
			}
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
