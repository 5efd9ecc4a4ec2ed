package jobs

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"eventlottery/internal/domain"
)

// receiveTimeout bounds each blocking queue poll so the consumer notices
// context cancellation promptly.
const receiveTimeout = 5 * time.Second

// Runner owns the scheduled jobs and the dispatch-queue consumer. Each job
// is a stateless invocation on its own ticker; all coordination state lives
// in the store.
type Runner struct {
	selection  domain.SelectionEngine
	sweeper    domain.ExpirySweeper
	retry      domain.RetryCoordinator
	dispatcher domain.NotificationDispatcher
	queue      domain.DispatchQueue

	selectionInterval time.Duration
	sweepInterval     time.Duration
	retryInterval     time.Duration

	log *slog.Logger
}

func NewRunner(
	selection domain.SelectionEngine,
	sweeper domain.ExpirySweeper,
	retry domain.RetryCoordinator,
	dispatcher domain.NotificationDispatcher,
	queue domain.DispatchQueue,
	selectionInterval, sweepInterval, retryInterval time.Duration,
	log *slog.Logger,
) *Runner {
	return &Runner{
		selection:         selection,
		sweeper:           sweeper,
		retry:             retry,
		dispatcher:        dispatcher,
		queue:             queue,
		selectionInterval: selectionInterval,
		sweepInterval:     sweepInterval,
		retryInterval:     retryInterval,
		log:               log,
	}
}

// Run starts every loop and blocks until ctx is cancelled and all loops
// have drained.
func (r *Runner) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(4)

	go r.tickLoop(ctx, &wg, "selection", r.selectionInterval, r.selection.Run)
	go r.tickLoop(ctx, &wg, "sweep", r.sweepInterval, r.sweeper.Run)
	go r.tickLoop(ctx, &wg, "retry", r.retryInterval, r.retry.Run)
	go r.consumeLoop(ctx, &wg)

	wg.Wait()
}

func (r *Runner) tickLoop(ctx context.Context, wg *sync.WaitGroup, name string, interval time.Duration, run func(context.Context, time.Time) error) {
	defer wg.Done()
	r.log.Info("starting scheduled job", "job", name, "interval", interval)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case now := <-ticker.C:
			if err := run(ctx, now); err != nil {
				// A failed tick is retried whole on the next one; the
				// monotonic flags make that safe.
				r.log.Error("job tick failed", "job", name, "error", err)
			}
		case <-ctx.Done():
			r.log.Info("stopping scheduled job", "job", name)
			return
		}
	}
}

func (r *Runner) consumeLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()
	r.log.Info("starting dispatch consumer")

	for {
		if ctx.Err() != nil {
			r.log.Info("stopping dispatch consumer")
			return
		}
		requestID, err := r.queue.Receive(ctx, receiveTimeout)
		if err != nil {
			if ctx.Err() != nil {
				r.log.Info("stopping dispatch consumer")
				return
			}
			r.log.Error("queue receive failed", "error", err)
			time.Sleep(time.Second)
			continue
		}
		if requestID == "" {
			continue
		}
		if err := r.dispatcher.ProcessRequest(ctx, requestID); err != nil {
			// BRPop already removed the ID, so a dropped error here would
			// strand the request at processed=false where the retry scan
			// never sees it. Put the ID back and let a later consume retry.
			r.log.Error("dispatch failed, requeueing request", "request_id", requestID, "error", err)
			if pubErr := r.queue.Publish(ctx, requestID); pubErr != nil {
				r.log.Error("failed to requeue request", "request_id", requestID, "error", pubErr)
			}
			time.Sleep(time.Second)
		}
	}
}
