package worker

import (
	"context"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"PulseQueue/internal/metrics"
	"PulseQueue/internal/models"
)

// Processor handles one fetched job end to end. *Engine satisfies it.
type Processor interface {
	ProcessJob(ctx context.Context, job models.EmailJob)
}

// Dispatcher fans a fetched batch out in consecutive groups of fixed size.
// Each group runs concurrently and must finish before the next group starts,
// which caps simultaneous SMTP connections and attachment downloads.
type Dispatcher struct {
	processor   Processor
	limiter     *rate.Limiter
	concurrency int
	logger      *zap.Logger
}

func NewDispatcher(processor Processor, limiter *rate.Limiter, concurrency int, logger *zap.Logger) *Dispatcher {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Dispatcher{
		processor:   processor,
		limiter:     limiter,
		concurrency: concurrency,
		logger:      logger,
	}
}

// Dispatch processes the batch. Cancellation is checked at group boundaries:
// an in-flight group always runs to completion, later groups are abandoned.
func (d *Dispatcher) Dispatch(ctx context.Context, batch []models.EmailJob) {
	for start := 0; start < len(batch); start += d.concurrency {
		if ctx.Err() != nil {
			d.logger.Info("dispatch stopped before next group",
				zap.Int("remaining", len(batch)-start),
			)
			return
		}

		end := min(start+d.concurrency, len(batch))

		var wg sync.WaitGroup
		for _, job := range batch[start:end] {
			wg.Add(1)
			go func(job models.EmailJob) {
				defer wg.Done()

				if err := d.limiter.Wait(ctx); err != nil {
					// Job was never claimed; it stays pending for a later cycle.
					d.logger.Warn("rate limiter stopped by context",
						zap.String("job_id", job.ID.String()),
						zap.Error(err),
					)
					return
				}

				metrics.DeliveriesInFlight.Inc()
				defer metrics.DeliveriesInFlight.Dec()

				d.processor.ProcessJob(ctx, job)
			}(job)
		}
		wg.Wait()
	}
}
