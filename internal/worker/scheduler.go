package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"PulseQueue/internal/metrics"
)

// Scheduler drives work cycles on a fixed poll interval and emits a liveness
// heartbeat on a longer one. It is the only component that talks to the
// store outside an individual job pipeline.
type Scheduler struct {
	store             Store
	dispatcher        *Dispatcher
	batchSize         int
	pollInterval      time.Duration
	heartbeatInterval time.Duration
	staleAfter        time.Duration
	logger            *zap.Logger
}

func NewScheduler(
	store Store,
	dispatcher *Dispatcher,
	batchSize int,
	pollInterval time.Duration,
	heartbeatInterval time.Duration,
	staleAfter time.Duration,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		store:             store,
		dispatcher:        dispatcher,
		batchSize:         batchSize,
		pollInterval:      pollInterval,
		heartbeatInterval: heartbeatInterval,
		staleAfter:        staleAfter,
		logger:            logger,
	}
}

// Run blocks until ctx is cancelled, firing one work cycle per tick. On
// cancellation the in-flight cycle finishes its current dispatch group and
// Run returns; no new cycles or groups are started.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("scheduler started",
		zap.Duration("poll_interval", s.pollInterval),
		zap.Int("batch_size", s.batchSize),
	)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	heartbeat := time.NewTicker(s.heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopping")
			return

		case <-heartbeat.C:
			metrics.Heartbeat.SetToCurrentTime()
			s.logger.Info("worker alive")

		case <-ticker.C:
			s.runCycle(ctx)
		}
	}
}

// runCycle performs one release-stale -> fetch -> dispatch pass. A store
// error aborts the cycle early; nothing was claimed, so the next tick simply
// retries from scratch.
func (s *Scheduler) runCycle(ctx context.Context) {
	start := time.Now()

	if s.staleAfter > 0 {
		released, err := s.store.ReleaseStale(ctx, s.staleAfter)
		if err != nil {
			s.logger.Error("stale job release failed", zap.Error(err))
		} else if released > 0 {
			s.logger.Warn("requeued stale processing jobs", zap.Int64("count", released))
		}
	}

	batch, err := s.store.FetchBatch(ctx, s.batchSize)
	if err != nil {
		s.logger.Error("batch fetch failed", zap.Error(err))
		return
	}
	if len(batch) == 0 {
		return
	}

	s.logger.Info("work cycle started", zap.Int("batch", len(batch)))

	s.dispatcher.Dispatch(ctx, batch)

	metrics.CycleDuration.Observe(time.Since(start).Seconds())
}
