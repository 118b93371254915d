// Package worker schedules retraining runs off the event bus.
package worker

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/train"
)

// Runner executes one retraining pass. Satisfied by train.Orchestrator.
type Runner interface {
	Run(ctx context.Context) (*train.Result, error)
}

// Scheduler triggers retraining when a labeling run completes, and
// optionally on a fixed interval. Overlapping triggers coalesce: a
// trigger arriving while a run is in flight is dropped, and the next
// trigger picks up the accumulated rows anyway.
type Scheduler struct {
	bus      domain.EventBus
	runner   Runner
	interval time.Duration
	logger   *slog.Logger

	running atomic.Bool

	subscriptions []domain.Subscription
	wg            sync.WaitGroup
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewScheduler creates a retraining scheduler. A zero interval disables
// the ticker; runs then happen only on labeling completion events.
func NewScheduler(bus domain.EventBus, runner Runner, interval time.Duration, logger *slog.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		bus:      bus,
		runner:   runner,
		interval: interval,
		logger:   logger,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes to labeling events and starts the interval ticker.
func (s *Scheduler) Start() error {
	if s.bus != nil {
		sub, err := s.bus.Subscribe(s.ctx, domain.TopicLabelingCompleted, func(ctx context.Context, msg *domain.Message) error {
			s.Trigger(ctx, "labeling_completed")
			return nil
		})
		if err != nil {
			return err
		}
		s.subscriptions = append(s.subscriptions, sub)
	}

	if s.interval > 0 {
		s.wg.Add(1)
		go s.tick()
	}

	s.logger.Info("retraining scheduler started",
		"interval", s.interval.String(),
		"event_driven", s.bus != nil,
	)
	return nil
}

func (s *Scheduler) tick() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.Trigger(s.ctx, "interval")
		}
	}
}

// Trigger runs one retraining pass unless one is already in flight.
// Returns true when a run was started.
func (s *Scheduler) Trigger(ctx context.Context, reason string) bool {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Debug("retraining already in flight, trigger dropped", "reason", reason)
		return false
	}
	defer s.running.Store(false)

	start := time.Now()
	result, err := s.runner.Run(ctx)
	if err != nil {
		s.logger.Error("retraining run failed",
			"reason", reason,
			"error", err,
		)
		return true
	}

	if result.Skipped {
		s.logger.Info("retraining skipped",
			"reason", reason,
			"new_rows", result.NewRows,
		)
		return true
	}

	s.logger.Info("retraining run completed",
		"reason", reason,
		"version", result.Version,
		"trained_rows", result.TrainedRows,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return true
}

// Stop unsubscribes and waits for the ticker to exit. An in-flight run
// is cancelled through its context.
func (s *Scheduler) Stop() {
	s.cancel()
	for _, sub := range s.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			s.logger.Warn("failed to unsubscribe", "topic", sub.Topic(), "error", err)
		}
	}
	s.wg.Wait()
	s.logger.Info("retraining scheduler stopped")
}
