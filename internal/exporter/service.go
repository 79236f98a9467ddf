package exporter

import (
	"context"
	"time"

	"github.com/asaskevich/EventBus"
	"go.uber.org/zap"
)

// TopicResultStored is published by the measurement trigger after a result
// lands in the store. The export service treats it as a wake-up only; the
// id cursor remains the correctness mechanism.
const TopicResultStored = "speedtest.result.stored"

// Service drives the exporter: it polls the store for rows past its
// cursor, forwards each one, and drains the retry queue on a fixed
// wall-clock interval independent of the poll cadence.
type Service struct {
	exporter      *Exporter
	bus           EventBus.Bus
	pollInterval  time.Duration
	retryInterval time.Duration
}

func NewService(exporter *Exporter, bus EventBus.Bus, pollInterval, retryInterval time.Duration) *Service {
	return &Service{
		exporter:      exporter,
		bus:           bus,
		pollInterval:  pollInterval,
		retryInterval: retryInterval,
	}
}

// Run blocks until ctx is cancelled.
func (s *Service) Run(ctx context.Context) error {
	if err := s.exporter.sink.EnsureHeader(ctx); err != nil {
		zap.L().Error("sink header bootstrap failed, will retry with first append", zap.Error(err))
	}

	nudge := make(chan struct{}, 1)
	onStored := func() {
		select {
		case nudge <- struct{}{}:
		default:
		}
	}
	if s.bus != nil {
		if err := s.bus.Subscribe(TopicResultStored, onStored); err != nil {
			zap.L().Warn("event bus subscribe failed, relying on polling only", zap.Error(err))
		} else {
			defer func() { _ = s.bus.Unsubscribe(TopicResultStored, onStored) }()
		}
	}

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	var cursor int64
	lastRetry := time.Now()

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("export service stopped",
				zap.Int("queued", s.exporter.QueueSize()))
			return ctx.Err()
		case <-nudge:
		case <-ticker.C:
		}

		cursor = s.pollOnce(ctx, cursor)

		if time.Since(lastRetry) >= s.retryInterval {
			if n := s.exporter.QueueSize(); n > 0 {
				zap.S().Infof("processing %d queued exports", n)
				s.exporter.DrainRetryQueue(ctx)
			}
			lastRetry = time.Now()
		}
	}
}

// pollOnce forwards every result past the cursor and returns the advanced
// cursor. Failed forwards stay in the retry queue, so the cursor still
// moves past them.
func (s *Service) pollOnce(ctx context.Context, cursor int64) int64 {
	results, err := s.exporter.PollNew(ctx, cursor)
	if err != nil {
		zap.L().Error("export poll failed", zap.Error(err))
		return cursor
	}
	for _, result := range results {
		s.exporter.ForwardOne(ctx, result)
		if result.ID > cursor {
			cursor = result.ID
		}
	}
	return cursor
}
