package exporter

import (
	"context"
	"sync"

	"github.com/lanwatch/speedmon/internal/domain"
	"github.com/lanwatch/speedmon/internal/speedtest"
	"go.uber.org/zap"
)

// Exporter mirrors newly stored results to a sink. Failed sends land in an
// in-memory retry queue; the store stays the durable source of truth, so
// the queue itself is not persisted.
type Exporter struct {
	repo speedtest.ResultRepository
	sink Sink

	mu    sync.Mutex
	queue []domain.SpeedTestResult
}

func New(repo speedtest.ResultRepository, sink Sink) *Exporter {
	return &Exporter{repo: repo, sink: sink}
}

// ForwardOne appends one result to the sink. On failure the result is
// queued for retry and false is returned. Both outcomes are logged.
func (e *Exporter) ForwardOne(ctx context.Context, result domain.SpeedTestResult) bool {
	if err := e.sink.AppendRow(ctx, RowFromResult(result)); err != nil {
		zap.L().Error("export failed, queuing for retry",
			zap.Int64("id", result.ID),
			zap.Time("timestamp", result.Timestamp),
			zap.Error(err))
		e.mu.Lock()
		e.queue = append(e.queue, result)
		e.mu.Unlock()
		return false
	}
	zap.L().Info("result exported",
		zap.Int64("id", result.ID),
		zap.Time("timestamp", result.Timestamp))
	return true
}

// DrainRetryQueue snapshots the queue, clears it, and attempts every
// queued result once more. Results that fail again are re-queued; the
// return value counts the successes. This is the only retry path, and it
// neither loses nor duplicates items within one pass.
func (e *Exporter) DrainRetryQueue(ctx context.Context) int {
	e.mu.Lock()
	pending := e.queue
	e.queue = nil
	e.mu.Unlock()

	exported := 0
	for _, result := range pending {
		if err := e.sink.AppendRow(ctx, RowFromResult(result)); err != nil {
			zap.L().Warn("export retry failed",
				zap.Int64("id", result.ID),
				zap.Error(err))
			e.mu.Lock()
			e.queue = append(e.queue, result)
			e.mu.Unlock()
			continue
		}
		zap.L().Info("export retry succeeded", zap.Int64("id", result.ID))
		exported++
	}
	return exported
}

// PollNew returns all stored results with id > lastID, ascending by id.
// The caller owns the cursor and advances it past the ids it has seen.
func (e *Exporter) PollNew(ctx context.Context, lastID int64) ([]domain.SpeedTestResult, error) {
	return e.repo.AfterID(ctx, lastID)
}

// QueueSize reports the current retry queue length.
func (e *Exporter) QueueSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}
