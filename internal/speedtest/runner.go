package speedtest

import (
	"context"
	"fmt"
	"time"

	"github.com/lanwatch/speedmon/internal/domain"
	"github.com/lanwatch/speedmon/pkg/metrics"
	"go.uber.org/zap"
)

// MaxStoreAttempts bounds the insert retry loop in StoreWithRetry.
const MaxStoreAttempts = 3

// Runner executes speed tests and persists results with retry on
// transient storage failures.
type Runner struct {
	repo   ResultRepository
	prober Prober

	// sleep is the backoff sleeper; tests record calls instead of waiting.
	sleep func(time.Duration)
}

func NewRunner(repo ResultRepository, prober Prober) *Runner {
	return &Runner{repo: repo, prober: prober, sleep: time.Sleep}
}

// OverrideSleep replaces the backoff sleeper (used in tests).
func (r *Runner) OverrideSleep(sleep func(time.Duration)) {
	r.sleep = sleep
}

// ExecuteTest runs one measurement and always returns a record: a probe
// error (or panic) is converted into a failure row with zero metrics and
// the error text captured. It never returns an error to its caller.
func (r *Runner) ExecuteTest(ctx context.Context) (result *domain.SpeedTestResult) {
	started := time.Now()
	result = &domain.SpeedTestResult{
		Timestamp: utcNow(),
		Success:   true,
	}

	defer func() {
		if p := recover(); p != nil {
			zap.S().Errorf("speed test panic: %v", p)
			msg := fmt.Sprintf("panic: %v", p)
			*result = domain.SpeedTestResult{
				Timestamp:    result.Timestamp,
				Success:      false,
				ErrorMessage: &msg,
			}
		}
	}()

	zap.L().Info("starting speed test")
	probe, err := r.prober.Probe(ctx)
	if err != nil {
		zap.L().Error("speed test failed", zap.Error(err))
		msg := err.Error()
		result.Success = false
		result.ErrorMessage = &msg
		return result
	}

	result.DownloadMbps = probe.DownloadMbps
	result.UploadMbps = probe.UploadMbps
	result.PingMs = probe.PingMs
	if probe.Server != "" {
		server := probe.Server
		result.TestServer = &server
	}

	metrics.SetGauge("speedtest_download_kbps", int64(probe.DownloadMbps*1000))
	metrics.SetGauge("speedtest_upload_kbps", int64(probe.UploadMbps*1000))
	metrics.SetGauge("speedtest_ping_ms", int64(probe.PingMs))
	metrics.SetGauge("speedtest_duration_sec", int64(time.Since(started).Seconds()))

	zap.L().Info("speed test complete",
		zap.Float64("download_mbps", probe.DownloadMbps),
		zap.Float64("upload_mbps", probe.UploadMbps),
		zap.Float64("ping_ms", probe.PingMs),
		zap.String("server", probe.Server))
	return result
}

// StoreWithRetry inserts the result, retrying transient storage failures
// with exponential backoff (1s, 2s, 4s, ...). Returns false after the last
// attempt fails; the record's ID stays unset in that case.
func (r *Runner) StoreWithRetry(ctx context.Context, result *domain.SpeedTestResult) bool {
	for attempt := 0; attempt < MaxStoreAttempts; attempt++ {
		id, err := r.repo.Insert(ctx, result)
		if err == nil {
			result.ID = id
			zap.L().Info("result stored", zap.Int64("id", id))
			return true
		}

		if attempt == MaxStoreAttempts-1 {
			zap.S().Warnf("database error (attempt %d/%d): %s", attempt+1, MaxStoreAttempts, err)
			break
		}
		wait := time.Duration(1<<uint(attempt)) * time.Second
		zap.S().Warnf("database error (attempt %d/%d): %s, retrying in %s",
			attempt+1, MaxStoreAttempts, err, wait)
		r.sleep(wait)
	}

	zap.S().Errorf("failed to store result after %d attempts", MaxStoreAttempts)
	return false
}

// RunAndStore executes one test and persists it. A nil return encodes
// storage failure only; a failed measurement that was stored still yields
// the record.
func (r *Runner) RunAndStore(ctx context.Context) *domain.SpeedTestResult {
	result := r.ExecuteTest(ctx)
	if !r.StoreWithRetry(ctx, result) {
		return nil
	}
	return result
}

// utcNow returns the current UTC wall-clock time truncated to seconds,
// matching the event-time resolution stored per row.
func utcNow() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
