package speedtest

import (
	"sync"
	"time"

	"github.com/lanwatch/speedmon/config"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler fires a trigger callback on a cron cadence using a polling
// loop. The next fire time is recomputed only after the current trigger
// returns, so a slow callback delays but never duplicates fires.
type Scheduler struct {
	cronExpr  string
	schedule  cron.Schedule
	onTrigger func()

	pollInterval time.Duration
	now          func() time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewScheduler validates cronExpr and builds a scheduler around trigger.
// An invalid expression is replaced by config.DefaultCron; the
// substitution happens once, here, and is logged.
func NewScheduler(cronExpr string, onTrigger func()) *Scheduler {
	resolved := cronExpr
	schedule, err := cron.ParseStandard(cronExpr)
	if err != nil {
		zap.L().Error("invalid cron expression, using default",
			zap.String("cron", cronExpr),
			zap.String("default", config.DefaultCron),
			zap.Error(err))
		resolved = config.DefaultCron
		schedule, _ = cron.ParseStandard(config.DefaultCron)
	}
	return &Scheduler{
		cronExpr:     resolved,
		schedule:     schedule,
		onTrigger:    onTrigger,
		pollInterval: time.Second,
		now:          time.Now,
		stopCh:       make(chan struct{}),
	}
}

// Cron returns the resolved cron expression.
func (s *Scheduler) Cron() string {
	return s.cronExpr
}

// OverrideTiming replaces the poll interval and clock (used in tests).
func (s *Scheduler) OverrideTiming(pollInterval time.Duration, now func() time.Time) {
	s.pollInterval = pollInterval
	s.now = now
}

// Run blocks, firing the trigger at every scheduled time until Stop is
// called. A Stop issued before Run makes it return without ever firing.
func (s *Scheduler) Run() {
	zap.L().Info("scheduler started", zap.String("cron", s.cronExpr))
	next := s.schedule.Next(s.now())

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			zap.L().Info("scheduler stopped")
			return
		case <-ticker.C:
			now := s.now()
			if now.Before(next) {
				continue
			}
			s.fire()
			next = s.schedule.Next(s.now())
		}
	}
}

// fire invokes the trigger, containing any panic so the loop survives.
func (s *Scheduler) fire() {
	defer func() {
		if err := recover(); err != nil {
			zap.S().Errorf("scheduled trigger panic: %v", err)
		}
	}()
	s.onTrigger()
}

// Stop signals the loop to exit on its next poll. Safe to call from any
// goroutine, any number of times, and before Run.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}
