package scheduler

import (
	"context"
	"sync"
	"time"

	"craftbid/utils"
)

// JobFunc is one unit of periodic work. Returning an error schedules a retry
// with backoff instead of waiting for the regular interval.
type JobFunc func(ctx context.Context) error

type job struct {
	name     string
	run      JobFunc
	failures int
	nextRun  time.Time
}

// Scheduler runs registered jobs every interval. A failing job is retried
// with exponential backoff; after MaxRetries consecutive failures every
// further failure is logged at error for operator attention.
type Scheduler struct {
	interval time.Duration

	MaxRetries  int
	BaseBackoff time.Duration
	MaxBackoff  time.Duration

	mu   sync.Mutex
	jobs []*job
	now  func() time.Time
}

// New creates a Scheduler ticking every interval
func New(interval time.Duration) *Scheduler {
	return &Scheduler{
		interval:    interval,
		MaxRetries:  5,
		BaseBackoff: time.Second,
		MaxBackoff:  time.Minute,
		now:         time.Now,
	}
}

// WithClock replaces the time source; used by tests
func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	s.now = now
	return s
}

// AddJob registers fn under name
func (s *Scheduler) AddJob(name string, fn JobFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, &job{name: name, run: fn})
}

// Run ticks until ctx is cancelled
func (s *Scheduler) Run(ctx context.Context) {
	utils.Info("scheduler started", map[string]any{"interval": s.interval.String(), "jobs": len(s.jobs)})

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.Tick(ctx)
		select {
		case <-ctx.Done():
			utils.Info("scheduler stopped", nil)
			return
		case <-ticker.C:
		}
	}
}

// Tick runs every job that is due and returns how many ran
func (s *Scheduler) Tick(ctx context.Context) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	ran := 0
	for _, j := range s.jobs {
		if ctx.Err() != nil {
			return ran
		}
		now := s.now()
		if now.Before(j.nextRun) {
			continue
		}
		ran++

		err := j.run(ctx)
		if err == nil {
			if j.failures > 0 {
				utils.Info("scheduler job recovered", map[string]any{"job": j.name, "failures": j.failures})
			}
			j.failures = 0
			j.nextRun = time.Time{}
			continue
		}

		j.failures++
		delay := s.backoff(j.failures)
		j.nextRun = now.Add(delay)

		fields := map[string]any{
			"job":      j.name,
			"failures": j.failures,
			"retry_in": delay.String(),
			"error":    err.Error(),
		}
		if j.failures >= s.MaxRetries {
			utils.Error("scheduler job keeps failing, operator attention required", fields)
		} else {
			utils.Warn("scheduler job failed, retrying", fields)
		}
	}
	return ran
}

// backoff doubles the base delay per consecutive failure, capped at MaxBackoff
func (s *Scheduler) backoff(failures int) time.Duration {
	d := s.BaseBackoff
	for i := 1; i < failures; i++ {
		d *= 2
		if d >= s.MaxBackoff {
			return s.MaxBackoff
		}
	}
	return d
}
