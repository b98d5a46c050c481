// Package scheduler fires pipeline stages at their configured times of
// day. The persisted schedule configs are the source of truth; the
// in-memory job table here is a cache rebuilt from them on every change.
package scheduler

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/phrazzld/pitchside/internal/domain"
	"github.com/phrazzld/pitchside/internal/platform/logger"
)

// Dispatcher starts the pipeline stage a due schedule config names.
// Dispatch is called from the scheduler loop and should hand work off
// quickly; long-running stages belong in spawned tasks.
type Dispatcher interface {
	Dispatch(ctx context.Context, config domain.ScheduleConfig) error
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, config domain.ScheduleConfig) error

// Dispatch implements Dispatcher.
func (f DispatcherFunc) Dispatch(ctx context.Context, config domain.ScheduleConfig) error {
	return f(ctx, config)
}

// Scheduler checks its job table every tick and dispatches stages whose
// time point has been reached. Due-ness is a comparison, not an equality
// check, so a tick that arrives late still fires everything the stall
// skipped. Each (config, time point) pair fires at most once per day.
type Scheduler struct {
	mu    sync.Mutex
	jobs  []domain.ScheduleConfig
	fired map[string]struct{}

	dispatcher Dispatcher
	tick       time.Duration
	now        func() time.Time
	logger     *slog.Logger
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithClock replaces the scheduler's clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New creates a Scheduler dispatching to the given Dispatcher. tick is the
// poll interval; values below one second fall back to one minute. If
// logger is nil, a default logger will be used.
func New(dispatcher Dispatcher, tick time.Duration, logger *slog.Logger, opts ...Option) *Scheduler {
	if dispatcher == nil {
		panic("dispatcher cannot be nil")
	}
	if tick < time.Second {
		tick = time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}

	s := &Scheduler{
		fired:      make(map[string]struct{}),
		dispatcher: dispatcher,
		tick:       tick,
		now:        time.Now,
		logger:     logger.With(slog.String("component", "scheduler")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Rebuild replaces the job table with the given configs. Disabled configs
// are dropped here so the tick loop never has to re-check them.
func (s *Scheduler) Rebuild(configs []domain.ScheduleConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.jobs = s.jobs[:0]
	for _, c := range configs {
		if c.Enabled {
			s.jobs = append(s.jobs, c)
		}
	}

	s.logger.Info("schedule rebuilt", "jobs", len(s.jobs))
}

// RunLoop polls for due jobs until ctx is cancelled.
func (s *Scheduler) RunLoop(ctx context.Context) {
	s.logger.Info("scheduler started", "tick", s.tick)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunPending(ctx)
		case <-ctx.Done():
			s.logger.Info("scheduler stopped", "reason", ctx.Err())
			return
		}
	}
}

// RunPending dispatches every (job, time point) pair whose fire time is at
// or before now and has not fired today, and returns how many fired. It is
// the body of one scheduler tick, exposed for direct use.
func (s *Scheduler) RunPending(ctx context.Context) int {
	now := s.now()
	day := now.Format("2006-01-02")
	elapsed := now.Hour()*60 + now.Minute()

	s.mu.Lock()
	var due []domain.ScheduleConfig
	for _, job := range s.jobs {
		if !job.FiresOn(now.Weekday()) {
			continue
		}
		for _, point := range job.TimePoints {
			at, ok := minuteOfDay(point)
			if !ok || at > elapsed {
				continue
			}
			key := job.TaskKey + "|" + day + "|" + point
			if _, done := s.fired[key]; done {
				continue
			}
			s.fired[key] = struct{}{}
			due = append(due, job)
		}
	}
	s.pruneFiredLocked(day)
	s.mu.Unlock()

	for _, job := range due {
		s.dispatch(ctx, job)
	}
	return len(due)
}

// dispatch runs one job with panic isolation so a misbehaving stage never
// takes the scheduler loop down.
func (s *Scheduler) dispatch(ctx context.Context, job domain.ScheduleConfig) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	defer func() {
		if p := recover(); p != nil {
			log.Error("dispatch panicked",
				"task_key", job.TaskKey,
				"panic", p)
		}
	}()

	log.Info("dispatching scheduled stage", "task_key", job.TaskKey)

	if err := s.dispatcher.Dispatch(ctx, job); err != nil {
		log.Error("dispatch failed",
			"task_key", job.TaskKey,
			"error", err)
	}
}

// pruneFiredLocked drops fire markers from previous days.
func (s *Scheduler) pruneFiredLocked(today string) {
	marker := "|" + today + "|"
	for key := range s.fired {
		// key format: taskKey|day|timePoint
		if !strings.Contains(key, marker) {
			delete(s.fired, key)
		}
	}
}

// minuteOfDay parses an HH:MM time point into minutes since midnight.
func minuteOfDay(point string) (int, bool) {
	at, err := time.Parse("15:04", point)
	if err != nil {
		return 0, false
	}
	return at.Hour()*60 + at.Minute(), true
}
