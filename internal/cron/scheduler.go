package cron

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/flemzord/confidant/internal/core"
	"github.com/robfig/cron/v3"
)

// parser accepts standard 5-field expressions and descriptors like @daily.
var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidateSchedule reports whether expr is an acceptable schedule.
func ValidateSchedule(expr string) error {
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("cron: invalid schedule %q: %w", expr, err)
	}
	return nil
}

// Scheduler manages periodic job execution using cron expressions.
// A job never overlaps with itself: a tick that finds the previous run
// still in progress is skipped.
type Scheduler struct {
	mu     sync.Mutex
	cron   *cron.Cron
	jobs   map[string]*entry
	order  []string
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
}

type entry struct {
	job  Job
	lock sync.Mutex
}

// NewScheduler creates a scheduler. Jobs must be registered before Start().
func NewScheduler(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		jobs:   make(map[string]*entry),
		logger: logger,
		ctx:    ctx,
		cancel: cancel,
	}
}

// ModuleInfo implements core.Module so the scheduler can be attached to the
// application lifecycle.
func (s *Scheduler) ModuleInfo() core.ModuleInfo {
	return core.ModuleInfo{
		ID:  ServiceName,
		New: func() core.Module { return NewScheduler(nil) },
	}
}

// RegisterJob adds a job to the scheduler. Must be called before Start().
// Returns an error if the name is taken or the schedule does not parse.
func (s *Scheduler) RegisterJob(j Job) error {
	if err := ValidateSchedule(j.Schedule()); err != nil {
		return fmt.Errorf("cron: job %q: %w", j.Name(), err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	name := j.Name()
	if _, exists := s.jobs[name]; exists {
		return fmt.Errorf("cron: duplicate job name %q", name)
	}
	s.jobs[name] = &entry{job: j}
	s.order = append(s.order, name)
	return nil
}

// Len returns the number of registered jobs.
func (s *Scheduler) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.order)
}

// Start begins executing registered jobs. With no jobs it does nothing.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.order) == 0 {
		return nil
	}

	s.cron = cron.New(cron.WithParser(parser))
	for _, name := range s.order {
		e := s.jobs[name]
		if _, err := s.cron.AddFunc(e.job.Schedule(), func() { s.run(s.ctx, e) }); err != nil {
			return fmt.Errorf("cron: invalid schedule for job %q: %w", name, err)
		}
	}

	s.cron.Start()
	s.logger.Info("cron: scheduler started", "jobs", len(s.order))
	return nil
}

// RunNow executes the named job immediately, honoring the no-overlap rule.
// It reports whether the job ran.
func (s *Scheduler) RunNow(ctx context.Context, name string) (bool, error) {
	s.mu.Lock()
	e, ok := s.jobs[name]
	s.mu.Unlock()
	if !ok {
		return false, fmt.Errorf("cron: unknown job %q", name)
	}
	return s.run(ctx, e), nil
}

// run executes e unless a previous run is still in progress.
func (s *Scheduler) run(ctx context.Context, e *entry) bool {
	if !e.lock.TryLock() {
		s.logger.Warn("cron: job still running, skipping tick", "job", e.job.Name())
		return false
	}
	defer e.lock.Unlock()

	s.logger.Debug("cron: job started", "job", e.job.Name())
	if err := e.job.Run(ctx); err != nil {
		s.logger.Error("cron: job failed", "job", e.job.Name(), "error", err)
	} else {
		s.logger.Debug("cron: job completed", "job", e.job.Name())
	}
	return true
}

// Stop cancels running jobs and waits for them to return.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cancel()
	if s.cron == nil {
		return nil
	}

	select {
	case <-s.cron.Stop().Done():
		s.logger.Info("cron: scheduler stopped")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("cron: waiting for jobs: %w", ctx.Err())
	}
}

// Compile-time interface assertions.
var (
	_ core.Module  = (*Scheduler)(nil)
	_ core.Starter = (*Scheduler)(nil)
	_ core.Stopper = (*Scheduler)(nil)
)
