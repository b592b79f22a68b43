package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/crossmkt/arbitrage-backend/pkg/logger"
	"github.com/crossmkt/arbitrage-backend/pkg/metrics"
)

// Job is one schedulable unit of pipeline work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Entry schedules a job at a fixed interval.
type Entry struct {
	Job   Job
	Every time.Duration
}

// Locker serializes a job across worker replicas. A held lock means
// another replica is already running the job.
type Locker interface {
	Acquire(ctx context.Context, job string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, job string) error
}

// ServiceParams wires a scheduler Service.
type ServiceParams struct {
	Entries []Entry
	Locker  Locker
	Logger  *logger.Logger
	Metrics *metrics.JobMetrics
}

// Service drives each registered job on its own ticker until the
// context is canceled. Every execution is guarded by the distributed
// lock so overlapping worker replicas never run the same job twice.
type Service struct {
	entries []Entry
	locker  Locker
	logg    *logger.Logger
	metrics *metrics.JobMetrics
}

func NewService(params ServiceParams) (*Service, error) {
	if len(params.Entries) == 0 {
		return nil, fmt.Errorf("at least one entry required")
	}
	for _, entry := range params.Entries {
		if entry.Job == nil {
			return nil, fmt.Errorf("entry without job")
		}
		if entry.Every <= 0 {
			return nil, fmt.Errorf("job %s: interval must be positive", entry.Job.Name())
		}
	}
	if params.Locker == nil {
		return nil, fmt.Errorf("locker required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &Service{
		entries: params.Entries,
		locker:  params.Locker,
		logg:    params.Logger,
		metrics: params.Metrics,
	}, nil
}

// Run blocks until the context is canceled. Each entry runs once
// immediately and then on its interval.
func (s *Service) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, entry := range s.entries {
		entry := entry
		g.Go(func() error {
			s.loop(gctx, entry)
			return nil
		})
	}
	_ = g.Wait()
	return ctx.Err()
}

func (s *Service) loop(ctx context.Context, entry Entry) {
	s.runOnce(ctx, entry)

	ticker := time.NewTicker(entry.Every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logg.Info(s.logg.WithJob(ctx, entry.Job.Name()), "job loop stopped")
			return
		case <-ticker.C:
			s.runOnce(ctx, entry)
		}
	}
}

func (s *Service) runOnce(ctx context.Context, entry Entry) {
	name := entry.Job.Name()
	ctx = s.logg.WithJob(ctx, name)

	// lock lives slightly longer than the interval so a crashed holder
	// expires before the next tick
	acquired, err := s.locker.Acquire(ctx, name, entry.Every+time.Minute)
	if err != nil {
		s.logg.Error(ctx, "job lock acquisition failed", err)
		return
	}
	if !acquired {
		s.logg.Debug(ctx, "job already running elsewhere, skipping")
		return
	}
	defer func() {
		if err := s.locker.Release(ctx, name); err != nil {
			s.logg.Error(ctx, "job lock release failed", err)
		}
	}()

	started := time.Now()
	err = entry.Job.Run(ctx)
	s.metrics.ObserveDuration(name, time.Since(started))
	if err != nil {
		s.metrics.IncFailure(name)
		s.logg.Error(ctx, "job run failed", err)
		return
	}
	s.metrics.IncSuccess(name)
	s.logg.Info(s.logg.WithField(ctx, "took", time.Since(started).String()), "job run finished")
}

// RunAll executes every entry once, in order, and aggregates failures.
// Used by the on-demand trigger path.
func (s *Service) RunAll(ctx context.Context) error {
	var errs error
	for _, entry := range s.entries {
		if err := entry.Job.Run(s.logg.WithJob(ctx, entry.Job.Name())); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", entry.Job.Name(), err))
		}
	}
	return errs
}
