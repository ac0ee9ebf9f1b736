package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/deliverydesk-backend/pkg/logger"
	"github.com/angelmondragon/deliverydesk-backend/pkg/metrics"
)

const defaultInterval = time.Hour

// ServiceParams configure the sweeper loop.
type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
}

// Service runs every registered job once per interval while holding Lock.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	metrics  *metrics.CronJobMetrics
	interval time.Duration
}

// NewService builds a sweeper service.
func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	registry := params.Registry
	if registry == nil {
		registry = &Registry{}
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{
		logg:     params.Logger,
		registry: registry,
		lock:     params.Lock,
		metrics:  params.Metrics,
		interval: interval,
	}, nil
}

// Run sweeps immediately and then on every tick until ctx is canceled.
// Job failures are logged and never stop the loop.
func (s *Service) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.sweep(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *Service) sweep(ctx context.Context) {
	ran, err := s.RunOnce(ctx)
	switch {
	case err != nil:
		s.logg.Error(ctx, "sweep cycle failed", err)
	case !ran:
		s.logg.Info(ctx, "sweep held by another instance; skipping cycle")
	}
}

// RunOnce executes a single cycle. It reports false when another replica
// holds the lock. The error combines every job failure of the cycle.
func (s *Service) RunOnce(ctx context.Context) (ran bool, err error) {
	acquired, err := s.lock.Acquire(ctx)
	if err != nil || !acquired {
		if err != nil {
			err = fmt.Errorf("lock acquire: %w", err)
		}
		return false, err
	}
	defer func() {
		if relErr := s.lock.Release(ctx); relErr != nil {
			s.logg.Error(ctx, "failed to release sweeper lock", relErr)
		}
	}()

	for _, job := range s.registry.Jobs() {
		if jobErr := s.runJob(ctx, job); jobErr != nil {
			err = multierr.Append(err, fmt.Errorf("%s: %w", job.Name(), jobErr))
		}
	}
	return true, err
}

func (s *Service) runJob(ctx context.Context, job Job) error {
	name := job.Name()
	start := time.Now()
	err := job.Run(s.logg.WithField(ctx, "job", name))
	elapsed := time.Since(start)
	s.metrics.ObserveRun(name, elapsed, err)

	done := s.logg.WithFields(ctx, map[string]any{"job": name, "duration_ms": elapsed.Milliseconds()})
	if err != nil {
		s.logg.Error(done, "job failed", err)
	} else {
		s.logg.Info(done, "job completed")
	}
	return err
}
