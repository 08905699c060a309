package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/mpsync/pkg/logger"
	"github.com/angelmondragon/mpsync/pkg/metrics"
	"github.com/angelmondragon/mpsync/pkg/redis"
)

const defaultInterval = 5 * time.Minute

// stateStore remembers when each entry last ran so a new leader picks up
// the cadence where the previous one left it.
type stateStore interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	ScheduleKey(entry string) string
}

type ServiceParams struct {
	Logger   *logger.Logger
	Registry *Registry
	Lock     Lock
	State    stateStore
	Metrics  *metrics.CronJobMetrics
	Interval time.Duration
}

// Service ticks every interval and runs the entries that are due.
type Service struct {
	logg     *logger.Logger
	registry *Registry
	lock     Lock
	state    stateStore
	metrics  *metrics.CronJobMetrics
	interval time.Duration
	now      func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Lock == nil {
		return nil, fmt.Errorf("lock required")
	}
	if params.State == nil {
		return nil, fmt.Errorf("schedule state store required")
	}
	registry := params.Registry
	if registry == nil {
		registry = NewRegistry()
	}
	interval := params.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Service{
		logg:     params.Logger,
		registry: registry,
		lock:     params.Lock,
		state:    params.State,
		metrics:  params.Metrics,
		interval: interval,
		now:      time.Now,
	}, nil
}

// Run starts the scheduling loop until the context is canceled.
func (s *Service) Run(ctx context.Context) error {
	if err := s.runCycle(ctx); err != nil {
		s.logg.Error(ctx, "scheduled run failed", err)
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "cron service context canceled")
			return ctx.Err()
		case <-ticker.C:
			if err := s.runCycle(ctx); err != nil {
				s.logg.Error(ctx, "scheduled run failed", err)
			}
		}
	}
}

func (s *Service) runCycle(ctx context.Context) error {
	locked, err := s.lock.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("lock acquire: %w", err)
	}
	if !locked {
		s.logg.Info(ctx, "another scheduler instance is leading; skipping this cycle")
		return nil
	}
	defer func() {
		if relErr := s.lock.Release(context.WithoutCancel(ctx)); relErr != nil {
			s.logg.Error(ctx, "failed to release leader lock", relErr)
		}
	}()

	for _, entry := range s.registry.Entries() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		due, err := s.due(ctx, entry)
		if err != nil {
			s.logg.Error(s.logg.WithField(ctx, "entry", entry.Job.Name()), "read schedule state", err)
			continue
		}
		if due {
			s.runEntry(ctx, entry)
		}
	}
	return nil
}

func (s *Service) due(ctx context.Context, entry Entry) (bool, error) {
	raw, err := s.state.Get(ctx, s.state.ScheduleKey(entry.Job.Name()))
	if redis.IsNil(err) {
		return true, nil
	}
	if err != nil {
		return false, err
	}
	last, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return true, nil
	}
	return !s.now().Before(last.Add(entry.Every)), nil
}

func (s *Service) runEntry(ctx context.Context, entry Entry) {
	name := entry.Job.Name()
	jobCtx := s.logg.WithFields(ctx, map[string]any{"entry": name, "event": "cron.entry"})
	started := s.now()
	err := entry.Job.Run(jobCtx)
	duration := s.now().Sub(started)
	s.metrics.ObserveDuration(name, duration)
	jobCtx = s.logg.WithField(jobCtx, "duration_ms", duration.Milliseconds())
	if err != nil {
		s.logg.Error(jobCtx, "entry failed", err)
		s.metrics.IncFailure(name)
		return
	}
	s.metrics.IncSuccess(name)
	if err := s.state.Set(ctx, s.state.ScheduleKey(name), started.UTC().Format(time.RFC3339Nano), 2*entry.Every); err != nil {
		s.logg.Error(jobCtx, "write schedule state", err)
	}
	s.logg.Info(jobCtx, "entry completed")
}
