package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/angelmondragon/digital-fulfillment/pkg/config"
	"github.com/angelmondragon/digital-fulfillment/pkg/logger"
)

// Schedule holds the event loop pacing.
type Schedule struct {
	BatchSize     int
	IdleInterval  time.Duration
	BatchInterval time.Duration
	ErrorBackoff  time.Duration
}

func DefaultSchedule() Schedule {
	return Schedule{
		BatchSize:     10,
		IdleInterval:  5 * time.Second,
		BatchInterval: 2 * time.Second,
		ErrorBackoff:  10 * time.Second,
	}
}

// ScheduleFromConfig overlays configured values on the defaults.
func ScheduleFromConfig(cfg config.WorkerConfig) Schedule {
	s := DefaultSchedule()
	if cfg.BatchSize > 0 {
		s.BatchSize = cfg.BatchSize
	}
	if cfg.IdleInterval > 0 {
		s.IdleInterval = cfg.IdleInterval
	}
	if cfg.BatchInterval > 0 {
		s.BatchInterval = cfg.BatchInterval
	}
	if cfg.ErrorBackoff > 0 {
		s.ErrorBackoff = cfg.ErrorBackoff
	}
	return s
}

// nextDelay picks the pause before the next poll.
func (s Schedule) nextDelay(processed int, err error) time.Duration {
	switch {
	case err != nil:
		return s.ErrorBackoff
	case processed == 0:
		return s.IdleInterval
	default:
		return s.BatchInterval
	}
}

type batchProcessor interface {
	ProcessBatch(ctx context.Context) (int, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type ServiceParams struct {
	Processor batchProcessor
	DB        pinger
	Schedule  Schedule
	Logger    *logger.Logger
}

// Service is the long-running fulfillment loop.
type Service struct {
	processor batchProcessor
	db        pinger
	schedule  Schedule
	logg      *logger.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Processor == nil {
		return nil, errors.New("batch processor is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	schedule := params.Schedule
	if schedule == (Schedule{}) {
		schedule = DefaultSchedule()
	}
	return &Service{
		processor: params.Processor,
		db:        params.DB,
		schedule:  schedule,
		logg:      params.Logger,
		sleep:     sleepContext,
	}, nil
}

// Run polls until ctx is canceled. Only a failed startup ping or cancellation
// ends the loop.
func (s *Service) Run(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		s.logg.Error(ctx, "database ping failed", err)
		return fmt.Errorf("database ping failed: %w", err)
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"batch_size":     s.schedule.BatchSize,
		"idle_interval":  s.schedule.IdleInterval.String(),
		"batch_interval": s.schedule.BatchInterval.String(),
	}), "fulfillment worker started")

	for {
		processed, err := s.processor.ProcessBatch(ctx)
		if err != nil {
			s.logg.Error(ctx, "fulfillment batch failed", err)
		}
		if err := s.sleep(ctx, s.schedule.nextDelay(processed, err)); err != nil {
			s.logg.Info(ctx, "fulfillment worker stopping")
			return err
		}
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
