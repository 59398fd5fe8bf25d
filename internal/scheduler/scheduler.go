package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

var (
	ErrEmptyJobName = errors.New("job name is required")
	ErrBadInterval  = errors.New("interval must be positive")
)

// Service wraps a gocron scheduler for app-wide background jobs. It is
// constructed by the composition root and passed explicitly to whatever
// registers jobs.
type Service struct {
	scheduler gocron.Scheduler
	stopOnce  sync.Once
	stopErr   error
}

func New() (*Service, error) {
	sched, err := gocron.NewScheduler(
		gocron.WithGlobalJobOptions(
			gocron.WithEventListeners(
				gocron.AfterJobRunsWithPanic(func(jobID uuid.UUID, jobName string, recoverData any) {
					log.Error().
						Str("job_id", jobID.String()).
						Str("job_name", jobName).
						Interface("panic", recoverData).
						Msg("Scheduler job panicked")
				}),
			),
		),
	)
	if err != nil {
		return nil, err
	}
	return &Service{scheduler: sched}, nil
}

// AddIntervalJob registers a fixed-interval job.
func (s *Service) AddIntervalJob(name string, interval time.Duration, task func()) (gocron.Job, error) {
	if name == "" {
		return nil, ErrEmptyJobName
	}
	if interval <= 0 {
		return nil, ErrBadInterval
	}

	job, err := s.scheduler.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(task),
		gocron.WithName(name),
	)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("job_name", name).
		Dur("interval", interval).
		Msg("Scheduled job registered")
	return job, nil
}

// Start begins running scheduled jobs.
func (s *Service) Start() {
	s.scheduler.Start()
}

// Stop shuts the scheduler down, waiting for running jobs to finish.
func (s *Service) Stop() error {
	s.stopOnce.Do(func() {
		s.stopErr = s.scheduler.Shutdown()
		if s.stopErr == nil {
			log.Info().Msg("Scheduler stopped")
		}
	})
	return s.stopErr
}

// Sweeper is the slice of the reservation engine the sweep job needs.
type Sweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// RegisterExpirySweep schedules the expired-hold sweep. Only meaningful
// under the eager expiry policy; under the lazy policy the engine's sweep
// is a no-op and the job should not be registered at all.
func RegisterExpirySweep(s *Service, engine Sweeper, interval time.Duration) error {
	_, err := s.AddIntervalJob("expired-hold-sweep", interval, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if _, err := engine.SweepExpired(ctx); err != nil {
			log.Error().Err(err).Msg("Expired hold sweep failed")
		}
	})
	return err
}
