package services

import (
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
)

// ExpiryScheduler runs fn once after d unless the returned cancel is called first.
type ExpiryScheduler interface {
	After(d time.Duration, fn func()) (cancel func(), err error)
}

// CronScheduler is the process-wide gocron scheduler.
type CronScheduler struct {
	sched gocron.Scheduler
	log   zerolog.Logger
}

func NewCronScheduler(logger zerolog.Logger) (*CronScheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, eris.Wrap(err, "failed to create scheduler")
	}
	sched.Start()
	return &CronScheduler{sched: sched, log: logger.With().Str("component", "scheduler").Logger()}, nil
}

// After schedules a one-time job.
func (c *CronScheduler) After(d time.Duration, fn func()) (func(), error) {
	job, err := c.sched.NewJob(
		gocron.OneTimeJob(gocron.OneTimeJobStartDateTime(time.Now().Add(d))),
		gocron.NewTask(fn),
	)
	if err != nil {
		return nil, eris.Wrap(err, "failed to schedule one-time job")
	}
	id := job.ID()
	return func() {
		// a job that already ran is gone; that is fine
		_ = c.sched.RemoveJob(id)
	}, nil
}

// Every runs fn on a fixed interval until shutdown.
func (c *CronScheduler) Every(d time.Duration, name string, fn func()) error {
	_, err := c.sched.NewJob(
		gocron.DurationJob(d),
		gocron.NewTask(fn),
		gocron.WithName(name),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	return eris.Wrapf(err, "failed to schedule %s", name)
}

func (c *CronScheduler) Shutdown() error {
	return eris.Wrap(c.sched.Shutdown(), "scheduler shutdown")
}
