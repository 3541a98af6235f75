// Package sweeper force-submits attempts whose deadline has passed but which are
// still in progress, e.g. after a restart lost their countdown timers or a
// timed submission failed to persist.
package sweeper

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"github.com/robfig/cron/v3"

	"github.com/mind-engage/mindengage-school/internal/logger"
	"github.com/mind-engage/mindengage-school/internal/quiz"
)

type OverdueLister interface {
	ListOverdueAttempts(ctx context.Context, now time.Time) ([]quiz.Attempt, error)
}

type Submitter interface {
	ForceSubmit(ctx context.Context, attemptID string) (quiz.Result, error)
}

type Sweeper struct {
	store   OverdueLister
	ctrl    Submitter
	log     logger.Logger
	now     func() time.Time
	timeout time.Duration
	cron    *cron.Cron
}

func New(store OverdueLister, ctrl Submitter, log logger.Logger) *Sweeper {
	if log == nil {
		log = logger.Nop{}
	}
	return &Sweeper{
		store:   store,
		ctrl:    ctrl,
		log:     log,
		now:     time.Now,
		timeout: time.Minute,
	}
}

// Sweep submits every overdue attempt once and returns how many it submitted.
// A failure on one attempt is logged and does not stop the others.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	overdue, err := s.store.ListOverdueAttempts(ctx, s.now().UTC())
	if err != nil {
		return 0, errors.Wrap(err, "sweeper: list overdue attempts")
	}
	n := 0
	for _, a := range overdue {
		if _, err := s.ctrl.ForceSubmit(ctx, a.ID); err != nil {
			s.log.Error("sweeper: force submit failed", err, map[string]interface{}{"attempt_id": a.ID})
			continue
		}
		n++
	}
	return n, nil
}

// Start schedules Sweep with a standard cron spec or a descriptor such as
// "@every 1m".
func (s *Sweeper) Start(spec string) error {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		n, err := s.Sweep(ctx)
		if err != nil {
			s.log.Error("sweeper: run failed", err)
			return
		}
		if n > 0 {
			s.log.Info("sweeper: submitted overdue attempts", map[string]interface{}{"count": n})
		}
	})
	if err != nil {
		return errors.Wrapf(err, "sweeper: bad schedule %q", spec)
	}
	s.cron = c
	c.Start()
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}
