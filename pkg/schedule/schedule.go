package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"pi-capture/pkg/utils"
)

// MinInterval leaves room for warm-up, settle and bracketing between shots.
const MinInterval = 30 * time.Second

// Job is a periodic capture.
type Job struct {
	Profile string `json:"profile"`
	// Interval is in seconds.
	Interval int `json:"interval" binding:"required"`
}

func (j Job) Period() time.Duration {
	return time.Duration(j.Interval) * time.Second
}

// CaptureFunc takes one image for job.
type CaptureFunc func(ctx context.Context, job Job) error

type Scheduler struct {
	t       *time.Ticker
	capture CaptureFunc
	job     *Job
	lock    sync.Mutex
	logger  *zap.SugaredLogger

	minInterval time.Duration
}

// New starts the scheduler loop; it runs until ctx is done. No job is
// active until Begin.
func New(ctx context.Context, capture CaptureFunc) *Scheduler {
	t := time.NewTicker(time.Second)
	t.Stop()

	s := &Scheduler{
		t:           t,
		capture:     capture,
		logger:      utils.GetLogger(),
		minInterval: MinInterval,
	}
	s.startDeal(ctx)

	return s
}

// Begin replaces the active job.
func (s *Scheduler) Begin(job Job) error {
	if job.Period() < s.minInterval {
		return fmt.Errorf("interval %s less than %s", job.Period(), s.minInterval)
	}
	s.lock.Lock()
	s.job = &job
	s.lock.Unlock()
	s.t.Reset(job.Period())
	s.logger.Infof("scheduler: %s capture every %s", job.Profile, job.Period())

	return nil
}

// Stop reports false when no job was active.
func (s *Scheduler) Stop() bool {
	s.t.Stop()
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.job == nil {
		return false
	}
	s.job = nil
	s.logger.Info("scheduler: stopped")

	return true
}

func (s *Scheduler) Job() *Job {
	s.lock.Lock()
	defer s.lock.Unlock()
	if s.job == nil {
		return nil
	}
	j := *s.job
	return &j
}

func (s *Scheduler) startDeal(ctx context.Context) {
	go func(s *Scheduler) {
		for {
			select {
			case start := <-s.t.C:
				job := s.Job()
				if job == nil {
					s.logger.Warn("scheduler: tick without a job")
					continue
				}
				s.logger.Debugf("scheduler: starting capture: %v", start)
				if err := s.capture(ctx, *job); err != nil {
					s.logger.Errorf("scheduler: capture: %s", err)
					continue
				}
				s.logger.Infof("scheduler: took %s to get the image", time.Since(start))
			case <-ctx.Done():
				s.t.Stop()
				s.logger.Info("scheduler: stopped!")
				return
			}
		}
	}(s)
}
