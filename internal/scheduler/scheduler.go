// Package scheduler runs a job once a day at a fixed wall-clock time.
package scheduler

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Cypherspark/sms-survey/internal/logging"
)

var ErrAlreadyStarted = errors.New("scheduler already started")

type Job func(ctx context.Context) error

type Options struct {
	Hour, Minute int
	Location     *time.Location
	// A failed run is retried up to MaxAttempts times with exponential
	// backoff between RetryMin and RetryMax.
	MaxAttempts int
	RetryMin    time.Duration
	RetryMax    time.Duration
}

type Scheduler struct {
	job Job
	opt Options

	now   func() time.Time
	after func(time.Duration) <-chan time.Time

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(job Job, opt Options) *Scheduler {
	if opt.Location == nil {
		opt.Location = time.UTC
	}
	if opt.MaxAttempts <= 0 {
		opt.MaxAttempts = 3
	}
	if opt.RetryMin <= 0 {
		opt.RetryMin = 30 * time.Second
	}
	if opt.RetryMax < opt.RetryMin {
		opt.RetryMax = 10 * time.Minute
	}
	return &Scheduler{job: job, opt: opt, now: time.Now, after: time.After}
}

// NextRun returns the first hour:minute in loc strictly after now.
func NextRun(now time.Time, hour, minute int, loc *time.Location) time.Time {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, minute, 0, 0, loc)
	}
	return next
}

// Start launches the loop. It runs until ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
	return nil
}

// Stop cancels the loop and waits for an in-flight run to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		next := NextRun(s.now(), s.opt.Hour, s.opt.Minute, s.opt.Location)
		logging.WithField("next_run", next.Format(time.RFC3339)).Info("scheduler: waiting")
		select {
		case <-ctx.Done():
			return
		case <-s.after(next.Sub(s.now())):
		}
		s.runWithRetry(ctx)
	}
}

func (s *Scheduler) runWithRetry(ctx context.Context) {
	backoff := s.opt.RetryMin
	for attempt := 1; ; attempt++ {
		err := s.job(ctx)
		if err == nil {
			return
		}
		log := logging.WithError(err).WithFields(logrus.Fields{"attempt": attempt, "max_attempts": s.opt.MaxAttempts})
		if attempt >= s.opt.MaxAttempts || ctx.Err() != nil {
			log.Error("scheduler: run failed, giving up until next slot")
			return
		}
		sleep := jitter(backoff, 0.20)
		log.WithField("retry_in", sleep.String()).Warn("scheduler: run failed")
		select {
		case <-ctx.Done():
			return
		case <-s.after(sleep):
		}
		backoff = min(s.opt.RetryMax, time.Duration(float64(backoff)*1.6))
	}
}

func jitter(d time.Duration, frac float64) time.Duration {
	if frac <= 0 {
		return d
	}
	delta := int64(float64(d) * frac)
	if delta <= 0 {
		return d
	}
	// random in [-delta, +delta]
	n := rand.Int64N(2*delta+1) - delta
	return d + time.Duration(n)
}
