package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazz-dev/sitewatch/internal/probe"
)

// Prober runs one probe cycle.
type Prober interface {
	Probe(ctx context.Context) probe.Outcome
}

// Recorder receives every outcome. history.Store implements it.
type Recorder interface {
	Append(o probe.Outcome)
}

// Sink persists outcomes outside the process. A failing sink fails the
// iteration.
type Sink interface {
	InsertOutcome(ctx context.Context, o probe.Outcome) error
}

// Scheduler probes the target once at start and then on every interval
// boundary, from a single goroutine.
type Scheduler struct {
	prober     Prober
	store      Recorder
	sinks      []Sink
	interval   time.Duration
	retryDelay time.Duration
	clock      Clock
	logger     *slog.Logger
	wg         sync.WaitGroup
}

// New creates a new Scheduler. Pass nil logger to use the default logger.
func New(prober Prober, store Recorder, interval, retryDelay time.Duration, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		prober:     prober,
		store:      store,
		interval:   interval,
		retryDelay: retryDelay,
		clock:      realClock{},
		logger:     logger,
	}
}

// SetClock replaces the wall clock. Call before Start.
func (s *Scheduler) SetClock(c Clock) {
	s.clock = c
}

// AddSink registers a persistence sink. Call before Start.
func (s *Scheduler) AddSink(sink Sink) {
	s.sinks = append(s.sinks, sink)
}

// Start runs the loop in a goroutine. It is non-blocking.
func (s *Scheduler) Start(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.Run(ctx)
	}()
}

// Wait blocks until the loop started by Start has exited.
func (s *Scheduler) Wait() {
	s.wg.Wait()
}

// Run blocks until ctx is cancelled. Cancellation interrupts the sleep
// between ticks immediately; a probe in flight finishes first.
func (s *Scheduler) Run(ctx context.Context) {
	for {
		wait := s.tick(ctx)
		if ctx.Err() != nil {
			return
		}
		s.logger.Debug("next check scheduled", "in", wait)
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(wait):
		}
	}
}

// tick runs one iteration and returns how long to sleep afterwards.
func (s *Scheduler) tick(ctx context.Context) time.Duration {
	if err := s.runOnce(ctx); err != nil {
		s.logger.Error("error in monitoring loop", "error", err, "retry_in", s.retryDelay)
		s.appendDegraded(probe.Down(s.clock.Now(), probe.KindUnexpected, probe.MonitoringPrefix+err.Error()))
		return s.retryDelay
	}
	now := s.clock.Now()
	return NextBoundary(now, s.interval).Sub(now)
}

// appendDegraded records a failed iteration. A panic from the store or its
// hooks is logged and dropped so the loop keeps running.
func (s *Scheduler) appendDegraded(o probe.Outcome) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("recording degraded outcome", "error", fmt.Sprintf("panic: %v", r))
		}
	}()
	s.store.Append(o)
}

func (s *Scheduler) runOnce(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	out := s.prober.Probe(ctx)

	s.logger.Info("check result",
		"status", out.Status(),
		"status_code", out.StatusCode,
		"response_time", out.Latency,
		"profile", out.Profile,
		"error", out.Error,
	)

	// Sinks outlive shutdown so the last outcome still lands.
	writeCtx := context.WithoutCancel(ctx)
	for _, sink := range s.sinks {
		if err := sink.InsertOutcome(writeCtx, out); err != nil {
			return fmt.Errorf("recording outcome: %w", err)
		}
	}

	s.store.Append(out)
	return nil
}
