// Package scheduler triggers sync cycles at startup and on a fixed interval,
// guaranteeing that at most one cycle runs at a time.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for the scheduler.
var (
	schedulerTriggersTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_triggers_total",
		Help: "Total cycle triggers by source (timer, manual) and outcome (started, dropped)",
	}, []string{"source", "outcome"})

	schedulerRunning = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "scheduler_cycle_running",
		Help: "1 while a sync cycle is running",
	})

	schedulerJobErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "scheduler_job_errors_total",
		Help: "Total failed cycles by kind (error, panic)",
	}, []string{"kind"})
)

// DefaultInterval between scheduled cycles.
const DefaultInterval = 30 * time.Minute

// ErrStopped is returned by Start after Stop.
var ErrStopped = errors.New("scheduler stopped")

// Job is one sync cycle. It must honor ctx cancellation.
type Job func(ctx context.Context) error

// State of the scheduler's single worker.
type State int32

const (
	StateIdle State = iota
	StateRunning
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	default:
		return "unknown"
	}
}

// Trigger sources.
const (
	SourceTimer  = "timer"
	SourceManual = "manual"
)

// Scheduler runs Job once at Start and then every interval. A trigger that
// arrives while a cycle is running is dropped, not queued.
type Scheduler struct {
	job      Job
	interval time.Duration
	cron     *gocron.Scheduler
	cronJob  *gocron.Job
	logger   zerolog.Logger

	state   atomic.Int32
	stopped atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc

	// wg tracks the in-flight cycle.
	wg sync.WaitGroup
	mu sync.Mutex
}

// New creates a scheduler. A non-positive interval uses DefaultInterval.
func New(job Job, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		job:      job,
		interval: interval,
		cron:     gocron.NewScheduler(time.UTC),
		logger:   log.With().Str("component", "scheduler").Logger(),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start registers the recurring job and starts the timer. The first cycle
// begins immediately.
func (s *Scheduler) Start() error {
	if s.stopped.Load() {
		return ErrStopped
	}

	job, err := s.cron.Every(s.interval).StartImmediately().Do(func() {
		s.TryRunFrom(SourceTimer)
	})
	if err != nil {
		return fmt.Errorf("schedule sync job: %w", err)
	}
	s.cronJob = job

	s.cron.StartAsync()

	s.logger.Info().Dur("interval", s.interval).Msg("Scheduler started")
	return nil
}

// TryRun runs one cycle synchronously unless one is already running.
// It reports whether the cycle ran.
func (s *Scheduler) TryRun() bool {
	return s.TryRunFrom(SourceManual)
}

// TryRunFrom is TryRun with an explicit trigger source for metrics.
func (s *Scheduler) TryRunFrom(source string) bool {
	if !s.acquire(source) {
		return false
	}
	s.run(source)
	return true
}

// Trigger starts a cycle in the background unless one is already running.
// It reports whether a cycle was started.
func (s *Scheduler) Trigger() bool {
	if !s.acquire(SourceManual) {
		return false
	}
	go s.run(SourceManual)
	return true
}

// State returns the current worker state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Running reports whether a cycle is in progress.
func (s *Scheduler) Running() bool {
	return s.State() == StateRunning
}

// Interval returns the configured interval.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// NextRun returns when the timer fires next, or zero before Start.
func (s *Scheduler) NextRun() time.Time {
	if s.cronJob == nil {
		return time.Time{}
	}
	return s.cronJob.NextRun()
}

// Stop stops the timer, cancels the in-flight cycle and waits for it to
// return or for ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.stopped.Swap(true) {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	// gocron waits for running job goroutines, so the cycle context must be
	// cancelled first and the wait must stay under ctx.
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.cron.Stop()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("Scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn().Msg("Scheduler stop timed out waiting for running cycle")
		return fmt.Errorf("wait for running cycle: %w", ctx.Err())
	}
}

// acquire moves Idle to Running. The wait group is registered under mu so
// Stop never races a cycle that is just starting.
func (s *Scheduler) acquire(source string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped.Load() {
		schedulerTriggersTotal.WithLabelValues(source, "dropped").Inc()
		return false
	}

	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		schedulerTriggersTotal.WithLabelValues(source, "dropped").Inc()
		s.logger.Warn().Str("source", source).Msg("Sync cycle already running - trigger dropped")
		return false
	}

	s.wg.Add(1)
	schedulerTriggersTotal.WithLabelValues(source, "started").Inc()
	return true
}

func (s *Scheduler) run(source string) {
	defer s.wg.Done()
	defer s.state.Store(int32(StateIdle))
	defer schedulerRunning.Set(0)
	defer func() {
		if r := recover(); r != nil {
			schedulerJobErrorsTotal.WithLabelValues("panic").Inc()
			s.logger.Error().Interface("panic", r).Str("source", source).Msg("Sync cycle panicked")
		}
	}()

	schedulerRunning.Set(1)
	start := time.Now()

	if err := s.job(s.ctx); err != nil {
		schedulerJobErrorsTotal.WithLabelValues("error").Inc()
		s.logger.Error().Err(err).Str("source", source).Dur("duration", time.Since(start)).Msg("Sync cycle failed")
		return
	}

	s.logger.Debug().Str("source", source).Dur("duration", time.Since(start)).Msg("Sync cycle returned")
}
