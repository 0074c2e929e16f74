// Package syncer runs one complete sync cycle: fetch every page, reconcile
// the records into the store and invalidate cached API responses.
package syncer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/Sternrassler/coin-sync/pkg/market"
	"github.com/Sternrassler/coin-sync/pkg/pagination"
	"github.com/Sternrassler/coin-sync/pkg/reconcile"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for sync cycles.
var (
	syncCyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "sync_cycles_total",
		Help: "Total sync cycles by result (success, partial, failed)",
	}, []string{"result"})

	syncLastSuccessTimestamp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "sync_last_success_timestamp_seconds",
		Help: "Unix time of the last cycle that finished without error",
	})

	syncCycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "sync_cycle_duration_seconds",
		Help:    "Duration of full sync cycles in seconds",
		Buckets: []float64{1, 10, 30, 60, 120, 300, 600, 1200},
	})
)

// Fetcher gathers the records of one cycle. pagination.Driver implements it.
type Fetcher interface {
	FetchAll(ctx context.Context) ([]market.Record, *pagination.CycleState)
}

// Reconciler persists the records. reconcile.Writer implements it.
type Reconciler interface {
	Reconcile(ctx context.Context, records []market.Record) (*reconcile.Report, error)
}

// CacheInvalidator drops cached API responses. cache.Manager implements it.
type CacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// Summary describes a finished cycle.
type Summary struct {
	Started        time.Time              `json:"started"`
	Finished       time.Time              `json:"finished"`
	Duration       time.Duration          `json:"duration"`
	Fetch          *pagination.CycleState `json:"fetch"`
	RecordsFetched int                    `json:"records_fetched"`
	Report         *reconcile.Report      `json:"report"`
	Error          string                 `json:"error,omitempty"`
}

// Result classifies the cycle for metrics and the status endpoint.
func (s Summary) Result() string {
	switch {
	case s.Error != "":
		return "failed"
	case s.Fetch != nil && !s.Fetch.Complete():
		return "partial"
	case s.Report != nil && len(s.Report.Failed) > 0:
		return "partial"
	default:
		return "success"
	}
}

// Syncer wires fetcher, reconciler and cache together.
type Syncer struct {
	fetcher    Fetcher
	reconciler Reconciler
	cache      CacheInvalidator
	logger     zerolog.Logger

	mu     sync.RWMutex
	last   *Summary
	cycles int64
}

// New creates a syncer. cache may be nil.
func New(fetcher Fetcher, reconciler Reconciler, cache CacheInvalidator) *Syncer {
	return &Syncer{
		fetcher:    fetcher,
		reconciler: reconciler,
		cache:      cache,
		logger:     log.With().Str("component", "syncer").Logger(),
	}
}

// RunCycle fetches, reconciles and invalidates the response cache. Fetch
// problems end in partial data, never an error; the returned error comes
// from an aborted reconciliation.
func (s *Syncer) RunCycle(ctx context.Context) error {
	summary := Summary{Started: time.Now()}

	s.logger.Info().Msg("Sync cycle started")

	records, state := s.fetcher.FetchAll(ctx)
	summary.Fetch = state
	summary.RecordsFetched = len(records)

	report, err := s.reconciler.Reconcile(ctx, records)
	summary.Report = report
	if err != nil {
		summary.Error = err.Error()
	}

	if report != nil && report.Applied() > 0 && s.cache != nil {
		if cacheErr := s.cache.Invalidate(ctx); cacheErr != nil {
			s.logger.Warn().Err(cacheErr).Msg("Failed to invalidate response cache")
		}
	}

	summary.Finished = time.Now()
	summary.Duration = summary.Finished.Sub(summary.Started)
	s.store(summary)

	result := summary.Result()
	syncCyclesTotal.WithLabelValues(result).Inc()
	syncCycleDuration.Observe(summary.Duration.Seconds())
	if err == nil {
		syncLastSuccessTimestamp.Set(float64(summary.Finished.Unix()))
	}

	event := s.logger.Info()
	if result != "success" {
		event = s.logger.Warn()
	}
	if state != nil {
		event = event.
			Int("pages_fetched", state.PagesFetched).
			Int("pages_skipped", state.PagesSkipped).
			Str("termination", string(state.Termination))
	}
	if report != nil {
		event = event.
			Int("created", report.Created).
			Int("updated", report.Updated).
			Int("failed", len(report.Failed))
	}
	event.
		Int("records", summary.RecordsFetched).
		Str("result", result).
		Dur("duration", summary.Duration).
		Msg("Sync cycle finished")

	if err != nil {
		return fmt.Errorf("sync cycle: %w", err)
	}
	return nil
}

// LastSummary returns the most recent cycle summary, if any cycle ran.
func (s *Syncer) LastSummary() (Summary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.last == nil {
		return Summary{}, false
	}
	return *s.last, true
}

// Cycles returns how many cycles have finished.
func (s *Syncer) Cycles() int64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cycles
}

func (s *Syncer) store(summary Summary) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.last = &summary
	s.cycles++
}
