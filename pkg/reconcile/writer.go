// Package reconcile applies a fetched record set to the store as upserts
// keyed by the upstream identifier.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Sternrassler/coin-sync/pkg/market"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for reconciliation.
var (
	reconcileRecordsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconcile_records_total",
		Help: "Total records reconciled by result (created, updated, failed)",
	}, []string{"result"})

	reconcileBatchesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "reconcile_batches_total",
		Help: "Total reconciliation batches by outcome (complete, aborted)",
	}, []string{"outcome"})

	reconcileDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "reconcile_duration_seconds",
		Help:    "Duration of reconciliation batches in seconds",
		Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
	})
)

// ErrAborted is returned when a batch stops before every record was applied.
var ErrAborted = errors.New("reconciliation aborted")

// Mode selects how per-record failures are handled.
type Mode string

const (
	// ModeIsolated records failures in the report and continues.
	ModeIsolated Mode = "isolated"

	// ModeStrict stops at the first failure.
	ModeStrict Mode = "strict"
)

// AssetUpserter is the part of store.Store the writer needs.
type AssetUpserter interface {
	UpsertAsset(ctx context.Context, asset *market.Asset) (created bool, err error)
}

// Failure is one record that could not be applied.
type Failure struct {
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

// Report summarizes one batch.
type Report struct {
	Total    int           `json:"total"`
	Created  int           `json:"created"`
	Updated  int           `json:"updated"`
	Failed   []Failure     `json:"failed,omitempty"`
	Aborted  bool          `json:"aborted"`
	Duration time.Duration `json:"duration"`
}

// Applied is the number of records written.
func (r *Report) Applied() int {
	return r.Created + r.Updated
}

// Writer reconciles record batches into the store.
type Writer struct {
	store  AssetUpserter
	mode   Mode
	now    func() time.Time
	logger zerolog.Logger
}

// NewWriter creates a writer. An unknown mode falls back to ModeIsolated.
func NewWriter(store AssetUpserter, mode Mode) *Writer {
	if mode != ModeStrict {
		mode = ModeIsolated
	}
	return &Writer{
		store:  store,
		mode:   mode,
		now:    time.Now,
		logger: log.With().Str("component", "reconcile").Str("mode", string(mode)).Logger(),
	}
}

// Mode returns the failure handling mode.
func (w *Writer) Mode() Mode {
	return w.mode
}

// Reconcile upserts every record in order. Assets missing from records are
// left untouched. In strict mode the first failure stops the batch and the
// returned error wraps ErrAborted; cancellation does the same in both modes.
// The report is always returned.
func (w *Writer) Reconcile(ctx context.Context, records []market.Record) (*Report, error) {
	start := time.Now()
	report := &Report{Total: len(records)}
	syncedAt := w.now()

	finish := func(err error) (*Report, error) {
		report.Duration = time.Since(start)
		reconcileDuration.Observe(report.Duration.Seconds())
		outcome := "complete"
		if report.Aborted {
			outcome = "aborted"
		}
		reconcileBatchesTotal.WithLabelValues(outcome).Inc()

		event := w.logger.Info()
		if report.Aborted || len(report.Failed) > 0 {
			event = w.logger.Warn()
		}
		event.
			Int("records", report.Total).
			Int("created", report.Created).
			Int("updated", report.Updated).
			Int("failed", len(report.Failed)).
			Bool("aborted", report.Aborted).
			Dur("duration", report.Duration).
			Msg("Reconciliation complete")

		return report, err
	}

	for i, record := range records {
		if err := ctx.Err(); err != nil {
			report.Aborted = true
			return finish(fmt.Errorf("%w after %d of %d records: %v", ErrAborted, i, len(records), err))
		}

		created, err := w.apply(ctx, record, syncedAt)
		if err != nil {
			reconcileRecordsTotal.WithLabelValues("failed").Inc()
			report.Failed = append(report.Failed, Failure{ID: record.ID, Reason: err.Error()})

			w.logger.Error().
				Err(err).
				Str("asset_id", record.ID).
				Int("index", i).
				Msg("Failed to reconcile asset")

			if w.mode == ModeStrict {
				report.Aborted = true
				return finish(fmt.Errorf("%w at asset %q: %w", ErrAborted, record.ID, err))
			}
			continue
		}

		if created {
			report.Created++
			reconcileRecordsTotal.WithLabelValues("created").Inc()
		} else {
			report.Updated++
			reconcileRecordsTotal.WithLabelValues("updated").Inc()
		}
	}

	return finish(nil)
}

func (w *Writer) apply(ctx context.Context, record market.Record, syncedAt time.Time) (bool, error) {
	if strings.TrimSpace(record.ID) == "" {
		return false, errors.New("record has no identifier")
	}
	return w.store.UpsertAsset(ctx, market.AssetFromRecord(record, syncedAt))
}
