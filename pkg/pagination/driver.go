package pagination

import (
	"context"
	"errors"
	"time"

	"github.com/Sternrassler/coin-sync/internal/clock"
	"github.com/Sternrassler/coin-sync/pkg/gecko"
	"github.com/Sternrassler/coin-sync/pkg/market"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Prometheus metrics for pagination cycles.
var (
	paginationPagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagination_pages_total",
		Help: "Total pages processed by outcome",
	}, []string{"outcome"})

	paginationCyclesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagination_cycles_total",
		Help: "Total fetch cycles by termination reason",
	}, []string{"termination"})

	paginationRecordsFetched = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pagination_records_fetched",
		Help: "Records accumulated by the most recent fetch cycle",
	})

	paginationCycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pagination_cycle_duration_seconds",
		Help:    "Duration of complete fetch cycles in seconds",
		Buckets: []float64{1, 10, 30, 60, 120, 300, 600},
	})
)

// Config holds driver configuration.
type Config struct {
	// PerPage is the page size requested from the fetcher (upstream max 250).
	PerPage int

	// MaxPages caps the pages requested in one cycle. 0 means unlimited.
	MaxPages int

	// PageDelay is waited between consecutive pages.
	PageDelay time.Duration
}

// DefaultConfig returns the default configuration: 250 records per page,
// 10 pages, and a pause equal to the fetcher's base backoff.
func DefaultConfig() Config {
	return Config{
		PerPage:   250,
		MaxPages:  10,
		PageDelay: gecko.DefaultRetryConfig().BaseDelay,
	}
}

// PageFetcher fetches a single page of the listing. gecko.Client implements it.
type PageFetcher interface {
	FetchPage(ctx context.Context, page, perPage int) ([]market.Record, error)
}

// Driver walks the listing page by page.
type Driver struct {
	fetcher PageFetcher
	config  Config
	logger  zerolog.Logger
}

// NewDriver creates a new driver.
func NewDriver(fetcher PageFetcher, config Config) *Driver {
	if config.PerPage <= 0 {
		config.PerPage = 250
	}
	if config.MaxPages < 0 {
		config.MaxPages = 0
	}
	if config.PageDelay < 0 {
		config.PageDelay = 0
	}

	return &Driver{
		fetcher: fetcher,
		config:  config,
		logger:  log.With().Str("component", "pagination").Logger(),
	}
}

// FetchAll requests pages starting at 1 until a terminal condition and
// returns every record gathered, plus the cycle state explaining the stop.
// Records from pages fetched before a failure are kept.
func (d *Driver) FetchAll(ctx context.Context) ([]market.Record, *CycleState) {
	state := newCycleState()
	var records []market.Record

	d.logger.Info().
		Int("per_page", d.config.PerPage).
		Int("max_pages", d.config.MaxPages).
		Dur("page_delay", d.config.PageDelay).
		Msg("Starting fetch cycle")

	for page := 1; ; page++ {
		if d.config.MaxPages > 0 && page > d.config.MaxPages {
			state.terminate(TerminationMaxPages, nil)
			break
		}

		if page > 1 {
			if err := clock.Sleep(ctx, d.config.PageDelay); err != nil {
				state.terminate(TerminationCancelled, err)
				break
			}
		} else if err := ctx.Err(); err != nil {
			state.terminate(TerminationCancelled, err)
			break
		}

		state.CurrentPage = page
		batch, err := d.fetcher.FetchPage(ctx, page, d.config.PerPage)
		state.recordAttempts(err)

		if err != nil {
			if errors.Is(err, gecko.ErrPageSkipped) {
				state.PagesSkipped++
				state.LastError = err.Error()
				paginationPagesTotal.WithLabelValues("skipped").Inc()
				d.logger.Warn().Err(err).Int("page", page).Msg("Page skipped - continuing with next page")
				continue
			}

			reason := terminationFor(err)
			state.terminate(reason, err)
			paginationPagesTotal.WithLabelValues("failed").Inc()
			d.logger.Error().
				Err(err).
				Int("page", page).
				Int("records", len(records)).
				Str("termination", string(reason)).
				Msg("Page fetch failed - stopping with partial results")
			break
		}

		if len(batch) == 0 {
			paginationPagesTotal.WithLabelValues("empty").Inc()
			state.terminate(TerminationEmptyPage, nil)
			break
		}

		records = append(records, batch...)
		state.PagesFetched++
		state.RecordsFetched = len(records)
		paginationPagesTotal.WithLabelValues("fetched").Inc()

		d.logger.Info().
			Int("page", page).
			Int("page_records", len(batch)).
			Int("records", len(records)).
			Msg("Page fetched")
	}

	state.Finished = time.Now()
	state.RecordsFetched = len(records)

	paginationCyclesTotal.WithLabelValues(string(state.Termination)).Inc()
	paginationRecordsFetched.Set(float64(len(records)))
	paginationCycleDuration.Observe(state.Duration().Seconds())

	d.logger.Info().
		Int("pages_fetched", state.PagesFetched).
		Int("pages_skipped", state.PagesSkipped).
		Int("records", len(records)).
		Str("termination", string(state.Termination)).
		Dur("duration", state.Duration()).
		Msg("Fetch cycle complete")

	return records, state
}

func terminationFor(err error) Termination {
	switch {
	case errors.Is(err, gecko.ErrRetryExhausted):
		return TerminationRetryExhausted
	case errors.Is(err, gecko.ErrUnrecoverable):
		return TerminationUnrecoverable
	case errors.Is(err, gecko.ErrContextCancelled), errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return TerminationCancelled
	default:
		return TerminationFailed
	}
}
