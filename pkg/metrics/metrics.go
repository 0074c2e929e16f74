// Package metrics exposes the Prometheus registry used by coin-sync.
// All metrics are defined in their respective packages (gecko, pagination,
// reconcile, scheduler, syncer, cache, ratelimit, api) to maintain
// modularity and avoid circular dependencies.
//
// This package provides the /metrics handler and a reference for all
// available metrics.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry is the default Prometheus registry used by coin-sync.
// All metrics are automatically registered via promauto in their respective packages.
var Registry = prometheus.DefaultRegisterer

// Gatherer collects everything registered in Registry.
var Gatherer = prometheus.DefaultGatherer

// Handler serves the registry in the Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.InstrumentMetricHandler(
		Registry,
		promhttp.HandlerFor(Gatherer, promhttp.HandlerOpts{}),
	)
}

// Families lists every metric family the service registers.
var Families = []string{
	"gecko_requests_total",
	"gecko_request_duration_seconds",
	"gecko_errors_total",
	"gecko_retries_total",
	"gecko_retry_backoff_seconds",
	"gecko_retry_exhausted_total",
	"gecko_cooldown_remaining_seconds",
	"gecko_cooldown_extensions_total",
	"gecko_cooldown_store_errors_total",
	"pagination_pages_total",
	"pagination_cycles_total",
	"pagination_records_fetched",
	"pagination_cycle_duration_seconds",
	"reconcile_records_total",
	"reconcile_batches_total",
	"reconcile_duration_seconds",
	"scheduler_triggers_total",
	"scheduler_cycle_running",
	"scheduler_job_errors_total",
	"sync_cycles_total",
	"sync_last_success_timestamp_seconds",
	"sync_cycle_duration_seconds",
	"api_cache_lookups_total",
	"api_cache_stored_bytes_total",
	"api_cache_not_modified_total",
	"api_cache_errors_total",
	"api_cache_generation",
	"api_cache_invalidations_total",
	"http_requests_total",
	"http_request_duration_seconds",
}

// Metrics Documentation
//
// Upstream Metrics (pkg/gecko):
//   - gecko_requests_total{status} (Counter): Requests by HTTP status
//   - gecko_request_duration_seconds (Histogram): Request duration
//   - gecko_errors_total{kind} (Counter): Failed attempts by classification
//   - gecko_retries_total{error_class} (Counter): Retry attempts by error class
//   - gecko_retry_backoff_seconds{error_class} (Histogram): Backoff duration by error class
//   - gecko_retry_exhausted_total{error_class} (Counter): Pages that exhausted max retries
//
// Cooldown Metrics (pkg/ratelimit):
//   - gecko_cooldown_remaining_seconds (Gauge): Remaining shared cooldown when last observed
//   - gecko_cooldown_extensions_total (Counter): Times the shared cooldown was pushed out
//   - gecko_cooldown_store_errors_total{op} (Counter): Redis errors reading or writing the cooldown
//
// Pagination Metrics (pkg/pagination):
//   - pagination_pages_total{outcome} (Counter): Pages by outcome (fetched, empty, skipped, failed)
//   - pagination_cycles_total{termination} (Counter): Fetch cycles by termination reason
//   - pagination_records_fetched (Gauge): Records gathered by the last cycle
//   - pagination_cycle_duration_seconds (Histogram): Fetch cycle duration
//
// Reconciliation Metrics (pkg/reconcile):
//   - reconcile_records_total{result} (Counter): Records by result (created, updated, failed)
//   - reconcile_batches_total{outcome} (Counter): Batches by outcome
//   - reconcile_duration_seconds (Histogram): Batch duration
//
// Scheduling Metrics (pkg/scheduler, pkg/syncer):
//   - scheduler_triggers_total{source, outcome} (Counter): Triggers started or dropped
//   - scheduler_cycle_running (Gauge): 1 while a cycle runs
//   - scheduler_job_errors_total{kind} (Counter): Failed cycles by kind (error, panic)
//   - sync_cycles_total{result} (Counter): Cycles by result (success, partial, failed)
//   - sync_last_success_timestamp_seconds (Gauge): Unix time of the last successful cycle
//   - sync_cycle_duration_seconds (Histogram): Full cycle duration
//
// Cache Metrics (pkg/cache):
//   - api_cache_lookups_total{route, result} (Counter): Lookups by route and result (hit, miss, expired)
//   - api_cache_stored_bytes_total (Counter): Encoded bytes written to the cache
//   - api_cache_not_modified_total (Counter): 304 Not Modified responses
//   - api_cache_errors_total{operation} (Counter): Redis errors by operation
//   - api_cache_generation (Gauge): Current invalidation generation
//   - api_cache_invalidations_total (Counter): Generation bumps
//
// HTTP Metrics (pkg/api):
//   - http_requests_total{method, route, status} (Counter): Requests served
//   - http_request_duration_seconds{route} (Histogram): Request latency by route
//
// Example Prometheus Queries:
//
//   # Cache Hit Rate
//   sum(rate(api_cache_lookups_total{result="hit"}[5m])) /
//   sum(rate(api_cache_lookups_total[5m]))
//
//   # Time since last successful sync
//   time() - sync_last_success_timestamp_seconds
//
//   # Rate limited upstream requests
//   rate(gecko_errors_total{kind="rate_limited"}[5m])
//
//   # P95 Upstream Latency
//   histogram_quantile(0.95, rate(gecko_request_duration_seconds_bucket[5m]))
//
//   # Dropped triggers
//   rate(scheduler_triggers_total{outcome="dropped"}[1h])
