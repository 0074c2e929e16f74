// Package pagination drives a page fetcher across the market listing, one
// page at a time, until the upstream runs out of data or a terminal error
// stops the walk.
//
// Example usage:
//
//	driver := pagination.NewDriver(geckoClient, pagination.DefaultConfig())
//	records, state := driver.FetchAll(ctx)
//	log.Info().Str("termination", string(state.Termination)).Int("records", len(records)).Msg("done")
//
// The driver:
//   - Requests pages 1, 2, 3, ... strictly sequentially
//   - Waits PageDelay between pages (cancellable)
//   - Stops on an empty page, the MaxPages cap, retry exhaustion, an
//     unrecoverable request or context cancellation
//   - Continues past pages the fetcher reports as skipped
//   - Never fails: whatever was gathered before the stop is returned
package pagination
