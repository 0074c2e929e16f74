package pagination

import (
	"errors"
	"time"

	"github.com/Sternrassler/coin-sync/pkg/gecko"
)

// Termination names why a fetch cycle stopped.
type Termination string

const (
	TerminationEmptyPage      Termination = "empty_page"
	TerminationMaxPages       Termination = "max_pages"
	TerminationRetryExhausted Termination = "retry_exhausted"
	TerminationUnrecoverable  Termination = "unrecoverable"
	TerminationCancelled      Termination = "cancelled"
	TerminationFailed         Termination = "failed"
)

// CycleState describes one fetch cycle. It is created when the cycle starts
// and owned by the caller once FetchAll returns.
type CycleState struct {
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`

	// CurrentPage is the last page requested.
	CurrentPage int `json:"current_page"`

	// LastPageAttempts is how many requests the last failing page took.
	LastPageAttempts int `json:"last_page_attempts"`

	PagesFetched   int         `json:"pages_fetched"`
	PagesSkipped   int         `json:"pages_skipped"`
	RecordsFetched int         `json:"records_fetched"`
	Termination    Termination `json:"termination"`
	LastError      string      `json:"last_error,omitempty"`
}

func newCycleState() *CycleState {
	return &CycleState{Started: time.Now()}
}

// Duration returns how long the cycle ran.
func (s *CycleState) Duration() time.Duration {
	if s.Finished.IsZero() {
		return time.Since(s.Started)
	}
	return s.Finished.Sub(s.Started)
}

// Complete reports whether the cycle ended because the upstream ran out of
// data or the page cap was reached, as opposed to an error.
func (s *CycleState) Complete() bool {
	return s.Termination == TerminationEmptyPage || s.Termination == TerminationMaxPages
}

func (s *CycleState) terminate(reason Termination, err error) {
	s.Termination = reason
	if err != nil {
		s.LastError = err.Error()
	}
}

func (s *CycleState) recordAttempts(err error) {
	var fe *gecko.FetchError
	if errors.As(err, &fe) {
		s.LastPageAttempts = fe.Attempts
		return
	}
	s.LastPageAttempts = 0
}
