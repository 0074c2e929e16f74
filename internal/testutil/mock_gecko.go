// Package testutil provides testing utilities for the sync engine.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"time"

	"github.com/Sternrassler/coin-sync/pkg/market"
)

// MarketsPath is the listing endpoint served by MockGecko.
const MarketsPath = "/coins/markets"

// MockResponse defines the behavior for one mock listing response.
type MockResponse struct {
	StatusCode int
	Body       string
	Headers    map[string]string
	Delay      time.Duration
}

// RecordedRequest is what MockGecko remembers about a request.
type RecordedRequest struct {
	Path   string
	Page   int
	Query  map[string]string
	Header http.Header
}

// MockGecko is a scriptable stand-in for the upstream API. Each listing
// page and each other path has a queue of responses; the last response of a
// queue repeats. Pages without a script answer 200 with an empty array,
// other unscripted paths answer 404.
type MockGecko struct {
	server *httptest.Server

	mu         sync.RWMutex
	pages      map[int][]MockResponse
	served     map[int]int
	paths      map[string][]MockResponse
	pathServed map[string]int
	requests   []RecordedRequest
}

// NewMockGecko creates and starts a new mock server.
func NewMockGecko() *MockGecko {
	mock := &MockGecko{
		pages:      make(map[int][]MockResponse),
		served:     make(map[int]int),
		paths:      make(map[string][]MockResponse),
		pathServed: make(map[string]int),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(mock.handle))

	return mock
}

// URL returns the base URL to configure the client with.
func (m *MockGecko) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockGecko) Close() {
	m.server.Close()
}

// SetPage scripts the responses for a page, served in order.
func (m *MockGecko) SetPage(page int, responses ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pages[page] = responses
	m.served[page] = 0
}

// SetPath scripts the responses for a non-listing path such as
// "/search/trending".
func (m *MockGecko) SetPath(path string, responses ...MockResponse) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.paths[path] = responses
	m.pathServed[path] = 0
}

// PathRequests returns how many times a path was requested.
func (m *MockGecko) PathRequests(path string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, r := range m.requests {
		if r.Path == path {
			count++
		}
	}
	return count
}

// SetRecords scripts a page to return the given records.
func (m *MockGecko) SetRecords(page int, records []market.Record) {
	m.SetPage(page, NewRecordsResponse(records))
}

// RequestCount returns the total number of requests received.
func (m *MockGecko) RequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.requests)
}

// PageRequests returns how many times a page was requested.
func (m *MockGecko) PageRequests(page int) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	count := 0
	for _, r := range m.requests {
		if r.Path == MarketsPath && r.Page == page {
			count++
		}
	}
	return count
}

// Requests returns a copy of all recorded requests in arrival order.
func (m *MockGecko) Requests() []RecordedRequest {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]RecordedRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

func (m *MockGecko) handle(w http.ResponseWriter, r *http.Request) {
	query := make(map[string]string)
	for key := range r.URL.Query() {
		query[key] = r.URL.Query().Get(key)
	}

	var (
		resp MockResponse
		ok   bool
		page int
	)

	m.mu.Lock()
	if r.URL.Path == MarketsPath {
		if n, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil {
			page = n
		}
		resp, ok = m.next(page)
		if !ok {
			resp, ok = NewRecordsResponse(nil), true
		}
	} else {
		resp, ok = m.nextPath(r.URL.Path)
	}
	m.requests = append(m.requests, RecordedRequest{Path: r.URL.Path, Page: page, Query: query, Header: r.Header.Clone()})
	m.mu.Unlock()

	if !ok {
		http.NotFound(w, r)
		return
	}

	if resp.Delay > 0 {
		select {
		case <-time.After(resp.Delay):
		case <-r.Context().Done():
			return
		}
	}

	for key, value := range resp.Headers {
		w.Header().Set(key, value)
	}
	w.WriteHeader(resp.StatusCode)
	if resp.Body != "" {
		w.Write([]byte(resp.Body))
	}
}

// next pops the next scripted response for page. Callers hold m.mu.
func (m *MockGecko) next(page int) (MockResponse, bool) {
	queue, ok := m.pages[page]
	if !ok || len(queue) == 0 {
		return MockResponse{}, false
	}

	idx := m.served[page]
	if idx >= len(queue) {
		idx = len(queue) - 1
	}
	m.served[page]++

	return queue[idx], true
}

// nextPath pops the next scripted response for a non-listing path. Callers
// hold m.mu.
func (m *MockGecko) nextPath(path string) (MockResponse, bool) {
	queue, ok := m.paths[path]
	if !ok || len(queue) == 0 {
		return MockResponse{}, false
	}

	idx := m.pathServed[path]
	if idx >= len(queue) {
		idx = len(queue) - 1
	}
	m.pathServed[path]++

	return queue[idx], true
}

// NewJSONResponse creates a 200 OK response with a raw JSON body.
func NewJSONResponse(body string) MockResponse {
	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       body,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewNotFoundResponse creates the 404 the upstream sends for unknown ids.
func NewNotFoundResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusNotFound,
		Body:       `{"error":"coin not found"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewRecordsResponse creates a 200 OK response carrying records.
func NewRecordsResponse(records []market.Record) MockResponse {
	if records == nil {
		records = []market.Record{}
	}
	body, err := json.Marshal(records)
	if err != nil {
		panic(fmt.Sprintf("marshal records: %v", err))
	}

	return MockResponse{
		StatusCode: http.StatusOK,
		Body:       string(body),
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewRateLimitResponse creates a 429 response. retryAfter may be empty.
func NewRateLimitResponse(retryAfter string) MockResponse {
	resp := MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Body:       `{"status":{"error_code":429,"error_message":"You've exceeded the Rate Limit."}}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
	if retryAfter != "" {
		resp.Headers["Retry-After"] = retryAfter
	}
	return resp
}

// NewBadRequestResponse creates a 400 response with the given error message.
func NewBadRequestResponse(message string) MockResponse {
	body, _ := json.Marshal(map[string]string{"error": message})
	return MockResponse{
		StatusCode: http.StatusBadRequest,
		Body:       string(body),
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// NewServerErrorResponse creates a 500 Internal Server Error response.
func NewServerErrorResponse() MockResponse {
	return MockResponse{
		StatusCode: http.StatusInternalServerError,
		Body:       `{"error":"Internal server error"}`,
		Headers:    map[string]string{"Content-Type": "application/json; charset=utf-8"},
	}
}

// GenerateRecords builds n distinct records for a page. Identifiers are
// "coin-<page>-<i>" so pages never collide.
func GenerateRecords(page, n int) []market.Record {
	records := make([]market.Record, 0, n)
	for i := 0; i < n; i++ {
		rank := int64((page-1)*n + i + 1)
		records = append(records, market.Record{
			ID:            fmt.Sprintf("coin-%d-%d", page, i),
			Symbol:        fmt.Sprintf("c%d%d", page, i),
			Name:          fmt.Sprintf("Coin %d-%d", page, i),
			Image:         fmt.Sprintf("https://img.example/%d/%d.png", page, i),
			CurrentPrice:  market.Float(float64(1000 - i)),
			MarketCap:     market.Float(float64(1_000_000 - int(rank))),
			MarketCapRank: market.Int(rank),
			TotalVolume:   market.Float(float64(500 + i)),
		})
	}
	return records
}
