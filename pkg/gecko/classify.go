package gecko

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrorKind classifies the outcome of one upstream request.
type ErrorKind string

const (
	// KindSuccess is a 2xx response with a decodable body.
	KindSuccess ErrorKind = "success"

	// KindRateLimited is an HTTP 429 response.
	KindRateLimited ErrorKind = "rate_limited"

	// KindBadRequestSkippable is an HTTP 400 naming an invalid parameter.
	KindBadRequestSkippable ErrorKind = "bad_request_skippable"

	// KindBadRequestFatal is any other HTTP 400.
	KindBadRequestFatal ErrorKind = "bad_request_fatal"

	// KindTransient covers network errors, 5xx and every other status.
	KindTransient ErrorKind = "transient"

	// KindNotFound is an HTTP 404 on a lookup of a single resource. Listing
	// requests never produce it; there a 404 stays transient.
	KindNotFound ErrorKind = "not_found"
)

// maxMessageLen bounds how much of an error body ends up in logs.
const maxMessageLen = 512

// Classify maps an HTTP outcome to an ErrorKind. err is the transport error,
// if any; body is only inspected for 400 responses.
func Classify(statusCode int, body []byte, err error) ErrorKind {
	if err != nil {
		return KindTransient
	}

	switch {
	case statusCode >= 200 && statusCode < 300:
		return KindSuccess
	case statusCode == http.StatusTooManyRequests:
		return KindRateLimited
	case statusCode == http.StatusBadRequest:
		if strings.Contains(strings.ToLower(errorMessage(body)), "invalid") {
			return KindBadRequestSkippable
		}
		return KindBadRequestFatal
	default:
		return KindTransient
	}
}

// errorMessage extracts a human readable message from an upstream error body.
// It understands {"message": ...}, {"error": ...} and
// {"status": {"error_message": ...}} and falls back to the raw body.
func errorMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
		Error   string `json:"error"`
		Status  struct {
			ErrorMessage string `json:"error_message"`
		} `json:"status"`
	}

	if err := json.Unmarshal(body, &payload); err == nil {
		switch {
		case payload.Message != "":
			return truncate(payload.Message)
		case payload.Error != "":
			return truncate(payload.Error)
		case payload.Status.ErrorMessage != "":
			return truncate(payload.Status.ErrorMessage)
		}
	}

	return truncate(strings.TrimSpace(string(body)))
}

func truncate(s string) string {
	if len(s) > maxMessageLen {
		return s[:maxMessageLen]
	}
	return s
}

// parseRetryAfter reads a Retry-After header value given either as
// delta-seconds or as an HTTP date. It returns 0 when the header is absent,
// malformed or already in the past.
func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}

	if secs, err := strconv.Atoi(value); err == nil {
		if secs <= 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}

	if at, err := http.ParseTime(value); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}

	return 0
}
