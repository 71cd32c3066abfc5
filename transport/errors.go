package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/xraph/trellis"
)

// APIError is a non-2xx response from the Trellis service. Code and
// Message come from the error envelope when the body carries one;
// RetryAfter reflects the Retry-After header on throttled responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("trellis: api error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}

	return fmt.Sprintf("trellis: api error %d: %s", e.StatusCode, e.Message)
}

// Temporary reports whether the same request may succeed if repeated.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Is maps well-known statuses onto the package-level sentinels, so
// callers can test with errors.Is(err, trellis.ErrNodeNotFound) and
// friends without reaching for the concrete type.
func (e *APIError) Is(target error) bool {
	switch target {
	case trellis.ErrNodeNotFound:
		return e.StatusCode == http.StatusNotFound
	case trellis.ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden
	case trellis.ErrRateLimited:
		return e.StatusCode == http.StatusTooManyRequests
	}

	return false
}

// ── Wire format ─────────────────────────────────────────────────────

// wireError is the service's error envelope.
type wireError struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// newAPIError builds an APIError from a failed response. Bodies that
// are not the JSON envelope are kept verbatim, truncated, as the
// message.
func newAPIError(resp *http.Response, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}

	var we wireError
	if err := json.Unmarshal(body, &we); err == nil && we.Error.Message != "" {
		apiErr.Code = we.Error.Code
		apiErr.Message = we.Error.Message
		return apiErr
	}

	const maxSnippet = 200
	msg := string(body)
	if len(msg) > maxSnippet {
		msg = msg[:maxSnippet]
	}
	apiErr.Message = msg

	return apiErr
}

// parseRetryAfter handles both forms of the header: delay seconds and
// an HTTP date. Unparseable or absent values come back as zero.
func parseRetryAfter(h string) time.Duration {
	if h == "" {
		return 0
	}

	if secs, err := strconv.Atoi(h); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}

	if at, err := http.ParseTime(h); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}

	return 0
}

// retryAfter extracts the server-requested delay from a prior failure.
func retryAfter(err error) (time.Duration, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.RetryAfter > 0 {
		return apiErr.RetryAfter, true
	}

	return 0, false
}
