package transport

import (
	"errors"
	"net/http"
	"net/url"
	"testing"
	"time"

	"github.com/xraph/trellis"
)

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   time.Duration
	}{
		{"absent", "", 0},
		{"seconds", "3", 3 * time.Second},
		{"zero", "0", 0},
		{"negative", "-1", 0},
		{"garbage", "soon", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := parseRetryAfter(tt.header); got != tt.want {
				t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.header, got, tt.want)
			}
		})
	}
}

func TestParseRetryAfter_HTTPDate(t *testing.T) {
	future := time.Now().Add(2 * time.Second).UTC().Format(http.TimeFormat)
	if got := parseRetryAfter(future); got <= 0 || got > 2*time.Second {
		t.Errorf("parseRetryAfter(future date) = %v, want in (0, 2s]", got)
	}

	past := time.Now().Add(-time.Minute).UTC().Format(http.TimeFormat)
	if got := parseRetryAfter(past); got != 0 {
		t.Errorf("parseRetryAfter(past date) = %v, want 0", got)
	}
}

func TestNewAPIError_DecodesEnvelope(t *testing.T) {
	resp := &http.Response{
		StatusCode: http.StatusTooManyRequests,
		Header:     http.Header{"Retry-After": []string{"3"}},
	}
	body := []byte(`{"error":{"code":"rate_limited","message":"slow down"}}`)

	apiErr := newAPIError(resp, body)
	if apiErr.Code != "rate_limited" {
		t.Errorf("Code = %q, want rate_limited", apiErr.Code)
	}
	if apiErr.Message != "slow down" {
		t.Errorf("Message = %q, want slow down", apiErr.Message)
	}
	if apiErr.RetryAfter != 3*time.Second {
		t.Errorf("RetryAfter = %v, want 3s", apiErr.RetryAfter)
	}
}

func TestNewAPIError_NonEnvelopeBody(t *testing.T) {
	resp := &http.Response{StatusCode: http.StatusBadGateway, Header: http.Header{}}

	apiErr := newAPIError(resp, []byte("upstream exploded"))
	if apiErr.Message != "upstream exploded" {
		t.Errorf("Message = %q, want the raw body", apiErr.Message)
	}
	if apiErr.Code != "" {
		t.Errorf("Code = %q, want empty", apiErr.Code)
	}
}

func TestAPIError_Temporary(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{http.StatusBadRequest, false},
		{http.StatusUnauthorized, false},
		{http.StatusNotFound, false},
		{http.StatusTooManyRequests, true},
		{http.StatusInternalServerError, true},
		{http.StatusServiceUnavailable, true},
	}
	for _, tt := range tests {
		e := &APIError{StatusCode: tt.status}
		if got := e.Temporary(); got != tt.want {
			t.Errorf("Temporary() for %d = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestAPIError_SentinelMapping(t *testing.T) {
	tests := []struct {
		status int
		target error
		want   bool
	}{
		{http.StatusNotFound, trellis.ErrNodeNotFound, true},
		{http.StatusUnauthorized, trellis.ErrUnauthorized, true},
		{http.StatusForbidden, trellis.ErrUnauthorized, true},
		{http.StatusTooManyRequests, trellis.ErrRateLimited, true},
		{http.StatusNotFound, trellis.ErrRateLimited, false},
		{http.StatusInternalServerError, trellis.ErrNodeNotFound, false},
	}
	for _, tt := range tests {
		err := error(&APIError{StatusCode: tt.status})
		if got := errors.Is(err, tt.target); got != tt.want {
			t.Errorf("errors.Is(%d, %v) = %v, want %v", tt.status, tt.target, got, tt.want)
		}
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"server error", &APIError{StatusCode: 500}, true},
		{"rate limited", &APIError{StatusCode: 429}, true},
		{"bad request", &APIError{StatusCode: 400}, false},
		{"network", &url.Error{Op: "Post", URL: "http://x", Err: errors.New("connection refused")}, true},
		{"token refresh", errors.New("fetch token: revoked"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := retryable(tt.err); got != tt.want {
				t.Errorf("retryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestNextDelay_RetryAfterOverrides(t *testing.T) {
	tr := New("http://example.test", WithBackoff(NewConstant(5*time.Millisecond)))

	// Server asked for more than the schedule: server wins.
	longer := &APIError{StatusCode: 429, RetryAfter: 20 * time.Millisecond}
	if got := tr.nextDelay(1, longer); got != 20*time.Millisecond {
		t.Errorf("nextDelay = %v, want Retry-After's 20ms", got)
	}

	// Server asked for less: keep the schedule.
	shorter := &APIError{StatusCode: 429, RetryAfter: time.Millisecond}
	if got := tr.nextDelay(1, shorter); got != 5*time.Millisecond {
		t.Errorf("nextDelay = %v, want backoff's 5ms", got)
	}

	// No Retry-After at all.
	if got := tr.nextDelay(1, &APIError{StatusCode: 500}); got != 5*time.Millisecond {
		t.Errorf("nextDelay = %v, want backoff's 5ms", got)
	}
}
