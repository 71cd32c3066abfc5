// Package transport implements the HTTP layer of the Trellis client:
// authenticated JSON requests with retries, Retry-After awareness, and a
// rate-limited read path.
//
// Transport satisfies [queue.Executor], so a queue hands it one mutation
// at a time; the write pacing lives in the queue's token bucket and is
// deliberately not repeated here. Reads bypass the queue entirely and go
// through [Transport.Get], which paces itself with golang.org/x/time/rate.
package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"

	"github.com/xraph/trellis/queue"
)

const (
	defaultMaxAttempts = 4
	defaultTimeout     = 15 * time.Second
	defaultReadRate    = 10
	defaultReadBurst   = 20
	defaultUserAgent   = "trellis-go"
)

// Transport sends requests to the Trellis REST API. Construct with
// [New]; the zero value is not usable. Safe for concurrent use.
type Transport struct {
	base        string
	client      *http.Client
	logger      *slog.Logger
	tokens      oauth2.TokenSource
	backoff     Backoff
	maxAttempts int
	timeout     time.Duration
	readLimiter *rate.Limiter
	userAgent   string
}

// Compile-time check: Transport executes queue operations.
var _ queue.Executor = (*Transport)(nil)

// Option configures a Transport.
type Option func(*Transport)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(t *Transport) {
		if c != nil {
			t.client = c
		}
	}
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithTokenSource sets the OAuth2 token source used to authenticate
// every request. Without one, requests go out unauthenticated.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(t *Transport) { t.tokens = ts }
}

// WithBackoff sets the retry delay strategy. Defaults to
// [DefaultBackoff]. A Retry-After from the server overrides the
// strategy when it asks for a longer wait.
func WithBackoff(b Backoff) Option {
	return func(t *Transport) {
		if b != nil {
			t.backoff = b
		}
	}
}

// WithMaxAttempts sets how many tries a request gets before the
// transport gives up on transient failures. Defaults to 4.
func WithMaxAttempts(n int) Option {
	return func(t *Transport) {
		if n > 0 {
			t.maxAttempts = n
		}
	}
}

// WithRequestTimeout bounds a single HTTP attempt. Defaults to 15s.
// Zero disables the per-attempt bound.
func WithRequestTimeout(d time.Duration) Option {
	return func(t *Transport) {
		if d >= 0 {
			t.timeout = d
		}
	}
}

// WithReadLimit paces Get requests at rps with the given burst.
// Reads have their own service limit, separate from the mutation
// budget the queue's token bucket enforces. A non-positive rps
// disables read pacing.
func WithReadLimit(rps float64, burst int) Option {
	return func(t *Transport) {
		if rps <= 0 {
			t.readLimiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		t.readLimiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithUserAgent overrides the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(t *Transport) {
		if ua != "" {
			t.userAgent = ua
		}
	}
}

// New builds a Transport for the API rooted at baseURL.
func New(baseURL string, opts ...Option) *Transport {
	t := &Transport{
		base:        strings.TrimRight(baseURL, "/"),
		client:      &http.Client{},
		logger:      slog.Default(),
		backoff:     DefaultBackoff(),
		maxAttempts: defaultMaxAttempts,
		timeout:     defaultTimeout,
		readLimiter: rate.NewLimiter(rate.Limit(defaultReadRate), defaultReadBurst),
		userAgent:   defaultUserAgent,
	}
	for _, opt := range opts {
		opt(t)
	}

	return t
}

// Execute implements queue.Executor: it sends one mutation and returns
// the server's response document. The caller has already paid the write
// rate limit, so Execute goes straight to the wire.
func (t *Transport) Execute(ctx context.Context, req queue.Request) (json.RawMessage, error) {
	var body []byte
	if req.Body != nil {
		b, err := json.Marshal(req.Body)
		if err != nil {
			return nil, fmt.Errorf("transport: encode body: %w", err)
		}
		body = b
	}

	return t.do(ctx, req.Method, req.Endpoint, body)
}

// Get fetches endpoint and decodes the JSON response into out. A nil
// out discards the body. Reads wait on the read limiter first.
func (t *Transport) Get(ctx context.Context, endpoint string, out any) error {
	if t.readLimiter != nil {
		if err := t.readLimiter.Wait(ctx); err != nil {
			return err
		}
	}

	raw, err := t.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("transport: decode %s: %w", endpoint, err)
	}

	return nil
}

// do runs the retry loop around attempt. Terminal failures (4xx other
// than 429) return immediately; transient ones wait out the backoff
// delay, or the server's Retry-After when that is longer.
func (t *Transport) do(ctx context.Context, method, endpoint string, body []byte) (json.RawMessage, error) {
	var lastErr error
	for attempt := 1; attempt <= t.maxAttempts; attempt++ {
		if attempt > 1 {
			delay := t.nextDelay(attempt-1, lastErr)
			t.logger.Debug("retrying request",
				slog.String("method", method),
				slog.String("endpoint", endpoint),
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
			)

			timer := time.NewTimer(delay)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return nil, ctx.Err()
			}
		}

		raw, err := t.attempt(ctx, method, t.base+endpoint, body)
		if err == nil {
			return raw, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			// The caller is gone; the attempt error is just its echo.
			return nil, ctx.Err()
		}
		if !retryable(err) {
			return nil, err
		}
	}

	return nil, fmt.Errorf("transport: %s %s: giving up after %d attempts: %w",
		method, endpoint, t.maxAttempts, lastErr)
}

// nextDelay combines the backoff schedule with any server-requested
// minimum carried by the previous failure. retry is 1-indexed.
func (t *Transport) nextDelay(retry int, lastErr error) time.Duration {
	delay := t.backoff.Delay(retry)
	if ra, ok := retryAfter(lastErr); ok && ra > delay {
		delay = ra
	}

	return delay
}

// attempt performs one HTTP round trip under the per-attempt timeout.
func (t *Transport) attempt(ctx context.Context, method, requestURL string, body []byte) (json.RawMessage, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, requestURL, rd)
	if err != nil {
		return nil, fmt.Errorf("transport: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", t.userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	if t.tokens != nil {
		tok, err := t.tokens.Token()
		if err != nil {
			return nil, fmt.Errorf("transport: fetch token: %w", err)
		}
		tok.SetAuthHeader(req)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("transport: read response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return json.RawMessage(data), nil
	}

	return nil, newAPIError(resp, data)
}

// retryable reports whether a failed attempt is worth repeating.
// Status-bearing failures defer to the API error's own classification;
// anything that never produced a status line (dial failures, resets,
// attempt timeouts) is transient by assumption. Everything else, such
// as a refused token refresh, fails immediately.
func retryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}

	var uerr *url.Error
	return errors.As(err, &uerr)
}
