// Package client assembles a ready-to-use Trellis client: OAuth2
// transport, debounced write queue, middleware stack, read cache, and
// failure journal behind one type.
//
// Usage:
//
//	c, err := client.New(trellis.DefaultConfig(),
//	    client.WithCredentials(auth.Config{RefreshToken: "rt_..."}),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	h := c.CreateNode(queue.CreateParams{Name: "Buy milk"})
//	if _, err := h.Wait(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	node, err := c.GetNode(ctx, nid)
//
// This package sits above every subsystem package and exists so none of
// them import each other: the root package defines Config and the
// sentinels, queue drives transport through the Executor interface, and
// client plugs them together.
package client

import (
	"context"
	"log/slog"
	"net/http"

	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/oauth2"

	"github.com/xraph/trellis"
	"github.com/xraph/trellis/auth"
	"github.com/xraph/trellis/cache"
	"github.com/xraph/trellis/journal"
	"github.com/xraph/trellis/middleware"
	"github.com/xraph/trellis/queue"
	"github.com/xraph/trellis/transport"
)

// Reader fetches documents from the service. *transport.Transport
// implements it; tests may substitute their own.
type Reader interface {
	Get(ctx context.Context, endpoint string, out any) error
}

// Client is the assembled Trellis client. Writes go through the
// debounced queue and settle asynchronously; reads are synchronous and
// cached. Safe for concurrent use.
type Client struct {
	cfg    trellis.Config
	logger *slog.Logger

	queue  *queue.Queue
	nodes  *cache.Nodes
	failed *journal.Journal

	executor queue.Executor
	reader   Reader

	// Construction inputs, consumed by New.
	creds      *auth.Config
	tokens     oauth2.TokenSource
	httpClient *http.Client
	bo         transport.Backoff
	mws        []queue.Middleware

	// OpenTelemetry providers (optional; nil means use global).
	tracerProvider trace.TracerProvider
	meterProvider  metric.MeterProvider
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the structured logger shared by every subsystem.
// Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithCredentials builds the OAuth2 token source from account
// credentials. Shorthand for auth.TokenSource + WithTokenSource.
func WithCredentials(creds auth.Config) Option {
	return func(c *Client) { c.creds = &creds }
}

// WithTokenSource sets the OAuth2 token source directly. Takes
// precedence over WithCredentials.
func WithTokenSource(ts oauth2.TokenSource) Option {
	return func(c *Client) { c.tokens = ts }
}

// WithHTTPClient sets the HTTP client the transport uses.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBackoff sets the transport's retry delay strategy.
func WithBackoff(b transport.Backoff) Option {
	return func(c *Client) { c.bo = b }
}

// WithMiddleware appends middleware to the queue's chain, inside the
// default stack.
func WithMiddleware(mws ...queue.Middleware) Option {
	return func(c *Client) { c.mws = append(c.mws, mws...) }
}

// WithExecutor replaces the write path with a custom executor. The
// default transport is then not built, and reads are disabled unless a
// Reader is supplied too.
func WithExecutor(e queue.Executor) Option {
	return func(c *Client) { c.executor = e }
}

// WithReader replaces the read path.
func WithReader(r Reader) Option {
	return func(c *Client) { c.reader = r }
}

// WithTracerProvider sets a custom OTel TracerProvider. When set, the
// tracing middleware uses this provider instead of the global one.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Client) { c.tracerProvider = tp }
}

// WithMeterProvider sets a custom OTel MeterProvider. When set, the
// metrics middleware uses this provider instead of the global one.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(c *Client) { c.meterProvider = mp }
}

// New builds a Client from cfg. Zero-value fields take the defaults
// from trellis.DefaultConfig.
func New(cfg trellis.Config, opts ...Option) (*Client, error) {
	def := trellis.DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = def.MaxAttempts
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = def.CacheSize
	}
	if cfg.JournalSize <= 0 {
		cfg.JournalSize = def.JournalSize
	}
	// The queue fields pass through; queue.New applies its own defaults.

	c := &Client{
		cfg:    cfg,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}

	if c.tokens == nil && c.creds != nil {
		ts, err := auth.TokenSource(context.Background(), *c.creds)
		if err != nil {
			return nil, err
		}
		c.tokens = ts
	}

	// With a custom executor and no reader, reads stay disabled rather
	// than silently pointing at the default endpoint.
	if c.executor == nil {
		tr := c.buildTransport()
		c.executor = tr
		if c.reader == nil {
			c.reader = tr
		}
	}

	c.nodes = cache.NewNodes(cfg.CacheSize)
	c.failed = journal.New(cfg.JournalSize)

	// Build tracing middleware (custom provider or global).
	var tracingMw queue.Middleware
	if c.tracerProvider != nil {
		tracer := c.tracerProvider.Tracer("github.com/xraph/trellis")
		tracingMw = middleware.TracingWithTracer(tracer)
	} else {
		tracingMw = middleware.Tracing()
	}

	// Build metrics middleware (custom provider or global).
	var metricsMw queue.Middleware
	if c.meterProvider != nil {
		meter := c.meterProvider.Meter("github.com/xraph/trellis")
		metricsMw = middleware.MetricsWithMeter(meter)
	} else {
		metricsMw = middleware.Metrics()
	}

	// Default stack: recover → tracing → metrics → logging → cache
	// invalidation → failure journal. User middleware runs innermost.
	stack := []queue.Middleware{
		middleware.Recover(c.logger),
		tracingMw,
		metricsMw,
		middleware.Logging(c.logger),
		invalidate(c.nodes),
		c.failed.Middleware(),
	}
	stack = append(stack, c.mws...)

	c.queue = queue.New(
		queue.Config{
			MaxConcurrency:    cfg.MaxConcurrency,
			BatchDelay:        cfg.BatchDelay,
			MaxBatchSize:      cfg.MaxBatchSize,
			RequestsPerSecond: cfg.RequestsPerSecond,
			BurstSize:         cfg.BurstSize,
		},
		queue.WithExecutor(c.executor),
		queue.WithLogger(c.logger),
		queue.WithMiddleware(stack...),
	)

	return c, nil
}

func (c *Client) buildTransport() *transport.Transport {
	opts := []transport.Option{
		transport.WithLogger(c.logger),
		transport.WithRequestTimeout(c.cfg.RequestTimeout),
		transport.WithMaxAttempts(c.cfg.MaxAttempts),
	}
	if c.tokens != nil {
		opts = append(opts, transport.WithTokenSource(c.tokens))
	}
	if c.httpClient != nil {
		opts = append(opts, transport.WithHTTPClient(c.httpClient))
	}
	if c.bo != nil {
		opts = append(opts, transport.WithBackoff(c.bo))
	}

	return transport.New(c.cfg.BaseURL, opts...)
}

// invalidate evicts the touched node once the server has answered.
// Eviction happens even on failure: the write may have landed before
// the error came back.
func invalidate(nodes *cache.Nodes) queue.Middleware {
	return func(ctx context.Context, op *queue.Operation, next queue.Handler) error {
		err := next(ctx)
		if target := op.Target(); !target.IsNil() {
			nodes.Remove(target)
		}
		return err
	}
}

// Queue returns the underlying write queue.
func (c *Client) Queue() *queue.Queue { return c.queue }

// Cache returns the node read cache.
func (c *Client) Cache() *cache.Nodes { return c.nodes }

// Journal returns the record of terminally failed writes. Replay them
// with journal.Journal.Replay against Queue.
func (c *Client) Journal() *journal.Journal { return c.failed }

// Stats returns a snapshot of the write queue's state.
func (c *Client) Stats() queue.Stats { return c.queue.Stats() }

// Clear discards every queued-but-undispatched operation. See
// queue.Queue.Clear.
func (c *Client) Clear() int { return c.queue.Clear() }

// Drain blocks until every queued operation has settled. Call before
// exiting to avoid losing buffered writes.
func (c *Client) Drain(ctx context.Context) error { return c.queue.Drain(ctx) }
