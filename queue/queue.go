package queue

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/xraph/trellis"
	"github.com/xraph/trellis/id"
	"github.com/xraph/trellis/ratelimit"
)

// Config holds configuration for a Queue.
type Config struct {
	// MaxConcurrency is the maximum number of batches in flight at once.
	// Zero means the default of 3.
	MaxConcurrency int

	// BatchDelay is the debounce window between the first enqueue after
	// idle and the first dispatch. Zero means the default of 50ms; use a
	// negative value to dispatch without debounce.
	BatchDelay time.Duration

	// MaxBatchSize is the maximum number of operations pulled into a
	// single batch. Zero means the default of 20.
	MaxBatchSize int

	// RequestsPerSecond refills the token bucket. Zero means the
	// default of 5, matching the published service limit.
	RequestsPerSecond float64

	// BurstSize is the token bucket capacity. Zero means the default
	// of 10.
	BurstSize float64

	// Bucket, when set, is used instead of building a private bucket
	// from RequestsPerSecond and BurstSize. Share one bucket across
	// queues that mutate the same account: the service enforces its
	// limit per token, not per queue.
	Bucket *ratelimit.Bucket
}

// DefaultConfig returns a Config matching the published Trellis API
// limits: 3 concurrent batches of up to 20 operations, a 50ms debounce,
// and 5 requests/s with bursts of 10.
func DefaultConfig() Config {
	return Config{
		MaxConcurrency:    3,
		BatchDelay:        50 * time.Millisecond,
		MaxBatchSize:      20,
		RequestsPerSecond: 5,
		BurstSize:         10,
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.MaxConcurrency <= 0 {
		c.MaxConcurrency = def.MaxConcurrency
	}
	if c.BatchDelay == 0 {
		c.BatchDelay = def.BatchDelay
	}
	if c.BatchDelay < 0 {
		c.BatchDelay = 0
	}
	if c.MaxBatchSize <= 0 {
		c.MaxBatchSize = def.MaxBatchSize
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = def.RequestsPerSecond
	}
	if c.BurstSize <= 0 {
		c.BurstSize = def.BurstSize
	}

	return c
}

// Stats is a point-in-time snapshot of queue state.
type Stats struct {
	// QueueLength is the number of operations waiting in the backlog.
	QueueLength int

	// ActiveBatches is the number of batches currently in flight.
	ActiveBatches int

	// TotalProcessed counts operations acknowledged by the server.
	TotalProcessed int64

	// TotalFailed counts operations that settled with an error,
	// including those discarded by Clear.
	TotalFailed int64
}

// Queue is the debounced, batching, rate-limited write queue. Construct
// with [New]; the zero value is not usable.
type Queue struct {
	cfg    Config
	bucket *ratelimit.Bucket
	logger *slog.Logger

	middlewares []Middleware
	mw          Middleware

	mu         sync.Mutex
	executor   Executor
	backlog    []*Operation
	timer      *time.Timer
	timerArmed bool
	timerGen   int
	active     int
	idle       bool
	idleCh     chan struct{}

	processed atomic.Int64
	failed    atomic.Int64
}

// Option configures a Queue.
type Option func(*Queue)

// WithExecutor sets the executor that performs dispatched requests.
// Without one, every dispatched operation fails with trellis.ErrNoExecutor.
func WithExecutor(e Executor) Option {
	return func(q *Queue) { q.executor = e }
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(q *Queue) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// WithMiddleware appends middleware to the execution chain, outermost
// first.
func WithMiddleware(mws ...Middleware) Option {
	return func(q *Queue) { q.middlewares = append(q.middlewares, mws...) }
}

// New builds a Queue from cfg. Zero-value fields take the defaults from
// [DefaultConfig].
func New(cfg Config, opts ...Option) *Queue {
	cfg = cfg.withDefaults()

	q := &Queue{
		cfg:    cfg,
		bucket: cfg.Bucket,
		logger: slog.Default(),
		idle:   true,
		idleCh: closedChan(),
	}
	if q.bucket == nil {
		q.bucket = ratelimit.New(cfg.RequestsPerSecond, cfg.BurstSize)
	}

	for _, opt := range opts {
		opt(q)
	}

	if len(q.middlewares) > 0 {
		q.mw = Chain(q.middlewares...)
	}

	return q
}

// SetExecutor replaces the executor. Batches already handed their
// executor keep it; later batches use the new one.
func (q *Queue) SetExecutor(e Executor) {
	q.mu.Lock()
	q.executor = e
	q.mu.Unlock()
}

// Enqueue appends one operation to the backlog and returns its handle.
// It never blocks on the network: the handle settles asynchronously
// once the server acknowledges the mutation, the operation fails, or
// the queue is cleared.
func (q *Queue) Enqueue(p Params) *Handle {
	return q.EnqueueMany(p)[0]
}

// EnqueueMany appends operations in argument order under a single lock
// acquisition, so no dispatch can interleave with the appends. Handles
// are returned in the same order.
func (q *Queue) EnqueueMany(params ...Params) []*Handle {
	if len(params) == 0 {
		return nil
	}

	now := time.Now().UTC()
	ops := make([]*Operation, len(params))
	handles := make([]*Handle, len(params))
	for i, p := range params {
		op := &Operation{
			ID:         id.NewOpID(),
			Kind:       p.Kind(),
			Params:     p,
			EnqueuedAt: now,
			handle:     newHandle(),
		}
		ops[i] = op
		handles[i] = op.handle
	}

	q.mu.Lock()
	q.backlog = append(q.backlog, ops...)
	q.leaveIdleLocked()
	q.armTimerLocked()
	backlog := len(q.backlog)
	q.mu.Unlock()

	q.logger.Debug("operations enqueued",
		slog.Int("count", len(ops)),
		slog.Int("backlog", backlog),
	)

	return handles
}

// Stats returns a snapshot of queue state. Counters are monotonic for
// the life of the queue; QueueLength and ActiveBatches are instantaneous.
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	s := Stats{
		QueueLength:   len(q.backlog),
		ActiveBatches: q.active,
	}
	q.mu.Unlock()

	s.TotalProcessed = q.processed.Load()
	s.TotalFailed = q.failed.Load()

	return s
}

// Clear atomically discards the backlog and disarms the debounce timer.
// Every discarded handle settles with trellis.ErrQueueCleared and counts
// as failed. Batches already in flight are not touched. Returns the
// number of operations discarded.
func (q *Queue) Clear() int {
	q.mu.Lock()
	discarded := q.backlog
	q.backlog = nil
	if q.timerArmed {
		q.timer.Stop()
		q.timerArmed = false
	}
	// Invalidate a fire already racing the Stop.
	q.timerGen++
	q.maybeIdleLocked()
	q.mu.Unlock()

	// Settling outside the lock: the operations are no longer reachable
	// from the queue, so nothing races these handles.
	for _, op := range discarded {
		op.handle.settle(nil, trellis.ErrQueueCleared)
		q.failed.Add(1)
	}

	if len(discarded) > 0 {
		q.logger.Info("queue cleared", slog.Int("discarded", len(discarded)))
	}

	return len(discarded)
}

// Drain blocks until the queue is idle: empty backlog and no batch in
// flight. Operations enqueued while draining extend the wait. Returns
// early with ctx.Err() if ctx is done first.
func (q *Queue) Drain(ctx context.Context) error {
	for {
		q.mu.Lock()
		if len(q.backlog) == 0 && q.active == 0 {
			q.mu.Unlock()
			return nil
		}
		ch := q.idleCh
		q.mu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// ---------------------------------------------------------------------------
// Dispatch internals
// ---------------------------------------------------------------------------

// armTimerLocked starts the debounce timer unless one is already
// pending. Callers must hold mu.
func (q *Queue) armTimerLocked() {
	if q.timerArmed {
		return
	}
	q.timerArmed = true
	q.timerGen++
	gen := q.timerGen
	q.timer = time.AfterFunc(q.cfg.BatchDelay, func() { q.timerFired(gen) })
}

// timerFired runs when the debounce window closes. A stale generation
// means Clear disarmed this timer after the fire was already in flight.
func (q *Queue) timerFired(gen int) {
	q.mu.Lock()
	if gen != q.timerGen {
		q.mu.Unlock()
		return
	}
	q.timerArmed = false
	q.mu.Unlock()

	q.dispatchLoop()
}

// dispatchLoop pulls FIFO batches while there is backlog and concurrency
// headroom. It runs when the debounce timer fires and again as each
// batch settles, so under sustained load the debounce delay is paid only
// on the first batch after idle.
func (q *Queue) dispatchLoop() {
	q.mu.Lock()
	for len(q.backlog) > 0 && q.active < q.cfg.MaxConcurrency {
		n := min(q.cfg.MaxBatchSize, len(q.backlog))
		batch := q.backlog[:n:n]
		q.backlog = q.backlog[n:]
		if len(q.backlog) == 0 {
			q.backlog = nil
		}
		q.active++
		exec := q.executor

		go q.runBatch(id.NewBatchID(), batch, exec)
	}
	q.maybeIdleLocked()
	q.mu.Unlock()
}

// runBatch fans the batch out, waits for every member to settle, frees
// the concurrency slot, and re-enters the dispatch loop.
func (q *Queue) runBatch(bid id.BatchID, batch []*Operation, exec Executor) {
	if exec == nil {
		// Configuration error: fail the whole batch without touching
		// the bucket or the network.
		q.logger.Error("batch failed: no executor configured",
			slog.String("batch_id", bid.String()),
			slog.Int("size", len(batch)),
		)
		for _, op := range batch {
			op.handle.settle(nil, trellis.ErrNoExecutor)
			q.failed.Add(1)
		}
	} else {
		q.logger.Debug("batch dispatched",
			slog.String("batch_id", bid.String()),
			slog.Int("size", len(batch)),
		)

		var wg sync.WaitGroup
		for _, op := range batch {
			wg.Add(1)
			go func() {
				defer wg.Done()
				q.dispatch(op, exec)
			}()
		}
		// The slot frees only when every member settled, success or not.
		wg.Wait()
	}

	q.mu.Lock()
	q.active--
	q.mu.Unlock()

	q.dispatchLoop()
}

// dispatch resolves, rate-limits, and executes a single operation, then
// settles its handle. A failure here is isolated to this operation.
func (q *Queue) dispatch(op *Operation, exec Executor) {
	req, err := op.request()
	if err != nil {
		// Malformed operations fail before spending a token.
		q.fail(op, err)
		return
	}

	// Dispatched mutations are not cancellable: abandoning a request
	// midway would leave the local view and the server disagreeing.
	ctx := context.Background()

	if err := q.bucket.Acquire(ctx); err != nil {
		q.fail(op, err)
		return
	}

	var result json.RawMessage
	terminal := func(ctx context.Context) error {
		res, execErr := exec.Execute(ctx, req)
		if execErr != nil {
			return execErr
		}
		result = res
		return nil
	}

	if q.mw != nil {
		err = q.mw(ctx, op, terminal)
	} else {
		err = terminal(ctx)
	}
	if err != nil {
		q.fail(op, err)
		return
	}

	op.handle.settle(result, nil)
	q.processed.Add(1)
}

func (q *Queue) fail(op *Operation, err error) {
	op.handle.settle(nil, err)
	q.failed.Add(1)
	q.logger.Warn("operation failed",
		slog.String("op_id", op.ID.String()),
		slog.String("kind", string(op.Kind)),
		slog.String("error", err.Error()),
	)
}

// leaveIdleLocked opens a fresh idle barrier on the first enqueue after
// idle. Callers must hold mu.
func (q *Queue) leaveIdleLocked() {
	if q.idle {
		q.idle = false
		q.idleCh = make(chan struct{})
	}
}

// maybeIdleLocked closes the idle barrier once the backlog is empty and
// no batch is in flight, waking every Drain waiter. Callers must hold mu.
func (q *Queue) maybeIdleLocked() {
	if !q.idle && len(q.backlog) == 0 && q.active == 0 {
		q.idle = true
		close(q.idleCh)
	}
}

func closedChan() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
