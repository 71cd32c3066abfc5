package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/xraph/trellis"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// waitFor polls cond until it reports true or the deadline passes.
func waitFor(t *testing.T, d time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

// okExecutor acknowledges every request with an empty document.
func okExecutor(calls *atomic.Int64) ExecutorFunc {
	return func(ctx context.Context, req Request) (json.RawMessage, error) {
		if calls != nil {
			calls.Add(1)
		}
		return json.RawMessage(`{}`), nil
	}
}

// immediate dispatches without debounce: one op per batch, no waiting.
func immediate(maxConcurrency, maxBatchSize int) Config {
	return Config{
		MaxConcurrency:    maxConcurrency,
		MaxBatchSize:      maxBatchSize,
		BatchDelay:        -1,
		RequestsPerSecond: 1000,
		BurstSize:         1000,
	}
}

// ---------------------------------------------------------------------------
// Dispatch basics
// ---------------------------------------------------------------------------

func TestQueue_EnqueueSettlesHandle(t *testing.T) {
	want := json.RawMessage(`{"id":"node_01h2xcejqtf2nbrexx3vqjhp41","name":"inbox"}`)
	q := New(immediate(3, 20), WithExecutor(ExecutorFunc(
		func(ctx context.Context, req Request) (json.RawMessage, error) {
			return want, nil
		},
	)))

	h := q.Enqueue(CreateParams{Name: "inbox"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	got, err := h.Wait(ctx)
	if err != nil {
		t.Fatalf("Wait() error: %v", err)
	}
	if string(got) != string(want) {
		t.Errorf("Wait() = %s, want %s", got, want)
	}

	if err := q.Drain(ctx); err != nil {
		t.Fatalf("Drain() error: %v", err)
	}

	s := q.Stats()
	if s.TotalProcessed != 1 || s.TotalFailed != 0 {
		t.Errorf("stats = %+v, want 1 processed, 0 failed", s)
	}
	if s.QueueLength != 0 || s.ActiveBatches != 0 {
		t.Errorf("stats = %+v, want idle queue", s)
	}
}

func TestQueue_StatsStartAtZero(t *testing.T) {
	q := New(DefaultConfig())

	if s := q.Stats(); s != (Stats{}) {
		t.Errorf("fresh queue stats = %+v, want all zero", s)
	}
}

func TestQueue_EnqueueManyPreservesOrder(t *testing.T) {
	var (
		mu    sync.Mutex
		names []string
	)
	// One op per batch, one batch at a time: dispatch order is backlog order.
	q := New(immediate(1, 1), WithExecutor(ExecutorFunc(
		func(ctx context.Context, req Request) (json.RawMessage, error) {
			mu.Lock()
			names = append(names, req.Body["name"].(string))
			mu.Unlock()
			return json.RawMessage(`{}`), nil
		},
	)))

	handles := q.EnqueueMany(
		CreateParams{Name: "a"},
		CreateParams{Name: "b"},
		CreateParams{Name: "c"},
		CreateParams{Name: "d"},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, h := range handles {
		if _, err := h.Wait(ctx); err != nil {
			t.Fatalf("Wait() error: %v", err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"a", "b", "c", "d"}
	for i, name := range want {
		if names[i] != name {
			t.Fatalf("dispatch order = %v, want %v", names, want)
		}
	}
}

func TestQueue_ValidationFailsBeforeDispatch(t *testing.T) {
	var calls atomic.Int64
	q := New(immediate(3, 20), WithExecutor(okExecutor(&calls)))

	h := q.Enqueue(UpdateParams{Name: String("renamed")}) // no node id

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := h.Wait(ctx); !errors.Is(err, trellis.ErrMissingNodeID) {
		t.Errorf("Wait() error = %v, want trellis.ErrMissingNodeID", err)
	}
	if calls.Load() != 0 {
		t.Errorf("executor calls = %d, want 0 for a malformed operation", calls.Load())
	}
}

// ---------------------------------------------------------------------------
// Debounce and batching
// ---------------------------------------------------------------------------

func TestQueue_DebounceHoldsBurst(t *testing.T) {
	var calls atomic.Int64
	q := New(Config{BatchDelay: 60 * time.Millisecond}, WithExecutor(okExecutor(&calls)))

	for range 5 {
		q.Enqueue(CreateParams{Name: "n"})
	}

	// Inside the debounce window nothing has dispatched yet.
	time.Sleep(25 * time.Millisecond)
	if got := calls.Load(); got != 0 {
		t.Errorf("executor calls during debounce = %d, want 0", got)
	}

	waitFor(t, 2*time.Second, func() bool { return calls.Load() == 5 })
}

func TestQueue_SettledBatchPullsNextImmediately(t *testing.T) {
	started := make(chan string, 3)
	release := make(chan struct{})
	q := New(Config{MaxConcurrency: 1, MaxBatchSize: 2, BatchDelay: -1},
		WithExecutor(ExecutorFunc(func(ctx context.Context, req Request) (json.RawMessage, error) {
			started <- req.Body["name"].(string)
			<-release
			return json.RawMessage(`{}`), nil
		})),
	)

	handles := q.EnqueueMany(
		CreateParams{Name: "a"},
		CreateParams{Name: "b"},
		CreateParams{Name: "c"},
	)

	// First batch holds a and b; order within the batch is not fixed.
	first := map[string]bool{}
	for range 2 {
		select {
		case name := <-started:
			first[name] = true
		case <-time.After(2 * time.Second):
			t.Fatal("first batch did not start")
		}
	}
	if !first["a"] || !first["b"] {
		t.Fatalf("first batch = %v, want {a b}", first)
	}

	// c stays backlogged while the slot is taken.
	select {
	case name := <-started:
		t.Fatalf("operation %q dispatched past the concurrency cap", name)
	case <-time.After(30 * time.Millisecond):
	}
	if s := q.Stats(); s.ActiveBatches != 1 || s.QueueLength != 1 {
		t.Errorf("stats = %+v, want 1 active batch and 1 backlogged op", s)
	}

	// Settling the first batch pulls c without waiting for a new debounce.
	close(release)
	select {
	case name := <-started:
		if name != "c" {
			t.Errorf("second batch = %q, want c", name)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("second batch did not start after the first settled")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, h := range handles {
		if _, err := h.Wait(ctx); err != nil {
			t.Fatalf("Wait() error: %v", err)
		}
	}
}

func TestQueue_TimerRearmsDuringDispatch(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int64
	q := New(Config{MaxConcurrency: 1, MaxBatchSize: 1, BatchDelay: 20 * time.Millisecond},
		WithExecutor(ExecutorFunc(func(ctx context.Context, req Request) (json.RawMessage, error) {
			calls.Add(1)
			if calls.Load() == 1 {
				<-release
			}
			return json.RawMessage(`{}`), nil
		})),
	)

	q.Enqueue(CreateParams{Name: "first"})
	waitFor(t, 2*time.Second, func() bool { return calls.Load() == 1 })

	// Enqueued while the only slot is busy: must still dispatch later.
	h := q.Enqueue(CreateParams{Name: "second"})
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := h.Wait(ctx); err != nil {
		t.Fatalf("Wait() error: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Concurrency and rate
// ---------------------------------------------------------------------------

func TestQueue_ConcurrencyCapHolds(t *testing.T) {
	var inflight, maxSeen atomic.Int64
	q := New(immediate(2, 1), WithExecutor(ExecutorFunc(
		func(ctx context.Context, req Request) (json.RawMessage, error) {
			cur := inflight.Add(1)
			for {
				m := maxSeen.Load()
				if cur <= m || maxSeen.CompareAndSwap(m, cur) {
					break
				}
			}
			time.Sleep(10 * time.Millisecond)
			inflight.Add(-1)
			return json.RawMessage(`{}`), nil
		},
	)))

	params := make([]Params, 6)
	for i := range params {
		params[i] = CreateParams{Name: "n"}
	}
	q.EnqueueMany(params...)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.Drain(ctx); err != nil {
		t.Fatalf("Drain() error: %v", err)
	}

	if got := maxSeen.Load(); got > 2 {
		t.Errorf("max in-flight batches = %d, want <= 2", got)
	}
	if got := maxSeen.Load(); got < 2 {
		t.Errorf("max in-flight batches = %d, want the cap to be reached", got)
	}
}

func TestQueue_RateLimitPacesDispatch(t *testing.T) {
	// Burst 1 at 20 tokens/s: three ops need two refills, ~100ms total.
	var calls atomic.Int64
	q := New(Config{
		MaxConcurrency:    3,
		MaxBatchSize:      1,
		BatchDelay:        -1,
		RequestsPerSecond: 20,
		BurstSize:         1,
	}, WithExecutor(okExecutor(&calls)))

	start := time.Now()
	q.EnqueueMany(
		CreateParams{Name: "a"},
		CreateParams{Name: "b"},
		CreateParams{Name: "c"},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.Drain(ctx); err != nil {
		t.Fatalf("Drain() error: %v", err)
	}
	elapsed := time.Since(start)

	if calls.Load() != 3 {
		t.Fatalf("executor calls = %d, want 3", calls.Load())
	}
	if elapsed < 80*time.Millisecond {
		t.Errorf("three ops finished in %v, want >= ~100ms of token refill", elapsed)
	}
}

// ---------------------------------------------------------------------------
// Failure handling
// ---------------------------------------------------------------------------

func TestQueue_NoExecutorFailsBatch(t *testing.T) {
	q := New(immediate(3, 20))

	h := q.Enqueue(CreateParams{Name: "orphan"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := h.Wait(ctx); !errors.Is(err, trellis.ErrNoExecutor) {
		t.Fatalf("Wait() error = %v, want trellis.ErrNoExecutor", err)
	}

	s := q.Stats()
	if s.TotalFailed != 1 || s.TotalProcessed != 0 {
		t.Errorf("stats = %+v, want 1 failed, 0 processed", s)
	}
	// The queue stays usable: the failure is per batch, not fatal.
	if err := q.Drain(ctx); err != nil {
		t.Errorf("Drain() error: %v", err)
	}
}

func TestQueue_SetExecutorRecovers(t *testing.T) {
	q := New(immediate(3, 20))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := q.Enqueue(CreateParams{Name: "a"}).Wait(ctx); !errors.Is(err, trellis.ErrNoExecutor) {
		t.Fatalf("Wait() error = %v, want trellis.ErrNoExecutor", err)
	}

	q.SetExecutor(okExecutor(nil))

	if _, err := q.Enqueue(CreateParams{Name: "b"}).Wait(ctx); err != nil {
		t.Fatalf("Wait() after SetExecutor error: %v", err)
	}
}

func TestQueue_FailureIsolatedToOperation(t *testing.T) {
	boom := errors.New("boom")
	q := New(Config{MaxConcurrency: 3, MaxBatchSize: 20, BatchDelay: -1},
		WithExecutor(ExecutorFunc(func(ctx context.Context, req Request) (json.RawMessage, error) {
			if req.Body["name"] == "bad" {
				return nil, boom
			}
			return json.RawMessage(`{}`), nil
		})),
	)

	handles := q.EnqueueMany(
		CreateParams{Name: "good-1"},
		CreateParams{Name: "bad"},
		CreateParams{Name: "good-2"},
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := handles[0].Wait(ctx); err != nil {
		t.Errorf("good-1 error = %v, want nil", err)
	}
	if _, err := handles[1].Wait(ctx); !errors.Is(err, boom) {
		t.Errorf("bad error = %v, want boom", err)
	}
	if _, err := handles[2].Wait(ctx); err != nil {
		t.Errorf("good-2 error = %v, want nil", err)
	}

	s := q.Stats()
	if s.TotalProcessed != 2 || s.TotalFailed != 1 {
		t.Errorf("stats = %+v, want 2 processed, 1 failed", s)
	}
}

// ---------------------------------------------------------------------------
// Clear and drain
// ---------------------------------------------------------------------------

func TestQueue_ClearDiscardsBacklog(t *testing.T) {
	var calls atomic.Int64
	q := New(Config{BatchDelay: 80 * time.Millisecond}, WithExecutor(okExecutor(&calls)))

	handles := q.EnqueueMany(
		CreateParams{Name: "a"},
		CreateParams{Name: "b"},
		CreateParams{Name: "c"},
		CreateParams{Name: "d"},
	)

	if got := q.Clear(); got != 4 {
		t.Fatalf("Clear() = %d, want 4", got)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for _, h := range handles {
		if _, err := h.Wait(ctx); !errors.Is(err, trellis.ErrQueueCleared) {
			t.Errorf("Wait() error = %v, want trellis.ErrQueueCleared", err)
		}
	}

	s := q.Stats()
	if s.QueueLength != 0 || s.TotalFailed != 4 {
		t.Errorf("stats = %+v, want empty backlog and 4 failed", s)
	}

	// The debounce timer is disarmed: nothing dispatches later.
	time.Sleep(120 * time.Millisecond)
	if calls.Load() != 0 {
		t.Errorf("executor calls after Clear = %d, want 0", calls.Load())
	}

	if err := q.Drain(ctx); err != nil {
		t.Errorf("Drain() after Clear error: %v", err)
	}
}

func TestQueue_ClearLeavesInFlightBatch(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	q := New(Config{MaxConcurrency: 1, MaxBatchSize: 1, BatchDelay: -1},
		WithExecutor(ExecutorFunc(func(ctx context.Context, req Request) (json.RawMessage, error) {
			close(started)
			<-release
			return json.RawMessage(`{"ok":true}`), nil
		})),
	)

	handles := q.EnqueueMany(CreateParams{Name: "in-flight"}, CreateParams{Name: "backlogged"})

	select {
	case <-started:
	case <-time.After(2 * time.Second):
		t.Fatal("first operation did not start")
	}

	if got := q.Clear(); got != 1 {
		t.Fatalf("Clear() = %d, want only the backlogged op", got)
	}

	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := handles[0].Wait(ctx); err != nil {
		t.Errorf("in-flight op error = %v, want nil (not clearable)", err)
	}
	if _, err := handles[1].Wait(ctx); !errors.Is(err, trellis.ErrQueueCleared) {
		t.Errorf("backlogged op error = %v, want trellis.ErrQueueCleared", err)
	}

	if err := q.Drain(ctx); err != nil {
		t.Fatalf("Drain() error: %v", err)
	}
	s := q.Stats()
	if s.TotalProcessed != 1 || s.TotalFailed != 1 {
		t.Errorf("stats = %+v, want 1 processed, 1 failed", s)
	}
}

func TestQueue_DrainIdleReturnsImmediately(t *testing.T) {
	q := New(DefaultConfig())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := q.Drain(ctx); err != nil {
		t.Errorf("Drain() on an idle queue error: %v", err)
	}
}

func TestQueue_DrainWaitsForBacklogAndBatches(t *testing.T) {
	var calls atomic.Int64
	q := New(Config{MaxConcurrency: 2, MaxBatchSize: 2, BatchDelay: 10 * time.Millisecond},
		WithExecutor(ExecutorFunc(func(ctx context.Context, req Request) (json.RawMessage, error) {
			time.Sleep(5 * time.Millisecond)
			calls.Add(1)
			return json.RawMessage(`{}`), nil
		})),
	)

	params := make([]Params, 7)
	for i := range params {
		params[i] = CreateParams{Name: "n"}
	}
	q.EnqueueMany(params...)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := q.Drain(ctx); err != nil {
		t.Fatalf("Drain() error: %v", err)
	}

	if calls.Load() != 7 {
		t.Errorf("executor calls = %d, want 7 before Drain returns", calls.Load())
	}
	if s := q.Stats(); s.QueueLength != 0 || s.ActiveBatches != 0 {
		t.Errorf("stats after Drain = %+v, want idle", s)
	}
}

func TestQueue_DrainHonoursContext(t *testing.T) {
	release := make(chan struct{})
	q := New(immediate(1, 1), WithExecutor(ExecutorFunc(
		func(ctx context.Context, req Request) (json.RawMessage, error) {
			<-release
			return json.RawMessage(`{}`), nil
		},
	)))

	q.Enqueue(CreateParams{Name: "stuck"})

	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()
	if err := q.Drain(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Drain() error = %v, want context.DeadlineExceeded", err)
	}

	close(release)

	ctx2, cancel2 := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel2()
	if err := q.Drain(ctx2); err != nil {
		t.Errorf("Drain() after release error: %v", err)
	}
}

// ---------------------------------------------------------------------------
// Middleware
// ---------------------------------------------------------------------------

func TestQueue_MiddlewareWrapsDispatch(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []string
	)
	record := func(s string) {
		mu.Lock()
		seen = append(seen, s)
		mu.Unlock()
	}

	outer := func(ctx context.Context, op *Operation, next Handler) error {
		record("outer-pre:" + string(op.Kind))
		err := next(ctx)
		record("outer-post")
		return err
	}
	inner := func(ctx context.Context, op *Operation, next Handler) error {
		record("inner")
		return next(ctx)
	}

	q := New(immediate(1, 1),
		WithExecutor(ExecutorFunc(func(ctx context.Context, req Request) (json.RawMessage, error) {
			record("handler")
			return json.RawMessage(`{}`), nil
		})),
		WithMiddleware(outer, inner),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := q.Enqueue(CreateParams{Name: "x"}).Wait(ctx); err != nil {
		t.Fatalf("Wait() error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	want := []string{"outer-pre:create", "inner", "handler", "outer-post"}
	if len(seen) != len(want) {
		t.Fatalf("middleware trace = %v, want %v", seen, want)
	}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("middleware trace = %v, want %v", seen, want)
		}
	}
}

func TestQueue_MiddlewareErrorFailsOperation(t *testing.T) {
	denied := errors.New("denied")
	shortCircuit := func(ctx context.Context, op *Operation, next Handler) error {
		return denied
	}

	var calls atomic.Int64
	q := New(immediate(1, 1), WithExecutor(okExecutor(&calls)), WithMiddleware(shortCircuit))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if _, err := q.Enqueue(CreateParams{Name: "x"}).Wait(ctx); !errors.Is(err, denied) {
		t.Errorf("Wait() error = %v, want the middleware error", err)
	}
	if calls.Load() != 0 {
		t.Errorf("executor calls = %d, want 0 when middleware short-circuits", calls.Load())
	}
	if s := q.Stats(); s.TotalFailed != 1 {
		t.Errorf("stats = %+v, want the short-circuit counted as failed", s)
	}
}

func TestChain_AppliesRightToLeft(t *testing.T) {
	var seen []string
	mk := func(name string) Middleware {
		return func(ctx context.Context, op *Operation, next Handler) error {
			seen = append(seen, name+"-pre")
			err := next(ctx)
			seen = append(seen, name+"-post")
			return err
		}
	}

	op := &Operation{Kind: KindCreate, Params: CreateParams{Name: "x"}}
	chain := Chain(mk("a"), mk("b"))

	err := chain(context.Background(), op, func(ctx context.Context) error {
		seen = append(seen, "handler")
		return nil
	})
	if err != nil {
		t.Fatalf("chain error: %v", err)
	}

	want := []string{"a-pre", "b-pre", "handler", "b-post", "a-post"}
	for i := range want {
		if seen[i] != want[i] {
			t.Fatalf("trace = %v, want %v", seen, want)
		}
	}
}

func TestChain_EmptyRunsHandler(t *testing.T) {
	ran := false
	op := &Operation{Kind: KindCreate, Params: CreateParams{Name: "x"}}

	err := Chain()(context.Background(), op, func(ctx context.Context) error {
		ran = true
		return nil
	})
	if err != nil {
		t.Fatalf("chain error: %v", err)
	}
	if !ran {
		t.Error("empty chain did not run the handler")
	}
}
