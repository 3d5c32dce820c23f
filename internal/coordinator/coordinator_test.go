package coordinator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/aspl-project/aspl/internal/article"
	"github.com/aspl-project/aspl/internal/cache"
	"github.com/aspl-project/aspl/internal/pool"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

// inlineSubmitter runs each task on its own goroutine, like a pool with
// spare capacity.
type inlineSubmitter struct{}

func (inlineSubmitter) Submit(task pool.Task) error {
	go task(context.Background())
	return nil
}

type fullSubmitter struct{}

func (fullSubmitter) Submit(pool.Task) error { return pool.ErrQueueFull }

type countingExecutor struct {
	mu      sync.Mutex
	calls   int
	started chan struct{}
	release chan struct{}
	store   cache.Store
	clock   article.Clock
	rec     article.ArticleRecord
	err     error
}

func (e *countingExecutor) Execute(ctx context.Context, url string) (article.ArticleRecord, error) {
	e.mu.Lock()
	e.calls++
	e.mu.Unlock()
	if e.started != nil {
		close(e.started)
	}
	if e.release != nil {
		<-e.release
	}
	if e.err != nil {
		return article.ArticleRecord{}, e.err
	}
	rec := e.rec
	rec.URL = url
	if e.store != nil {
		now := e.clock.Now()
		_ = e.store.Set(ctx, cache.Entry{
			URL:         url,
			Record:      rec,
			Fingerprint: article.Fingerprint(rec),
			FetchedAt:   now,
			ExpiresAt:   now.Add(time.Hour),
		})
	}
	return rec, nil
}

func (e *countingExecutor) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}

func testRecord() article.ArticleRecord {
	return article.ArticleRecord{
		Title:     "Headline",
		MainText:  "body text of reasonable length",
		WordCount: 5,
	}
}

func TestResolve_LiveCacheHitSkipsPipeline(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(7000, 0).UTC()}
	store := cache.NewMemoryStore(clock)
	exec := &countingExecutor{rec: testRecord(), store: store, clock: clock}
	coord := New(store, exec, inlineSubmitter{}, clock, zap.NewNop())

	first, err := coord.Resolve(context.Background(), "https://example.com/a")
	require.NoError(t, err)
	require.Equal(t, 1, exec.callCount())

	second, err := coord.Resolve(context.Background(), "https://example.com/a?utm_source=x")
	require.NoError(t, err)
	require.Equal(t, 1, exec.callCount(), "cache hit must not start a pipeline run")
	require.Equal(t, first, second)
}

func TestResolve_ConcurrentCallersCoalesce(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(7000, 0).UTC()}
	store := cache.NewMemoryStore(clock)
	exec := &countingExecutor{
		rec:     testRecord(),
		store:   store,
		clock:   clock,
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	coord := New(store, exec, inlineSubmitter{}, clock, zap.NewNop())

	const callers = 8
	var wg sync.WaitGroup
	results := make([]article.ArticleRecord, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = coord.Resolve(context.Background(), "https://example.com/a")
		}(i)
	}

	<-exec.started
	// All callers are now either in-flight waiters or about to join.
	time.Sleep(20 * time.Millisecond)
	close(exec.release)
	wg.Wait()

	require.Equal(t, 1, exec.callCount(), "exactly one pipeline execution for N concurrent callers")
	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		require.Equal(t, results[0], results[i])
	}
}

func TestResolve_ErrorPropagatesToAllWaiters(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(7000, 0).UTC()}
	store := cache.NewMemoryStore(clock)
	pipelineErr := article.NewPipelineError(article.KindRestrictedContent, article.StageRender,
		errors.New("paywall"))
	exec := &countingExecutor{
		err:     pipelineErr,
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	coord := New(store, exec, inlineSubmitter{}, clock, zap.NewNop())

	var wg sync.WaitGroup
	var failures atomic.Int32
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := coord.Resolve(context.Background(), "https://example.com/a")
			var perr *article.PipelineError
			if errors.As(err, &perr) && perr.Kind == article.KindRestrictedContent {
				failures.Add(1)
			}
		}()
	}
	<-exec.started
	time.Sleep(20 * time.Millisecond)
	close(exec.release)
	wg.Wait()

	require.Equal(t, int32(4), failures.Load())
	require.Equal(t, 1, exec.callCount())
}

func TestResolve_CanceledWaiterDoesNotAbortSharedRun(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(7000, 0).UTC()}
	store := cache.NewMemoryStore(clock)
	exec := &countingExecutor{
		rec:     testRecord(),
		store:   store,
		clock:   clock,
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	coord := New(store, exec, inlineSubmitter{}, clock, zap.NewNop())

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstDone := make(chan error, 1)
	go func() {
		_, err := coord.Resolve(firstCtx, "https://example.com/a")
		firstDone <- err
	}()
	<-exec.started

	secondDone := make(chan error, 1)
	var secondRec article.ArticleRecord
	go func() {
		rec, err := coord.Resolve(context.Background(), "https://example.com/a")
		secondRec = rec
		secondDone <- err
	}()
	time.Sleep(20 * time.Millisecond)

	// The initiating caller walks away while the execution is in flight.
	cancelFirst()
	firstErr := <-firstDone
	require.ErrorIs(t, firstErr, context.Canceled)

	close(exec.release)
	secondErr := <-secondDone
	require.NoError(t, secondErr, "a live waiter must receive the shared result")
	require.Equal(t, "https://example.com/a", secondRec.URL)
	require.Equal(t, 1, exec.callCount())

	// The run completed and wrote through despite the first cancellation.
	entry, ok, err := store.Get(context.Background(), "https://example.com/a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, secondRec, entry.Record)
}

func TestResolve_PoolSaturationIsCapacityError(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(7000, 0).UTC()}
	store := cache.NewMemoryStore(clock)
	exec := &countingExecutor{rec: testRecord()}
	coord := New(store, exec, fullSubmitter{}, clock, zap.NewNop())

	_, err := coord.Resolve(context.Background(), "https://example.com/a")
	var perr *article.PipelineError
	require.ErrorAs(t, err, &perr)
	require.Equal(t, article.KindCapacity, perr.Kind)
	require.Equal(t, 0, exec.callCount())
}

func TestResolve_RejectsInvalidURL(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(7000, 0).UTC()}
	coord := New(cache.NewMemoryStore(clock), &countingExecutor{}, inlineSubmitter{}, clock, zap.NewNop())

	_, err := coord.Resolve(context.Background(), "::not-a-url::")
	require.Error(t, err)
}

func TestResolveFresh_BypassesCacheRead(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Unix(7000, 0).UTC()}
	store := cache.NewMemoryStore(clock)
	exec := &countingExecutor{rec: testRecord(), store: store, clock: clock}
	coord := New(store, exec, inlineSubmitter{}, clock, zap.NewNop())

	_, err := coord.Resolve(context.Background(), "https://example.com/a")
	require.NoError(t, err)
	require.Equal(t, 1, exec.callCount())

	_, err = coord.ResolveFresh(context.Background(), "https://example.com/a")
	require.NoError(t, err)
	require.Equal(t, 2, exec.callCount(), "fresh resolve must re-run the pipeline despite a live entry")
}
