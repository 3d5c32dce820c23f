// Package coordinator deduplicates concurrent requests for the same
// resource into a single in-flight pipeline execution and serves live cache
// hits without touching any collaborator.
package coordinator

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/aspl-project/aspl/internal/article"
	"github.com/aspl-project/aspl/internal/cache"
	"github.com/aspl-project/aspl/internal/metrics"
	"github.com/aspl-project/aspl/internal/pool"
)

// Executor runs one pipeline job; implemented by pipeline.Controller.
type Executor interface {
	Execute(ctx context.Context, url string) (article.ArticleRecord, error)
}

// Submitter is the bounded pool the coordinator schedules work on.
type Submitter interface {
	Submit(task pool.Task) error
}

// Coordinator implements article.Resolver.
type Coordinator struct {
	store  cache.Store
	exec   Executor
	pool   Submitter
	clock  article.Clock
	logger *zap.Logger

	group singleflight.Group
}

// New constructs a Coordinator.
func New(store cache.Store, exec Executor, submitter Submitter, clock article.Clock, logger *zap.Logger) *Coordinator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Coordinator{
		store:  store,
		exec:   exec,
		pool:   submitter,
		clock:  clock,
		logger: logger,
	}
}

// Resolve returns the article for url, serving a live cache hit when one
// exists and otherwise coalescing callers onto a single pipeline run.
func (c *Coordinator) Resolve(ctx context.Context, rawURL string) (article.ArticleRecord, error) {
	key, err := article.NormalizeURL(rawURL)
	if err != nil {
		return article.ArticleRecord{}, fmt.Errorf("normalize url: %w", err)
	}

	entry, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache read failed", zap.String("url", key), zap.Error(err))
	}
	metrics.ObserveCacheLookup(ok)
	if ok {
		return entry.Record, nil
	}

	return c.resolveShared(ctx, key)
}

// ResolveFresh bypasses the cache TTL read, forcing a pipeline run. It
// still coalesces with any in-flight execution for the same URL and writes
// through, so user-triggered resolves observe the refreshed entry.
func (c *Coordinator) ResolveFresh(ctx context.Context, rawURL string) (article.ArticleRecord, error) {
	key, err := article.NormalizeURL(rawURL)
	if err != nil {
		return article.ArticleRecord{}, fmt.Errorf("normalize url: %w", err)
	}
	return c.resolveShared(ctx, key)
}

// resolveShared coalesces concurrent callers for a key onto one pipeline
// execution scheduled on the bounded pool. Every waiter receives the same
// outcome; the cache write happens inside the job, before any waiter is
// released. The shared execution is not tied to any caller's context: a
// waiter that cancels stops waiting, the job runs to completion for the
// rest.
func (c *Coordinator) resolveShared(ctx context.Context, key string) (article.ArticleRecord, error) {
	ch := c.group.DoChan(key, func() (any, error) {
		return c.runJob(key)
	})

	select {
	case res := <-ch:
		if res.Shared {
			metrics.ObserveCoalescedWaiter()
		}
		if res.Err != nil {
			return article.ArticleRecord{}, res.Err
		}
		rec, ok := res.Val.(article.ArticleRecord)
		if !ok {
			return article.ArticleRecord{}, errors.New("unexpected resolve result type")
		}
		return rec, nil
	case <-ctx.Done():
		return article.ArticleRecord{}, fmt.Errorf("resolve wait: %w", ctx.Err())
	}
}

// runJob submits the pipeline execution to the pool and waits for it. A
// full queue surfaces immediately as a capacity error. The wait is
// unconditional: the worker context governs the execution, so shutdown
// still unblocks it, but no individual caller can abort the shared run.
func (c *Coordinator) runJob(key string) (article.ArticleRecord, error) {
	type result struct {
		rec article.ArticleRecord
		err error
	}
	done := make(chan result, 1)

	err := c.pool.Submit(func(workerCtx context.Context) {
		rec, execErr := c.exec.Execute(workerCtx, key)
		done <- result{rec: rec, err: execErr}
	})
	if err != nil {
		metrics.ObserveCapacityRejection()
		return article.ArticleRecord{}, article.NewPipelineError(article.KindCapacity, "",
			fmt.Errorf("submit job: %w", err))
	}

	res := <-done
	return res.rec, res.err
}

var _ article.Resolver = (*Coordinator)(nil)
