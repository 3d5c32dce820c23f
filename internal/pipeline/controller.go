// Package pipeline drives a URL through the staged extraction pipeline:
// render, preprocess, extract, validate, persist. Stage transitions are
// expressed as an explicit table so the state machine can be tested stage
// by stage.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/aspl-project/aspl/internal/article"
	"github.com/aspl-project/aspl/internal/cache"
	"github.com/aspl-project/aspl/internal/metrics"
	"github.com/aspl-project/aspl/internal/schema"
)

// outcome classifies one stage attempt for the transition table.
type outcome int

const (
	outcomeOK outcome = iota
	outcomeRetry
	outcomeTerminal
	outcomeReExtract
)

// next maps a successfully completed stage to its successor. StagePersist
// maps to the empty stage, which terminates the job as DONE.
var next = map[article.Stage]article.Stage{
	article.StageRender:     article.StagePreprocess,
	article.StagePreprocess: article.StageExtract,
	article.StageExtract:    article.StageValidate,
	article.StageValidate:   article.StagePersist,
	article.StagePersist:    "",
}

// job is the transient per-execution state. It is destroyed on terminal
// success or failure and never persisted.
type job struct {
	url       string
	stage     article.Stage
	attempts  map[article.Stage]int
	startedAt time.Time
	lastErr   error

	strictRetryUsed bool

	page   article.Page
	text   string
	draft  json.RawMessage
	record article.ArticleRecord
}

// Controller executes pipeline jobs against the injected collaborators.
// The persist stage is the only place shared state is mutated.
type Controller struct {
	renderer     article.Renderer
	preprocessor article.Preprocessor
	extractor    article.Extractor
	entities     article.EntityRecognizer
	validator    *schema.Validator
	store        cache.Store
	clock        article.Clock
	policy       Policy
	logger       *zap.Logger
}

// New constructs a Controller.
func New(
	renderer article.Renderer,
	preprocessor article.Preprocessor,
	extractor article.Extractor,
	entities article.EntityRecognizer,
	validator *schema.Validator,
	store cache.Store,
	clock article.Clock,
	policy Policy,
	logger *zap.Logger,
) *Controller {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Controller{
		renderer:     renderer,
		preprocessor: preprocessor,
		extractor:    extractor,
		entities:     entities,
		validator:    validator,
		store:        store,
		clock:        clock,
		policy:       policy,
		logger:       logger,
	}
}

// Execute runs one pipeline job for a normalized URL. On success it returns
// the validated record, already written through to the cache store. On
// failure it returns a PipelineError; never a partial record.
func (c *Controller) Execute(ctx context.Context, url string) (article.ArticleRecord, error) {
	if c.policy.OverallBudget > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.policy.OverallBudget)
		defer cancel()
	}

	j := &job{
		url:       url,
		stage:     article.StageRender,
		attempts:  make(map[article.Stage]int),
		startedAt: c.clock.Now(),
	}
	logger := c.logger.With(zap.String("url", url))

	for j.stage != "" {
		if ctx.Err() != nil {
			return c.fail(j, article.NewPipelineError(article.KindTimeout, j.stage,
				fmt.Errorf("job budget exhausted: %w", ctx.Err())))
		}

		j.attempts[j.stage]++
		err := c.runStage(ctx, j)

		switch c.classify(j, err) {
		case outcomeOK:
			metrics.ObserveStage(string(j.stage), "ok")
			j.stage = next[j.stage]

		case outcomeRetry:
			metrics.ObserveStage(string(j.stage), "retry")
			metrics.ObserveStageRetry(string(j.stage))
			logger.Warn("stage attempt failed, retrying",
				zap.String("stage", string(j.stage)),
				zap.Int("attempt", j.attempts[j.stage]),
				zap.Error(err),
			)
			if waitErr := c.wait(ctx, c.policy.backoff(j.attempts[j.stage])); waitErr != nil {
				return c.fail(j, article.NewPipelineError(article.KindTimeout, j.stage, waitErr))
			}

		case outcomeReExtract:
			metrics.ObserveStage(string(j.stage), "reextract")
			logger.Warn("draft structurally invalid, re-extracting in strict mode", zap.Error(err))
			j.strictRetryUsed = true
			j.stage = article.StageExtract
			j.attempts[article.StageExtract] = 0

		case outcomeTerminal:
			metrics.ObserveStage(string(j.stage), "failed")
			return c.fail(j, c.asPipelineError(j, err))
		}
	}

	metrics.ObserveJob("done", c.clock.Now().Sub(j.startedAt))
	logger.Info("pipeline job done",
		zap.String("fingerprint", article.Fingerprint(j.record)),
		zap.Int("word_count", j.record.WordCount),
	)
	return j.record, nil
}

// runStage executes one attempt of the current stage under its timeout.
func (c *Controller) runStage(ctx context.Context, j *job) error {
	sp := c.policy.forStage(j.stage)
	stageCtx := ctx
	if sp.Timeout > 0 {
		var cancel context.CancelFunc
		stageCtx, cancel = context.WithTimeout(ctx, sp.Timeout)
		defer cancel()
	}

	switch j.stage {
	case article.StageRender:
		return c.render(stageCtx, j)
	case article.StagePreprocess:
		return c.preprocess(j)
	case article.StageExtract:
		return c.extract(stageCtx, j)
	case article.StageValidate:
		return c.validate(j)
	case article.StagePersist:
		return c.persist(stageCtx, j)
	default:
		return fmt.Errorf("unknown stage %q", j.stage)
	}
}

func (c *Controller) render(ctx context.Context, j *job) error {
	page, err := c.renderer.Render(ctx, j.url)
	if err != nil {
		return fmt.Errorf("render %s: %w", j.url, err)
	}
	j.page = page
	return nil
}

func (c *Controller) preprocess(j *job) error {
	text, err := c.preprocessor.Clean(j.page.HTML)
	if err != nil {
		return article.NewPipelineError(article.KindNonArticle, article.StagePreprocess,
			fmt.Errorf("clean html: %w", err))
	}
	j.text = text
	return nil
}

func (c *Controller) extract(ctx context.Context, j *job) error {
	mode := article.SamplingDefault
	if j.strictRetryUsed {
		mode = article.SamplingStrict
	}
	draft, err := c.extractor.Extract(ctx, article.ExtractInput{
		URL:       j.url,
		PlainText: j.text,
		HTML:      j.page.HTML,
	}, mode)
	if err != nil {
		return fmt.Errorf("extract %s: %w", j.url, err)
	}
	j.draft = draft
	return nil
}

func (c *Controller) validate(j *job) error {
	rec, err := c.validator.Validate(j.draft, c.clock.Now())
	if err != nil {
		return err
	}
	rec.URL = j.url
	if rec.Entities.Empty() && c.entities != nil {
		rec.Entities = c.entities.Recognize(rec.MainText)
	}
	j.record = rec
	return nil
}

func (c *Controller) persist(ctx context.Context, j *job) error {
	now := c.clock.Now()
	entry := cache.Entry{
		URL:         j.url,
		Record:      j.record,
		Fingerprint: article.Fingerprint(j.record),
		FetchedAt:   now,
		ExpiresAt:   now.Add(c.policy.CacheTTL),
	}
	if err := c.store.Set(ctx, entry); err != nil {
		return fmt.Errorf("persist %s: %w", j.url, err)
	}
	return nil
}

// classify maps a stage attempt result onto the transition table.
func (c *Controller) classify(j *job, err error) outcome {
	if err == nil {
		return outcomeOK
	}
	j.lastErr = err

	var malformed *schema.MalformedDraftError
	if errors.As(err, &malformed) {
		if !j.strictRetryUsed {
			// One structural re-extract is allowed; a second failure is
			// terminal to bound extraction cost.
			return outcomeReExtract
		}
		return outcomeTerminal
	}
	var violation *schema.Violation
	if errors.As(err, &violation) {
		return outcomeTerminal
	}

	kind := c.kindFor(err)
	if article.Terminal(kind) {
		return outcomeTerminal
	}
	if j.attempts[j.stage] >= c.policy.forStage(j.stage).MaxAttempts {
		return outcomeTerminal
	}
	return outcomeRetry
}

// kindFor classifies an error into the taxonomy. Deadline errors become
// stage timeouts; unclassified failures stay retryable fetch errors.
func (c *Controller) kindFor(err error) article.ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return article.KindTimeout
	}
	return article.KindOf(err)
}

// asPipelineError wraps err with the failing stage and kind, preserving an
// existing PipelineError's kind. Schema gate errors get their own kinds.
func (c *Controller) asPipelineError(j *job, err error) *article.PipelineError {
	kind := c.kindFor(err)
	var malformed *schema.MalformedDraftError
	if errors.As(err, &malformed) {
		kind = article.KindExtractionFormat
	}
	var violation *schema.Violation
	if errors.As(err, &violation) {
		kind = article.KindSchemaViolation
	}
	return article.NewPipelineError(kind, j.stage, err)
}

func (c *Controller) fail(j *job, perr error) (article.ArticleRecord, error) {
	metrics.ObserveJob("failed", c.clock.Now().Sub(j.startedAt))
	c.logger.Error("pipeline job failed",
		zap.String("url", j.url),
		zap.String("stage", string(j.stage)),
		zap.Error(perr),
	)
	return article.ArticleRecord{}, perr
}

// wait sleeps for the backoff delay, aborting if the context ends first.
func (c *Controller) wait(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("backoff wait: %w", ctx.Err())
	}
}
