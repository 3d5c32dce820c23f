package article

import (
	"context"
	"encoding/json"
	"time"
)

// Renderer fetches a URL and returns the page DOM. Implementations classify
// failures: transient network errors are plain errors, while an explicit
// block or paywall must surface as a PipelineError with
// KindRestrictedContent so the pipeline does not waste retries on it.
type Renderer interface {
	Render(ctx context.Context, url string) (Page, error)
}

// Preprocessor converts raw HTML into clean plain text, stripping
// navigation, ads, and boilerplate. Pure and stateless.
type Preprocessor interface {
	Clean(html []byte) (string, error)
}

// SamplingMode selects extractor behavior on the single structural-failure
// retry the pipeline allows.
type SamplingMode string

// Sampling modes passed to the extractor.
const (
	SamplingDefault SamplingMode = "default"
	SamplingStrict  SamplingMode = "strict"
)

// ExtractInput carries everything the extractor may consult.
type ExtractInput struct {
	URL       string
	PlainText string
	HTML      []byte
}

// Extractor produces a draft UAS document. The output is untrusted and must
// pass the schema validator before it reaches the cache or any caller.
type Extractor interface {
	Extract(ctx context.Context, input ExtractInput, mode SamplingMode) (json.RawMessage, error)
}

// EntityRecognizer is the fallback named-entity pass, invoked only when the
// primary extractor returns no entities.
type EntityRecognizer interface {
	Recognize(text string) Entities
}

// Clock returns the current time (injectable for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces subscription and subscriber IDs.
type IDGenerator interface {
	NewID() (string, error)
}

// Resolver is the coordinator contract consumed by the API and the monitor.
// ResolveFresh bypasses the cache TTL read while still coalescing with any
// in-flight execution for the same URL.
type Resolver interface {
	Resolve(ctx context.Context, url string) (ArticleRecord, error)
	ResolveFresh(ctx context.Context, url string) (ArticleRecord, error)
}
