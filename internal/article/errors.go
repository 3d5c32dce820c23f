package article

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a pipeline failure for retry decisions and for the
// error_kind field surfaced to API callers.
type ErrorKind string

// Error kinds. Fetch and timeout errors are retryable within a stage's
// attempt budget; the rest are terminal.
const (
	KindFetch             ErrorKind = "fetch_error"
	KindRestrictedContent ErrorKind = "restricted_content"
	KindNonArticle        ErrorKind = "non_article"
	KindExtractionFormat  ErrorKind = "extraction_format"
	KindSchemaViolation   ErrorKind = "schema_violation"
	KindCapacity          ErrorKind = "capacity"
	KindTimeout           ErrorKind = "timeout"
)

// Stage identifies one step of the extraction pipeline.
type Stage string

// Pipeline stages in execution order.
const (
	StageRender     Stage = "render"
	StagePreprocess Stage = "preprocess"
	StageExtract    Stage = "extract"
	StageValidate   Stage = "validate"
	StagePersist    Stage = "persist"
)

// PipelineError is the structured error returned by a failed pipeline run.
// It carries the failure kind, the stage where the job died, and a message.
type PipelineError struct {
	Kind    ErrorKind
	Stage   Stage
	Message string
	Cause   error
}

// Error implements the error interface.
func (e *PipelineError) Error() string {
	if e.Stage == "" {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s at %s: %s", e.Kind, e.Stage, e.Message)
}

// Unwrap exposes the originating error for errors.Is/As.
func (e *PipelineError) Unwrap() error {
	return e.Cause
}

// NewPipelineError builds a PipelineError wrapping cause.
func NewPipelineError(kind ErrorKind, stage Stage, cause error) *PipelineError {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return &PipelineError{Kind: kind, Stage: stage, Message: msg, Cause: cause}
}

// Terminal reports whether a kind must never be retried.
func Terminal(kind ErrorKind) bool {
	switch kind {
	case KindRestrictedContent, KindNonArticle, KindSchemaViolation, KindCapacity:
		return true
	default:
		return false
	}
}

// KindOf extracts the ErrorKind from err, defaulting to KindFetch for
// unclassified failures so they stay retryable.
func KindOf(err error) ErrorKind {
	var pe *PipelineError
	if errors.As(err, &pe) {
		return pe.Kind
	}
	return KindFetch
}
