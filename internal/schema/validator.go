// Package schema implements the Universal Article Schema validation gate.
// Every extractor draft passes through Validate before it may be cached or
// returned; nothing downstream ever sees an unvalidated record.
package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aspl-project/aspl/internal/article"
)

// MinWordCount is the default floor below which a body is judged to be
// non-article content.
const MinWordCount = 25

// MalformedDraftError reports a draft whose structure could not be decoded
// at all. The pipeline treats this as recoverable once: it re-runs the
// extractor in strict mode before giving up.
type MalformedDraftError struct {
	Reason string
}

func (e *MalformedDraftError) Error() string {
	return "malformed draft: " + e.Reason
}

// Violation reports a decodable draft that fails the schema contract:
// a required field missing, a type mismatch, or a body below the minimum
// length. Violations are terminal and never retried.
type Violation struct {
	Field  string
	Reason string
}

func (e *Violation) Error() string {
	return fmt.Sprintf("schema violation on %q: %s", e.Field, e.Reason)
}

// draft mirrors ArticleRecord with loose types so decoding distinguishes
// structural garbage from content violations.
type draft struct {
	URL           string               `json:"url"`
	CanonicalURL  string               `json:"canonical_url"`
	Title         string               `json:"title"`
	Subtitle      string               `json:"subtitle"`
	Authors       []string             `json:"authors"`
	PublishedDate *time.Time           `json:"published_date"`
	ModifiedDate  *time.Time           `json:"modified_date"`
	MainText      string               `json:"main_text"`
	Summary       string               `json:"summary"`
	Entities      *article.Entities    `json:"entities"`
	Topics        []string             `json:"topics"`
	WordCount     int                  `json:"word_count"`
	FetchedAt     *time.Time           `json:"fetched_at"`
}

// Validator is the schema gate. It is a pure function of its input: no
// external calls, no retries, deterministic outcome.
type Validator struct {
	minWordCount int
}

// New builds a Validator. minWordCount <= 0 selects the default floor.
func New(minWordCount int) *Validator {
	if minWordCount <= 0 {
		minWordCount = MinWordCount
	}
	return &Validator{minWordCount: minWordCount}
}

// Validate decodes and checks a draft, returning a finished ArticleRecord.
// Decode failures return *MalformedDraftError; contract failures return
// *Violation. now stamps fetched_at when the draft omits it.
func (v *Validator) Validate(raw json.RawMessage, now time.Time) (article.ArticleRecord, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return article.ArticleRecord{}, &MalformedDraftError{Reason: "empty draft"}
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var d draft
	if err := dec.Decode(&d); err != nil {
		return article.ArticleRecord{}, &MalformedDraftError{Reason: err.Error()}
	}

	if strings.TrimSpace(d.URL) == "" {
		return article.ArticleRecord{}, &Violation{Field: "url", Reason: "required"}
	}
	if strings.TrimSpace(d.Title) == "" {
		return article.ArticleRecord{}, &Violation{Field: "title", Reason: "required"}
	}
	if strings.TrimSpace(d.MainText) == "" {
		return article.ArticleRecord{}, &Violation{Field: "main_text", Reason: "required"}
	}
	for i, e := range entities(d).Dates {
		if strings.TrimSpace(e.Raw) == "" {
			return article.ArticleRecord{}, &Violation{
				Field:  fmt.Sprintf("entities.dates[%d].raw", i),
				Reason: "required",
			}
		}
	}

	// The upstream word count is advisory: recompute when it is absent or
	// inconsistent with the body rather than trusting it verbatim.
	words := article.CountWords(d.MainText)
	if d.WordCount != words {
		d.WordCount = words
	}
	if d.WordCount < v.minWordCount {
		return article.ArticleRecord{}, &Violation{
			Field:  "main_text",
			Reason: fmt.Sprintf("body too short (%d words, minimum %d)", d.WordCount, v.minWordCount),
		}
	}

	fetchedAt := now
	if d.FetchedAt != nil {
		fetchedAt = *d.FetchedAt
	}

	rec := article.ArticleRecord{
		URL:           d.URL,
		CanonicalURL:  d.CanonicalURL,
		Title:         strings.TrimSpace(d.Title),
		Subtitle:      d.Subtitle,
		Authors:       emptyIfNil(d.Authors),
		PublishedDate: d.PublishedDate,
		ModifiedDate:  d.ModifiedDate,
		MainText:      d.MainText,
		Summary:       d.Summary,
		Entities:      entities(d),
		Topics:        emptyIfNil(d.Topics),
		WordCount:     d.WordCount,
		FetchedAt:     fetchedAt.UTC(),
	}
	return rec, nil
}

func entities(d draft) article.Entities {
	if d.Entities == nil {
		return article.Entities{}
	}
	return *d.Entities
}

func emptyIfNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
