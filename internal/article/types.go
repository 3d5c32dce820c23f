// Package article defines core types shared across subsystems: the Universal
// Article Schema record, change events, monitoring subscriptions, and the
// collaborator interfaces consumed by the extraction pipeline.
package article

import "time"

// DateEntity pairs the raw date string found in the text with its normalized
// ISO-8601 form, when one could be derived.
type DateEntity struct {
	Raw        string `json:"raw"`
	Normalized string `json:"normalized,omitempty"`
}

// Entities holds named entities recognized in the article body.
type Entities struct {
	People        []string     `json:"people"`
	Organizations []string     `json:"organizations"`
	Locations     []string     `json:"locations"`
	Dates         []DateEntity `json:"dates"`
}

// Empty reports whether no entity of any kind was recognized.
func (e Entities) Empty() bool {
	return len(e.People) == 0 && len(e.Organizations) == 0 &&
		len(e.Locations) == 0 && len(e.Dates) == 0
}

// ArticleRecord is the UAS-conformant output of a successful pipeline run.
// Records are immutable once constructed; a new fetch produces a new record.
type ArticleRecord struct {
	URL           string     `json:"url"`
	CanonicalURL  string     `json:"canonical_url,omitempty"`
	Title         string     `json:"title"`
	Subtitle      string     `json:"subtitle,omitempty"`
	Authors       []string   `json:"authors"`
	PublishedDate *time.Time `json:"published_date,omitempty"`
	ModifiedDate  *time.Time `json:"modified_date,omitempty"`
	MainText      string     `json:"main_text"`
	Summary       string     `json:"summary,omitempty"`
	Entities      Entities   `json:"entities"`
	Topics        []string   `json:"topics"`
	WordCount     int        `json:"word_count"`
	FetchedAt     time.Time  `json:"fetched_at"`
}

// ChangeKind classifies a detected content change.
type ChangeKind string

// Change kinds emitted by the monitor.
const (
	ChangeCreated ChangeKind = "created"
	ChangeUpdated ChangeKind = "updated"
)

// ChangeEvent describes one detected content change for a monitored URL.
// Events are append-only and ordered by (DetectedAt, Seq).
type ChangeEvent struct {
	URL                 string         `json:"url"`
	DetectedAt          time.Time      `json:"detected_at"`
	Seq                 int64          `json:"seq"`
	ChangeKind          ChangeKind     `json:"change_kind"`
	PreviousFingerprint string         `json:"previous_fingerprint,omitempty"`
	CurrentFingerprint  string         `json:"current_fingerprint"`
	PreviousArticle     *ArticleRecord `json:"previous_article,omitempty"`
	CurrentArticle      *ArticleRecord `json:"current_article,omitempty"`
}

// Subscription groups a set of monitored URLs registered in one call.
type Subscription struct {
	ID        string    `json:"subscription_id"`
	URLs      []string  `json:"urls"`
	CreatedAt time.Time `json:"created_at"`
}

// MonitoredSource is the monitor's per-URL state. URL is always in
// normalized form.
type MonitoredSource struct {
	URL             string    `json:"url"`
	LastFingerprint string    `json:"last_fingerprint,omitempty"`
	LastCheckedAt   time.Time `json:"last_checked_at,omitempty"`
}

// WebhookSubscriber receives change events via HTTP POST callbacks.
type WebhookSubscriber struct {
	ID              string    `json:"id"`
	CallbackURL     string    `json:"callback_url"`
	URLPrefixFilter string    `json:"url_prefix_filter,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	FailureCount    int       `json:"failure_count"`
	Active          bool      `json:"is_active"`
}

// Page is the renderer's output: the DOM after navigation, plus response
// metadata used for restricted-content classification.
type Page struct {
	URL        string
	FinalURL   string
	StatusCode int
	HTML       []byte
	UsedJS     bool
	Duration   time.Duration
}
