// Package cache defines the key-value store holding validated article
// records, keyed by normalized URL, with TTL-based expiry.
package cache

import (
	"context"
	"time"

	"github.com/aspl-project/aspl/internal/article"
)

// Entry is the unit stored per URL. Entries are superseded, never mutated:
// writing for a URL atomically replaces the prior entry.
type Entry struct {
	URL         string                `json:"url"`
	Record      article.ArticleRecord `json:"record"`
	Fingerprint string                `json:"fingerprint"`
	FetchedAt   time.Time             `json:"fetched_at"`
	ExpiresAt   time.Time             `json:"expires_at"`
}

// Store is the storage contract shared by the coordinator, the pipeline's
// persist stage, and the change monitor. Get returns ok=false for missing
// or expired keys. Set replaces any prior entry for the URL atomically.
type Store interface {
	Get(ctx context.Context, url string) (Entry, bool, error)
	Set(ctx context.Context, entry Entry) error
	Delete(ctx context.Context, url string) error
}
