// Package monitor maintains subscriptions over article URLs, periodically
// re-runs the extraction pipeline for them, and surfaces content changes as
// an ordered, replayable event log consumed through a pull API.
package monitor

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/aspl-project/aspl/internal/article"
	"github.com/aspl-project/aspl/internal/cache"
	"github.com/aspl-project/aspl/internal/metrics"
)

// Config controls scheduling and event retention.
type Config struct {
	// Interval between polling cycles.
	Interval time.Duration
	// SourceTTL is the minimum age of a source's last check before it is
	// re-checked; younger sources are skipped within a cycle.
	SourceTTL time.Duration
	// MaxEvents bounds the in-memory event log; oldest events are dropped
	// beyond it. Zero keeps everything.
	MaxEvents int
}

// DefaultConfig mirrors production defaults.
func DefaultConfig() Config {
	return Config{
		Interval:  5 * time.Minute,
		SourceTTL: 5 * time.Minute,
		MaxEvents: 10000,
	}
}

// sourceState is the monitor-owned per-URL state. refs counts the
// subscriptions referencing the URL so shared sources are polled once.
type sourceState struct {
	url             string
	lastFingerprint string
	lastCheckedAt   time.Time
	refs            int
}

// Monitor owns subscriptions, monitored sources, and the change-event log.
type Monitor struct {
	resolver article.Resolver
	store    cache.Store
	clock    article.Clock
	idGen    article.IDGenerator
	notifier *WebhookNotifier
	cfg      Config
	logger   *zap.Logger

	mu      sync.Mutex
	sources map[string]*sourceState
	subs    map[string]article.Subscription
	events  []article.ChangeEvent
	seq     int64
	// watermark is the latest instant already spent, either as an event
	// stamp or an issued checkpoint. New event stamps move strictly past
	// it, so a (since, checkpoint] window can never land an event exactly
	// on a boundary a client has already consumed.
	watermark time.Time
}

// New constructs a Monitor. notifier may be nil when webhook delivery is
// disabled.
func New(
	resolver article.Resolver,
	store cache.Store,
	clock article.Clock,
	idGen article.IDGenerator,
	notifier *WebhookNotifier,
	cfg Config,
	logger *zap.Logger,
) *Monitor {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultConfig().Interval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{
		resolver: resolver,
		store:    store,
		clock:    clock,
		idGen:    idGen,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
		sources:  make(map[string]*sourceState),
		subs:     make(map[string]article.Subscription),
	}
}

// Subscribe registers urls for monitoring and returns the subscription.
// URLs already monitored through another subscription share one source.
func (m *Monitor) Subscribe(urls []string) (article.Subscription, error) {
	if len(urls) == 0 {
		return article.Subscription{}, fmt.Errorf("at least one url required")
	}
	normalized := make([]string, 0, len(urls))
	seen := make(map[string]bool, len(urls))
	for _, raw := range urls {
		key, err := article.NormalizeURL(raw)
		if err != nil {
			return article.Subscription{}, fmt.Errorf("normalize %q: %w", raw, err)
		}
		if !seen[key] {
			seen[key] = true
			normalized = append(normalized, key)
		}
	}

	id, err := m.idGen.NewID()
	if err != nil {
		return article.Subscription{}, fmt.Errorf("subscription id: %w", err)
	}
	sub := article.Subscription{
		ID:        id,
		URLs:      normalized,
		CreatedAt: m.clock.Now(),
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[id] = sub
	for _, u := range normalized {
		if state, ok := m.sources[u]; ok {
			state.refs++
			continue
		}
		m.sources[u] = &sourceState{url: u, refs: 1}
	}
	return sub, nil
}

// Unsubscribe removes a subscription; sources no longer referenced by any
// subscription stop being monitored.
func (m *Monitor) Unsubscribe(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	sub, ok := m.subs[id]
	if !ok {
		return fmt.Errorf("subscription %q not found", id)
	}
	delete(m.subs, id)
	for _, u := range sub.URLs {
		state, ok := m.sources[u]
		if !ok {
			continue
		}
		state.refs--
		if state.refs <= 0 {
			delete(m.sources, u)
		}
	}
	return nil
}

// Subscriptions lists registered subscriptions sorted by ID.
func (m *Monitor) Subscriptions() []article.Subscription {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]article.Subscription, 0, len(m.subs))
	for _, sub := range m.subs {
		out = append(out, sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Sources lists monitored sources with their last-known state.
func (m *Monitor) Sources() []article.MonitoredSource {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]article.MonitoredSource, 0, len(m.sources))
	for _, s := range m.sources {
		out = append(out, article.MonitoredSource{
			URL:             s.url,
			LastFingerprint: s.lastFingerprint,
			LastCheckedAt:   s.lastCheckedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out
}

// Run executes polling cycles until the context finishes.
func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.RunCycle(ctx)
		}
	}
}

// RunCycle re-checks every due source once. Exposed so cycles can be driven
// explicitly, both by tests and by the manual refresh endpoint.
func (m *Monitor) RunCycle(ctx context.Context) {
	now := m.clock.Now()

	m.mu.Lock()
	due := make([]string, 0, len(m.sources))
	for u, s := range m.sources {
		if s.lastCheckedAt.IsZero() || now.Sub(s.lastCheckedAt) >= m.cfg.SourceTTL {
			due = append(due, u)
		}
	}
	m.mu.Unlock()
	sort.Strings(due)

	for _, u := range due {
		if ctx.Err() != nil {
			return
		}
		m.checkSource(ctx, u)
	}
	metrics.ObserveMonitorCycle()
}

// checkSource forces a fresh pipeline resolution for one URL and emits a
// change event when the content fingerprint moved. A failed re-check emits
// nothing and leaves the stored fingerprint untouched; the source is
// retried on the next cycle.
func (m *Monitor) checkSource(ctx context.Context, url string) {
	prior, hadPrior, err := m.store.Get(ctx, url)
	if err != nil {
		m.logger.Warn("prior cache read failed", zap.String("url", url), zap.Error(err))
	}

	rec, err := m.resolver.ResolveFresh(ctx, url)
	if err != nil {
		metrics.ObserveMonitorError()
		m.logger.Warn("monitored re-check failed", zap.String("url", url), zap.Error(err))
		return
	}
	fp := article.Fingerprint(rec)

	m.mu.Lock()
	state, ok := m.sources[url]
	if !ok {
		// Unsubscribed mid-cycle.
		m.mu.Unlock()
		return
	}

	var event *article.ChangeEvent
	switch {
	case state.lastFingerprint == "":
		event = m.appendEventLocked(url, article.ChangeCreated, "", nil, fp, rec)
	case state.lastFingerprint != fp:
		var prev *article.ArticleRecord
		if hadPrior {
			prevRec := prior.Record
			prev = &prevRec
		}
		event = m.appendEventLocked(url, article.ChangeUpdated, state.lastFingerprint, prev, fp, rec)
	}
	state.lastFingerprint = fp
	state.lastCheckedAt = m.clock.Now()
	m.mu.Unlock()

	if event != nil {
		metrics.ObserveChange(string(event.ChangeKind))
		m.logger.Info("change detected",
			zap.String("url", url),
			zap.String("kind", string(event.ChangeKind)),
		)
		if m.notifier != nil {
			m.notifier.Notify(ctx, *event)
		}
	}
}

// appendEventLocked appends a new event; callers hold the mutex. Stamps are
// forced strictly past the watermark, so detected_at never ties with an
// earlier event or a checkpoint already handed to a client.
func (m *Monitor) appendEventLocked(
	url string,
	kind article.ChangeKind,
	prevFP string,
	prev *article.ArticleRecord,
	fp string,
	rec article.ArticleRecord,
) *article.ChangeEvent {
	stamp := m.clock.Now()
	if !stamp.After(m.watermark) {
		stamp = m.watermark.Add(time.Nanosecond)
	}
	m.watermark = stamp

	m.seq++
	current := rec
	event := article.ChangeEvent{
		URL:                 url,
		DetectedAt:          stamp,
		Seq:                 m.seq,
		ChangeKind:          kind,
		PreviousFingerprint: prevFP,
		CurrentFingerprint:  fp,
		PreviousArticle:     prev,
		CurrentArticle:      &current,
	}
	m.events = append(m.events, event)
	if m.cfg.MaxEvents > 0 && len(m.events) > m.cfg.MaxEvents {
		m.events = append([]article.ChangeEvent(nil), m.events[len(m.events)-m.cfg.MaxEvents:]...)
	}
	return &event
}

// Poll returns every event with detected_at in (since, checkpoint], ordered
// by detected_at, together with the new checkpoint. Clients persist the
// checkpoint and pass it as since on the next call; consecutive polls with
// advancing checkpoints observe each event exactly once. The issued
// checkpoint advances the watermark, so an event detected at the same clock
// instant as a poll is stamped after the checkpoint and delivered next time.
func (m *Monitor) Poll(since time.Time) ([]article.ChangeEvent, time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	checkpoint := m.clock.Now()
	if checkpoint.Before(m.watermark) {
		checkpoint = m.watermark
	}
	m.watermark = checkpoint

	out := make([]article.ChangeEvent, 0)
	for _, evt := range m.events {
		if evt.DetectedAt.After(since) && !evt.DetectedAt.After(checkpoint) {
			out = append(out, evt)
		}
	}
	return out, checkpoint
}
