package monitor

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/aspl-project/aspl/internal/article"
	"github.com/aspl-project/aspl/internal/metrics"
)

// maxConsecutiveFailures disables a subscriber after this many delivery
// failures in a row; a successful delivery resets the count.
const maxConsecutiveFailures = 5

// WebhookNotifier fans change events out to registered HTTP callbacks.
type WebhookNotifier struct {
	client  *http.Client
	clock   article.Clock
	idGen   article.IDGenerator
	logger  *zap.Logger
	timeout time.Duration

	mu   sync.Mutex
	subs map[string]*article.WebhookSubscriber
}

// NewWebhookNotifier constructs a notifier with the given per-delivery
// timeout.
func NewWebhookNotifier(
	client *http.Client,
	clock article.Clock,
	idGen article.IDGenerator,
	timeout time.Duration,
	logger *zap.Logger,
) *WebhookNotifier {
	if client == nil {
		client = &http.Client{}
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookNotifier{
		client:  client,
		clock:   clock,
		idGen:   idGen,
		logger:  logger,
		timeout: timeout,
		subs:    make(map[string]*article.WebhookSubscriber),
	}
}

// Add registers a callback. urlPrefixFilter, when non-empty, restricts
// deliveries to events whose URL has that prefix.
func (n *WebhookNotifier) Add(callbackURL, urlPrefixFilter string) (article.WebhookSubscriber, error) {
	parsed, err := url.Parse(callbackURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return article.WebhookSubscriber{}, fmt.Errorf("invalid callback url %q", callbackURL)
	}
	id, err := n.idGen.NewID()
	if err != nil {
		return article.WebhookSubscriber{}, fmt.Errorf("subscriber id: %w", err)
	}
	sub := article.WebhookSubscriber{
		ID:              id,
		CallbackURL:     callbackURL,
		URLPrefixFilter: urlPrefixFilter,
		CreatedAt:       n.clock.Now(),
		Active:          true,
	}

	n.mu.Lock()
	defer n.mu.Unlock()
	n.subs[id] = &sub
	return sub, nil
}

// Remove deletes a subscriber.
func (n *WebhookNotifier) Remove(id string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if _, ok := n.subs[id]; !ok {
		return fmt.Errorf("webhook subscriber %q not found", id)
	}
	delete(n.subs, id)
	return nil
}

// List returns subscribers sorted by ID.
func (n *WebhookNotifier) List() []article.WebhookSubscriber {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]article.WebhookSubscriber, 0, len(n.subs))
	for _, sub := range n.subs {
		out = append(out, *sub)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Notify posts the event to every active, matching subscriber in parallel
// and blocks until all deliveries settle. Delivery failures never fail the
// monitoring cycle.
func (n *WebhookNotifier) Notify(ctx context.Context, event article.ChangeEvent) {
	body, err := json.Marshal(event)
	if err != nil {
		n.logger.Error("marshal change event", zap.Error(err))
		return
	}

	n.mu.Lock()
	targets := make([]*article.WebhookSubscriber, 0, len(n.subs))
	for _, sub := range n.subs {
		if !sub.Active {
			continue
		}
		if sub.URLPrefixFilter != "" && !strings.HasPrefix(event.URL, sub.URLPrefixFilter) {
			continue
		}
		targets = append(targets, sub)
	}
	n.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)
	for _, sub := range targets {
		g.Go(func() error {
			n.deliver(gctx, sub, body)
			return nil
		})
	}
	_ = g.Wait()
}

func (n *WebhookNotifier) deliver(ctx context.Context, sub *article.WebhookSubscriber, body []byte) {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.CallbackURL, bytes.NewReader(body))
	if err != nil {
		n.recordFailure(sub, err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		n.recordFailure(sub, err)
		return
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		n.recordFailure(sub, fmt.Errorf("callback returned %d", resp.StatusCode))
		return
	}

	metrics.ObserveWebhookDelivery(true)
	n.mu.Lock()
	sub.FailureCount = 0
	n.mu.Unlock()
}

func (n *WebhookNotifier) recordFailure(sub *article.WebhookSubscriber, err error) {
	metrics.ObserveWebhookDelivery(false)

	n.mu.Lock()
	sub.FailureCount++
	disabled := sub.FailureCount >= maxConsecutiveFailures
	if disabled {
		sub.Active = false
	}
	n.mu.Unlock()

	fields := []zap.Field{
		zap.String("subscriber_id", sub.ID),
		zap.String("callback_url", sub.CallbackURL),
		zap.Error(err),
	}
	if disabled {
		n.logger.Warn("webhook subscriber disabled after repeated failures", fields...)
		return
	}
	n.logger.Warn("webhook delivery failed", fields...)
}
