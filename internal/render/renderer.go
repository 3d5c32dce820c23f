package render

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/aspl-project/aspl/internal/article"
)

// Config controls the composite renderer.
type Config struct {
	UserAgent       string
	ProbeTimeout    time.Duration
	HeadlessEnabled bool
	MaxHeadless     int
	NavTimeout      time.Duration
	// PerDomainRPS throttles requests per origin host. Zero disables
	// throttling.
	PerDomainRPS   float64
	PerDomainBurst int
	// PromoteThreshold is the detector's body-size threshold.
	PromoteThreshold int
}

// Renderer probes with plain HTTP first and promotes to a headless browser
// when the page looks client-rendered. It implements article.Renderer.
type Renderer struct {
	probe    *Probe
	headless *Headless
	detector *Detector
	logger   *zap.Logger

	mu           sync.Mutex
	limiters     map[string]*rate.Limiter
	defaultRate  rate.Limit
	defaultBurst int
}

var _ article.Renderer = (*Renderer)(nil)

// New builds the composite renderer. The headless pass is optional; without
// it, promotion-worthy pages are served from the probe body as-is.
func New(cfg Config, logger *zap.Logger) (*Renderer, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Renderer{
		probe: NewProbe(ProbeConfig{
			UserAgent: cfg.UserAgent,
			Timeout:   cfg.ProbeTimeout,
		}),
		detector: NewDetector(cfg.PromoteThreshold),
		logger:   logger,
		limiters: make(map[string]*rate.Limiter),
	}

	r.defaultRate = rate.Limit(cfg.PerDomainRPS)
	if cfg.PerDomainRPS <= 0 {
		r.defaultRate = rate.Inf
	}
	r.defaultBurst = cfg.PerDomainBurst
	if r.defaultBurst <= 0 {
		r.defaultBurst = 1
	}

	if cfg.HeadlessEnabled {
		h, err := NewHeadless(HeadlessConfig{
			MaxParallel:       cfg.MaxHeadless,
			UserAgent:         cfg.UserAgent,
			NavigationTimeout: cfg.NavTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("headless renderer: %w", err)
		}
		r.headless = h
	}
	return r, nil
}

// Close releases the headless browser allocator, if any.
func (r *Renderer) Close() {
	if r.headless != nil {
		r.headless.Close()
	}
}

// Render fetches the page, promoting to headless when needed, and
// classifies blocks and paywalls as restricted content.
func (r *Renderer) Render(ctx context.Context, pageURL string) (article.Page, error) {
	if err := r.waitDomain(ctx, pageURL); err != nil {
		return article.Page{}, err
	}

	start := time.Now()
	res, err := r.probe.Fetch(ctx, pageURL)
	if err != nil {
		return article.Page{}, err
	}
	usedJS := false

	if err := classifyRestricted(res.statusCode, res.body); err != nil {
		return article.Page{}, err
	}

	if r.headless != nil && r.detector.ShouldPromote(res.statusCode, res.body) {
		r.logger.Debug("promoting to headless render", zap.String("url", pageURL))
		promoted, err := r.headless.Fetch(ctx, pageURL)
		if err != nil {
			return article.Page{}, fmt.Errorf("headless render: %w", err)
		}
		if err := classifyRestricted(promoted.statusCode, promoted.body); err != nil {
			return article.Page{}, err
		}
		res = promoted
		usedJS = true
	}

	if res.statusCode < 200 || res.statusCode >= 300 {
		return article.Page{}, article.NewPipelineError(
			article.KindFetch, article.StageRender,
			fmt.Errorf("origin returned status %d", res.statusCode))
	}

	return article.Page{
		URL:        pageURL,
		FinalURL:   res.finalURL,
		StatusCode: res.statusCode,
		HTML:       res.body,
		UsedJS:     usedJS,
		Duration:   time.Since(start),
	}, nil
}

func (r *Renderer) waitDomain(ctx context.Context, pageURL string) error {
	domain := "unknown"
	if u, err := url.Parse(pageURL); err == nil && u.Hostname() != "" {
		domain = u.Hostname()
	}

	r.mu.Lock()
	limiter, ok := r.limiters[domain]
	if !ok {
		limiter = rate.NewLimiter(r.defaultRate, r.defaultBurst)
		r.limiters[domain] = limiter
	}
	r.mu.Unlock()

	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	return nil
}

// paywallMarkers are phrases that identify soft paywalls served with a
// 200 status.
var paywallMarkers = [][]byte{
	[]byte("subscribe to continue reading"),
	[]byte("this content is for subscribers"),
	[]byte("you have reached your article limit"),
	[]byte("please disable your ad blocker"),
	[]byte("paywall-container"),
	[]byte("piano-template"),
}

// classifyRestricted maps explicit blocks and paywalls to restricted
// content so the pipeline fails fast instead of retrying.
func classifyRestricted(statusCode int, body []byte) error {
	switch statusCode {
	case http.StatusUnauthorized, http.StatusPaymentRequired, http.StatusForbidden:
		return article.NewPipelineError(
			article.KindRestrictedContent, article.StageRender,
			fmt.Errorf("origin refused access with status %d", statusCode))
	}
	lower := bytes.ToLower(body)
	for _, marker := range paywallMarkers {
		if bytes.Contains(lower, marker) {
			return article.NewPipelineError(
				article.KindRestrictedContent, article.StageRender,
				fmt.Errorf("paywall marker %q found in page", marker))
		}
	}
	return nil
}
