// Package render fetches article pages. A cheap plain-HTTP probe runs
// first; pages that look JavaScript-dependent are promoted to a headless
// browser pass.
package render

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
)

// ProbeConfig controls the plain-HTTP probe.
type ProbeConfig struct {
	UserAgent string
	Timeout   time.Duration
}

// Probe performs the first-pass fetch with a Colly collector.
type Probe struct {
	cfg           ProbeConfig
	baseCollector *colly.Collector
}

// NewProbe builds a probe fetcher.
func NewProbe(cfg ProbeConfig) *Probe {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	c := colly.NewCollector(colly.Async(false))
	c.IgnoreRobotsTxt = true
	// Keep bodies on non-2xx responses so paywall pages served with an
	// error status can still be classified.
	c.ParseHTTPErrorResponse = true
	c.WithTransport(newHTTPTransport())
	return &Probe{cfg: cfg, baseCollector: c}
}

// probeResult is the raw probe outcome before classification.
type probeResult struct {
	finalURL   string
	statusCode int
	body       []byte
}

// Fetch executes a single GET. Non-2xx statuses are returned as results,
// not errors; classification happens in the renderer.
func (p *Probe) Fetch(ctx context.Context, url string) (probeResult, error) {
	var (
		result   probeResult
		fetchErr error
	)

	collector := p.baseCollector.Clone()
	if p.cfg.UserAgent != "" {
		collector.UserAgent = p.cfg.UserAgent
	}
	collector.SetRequestTimeout(p.cfg.Timeout)

	collector.OnResponse(func(r *colly.Response) {
		result = probeResult{
			finalURL:   r.Request.URL.String(),
			statusCode: r.StatusCode,
			body:       append([]byte(nil), r.Body...),
		}
	})
	collector.OnError(func(r *colly.Response, err error) {
		// Colly reports non-2xx statuses through OnError; keep the body
		// so paywall pages can still be classified.
		if r != nil && r.StatusCode != 0 {
			result = probeResult{
				finalURL:   r.Request.URL.String(),
				statusCode: r.StatusCode,
				body:       append([]byte(nil), r.Body...),
			}
			return
		}
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return probeResult{}, fmt.Errorf("probe fetch canceled: %w", ctx.Err())
	case err := <-done:
		if fetchErr != nil {
			return probeResult{}, fmt.Errorf("probe fetch failed: %w", fetchErr)
		}
		if err != nil && result.statusCode == 0 {
			return probeResult{}, fmt.Errorf("probe visit failed: %w", err)
		}
		return result, nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
