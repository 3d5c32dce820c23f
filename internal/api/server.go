// Package api exposes the HTTP interface for the article gateway.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/aspl-project/aspl/internal/article"
	"github.com/aspl-project/aspl/internal/config"
	"github.com/aspl-project/aspl/internal/monitor"
)

// Server wires HTTP handlers to the coordinator and the change monitor.
type Server struct {
	router   chi.Router
	resolver article.Resolver
	monitor  *monitor.Monitor
	webhooks *monitor.WebhookNotifier
	cfg      config.Config
	logger   *zap.Logger
}

// NewServer constructs a Server with middleware and routes. webhooks may be
// nil when callback delivery is disabled.
func NewServer(
	resolver article.Resolver,
	mon *monitor.Monitor,
	webhooks *monitor.WebhookNotifier,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		resolver: resolver,
		monitor:  mon,
		webhooks: webhooks,
		cfg:      cfg,
		logger:   logger,
	}

	timeout := time.Duration(cfg.Server.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 150 * time.Second
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metricsMiddleware)
	r.Use(timeoutMiddleware(timeout))
	if cfg.Auth.Enabled {
		r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
	}

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	r.Get("/.well-known/aspl.json", s.manifest)

	r.Get("/article", s.getArticle)

	r.Route("/monitor", func(r chi.Router) {
		r.Post("/", s.createSubscription)
		r.Get("/", s.listSources)
		r.Delete("/{subscription_id}", s.deleteSubscription)
	})
	r.Get("/changes", s.getChanges)
	r.Post("/refresh-monitored", s.refreshMonitored)

	r.Route("/subscribe", func(r chi.Router) {
		r.Post("/", s.createWebhook)
		r.Get("/", s.listWebhooks)
		r.Delete("/{subscriber_id}", s.deleteWebhook)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) getArticle(w http.ResponseWriter, r *http.Request) {
	rawURL := strings.TrimSpace(r.URL.Query().Get("url"))
	if rawURL == "" {
		writeError(s.logger, w, http.StatusBadRequest, "url query parameter required")
		return
	}
	if _, err := article.NormalizeURL(rawURL); err != nil {
		writeError(s.logger, w, http.StatusBadRequest, err.Error())
		return
	}

	rec, err := s.resolver.Resolve(r.Context(), rawURL)
	if err != nil {
		s.writePipelineError(w, err)
		return
	}
	writeJSON(s.logger, w, http.StatusOK, rec)
}

// writePipelineError maps the error taxonomy onto HTTP statuses: capacity
// to 503, timeout to 504, every other classified failure to 422 with the
// kind and stage exposed for the caller.
func (s *Server) writePipelineError(w http.ResponseWriter, err error) {
	var pe *article.PipelineError
	if !errors.As(err, &pe) {
		if errors.Is(err, context.DeadlineExceeded) {
			writeError(s.logger, w, http.StatusGatewayTimeout, "request timed out")
			return
		}
		writeError(s.logger, w, http.StatusInternalServerError, err.Error())
		return
	}

	status := http.StatusUnprocessableEntity
	switch pe.Kind {
	case article.KindCapacity:
		status = http.StatusServiceUnavailable
	case article.KindTimeout:
		status = http.StatusGatewayTimeout
	}
	writeJSON(s.logger, w, status, map[string]string{
		"error_kind": string(pe.Kind),
		"stage":      string(pe.Stage),
		"message":    pe.Message,
	})
}

type subscribeRequest struct {
	URLs []string `json:"urls"`
}

func (s *Server) createSubscription(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(s.logger, w, http.StatusBadRequest, "invalid JSON")
		return
	}
	sub, err := s.monitor.Subscribe(req.URLs)
	if err != nil {
		writeError(s.logger, w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(s.logger, w, http.StatusAccepted, sub)
}

func (s *Server) listSources(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]any{
		"sources":       s.monitor.Sources(),
		"subscriptions": s.monitor.Subscriptions(),
	})
}

func (s *Server) deleteSubscription(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "subscription_id")
	if err := s.monitor.Unsubscribe(id); err != nil {
		writeError(s.logger, w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"subscription_id": id, "status": "removed"})
}

func (s *Server) getChanges(w http.ResponseWriter, r *http.Request) {
	var since time.Time
	if raw := r.URL.Query().Get("since_time"); raw != "" {
		parsed, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			writeError(s.logger, w, http.StatusBadRequest, "since_time must be RFC3339")
			return
		}
		since = parsed
	}
	includeUAS := true
	if raw := r.URL.Query().Get("include_uas"); raw != "" {
		includeUAS = raw != "false" && raw != "0"
	}

	events, checkpoint := s.monitor.Poll(since)
	if !includeUAS {
		events = stripBodies(events)
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{
		"events":         events,
		"new_checkpoint": checkpoint.Format(time.RFC3339Nano),
	})
}

// refreshMonitored kicks off one polling cycle outside the regular
// schedule. The cycle runs in the background so the response does not block
// on pipeline executions.
func (s *Server) refreshMonitored(w http.ResponseWriter, _ *http.Request) {
	go s.monitor.RunCycle(context.Background())
	writeJSON(s.logger, w, http.StatusAccepted, map[string]string{"status": "refresh started"})
}

// stripBodies drops the article payloads from events, leaving fingerprints
// and change metadata for callers that only track deltas.
func stripBodies(events []article.ChangeEvent) []article.ChangeEvent {
	out := make([]article.ChangeEvent, len(events))
	for i, evt := range events {
		evt.PreviousArticle = nil
		evt.CurrentArticle = nil
		out[i] = evt
	}
	return out
}

type webhookRequest struct {
	CallbackURL     string `json:"callback_url"`
	URLPrefixFilter string `json:"url_prefix_filter"`
}

func (s *Server) createWebhook(w http.ResponseWriter, r *http.Request) {
	if s.webhooks == nil {
		writeError(s.logger, w, http.StatusNotImplemented, "webhook delivery disabled")
		return
	}
	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.CallbackURL == "" {
		writeError(s.logger, w, http.StatusBadRequest, "callback_url required")
		return
	}
	sub, err := s.webhooks.Add(req.CallbackURL, req.URLPrefixFilter)
	if err != nil {
		writeError(s.logger, w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(s.logger, w, http.StatusCreated, sub)
}

func (s *Server) listWebhooks(w http.ResponseWriter, _ *http.Request) {
	if s.webhooks == nil {
		writeError(s.logger, w, http.StatusNotImplemented, "webhook delivery disabled")
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]any{"subscribers": s.webhooks.List()})
}

func (s *Server) deleteWebhook(w http.ResponseWriter, r *http.Request) {
	if s.webhooks == nil {
		writeError(s.logger, w, http.StatusNotImplemented, "webhook delivery disabled")
		return
	}
	id := chi.URLParam(r, "subscriber_id")
	if err := s.webhooks.Remove(id); err != nil {
		writeError(s.logger, w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(s.logger, w, http.StatusOK, map[string]string{"subscriber_id": id, "status": "removed"})
}

func (s *Server) manifest(w http.ResponseWriter, _ *http.Request) {
	writeJSON(s.logger, w, http.StatusOK, map[string]any{
		"service_name": "ASPL - Article Schema Protocol Layer",
		"version":      "0.1.0",
		"description": "A semantic gateway that transforms article webpages into " +
			"machine-readable Universal Article Schema JSON.",
		"endpoints": []map[string]any{
			{
				"path":          "/article",
				"method":        "GET",
				"action":        "fetch_article",
				"input":         map[string]string{"url": "string (the target article URL)"},
				"output_schema": "ArticleRecord",
			},
			{
				"path":          "/monitor",
				"method":        "POST",
				"action":        "add_monitor",
				"input":         map[string]string{"urls": "list of strings"},
				"output_schema": "Subscription",
			},
			{
				"path":          "/monitor",
				"method":        "GET",
				"action":        "list_monitors",
				"output_schema": "List[MonitoredSource]",
			},
			{
				"path":          "/changes",
				"method":        "GET",
				"action":        "poll_changes",
				"input":         map[string]string{"since_time": "RFC3339 checkpoint", "include_uas": "bool"},
				"output_schema": "List[ChangeEvent]",
			},
			{
				"path":   "/refresh-monitored",
				"method": "POST",
				"action": "refresh_monitored",
			},
			{
				"path":          "/subscribe",
				"method":        "POST",
				"action":        "add_webhook",
				"input":         map[string]string{"callback_url": "string", "url_prefix_filter": "string"},
				"output_schema": "WebhookSubscriber",
			},
		},
	})
}

func writeJSON(logger *zap.Logger, w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logger.Error("write JSON failed", zap.Error(err))
	}
}

func writeError(logger *zap.Logger, w http.ResponseWriter, status int, msg string) {
	writeJSON(logger, w, status, map[string]string{"error": msg})
}
