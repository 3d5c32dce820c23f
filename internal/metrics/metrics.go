// Package metrics exposes Prometheus collectors for the gateway service.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	pipelineStageTotal        *prometheus.CounterVec
	pipelineStageRetriesTotal *prometheus.CounterVec
	pipelineJobsTotal         *prometheus.CounterVec
	pipelineDurationSeconds   prometheus.Histogram
	cacheLookupsTotal         *prometheus.CounterVec
	coalescedWaitersTotal     prometheus.Counter
	capacityRejectionsTotal   prometheus.Counter
	monitorCyclesTotal        prometheus.Counter
	monitorChangesTotal       *prometheus.CounterVec
	monitorErrorsTotal        prometheus.Counter
	webhookDeliveriesTotal    *prometheus.CounterVec
	httpRequestsTotal         *prometheus.CounterVec
	httpRequestDuration       *prometheus.HistogramVec

	once sync.Once
)

// Init initializes the Prometheus collectors. Safe to call multiple times.
func Init() {
	once.Do(func() {
		pipelineStageTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aspl_pipeline_stage_total",
				Help: "Stage executions, labeled by stage and outcome.",
			},
			[]string{"stage", "outcome"},
		)
		pipelineStageRetriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aspl_pipeline_stage_retries_total",
				Help: "Stage retry attempts, labeled by stage.",
			},
			[]string{"stage"},
		)
		pipelineJobsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aspl_pipeline_jobs_total",
				Help: "Completed pipeline jobs, labeled by result.",
			},
			[]string{"result"},
		)
		pipelineDurationSeconds = promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "aspl_pipeline_duration_seconds",
				Help:    "End-to-end pipeline job latency.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 20, 45, 90},
			},
		)
		cacheLookupsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aspl_cache_lookups_total",
				Help: "Cache lookups, labeled by result (hit/miss).",
			},
			[]string{"result"},
		)
		coalescedWaitersTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "aspl_coalesced_waiters_total",
				Help: "Resolve calls that joined an in-flight pipeline run.",
			},
		)
		capacityRejectionsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "aspl_capacity_rejections_total",
				Help: "Resolve calls rejected because the worker pool was full.",
			},
		)
		monitorCyclesTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "aspl_monitor_cycles_total",
				Help: "Completed monitoring cycles.",
			},
		)
		monitorChangesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aspl_monitor_changes_total",
				Help: "Emitted change events, labeled by kind.",
			},
			[]string{"kind"},
		)
		monitorErrorsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "aspl_monitor_errors_total",
				Help: "Monitoring re-checks that failed and were deferred.",
			},
		)
		webhookDeliveriesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aspl_webhook_deliveries_total",
				Help: "Webhook delivery attempts, labeled by result.",
			},
			[]string{"result"},
		)
		httpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "aspl_http_requests_total",
				Help: "HTTP requests, labeled by method and status code.",
			},
			[]string{"method", "code"},
		)
		httpRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "aspl_http_request_duration_seconds",
				Help:    "HTTP request latencies, labeled by method and route.",
				Buckets: []float64{0.005, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 15},
			},
			[]string{"method", "route"},
		)
	})
}

// ObserveStage records one stage execution outcome.
func ObserveStage(stage, outcome string) {
	if pipelineStageTotal != nil {
		pipelineStageTotal.WithLabelValues(stage, outcome).Inc()
	}
}

// ObserveStageRetry records a retried stage attempt.
func ObserveStageRetry(stage string) {
	if pipelineStageRetriesTotal != nil {
		pipelineStageRetriesTotal.WithLabelValues(stage).Inc()
	}
}

// ObserveJob records a finished pipeline job and its latency.
func ObserveJob(result string, elapsed time.Duration) {
	if pipelineJobsTotal != nil {
		pipelineJobsTotal.WithLabelValues(result).Inc()
	}
	if pipelineDurationSeconds != nil {
		pipelineDurationSeconds.Observe(elapsed.Seconds())
	}
}

// ObserveCacheLookup records a cache hit or miss.
func ObserveCacheLookup(hit bool) {
	if cacheLookupsTotal == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	cacheLookupsTotal.WithLabelValues(result).Inc()
}

// ObserveCoalescedWaiter records a resolve call that piggybacked on an
// in-flight job.
func ObserveCoalescedWaiter() {
	if coalescedWaitersTotal != nil {
		coalescedWaitersTotal.Inc()
	}
}

// ObserveCapacityRejection records a pool-saturation rejection.
func ObserveCapacityRejection() {
	if capacityRejectionsTotal != nil {
		capacityRejectionsTotal.Inc()
	}
}

// ObserveMonitorCycle records one completed monitor cycle.
func ObserveMonitorCycle() {
	if monitorCyclesTotal != nil {
		monitorCyclesTotal.Inc()
	}
}

// ObserveChange records one emitted change event.
func ObserveChange(kind string) {
	if monitorChangesTotal != nil {
		monitorChangesTotal.WithLabelValues(kind).Inc()
	}
}

// ObserveMonitorError records a failed monitored re-check.
func ObserveMonitorError() {
	if monitorErrorsTotal != nil {
		monitorErrorsTotal.Inc()
	}
}

// ObserveWebhookDelivery records one webhook POST attempt.
func ObserveWebhookDelivery(ok bool) {
	if webhookDeliveriesTotal == nil {
		return
	}
	result := "error"
	if ok {
		result = "ok"
	}
	webhookDeliveriesTotal.WithLabelValues(result).Inc()
}

// ObserveHTTPRequest records a served HTTP request.
func ObserveHTTPRequest(method, route string, code int, elapsed time.Duration) {
	if httpRequestsTotal != nil {
		httpRequestsTotal.WithLabelValues(method, strconv.Itoa(code)).Inc()
	}
	if httpRequestDuration != nil {
		httpRequestDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
	}
}
