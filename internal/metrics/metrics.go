// Thessia - Killmail Ingestion and Real-Time Distribution
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/EVE-KILL/Thessia

// Package metrics declares the Prometheus collectors for the pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Queue Metrics
	QueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "thessia_queue_depth",
			Help: "Jobs waiting in the durable queue",
		},
		[]string{"queue"},
	)

	QueueEnqueued = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thessia_queue_enqueued_total",
			Help: "Jobs accepted by the queue",
		},
		[]string{"queue", "priority"},
	)

	QueueDeduplicated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thessia_queue_deduplicated_total",
			Help: "Enqueue calls skipped because a job with the same dedupe key was pending",
		},
		[]string{"queue"},
	)

	QueueCompleted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thessia_queue_completed_total",
			Help: "Jobs acknowledged after successful processing",
		},
		[]string{"queue"},
	)

	QueueRetried = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thessia_queue_retried_total",
			Help: "Jobs rescheduled after a failed attempt",
		},
		[]string{"queue"},
	)

	QueueFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thessia_queue_failed_total",
			Help: "Jobs dropped after exhausting attempts or failing permanently",
		},
		[]string{"queue", "reason"}, // reason: "exhausted", "permanent"
	)

	JobDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "thessia_job_duration_seconds",
			Help:    "Time spent processing one job",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"queue", "result"},
	)

	// Enrichment Metrics
	EnrichmentDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "thessia_enrichment_duration_seconds",
			Help:    "Time to enrich one raw killmail",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
		},
	)

	EnrichmentLookupMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thessia_enrichment_lookup_misses_total",
			Help: "Reference lookups that degraded to an empty value",
		},
		[]string{"kind"},
	)

	KillmailsPersisted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "thessia_killmails_persisted_total",
			Help: "Enriched killmails upserted into storage",
		},
	)

	// External API Metrics
	ExternalRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thessia_external_requests_total",
			Help: "Requests sent to external APIs",
		},
		[]string{"api", "status"},
	)

	ExternalRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "thessia_external_request_duration_seconds",
			Help:    "External API request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"api"},
	)

	// Circuit Breaker Metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Token Lifecycle Metrics
	TokenRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thessia_token_refreshes_total",
			Help: "SSO token refresh attempts",
		},
		[]string{"result"}, // result: "success", "recoverable", "terminal"
	)

	PollingDeactivations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "thessia_polling_deactivations_total",
			Help: "Users whose polling was permanently disabled after a terminal credential error",
		},
	)

	// Source Metrics
	SourceDiscovered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thessia_source_discovered_total",
			Help: "Killmail references seen by a source adapter",
		},
		[]string{"source", "outcome"}, // outcome: "new", "known"
	)

	SourceErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thessia_source_errors_total",
			Help: "Source adapter iterations that failed",
		},
		[]string{"source"},
	)

	// Bus Metrics
	BusPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "thessia_bus_published_total",
			Help: "Enriched killmails published on the distribution channel",
		},
	)

	BusReceived = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "thessia_bus_received_total",
			Help: "Enriched killmails received by this gateway",
		},
	)

	BusDeduplicated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "thessia_bus_deduplicated_total",
			Help: "Bus messages dropped as duplicates",
		},
	)

	// Gateway Metrics
	GatewayConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "thessia_gateway_connections",
			Help: "Open client WebSocket connections",
		},
	)

	GatewayDeliveries = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "thessia_gateway_deliveries_total",
			Help: "Killmail messages delivered to clients",
		},
	)

	GatewaySubscriptionRejects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "thessia_gateway_subscription_rejects_total",
			Help: "Subscription requests rejected for invalid topics",
		},
	)

	GatewayDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "thessia_gateway_dropped_total",
			Help: "Clients disconnected because their send buffer was full",
		},
	)

	// HTTP Metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "thessia_http_requests_total",
			Help: "HTTP requests served",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "thessia_http_request_duration_seconds",
			Help:    "HTTP request latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordJob records the outcome of one processed job.
func RecordJob(queue string, duration time.Duration, err error) {
	result := "success"
	if err != nil {
		result = "failure"
	}
	JobDuration.WithLabelValues(queue, result).Observe(duration.Seconds())
}

// RecordExternalRequest records one external API call.
func RecordExternalRequest(api, status string, duration time.Duration) {
	ExternalRequests.WithLabelValues(api, status).Inc()
	ExternalRequestDuration.WithLabelValues(api).Observe(duration.Seconds())
}

// RecordDiscovery records a killmail reference seen by a source.
func RecordDiscovery(source string, isNew bool) {
	outcome := "known"
	if isNew {
		outcome = "new"
	}
	SourceDiscovered.WithLabelValues(source, outcome).Inc()
}

// RecordHTTPRequest records one served HTTP request.
func RecordHTTPRequest(method, route, status string, duration time.Duration) {
	HTTPRequestsTotal.WithLabelValues(method, route, status).Inc()
	HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}
