// Package metrics exposes Prometheus collectors for the gateway.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dynamo_gateway_chat_requests_total",
			Help: "Chat requests by intent and resulting envelope type",
		},
		[]string{"intent", "envelope"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dynamo_gateway_chat_duration_seconds",
			Help:    "End-to-end chat orchestration duration in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80},
		},
		[]string{"intent"},
	)

	ProviderLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "dynamo_gateway_provider_latency_seconds",
			Help:    "Model provider call latency in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80},
		},
		[]string{"provider"},
	)

	ProviderFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dynamo_gateway_provider_failures_total",
			Help: "Model provider failures by provider and failure class",
		},
		[]string{"provider", "class"},
	)

	ContextSource = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dynamo_gateway_context_blocks_total",
			Help: "Assembled context blocks by source",
		},
		[]string{"source"},
	)

	SearchDegraded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dynamo_gateway_search_degraded_total",
			Help: "Search calls that failed or timed out and degraded to empty context",
		},
	)

	QuotaRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "dynamo_gateway_quota_rejections_total",
			Help: "Requests rejected by the daily quota",
		},
	)

	ActiveChatSockets = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "dynamo_gateway_active_chat_sockets",
			Help: "Number of open WebSocket chat sessions",
		},
	)
)
