// Package metrics exposes Prometheus instruments and the in-memory
// request log behind the network status endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentience_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "sentience_http_request_duration_seconds",
			Help: "HTTP request duration in seconds",
		},
		[]string{"method", "route"},
	)

	LLMRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentience_llm_requests_total",
			Help: "Model invocations by provider, path and outcome",
		},
		[]string{"provider", "path", "outcome"},
	)

	LLMLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "sentience_llm_latency_seconds",
			Help:    "Model latency in seconds, to completion or to stream open",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		},
	)

	StreamFragments = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "sentience_stream_fragments_total",
			Help: "Token fragments relayed to streaming clients",
		},
	)

	ActiveStreams = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sentience_active_streams",
			Help: "Number of open streaming responses",
		},
	)

	IntentCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentience_intents_total",
			Help: "Classified requests by intent",
		},
		[]string{"intent"},
	)

	ToolCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentience_tool_calls_total",
			Help: "Requests answered by a local tool",
		},
		[]string{"tool"},
	)

	SearchRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentience_search_requests_total",
			Help: "Web search enrichments by outcome",
		},
		[]string{"outcome"},
	)

	TaskRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sentience_task_runs_total",
			Help: "Background task executions by final status",
		},
		[]string{"status"},
	)
)
