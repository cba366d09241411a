// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics declares the Prometheus collectors exported by report-engine.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Model call metrics
	ModelCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "report_engine_model_calls_total",
			Help: "Total number of completed model calls",
		},
		[]string{"stage", "model"},
	)

	ModelTokens = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "report_engine_model_tokens_total",
			Help: "Model tokens consumed",
		},
		[]string{"stage", "direction"},
	)

	ModelCostUSD = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "report_engine_model_cost_usd_total",
			Help: "Estimated model cost in USD",
		},
		[]string{"stage"},
	)

	ModelLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "report_engine_model_call_duration_seconds",
			Help:    "Model call latency in seconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"stage"},
	)

	ModelRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "report_engine_model_retries_total",
			Help: "Model call retries after transient failures",
		},
		[]string{"stage"},
	)

	// Pipeline metrics
	PipelineRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "report_engine_runs_total",
			Help: "Pipeline runs by flow and terminal status",
		},
		[]string{"flow", "status"},
	)

	PipelineDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "report_engine_run_duration_seconds",
			Help:    "Pipeline run duration in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10),
		},
		[]string{"flow"},
	)

	// Data quality
	QuotesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "report_engine_quotes_dropped_total",
			Help: "Extracted quotes dropped because they were not found in the source",
		},
	)

	CitationsUnresolved = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "report_engine_citations_unresolved_total",
			Help: "Inline citation markers that did not resolve to section evidence",
		},
	)
)
