// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics provides Prometheus instrumentation for Ollama client calls.
//
// A nil *Collector is valid and records nothing, so callers never need to
// guard instrumentation calls.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ollama_client"

// Outcome labels.
const (
	OutcomeOK            = "ok"
	OutcomeRequestError  = "request_error"
	OutcomeConfigError   = "configuration_error"
	OutcomeCallbackError = "callback_error"
)

// Collector groups the client metrics registered on one registry.
type Collector struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	events   *prometheus.CounterVec
	bytes    *prometheus.CounterVec
}

// New registers the client metrics on reg.
func New(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)

	return &Collector{
		requests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total API requests by operation, delivery mode and outcome.",
		}, []string{"operation", "mode", "outcome"}),

		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "API request duration in seconds, body included.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		}, []string{"operation", "mode"}),

		events: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stream_events_total",
			Help:      "JSON events decoded from streamed responses.",
		}, []string{"operation"}),

		bytes: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "response_bytes_total",
			Help:      "Raw response body bytes received.",
		}, []string{"operation"}),
	}
}

// ObserveRequest records one finished request.
func (c *Collector) ObserveRequest(operation, mode, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.requests.WithLabelValues(operation, mode, outcome).Inc()
	c.duration.WithLabelValues(operation, mode).Observe(elapsed.Seconds())
}

// AddEvents records n decoded stream events.
func (c *Collector) AddEvents(operation string, n int) {
	if c == nil || n <= 0 {
		return
	}
	c.events.WithLabelValues(operation).Add(float64(n))
}

// AddBytes records n raw response body bytes.
func (c *Collector) AddBytes(operation string, n int64) {
	if c == nil || n <= 0 {
		return
	}
	c.bytes.WithLabelValues(operation).Add(float64(n))
}
