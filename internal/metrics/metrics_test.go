// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCollector_Registered(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.ObserveRequest("generate", "stream", OutcomeOK, 150*time.Millisecond)
	c.AddEvents("generate", 3)
	c.AddBytes("generate", 512)

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error: %v", err)
	}

	names := make(map[string]bool)
	for _, f := range families {
		names[f.GetName()] = true
	}

	expected := []string{
		"ollama_client_requests_total",
		"ollama_client_request_duration_seconds",
		"ollama_client_stream_events_total",
		"ollama_client_response_bytes_total",
	}
	for _, name := range expected {
		if !names[name] {
			t.Errorf("metric %q not found", name)
		}
	}
}

func TestCollector_Values(t *testing.T) {
	c := New(prometheus.NewRegistry())

	c.ObserveRequest("chat", "buffered", OutcomeOK, time.Second)
	c.ObserveRequest("chat", "buffered", OutcomeOK, time.Second)
	c.ObserveRequest("chat", "stream", OutcomeRequestError, time.Second)
	c.AddEvents("chat", 2)
	c.AddEvents("chat", 0)
	c.AddBytes("chat", 10)
	c.AddBytes("chat", -1)

	if got := testutil.ToFloat64(c.requests.WithLabelValues("chat", "buffered", OutcomeOK)); got != 2 {
		t.Errorf("requests{chat,buffered,ok} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.requests.WithLabelValues("chat", "stream", OutcomeRequestError)); got != 1 {
		t.Errorf("requests{chat,stream,request_error} = %v, want 1", got)
	}
	if got := testutil.ToFloat64(c.events.WithLabelValues("chat")); got != 2 {
		t.Errorf("events{chat} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.bytes.WithLabelValues("chat")); got != 10 {
		t.Errorf("bytes{chat} = %v, want 10", got)
	}
}

func TestCollector_NilIsNoop(t *testing.T) {
	var c *Collector

	// Must not panic.
	c.ObserveRequest("tags", "buffered", OutcomeOK, time.Millisecond)
	c.AddEvents("tags", 1)
	c.AddBytes("tags", 1)
}
