// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTP_Buffered(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Echo-Method", r.Method)
		w.Header().Set("X-Echo-Type", r.Header.Get("Content-Type"))
		w.WriteHeader(http.StatusCreated)
		w.Write(body)
	}))
	defer server.Close()

	h := NewHTTP(Options{})
	resp, err := h.Do(context.Background(), &Request{
		Method: http.MethodDelete,
		URL:    server.URL + "/api/delete",
		Header: http.Header{"Content-Type": {"application/json"}},
		Body:   []byte(`{"name":"phi"}`),
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.Equal(t, `{"name":"phi"}`, string(resp.Body))
	assert.Equal(t, http.MethodDelete, resp.Header.Get("X-Echo-Method"))
	assert.Equal(t, "application/json", resp.Header.Get("X-Echo-Type"))
}

func TestHTTP_StreamDeliversChunksInOrder(t *testing.T) {
	parts := []string{`{"a":`, `1}`, "\n", `{"a":2}`}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		flusher := w.(http.Flusher)
		w.WriteHeader(http.StatusOK)
		for _, p := range parts {
			io.WriteString(w, p)
			flusher.Flush()
			time.Sleep(5 * time.Millisecond)
		}
	}))
	defer server.Close()

	var (
		got      strings.Builder
		lastSeen int64
		statuses []int
	)
	h := NewHTTP(Options{ChunkSize: 4})
	resp, err := h.Do(context.Background(), &Request{Method: http.MethodGet, URL: server.URL}, func(c Chunk) error {
		got.Write(c.Data)
		if c.Total <= lastSeen {
			t.Errorf("Total = %d, want > %d", c.Total, lastSeen)
		}
		lastSeen = c.Total
		statuses = append(statuses, c.Meta.Status)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, strings.Join(parts, ""), got.String())
	assert.Equal(t, int64(got.Len()), lastSeen)
	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Empty(t, resp.Body)
	for _, s := range statuses {
		assert.Equal(t, http.StatusOK, s)
	}
}

func TestHTTP_ChunkErrorReturnedUnchanged(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "data")
	}))
	defer server.Close()

	sentinel := errors.New("stop here")
	h := NewHTTP(Options{})
	_, err := h.Do(context.Background(), &Request{Method: http.MethodGet, URL: server.URL}, func(Chunk) error {
		return sentinel
	})

	if err != sentinel {
		t.Fatalf("err = %v, want sentinel", err)
	}
}

func TestHTTP_ConnectionRefused(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	h := NewHTTP(Options{OpenTimeout: time.Second})
	_, err = h.Do(context.Background(), &Request{Method: http.MethodGet, URL: "http://" + addr + "/api/tags"}, nil)

	var tErr *Error
	require.ErrorAs(t, err, &tErr)
	assert.Equal(t, "send", tErr.Op)
	assert.Equal(t, http.MethodGet, tErr.Method)
	assert.False(t, tErr.Timeout())
}

func TestHTTP_ReadTimeout(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	h := NewHTTP(Options{ReadTimeout: 50 * time.Millisecond})
	_, err := h.Do(context.Background(), &Request{Method: http.MethodGet, URL: server.URL}, nil)

	var tErr *Error
	require.ErrorAs(t, err, &tErr)
	assert.True(t, tErr.Timeout(), "expected a timeout, got %v", err)
}

func TestHTTP_CancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	h := NewHTTP(Options{RequestsPerSecond: 1})
	_, err := h.Do(ctx, &Request{Method: http.MethodGet, URL: server.URL}, nil)

	var tErr *Error
	require.ErrorAs(t, err, &tErr)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestIsSuccess(t *testing.T) {
	tests := []struct {
		status int
		want   bool
	}{
		{199, false},
		{200, true},
		{204, true},
		{299, true},
		{304, false},
		{404, false},
		{500, false},
	}

	for _, tc := range tests {
		if got := IsSuccess(tc.status); got != tc.want {
			t.Errorf("IsSuccess(%d) = %v, want %v", tc.status, got, tc.want)
		}
	}
}

func TestStatusError_Message(t *testing.T) {
	err := &StatusError{Status: 500}
	if err.Error() != "the server responded with status 500" {
		t.Errorf("Error() = %q", err.Error())
	}
}

func TestError_TimeoutFromDeadline(t *testing.T) {
	err := &Error{Op: "send", Method: "POST", URL: "http://x", Err: context.DeadlineExceeded}
	if !err.Timeout() {
		t.Error("Timeout() should be true for context.DeadlineExceeded")
	}
	if !strings.Contains(err.Error(), "POST http://x: send") {
		t.Errorf("Error() = %q", err.Error())
	}
}
