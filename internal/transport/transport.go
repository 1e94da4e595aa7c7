// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package transport performs verbed HTTP exchanges on behalf of the Ollama
// client, delivering the response either in full or as a sequence of raw
// byte chunks together with the response metadata seen at receipt.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// =============================================================================
// EXCHANGE TYPES
// =============================================================================

// Request is a single HTTP exchange to perform.
type Request struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte // nil means no body
}

// Meta is the response metadata known when a chunk was received.
type Meta struct {
	Status int
	Header http.Header
}

// Chunk is one delivery unit of a streamed response body.
// Data is only valid for the duration of the ChunkFunc call.
type Chunk struct {
	Data  []byte
	Total int64 // cumulative bytes received, including Data
	Meta  Meta
}

// ChunkFunc receives body chunks in arrival order. A non-nil error aborts the
// exchange and is returned from Do unchanged.
type ChunkFunc func(Chunk) error

// Response is the outcome of an exchange. Body is only populated for buffered
// exchanges (nil ChunkFunc).
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Transport performs HTTP exchanges.
//
// When onChunk is nil the full body is returned in Response.Body. Otherwise
// onChunk is invoked zero or more times before Do returns. Transport failures
// are reported as *Error.
type Transport interface {
	Do(ctx context.Context, req *Request, onChunk ChunkFunc) (*Response, error)
}

// IsSuccess reports whether status is a 2xx code.
func IsSuccess(status int) bool {
	return status >= 200 && status < 300
}

// =============================================================================
// ERROR TYPES
// =============================================================================

// Error is a transport-level failure: connection refused, DNS, timeouts,
// cancellation, broken reads.
type Error struct {
	Op     string
	Method string
	URL    string
	Err    error
}

func (e *Error) Error() string {
	return e.Method + " " + e.URL + ": " + e.Op + ": " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Timeout reports whether the failure was caused by a deadline.
func (e *Error) Timeout() bool {
	if errors.Is(e.Err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(e.Err, &netErr) && netErr.Timeout()
}

// StatusError reports a response whose status is not 2xx. Body holds the
// content received with the failing status, which may be a single chunk.
type StatusError struct {
	Status int
	Header http.Header
	Body   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("the server responded with status %d", e.Status)
}
