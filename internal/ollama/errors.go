// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"errors"

	"github.com/jeranaias/ollama-ai/internal/transport"
)

// =============================================================================
// ERROR TYPES
// =============================================================================

// ErrorType categorizes client errors for handling.
type ErrorType int

const (
	ErrTypeUnknown ErrorType = iota
	// ErrTypeConfiguration is a caller mistake detected before any I/O.
	ErrTypeConfiguration
	// ErrTypeRequest is a transport failure, including non-2xx statuses
	// seen before or during streaming.
	ErrTypeRequest
)

func (t ErrorType) String() string {
	switch t {
	case ErrTypeConfiguration:
		return "configuration"
	case ErrTypeRequest:
		return "request"
	default:
		return "unknown"
	}
}

// ClientError represents an error from the Ollama client.
type ClientError struct {
	Type    ErrorType
	Message string
	Cause   error
	// Payload is the request payload of the failed call, for diagnostics.
	Payload any
}

func (e *ClientError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

func (e *ClientError) Unwrap() error {
	return e.Cause
}

// ErrCallbackWithoutStreaming is returned when a callback is supplied to a
// call whose streaming is disabled. No request is sent.
var ErrCallbackWithoutStreaming = &ClientError{
	Type:    ErrTypeConfiguration,
	Message: "you are trying to use a callback without server-sent events (streaming) enabled",
}

func requestError(cause error, payload any) *ClientError {
	return &ClientError{Type: ErrTypeRequest, Message: "request failed", Cause: cause, Payload: payload}
}

func configurationError(message string, cause error) *ClientError {
	return &ClientError{Type: ErrTypeConfiguration, Message: message, Cause: cause}
}

// =============================================================================
// ERROR PREDICATES
// =============================================================================

// IsConfigurationError checks if err is a configuration error.
func IsConfigurationError(err error) bool {
	var clientErr *ClientError
	return errors.As(err, &clientErr) && clientErr.Type == ErrTypeConfiguration
}

// IsRequestError checks if err is a request (transport) error.
func IsRequestError(err error) bool {
	var clientErr *ClientError
	return errors.As(err, &clientErr) && clientErr.Type == ErrTypeRequest
}

// IsTimeout checks if err was caused by a timeout.
func IsTimeout(err error) bool {
	var tErr *transport.Error
	if errors.As(err, &tErr) {
		return tErr.Timeout()
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// StatusCode returns the HTTP status of a failed request, or 0 if the
// failure did not carry one.
func StatusCode(err error) int {
	var statusErr *transport.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.Status
	}
	return 0
}
