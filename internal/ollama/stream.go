// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bytes"
	"context"
	"net/http"
	"sync"

	"github.com/jeranaias/ollama-ai/internal/transport"
)

// =============================================================================
// EVENTS
// =============================================================================

// RawChunk is the raw context of the chunk that completed an event.
type RawChunk struct {
	// Data is a copy of the chunk bytes as received.
	Data []byte
	// Bytes is the cumulative byte count of the response at this chunk.
	Bytes  int64
	Status int
	Header http.Header
}

// Event is one JSON value decoded from a streamed response.
type Event struct {
	Value any
	Raw   RawChunk
}

// EventFunc is invoked synchronously for each decoded event, before the next
// chunk is read. Returning an error aborts the stream; the error is returned
// to the caller unchanged.
type EventFunc func(value any, raw RawChunk) error

// StreamEvent is delivered on the channel returned by Client.Stream. The last
// value on a failed stream carries Err.
type StreamEvent struct {
	Event
	Err error
}

// =============================================================================
// AGGREGATOR
// =============================================================================

// partialPool reuses partial buffers across requests. A buffer is owned by
// exactly one aggregator between acquire and release.
var partialPool = sync.Pool{
	New: func() interface{} {
		return new(bytes.Buffer)
	},
}

// aggregator turns the chunks of one streamed response into ordered events.
// It is not safe for concurrent use; one is created per request.
type aggregator struct {
	callback EventFunc

	partial *bytes.Buffer
	carry   []byte // incomplete UTF-8 sequence held for the next chunk
	events  []Event
	total   int64

	callbackErr error
}

func newAggregator(callback EventFunc) *aggregator {
	buf := partialPool.Get().(*bytes.Buffer)
	buf.Reset()
	return &aggregator{callback: callback, partial: buf}
}

// release returns the partial buffer to the pool and reports how many bytes
// of unparsed content were dropped.
func (a *aggregator) release() int {
	dropped := a.partial.Len() + len(a.carry)
	a.partial.Reset()
	partialPool.Put(a.partial)
	a.partial = nil
	a.carry = nil
	return dropped
}

// onChunk is the transport.ChunkFunc for one request.
func (a *aggregator) onChunk(chunk transport.Chunk) error {
	a.total = chunk.Total

	if !transport.IsSuccess(chunk.Meta.Status) {
		return &transport.StatusError{
			Status: chunk.Meta.Status,
			Header: chunk.Meta.Header,
			Body:   append([]byte(nil), chunk.Data...),
		}
	}

	a.partial.WriteString(a.normalize(chunk.Data))

	var raw *RawChunk
	for {
		value, consumed, ok := decodeFragment(a.partial.Bytes())
		if !ok {
			return nil
		}
		a.consume(consumed)

		if raw == nil {
			raw = &RawChunk{
				Data:   append([]byte(nil), chunk.Data...),
				Bytes:  chunk.Total,
				Status: chunk.Meta.Status,
				Header: chunk.Meta.Header,
			}
		}

		if a.callback != nil {
			if err := a.callback(value, *raw); err != nil {
				a.callbackErr = err
				return err
			}
		}
		a.events = append(a.events, Event{Value: value, Raw: *raw})
	}
}

// normalize prepends any carried bytes, holds back a trailing incomplete
// UTF-8 sequence and returns the rest as valid text.
func (a *aggregator) normalize(data []byte) string {
	if len(a.carry) > 0 {
		data = append(a.carry, data...)
		a.carry = nil
	}
	if n := incompleteSuffix(data); n > 0 {
		a.carry = append([]byte(nil), data[len(data)-n:]...)
		data = data[:len(data)-n]
	}
	return NormalizeText(data)
}

// consume drops the first n bytes of the partial buffer together with any
// whitespace that follows them.
func (a *aggregator) consume(n int) {
	rest := bytes.TrimLeft(a.partial.Bytes()[n:], jsonSpace)
	if len(rest) == 0 {
		a.partial.Reset()
		return
	}
	tail := append([]byte(nil), rest...)
	a.partial.Reset()
	a.partial.Write(tail)
}

// values returns the decoded values in arrival order.
func (a *aggregator) values() []any {
	out := make([]any, len(a.events))
	for i, e := range a.events {
		out[i] = e.Value
	}
	return out
}

// =============================================================================
// CHANNEL DELIVERY
// =============================================================================

// Stream runs op in streaming mode and delivers each event on the returned
// channel. Events are sent from a single goroutine; the send for one event
// completes before the next chunk is read. The channel is closed when the
// stream ends. A failure is delivered as a final StreamEvent with Err set.
//
// Cancelling ctx aborts the stream.
func (c *Client) Stream(ctx context.Context, op Operation, payload any) <-chan StreamEvent {
	ch := make(chan StreamEvent)

	go func() {
		defer close(ch)

		_, err := c.Do(ctx, op, payload, WithStream(true), WithCallback(func(value any, raw RawChunk) error {
			select {
			case ch <- StreamEvent{Event: Event{Value: value, Raw: raw}}:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		}))

		if err != nil {
			select {
			case ch <- StreamEvent{Err: err}:
			case <-ctx.Done():
			}
		}
	}()

	return ch
}
