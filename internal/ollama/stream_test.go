// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/ollama-ai/internal/transport"
)

// =============================================================================
// SCRIPTED TRANSPORT
// =============================================================================

// scriptedTransport replays a fixed sequence of chunks.
type scriptedTransport struct {
	chunks   [][]byte
	statuses []int // per chunk; missing entries are 200
	final    int   // final response status; 0 means 200
	err      error // returned after all chunks were delivered

	calls   int
	lastReq *transport.Request
}

func (s *scriptedTransport) status(i int) int {
	if i < len(s.statuses) && s.statuses[i] != 0 {
		return s.statuses[i]
	}
	return http.StatusOK
}

func (s *scriptedTransport) finalStatus() int {
	if s.final != 0 {
		return s.final
	}
	return http.StatusOK
}

func (s *scriptedTransport) Do(ctx context.Context, req *transport.Request, onChunk transport.ChunkFunc) (*transport.Response, error) {
	s.calls++
	s.lastReq = req

	if onChunk == nil {
		if s.err != nil {
			return nil, s.err
		}
		return &transport.Response{Status: s.finalStatus(), Header: http.Header{}, Body: bytes.Join(s.chunks, nil)}, nil
	}

	var total int64
	for i, data := range s.chunks {
		if err := ctx.Err(); err != nil {
			return nil, &transport.Error{Op: "read body", Method: req.Method, URL: req.URL, Err: err}
		}
		total += int64(len(data))
		chunk := transport.Chunk{
			Data:  data,
			Total: total,
			Meta:  transport.Meta{Status: s.status(i), Header: http.Header{"X-Chunk": {"yes"}}},
		}
		if err := onChunk(chunk); err != nil {
			return nil, err
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return &transport.Response{Status: s.finalStatus(), Header: http.Header{}}, nil
}

func chunksOf(parts ...string) [][]byte {
	out := make([][]byte, len(parts))
	for i, p := range parts {
		out[i] = []byte(p)
	}
	return out
}

func newScriptedClient(t *testing.T, tr transport.Transport, serverSentEvents bool) *Client {
	t.Helper()
	client, err := NewClient(&ClientConfig{Transport: tr, ServerSentEvents: serverSentEvents})
	require.NoError(t, err)
	return client
}

// collect runs a streamed generate call and records every callback.
func collect(t *testing.T, client *Client, payload any) ([]any, []RawChunk, error) {
	t.Helper()
	seen := []any{}
	var raws []RawChunk
	result, err := client.Generate(context.Background(), payload, WithStream(true),
		WithCallback(func(value any, raw RawChunk) error {
			seen = append(seen, value)
			raws = append(raws, raw)
			return nil
		}))
	if err != nil {
		return seen, raws, err
	}
	require.Equal(t, seen, result, "result must equal the callback sequence")
	return seen, raws, nil
}

// =============================================================================
// AGGREGATOR PROPERTIES
// =============================================================================

func TestStream_ChunkingInvariance(t *testing.T) {
	body := `{"response":"Hé"}` + "\n" + `{"response":"llo 世界"}` + "\r\n" + `[1,{"done":true}]` + "\n"

	whole := &scriptedTransport{chunks: chunksOf(body)}
	want, _, err := collect(t, newScriptedClient(t, whole, false), nil)
	require.NoError(t, err)
	require.Len(t, want, 3)

	b := []byte(body)
	for i := 0; i <= len(b); i++ {
		for j := i; j <= len(b); j++ {
			tr := &scriptedTransport{chunks: [][]byte{b[:i], b[i:j], b[j:]}}
			got, _, err := collect(t, newScriptedClient(t, tr, false), nil)
			require.NoError(t, err)
			require.Equal(t, want, got, "split at %d/%d", i, j)
		}
	}
}

func TestStream_CallbackWithoutStreaming(t *testing.T) {
	tr := &scriptedTransport{chunks: chunksOf(`{"a":1}`)}
	client := newScriptedClient(t, tr, false)

	called := false
	_, err := client.Generate(context.Background(), GenerateRequest{Model: "llama2"},
		WithCallback(func(any, RawChunk) error {
			called = true
			return nil
		}))

	require.Error(t, err)
	assert.True(t, IsConfigurationError(err))
	assert.ErrorIs(t, err, ErrCallbackWithoutStreaming)
	assert.Equal(t, 0, tr.calls, "no request may be sent")
	assert.False(t, called)
}

func TestStream_MidStreamStatusFlip(t *testing.T) {
	tr := &scriptedTransport{
		chunks:   chunksOf(`{"a":1}`, `{"error":"model not found"}`),
		statuses: []int{200, 500},
	}
	client := newScriptedClient(t, tr, true)
	payload := map[string]any{"model": "nope"}

	var seen []any
	_, err := client.Generate(context.Background(), payload, WithCallback(func(value any, _ RawChunk) error {
		seen = append(seen, value)
		return nil
	}))

	require.Error(t, err)
	assert.True(t, IsRequestError(err))
	assert.Equal(t, 500, StatusCode(err))
	assert.Equal(t, []any{map[string]any{"a": 1.0}}, seen)

	var statusErr *transport.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, `{"error":"model not found"}`, string(statusErr.Body))

	var clientErr *ClientError
	require.True(t, errors.As(err, &clientErr))
	assert.Equal(t, payload, clientErr.Payload)
}

func TestStream_FinalStatusWithoutChunks(t *testing.T) {
	tr := &scriptedTransport{final: http.StatusNotFound}
	client := newScriptedClient(t, tr, true)

	_, err := client.Chat(context.Background(), ChatRequest{Model: "x"})
	require.Error(t, err)
	assert.True(t, IsRequestError(err))
	assert.Equal(t, http.StatusNotFound, StatusCode(err))
}

func TestStream_InvalidBytesDoNotBlockLaterValues(t *testing.T) {
	tr := &scriptedTransport{chunks: [][]byte{
		[]byte("{\"a\":\"x\xffy\"}"),
		[]byte(`{"b":2}`),
	}}

	got, _, err := collect(t, newScriptedClient(t, tr, true), nil)
	require.NoError(t, err)
	assert.Equal(t, []any{
		map[string]any{"a": "x�y"},
		map[string]any{"b": 2.0},
	}, got)
}

func TestStream_SplitRune(t *testing.T) {
	b := []byte(`{"response":"世"}`)
	cut := bytes.IndexByte(b, 0xe4) + 1 // inside the three-byte rune

	tr := &scriptedTransport{chunks: [][]byte{b[:cut], b[cut:]}}
	got, _, err := collect(t, newScriptedClient(t, tr, true), nil)
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{"response": "世"}}, got)
}

func TestStream_TwoChunkScenario(t *testing.T) {
	tr := &scriptedTransport{chunks: chunksOf(`{"response":"H`, `i"}`)}

	got, raws, err := collect(t, newScriptedClient(t, tr, true), GenerateRequest{Model: "llama2", Prompt: "Hi!"})
	require.NoError(t, err)

	require.Len(t, got, 1)
	assert.Equal(t, map[string]any{"response": "Hi"}, got[0])
	assert.Equal(t, `i"}`, string(raws[0].Data))
	assert.Equal(t, int64(len(`{"response":"Hi"}`)), raws[0].Bytes)
	assert.Equal(t, http.StatusOK, raws[0].Status)
	assert.Equal(t, "yes", raws[0].Header.Get("X-Chunk"))
}

func TestStream_SeveralValuesInOneChunk(t *testing.T) {
	tr := &scriptedTransport{chunks: chunksOf("{\"n\":1}\n{\"n\":2}\n{\"n\":3}\n")}

	got, raws, err := collect(t, newScriptedClient(t, tr, true), nil)
	require.NoError(t, err)
	require.Len(t, got, 3)
	for i, v := range got {
		assert.Equal(t, map[string]any{"n": float64(i + 1)}, v)
		assert.Equal(t, tr.chunks[0], raws[i].Data)
	}
}

func TestStream_CallbackErrorPropagatesUnchanged(t *testing.T) {
	stop := errors.New("stop here")
	tr := &scriptedTransport{chunks: chunksOf(`{"n":1}`, `{"n":2}`)}
	client := newScriptedClient(t, tr, true)

	calls := 0
	_, err := client.Generate(context.Background(), nil, WithCallback(func(any, RawChunk) error {
		calls++
		return stop
	}))

	require.Error(t, err)
	assert.Equal(t, stop, err)
	assert.False(t, IsRequestError(err))
	assert.Equal(t, 1, calls)
}

func TestStream_TransportErrorIsRequestError(t *testing.T) {
	cause := &transport.Error{Op: "send", Method: "POST", URL: "http://x/api/generate", Err: errors.New("connection refused")}
	tr := &scriptedTransport{err: cause}
	client := newScriptedClient(t, tr, true)
	payload := GenerateRequest{Model: "llama2"}

	_, err := client.Generate(context.Background(), payload)
	require.Error(t, err)
	assert.True(t, IsRequestError(err))
	assert.False(t, IsTimeout(err))

	var tErr *transport.Error
	require.True(t, errors.As(err, &tErr))
	assert.Equal(t, "send", tErr.Op)

	var clientErr *ClientError
	require.True(t, errors.As(err, &clientErr))
	assert.Equal(t, payload, clientErr.Payload)
}

func TestStream_TrailingContentDropped(t *testing.T) {
	tr := &scriptedTransport{chunks: chunksOf("{\"a\":1}\n{\"b\":")}

	got, _, err := collect(t, newScriptedClient(t, tr, true), nil)
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{"a": 1.0}}, got)
}

func TestStream_NoCallback(t *testing.T) {
	tr := &scriptedTransport{chunks: chunksOf(`{"a"`, `:1}`)}
	client := newScriptedClient(t, tr, true)

	result, err := client.Generate(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{"a": 1.0}}, result)
}

func TestAggregator_BufferEmptiedAfterExtraction(t *testing.T) {
	agg := newAggregator(nil)
	defer agg.release()

	chunk := func(s string) transport.Chunk {
		return transport.Chunk{Data: []byte(s), Meta: transport.Meta{Status: 200}}
	}

	require.NoError(t, agg.onChunk(chunk(`{"a":`)))
	assert.Equal(t, `{"a":`, agg.partial.String())

	require.NoError(t, agg.onChunk(chunk("1}\n  ")))
	assert.Equal(t, 0, agg.partial.Len())
	assert.Len(t, agg.events, 1)

	require.NoError(t, agg.onChunk(chunk(`{"b":2} {"c"`)))
	assert.Equal(t, `{"c"`, agg.partial.String())
	assert.Len(t, agg.events, 2)
}

// =============================================================================
// BUFFERED MODE
// =============================================================================

func TestBuffered_ParsesJSONLines(t *testing.T) {
	tr := &scriptedTransport{chunks: chunksOf("{\"a\":1}\n", "{\"a\":2}\n")}
	client := newScriptedClient(t, tr, false)

	result, err := client.Generate(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{"a": 1.0}, map[string]any{"a": 2.0}}, result)
}

func TestBuffered_StreamOverride(t *testing.T) {
	tr := &scriptedTransport{chunks: chunksOf(`{"a":1}`)}
	client := newScriptedClient(t, tr, true)

	result, err := client.Generate(context.Background(), nil, WithStream(false))
	require.NoError(t, err)
	assert.Equal(t, []any{map[string]any{"a": 1.0}}, result)
}

func TestBuffered_NonJSONPassesThrough(t *testing.T) {
	tr := &scriptedTransport{chunks: chunksOf("Ollama is running")}
	client := newScriptedClient(t, tr, false)

	result, err := client.Request(context.Background(), "/", nil, WithMethod("get"))
	require.NoError(t, err)
	assert.Equal(t, "Ollama is running", result)
	assert.Equal(t, http.MethodGet, tr.lastReq.Method)
	assert.Equal(t, "http://localhost:11434/", tr.lastReq.URL)
}

func TestBuffered_ErrorStatus(t *testing.T) {
	tr := &scriptedTransport{chunks: chunksOf(`{"error":"bad"}`), final: http.StatusBadRequest}
	client := newScriptedClient(t, tr, false)

	_, err := client.Show(context.Background(), ShowModelRequest{Name: "x"})
	require.Error(t, err)
	assert.True(t, IsRequestError(err))
	assert.Equal(t, http.StatusBadRequest, StatusCode(err))
}

// =============================================================================
// CHANNEL DELIVERY
// =============================================================================

func TestClientStream_DeliversEventsThenCloses(t *testing.T) {
	tr := &scriptedTransport{chunks: chunksOf(`{"n":1}`+"\n"+`{"n"`, `:2}`)}
	client := newScriptedClient(t, tr, false)

	var got []any
	for ev := range client.Stream(context.Background(), OpChat, nil) {
		require.NoError(t, ev.Err)
		got = append(got, ev.Value)
	}
	assert.Equal(t, []any{map[string]any{"n": 1.0}, map[string]any{"n": 2.0}}, got)
}

func TestClientStream_ErrorIsLastEvent(t *testing.T) {
	tr := &scriptedTransport{
		chunks:   chunksOf(`{"n":1}`, `oops`),
		statuses: []int{200, 503},
	}
	client := newScriptedClient(t, tr, false)

	var events []StreamEvent
	for ev := range client.Stream(context.Background(), OpGenerate, nil) {
		events = append(events, ev)
	}

	require.Len(t, events, 2)
	assert.NoError(t, events[0].Err)
	require.Error(t, events[1].Err)
	assert.Equal(t, 503, StatusCode(events[1].Err))
}

func TestClientStream_CancelClosesChannel(t *testing.T) {
	tr := &scriptedTransport{chunks: chunksOf(`{"n":1}`, `{"n":2}`, `{"n":3}`)}
	client := newScriptedClient(t, tr, false)

	ctx, cancel := context.WithCancel(context.Background())
	ch := client.Stream(ctx, OpGenerate, nil)

	first := <-ch
	require.NoError(t, first.Err)
	cancel()

	done := make(chan struct{})
	go func() {
		for range ch {
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("channel not closed after cancel")
	}
}
