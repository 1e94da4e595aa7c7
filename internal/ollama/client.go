// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package ollama

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/jeranaias/ollama-ai/internal/config"
	"github.com/jeranaias/ollama-ai/internal/metrics"
	"github.com/jeranaias/ollama-ai/internal/transport"
)

// =============================================================================
// CLIENT CONFIGURATION
// =============================================================================

// ClientConfig holds configuration options for the Ollama client.
type ClientConfig struct {
	// Address is the server base URL (default: http://localhost:11434/).
	// It is normalized to end with exactly one "/".
	Address string

	// BearerToken, when set, is sent as "Authorization: Bearer <token>".
	BearerToken string

	// ServerSentEvents makes streaming the default for every call.
	// WithStream overrides it per call.
	ServerSentEvents bool

	// Adapter is config.AdapterHTTP (default) or config.AdapterOneShot.
	Adapter string

	// Timeouts passed through to the transport. Zero disables each one.
	Timeout      time.Duration
	OpenTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// RequestsPerSecond throttles outgoing requests (0 = unlimited).
	RequestsPerSecond float64

	// Transport replaces the HTTP transport built from the fields above.
	Transport transport.Transport

	// Logger receives debug output (default: discarded).
	Logger *log.Logger

	// Metrics records request outcomes. Nil disables metrics.
	Metrics *metrics.Collector
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() *ClientConfig {
	return &ClientConfig{
		Address: config.DefaultAddress + "/",
		Adapter: config.AdapterHTTP,
	}
}

// ConfigFromSettings builds a client configuration from loaded settings.
func ConfigFromSettings(s *config.Config) *ClientConfig {
	req := s.Options.Connection.Request
	return &ClientConfig{
		Address:           s.Credentials.Address,
		BearerToken:       s.Credentials.BearerToken,
		ServerSentEvents:  s.Options.ServerSentEvents,
		Adapter:           s.Options.Connection.Adapter,
		Timeout:           req.TimeoutDuration(),
		OpenTimeout:       req.OpenTimeoutDuration(),
		ReadTimeout:       req.ReadTimeoutDuration(),
		WriteTimeout:      req.WriteTimeoutDuration(),
		RequestsPerSecond: s.Options.Connection.RequestsPerSecond,
	}
}

// settings converts the configuration back to the file representation so
// both share one set of validation rules.
func (c *ClientConfig) settings() *config.Config {
	s := config.Default()
	s.Credentials.Address = c.Address
	s.Credentials.BearerToken = c.BearerToken
	s.Options.ServerSentEvents = c.ServerSentEvents
	s.Options.Connection.Adapter = c.Adapter
	s.Options.Connection.RequestsPerSecond = c.RequestsPerSecond
	s.Options.Connection.Request = config.RequestConfig{
		Timeout:      c.Timeout.Seconds(),
		OpenTimeout:  c.OpenTimeout.Seconds(),
		ReadTimeout:  c.ReadTimeout.Seconds(),
		WriteTimeout: c.WriteTimeout.Seconds(),
	}
	s.SetDefaults()
	return s
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Operation names a server endpoint.
type Operation string

const (
	OpGenerate   Operation = "generate"
	OpChat       Operation = "chat"
	OpCreate     Operation = "create"
	OpTags       Operation = "tags"
	OpShow       Operation = "show"
	OpCopy       Operation = "copy"
	OpDelete     Operation = "delete"
	OpPull       Operation = "pull"
	OpPush       Operation = "push"
	OpEmbeddings Operation = "embeddings"
)

type endpoint struct {
	method string
	path   string
	// payload is false for endpoints that take no request body.
	payload bool
	// acknowledge discards the body and reports true on success.
	acknowledge bool
}

var endpoints = map[Operation]endpoint{
	OpGenerate:   {method: http.MethodPost, path: "api/generate", payload: true},
	OpChat:       {method: http.MethodPost, path: "api/chat", payload: true},
	OpCreate:     {method: http.MethodPost, path: "api/create", payload: true},
	OpTags:       {method: http.MethodGet, path: "api/tags"},
	OpShow:       {method: http.MethodPost, path: "api/show", payload: true},
	OpCopy:       {method: http.MethodPost, path: "api/copy", payload: true, acknowledge: true},
	OpDelete:     {method: http.MethodDelete, path: "api/delete", payload: true, acknowledge: true},
	OpPull:       {method: http.MethodPost, path: "api/pull", payload: true},
	OpPush:       {method: http.MethodPost, path: "api/push", payload: true},
	OpEmbeddings: {method: http.MethodPost, path: "api/embeddings", payload: true},
}

// Operations returns every known operation in a stable order.
func Operations() []Operation {
	return []Operation{
		OpGenerate, OpChat, OpCreate, OpTags, OpShow,
		OpCopy, OpDelete, OpPull, OpPush, OpEmbeddings,
	}
}

// =============================================================================
// CALL OPTIONS
// =============================================================================

type callOptions struct {
	stream   *bool
	callback EventFunc
	method   string
}

// CallOption customizes a single call.
type CallOption func(*callOptions)

// WithStream overrides the client's ServerSentEvents default for one call.
func WithStream(stream bool) CallOption {
	return func(o *callOptions) {
		o.stream = &stream
	}
}

// WithCallback registers fn to receive each event of a streamed call.
// Supplying a callback without streaming enabled is a configuration error.
func WithCallback(fn EventFunc) CallOption {
	return func(o *callOptions) {
		o.callback = fn
	}
}

// WithMethod sets the HTTP verb used by Request (default: POST).
func WithMethod(method string) CallOption {
	return func(o *callOptions) {
		o.method = method
	}
}

// =============================================================================
// CLIENT
// =============================================================================

// Client issues requests against the Ollama API.
//
// A Client is immutable after construction and safe for concurrent use.
// Every request owns its own stream state.
//
// Example:
//
//	client, err := ollama.NewClient(&ollama.ClientConfig{ServerSentEvents: true})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	events, err := client.Generate(ctx, ollama.GenerateRequest{Model: "llama2", Prompt: "Hi"},
//	    ollama.WithCallback(func(value any, raw ollama.RawChunk) error {
//	        fmt.Print(value.(map[string]any)["response"])
//	        return nil
//	    }))
type Client struct {
	config    ClientConfig
	transport transport.Transport
	logger    *log.Logger
	metrics   *metrics.Collector
}

// NewClient validates cfg and creates a client. A nil cfg uses
// DefaultConfig. Invalid settings yield a configuration error.
func NewClient(cfg *ClientConfig) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	settings := cfg.settings()
	if err := settings.Validate(); err != nil {
		return nil, configurationError("invalid client configuration", err)
	}

	c := &Client{
		config:    *cfg,
		transport: cfg.Transport,
		logger:    cfg.Logger,
		metrics:   cfg.Metrics,
	}
	c.config.Address = settings.Credentials.Address
	c.config.Adapter = settings.Options.Connection.Adapter

	if c.logger == nil {
		c.logger = log.New(io.Discard, "", 0)
	}
	if c.transport == nil {
		c.transport = transport.NewHTTP(transport.Options{
			Adapter:           transport.Adapter(c.config.Adapter),
			Timeout:           c.config.Timeout,
			OpenTimeout:       c.config.OpenTimeout,
			ReadTimeout:       c.config.ReadTimeout,
			WriteTimeout:      c.config.WriteTimeout,
			RequestsPerSecond: c.config.RequestsPerSecond,
		})
	}
	return c, nil
}

// Address returns the normalized server base URL.
func (c *Client) Address() string {
	return c.config.Address
}

// Generate calls api/generate.
func (c *Client) Generate(ctx context.Context, payload any, opts ...CallOption) (any, error) {
	return c.Do(ctx, OpGenerate, payload, opts...)
}

// Chat calls api/chat.
func (c *Client) Chat(ctx context.Context, payload any, opts ...CallOption) (any, error) {
	return c.Do(ctx, OpChat, payload, opts...)
}

// Create calls api/create.
func (c *Client) Create(ctx context.Context, payload any, opts ...CallOption) (any, error) {
	return c.Do(ctx, OpCreate, payload, opts...)
}

// Tags lists local models (GET api/tags). It sends no payload.
func (c *Client) Tags(ctx context.Context, opts ...CallOption) (any, error) {
	return c.Do(ctx, OpTags, nil, opts...)
}

// Show calls api/show.
func (c *Client) Show(ctx context.Context, payload any, opts ...CallOption) (any, error) {
	return c.Do(ctx, OpShow, payload, opts...)
}

// Copy calls api/copy and reports true on success.
func (c *Client) Copy(ctx context.Context, payload any, opts ...CallOption) (bool, error) {
	return c.acknowledge(c.Do(ctx, OpCopy, payload, opts...))
}

// Delete calls DELETE api/delete and reports true on success.
func (c *Client) Delete(ctx context.Context, payload any, opts ...CallOption) (bool, error) {
	return c.acknowledge(c.Do(ctx, OpDelete, payload, opts...))
}

// Pull calls api/pull.
func (c *Client) Pull(ctx context.Context, payload any, opts ...CallOption) (any, error) {
	return c.Do(ctx, OpPull, payload, opts...)
}

// Push calls api/push.
func (c *Client) Push(ctx context.Context, payload any, opts ...CallOption) (any, error) {
	return c.Do(ctx, OpPush, payload, opts...)
}

// Embeddings calls api/embeddings.
func (c *Client) Embeddings(ctx context.Context, payload any, opts ...CallOption) (any, error) {
	return c.Do(ctx, OpEmbeddings, payload, opts...)
}

func (c *Client) acknowledge(_ any, err error) (bool, error) {
	if err != nil {
		return false, err
	}
	return true, nil
}

// Do runs op through the endpoint table. Endpoints that take no payload
// ignore it. Copy and delete return true instead of the response body.
//
// Streamed calls return []any of decoded events in arrival order. Buffered
// calls return []any (one value per response line) or the raw body string
// when it is not JSON.
func (c *Client) Do(ctx context.Context, op Operation, payload any, opts ...CallOption) (any, error) {
	ep, ok := endpoints[op]
	if !ok {
		return nil, configurationError("unknown operation '"+string(op)+"'", nil)
	}
	if !ep.payload {
		payload = nil
	}

	o := applyOptions(opts)
	result, err := c.request(ctx, string(op), ep.method, ep.path, payload, o)
	if err != nil {
		return nil, err
	}
	if ep.acknowledge {
		return true, nil
	}
	return result, nil
}

// Request calls an arbitrary path relative to the server address. The verb
// defaults to POST; use WithMethod to change it. A nil payload sends no body.
func (c *Client) Request(ctx context.Context, path string, payload any, opts ...CallOption) (any, error) {
	o := applyOptions(opts)
	method := http.MethodPost
	if o.method != "" {
		method = strings.ToUpper(o.method)
	}
	return c.request(ctx, "custom", method, strings.TrimPrefix(path, "/"), payload, o)
}

func applyOptions(opts []CallOption) callOptions {
	var o callOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// =============================================================================
// REQUEST LIFECYCLE
// =============================================================================

func (c *Client) request(ctx context.Context, op, method, path string, payload any, o callOptions) (any, error) {
	stream := c.config.ServerSentEvents
	if o.stream != nil {
		stream = *o.stream
	}
	mode := "buffered"
	if stream {
		mode = "stream"
	}

	start := time.Now()
	outcome := metrics.OutcomeOK
	defer func() {
		c.metrics.ObserveRequest(op, mode, outcome, time.Since(start))
	}()

	if o.callback != nil && !stream {
		outcome = metrics.OutcomeConfigError
		return nil, ErrCallbackWithoutStreaming
	}

	var body []byte
	if payload != nil {
		var err error
		body, err = json.Marshal(payload)
		if err != nil {
			outcome = metrics.OutcomeConfigError
			return nil, configurationError("failed to encode payload", err)
		}
	}

	id := uuid.NewString()
	req := &transport.Request{
		Method: method,
		URL:    c.config.Address + path,
		Header: c.headers(id),
		Body:   body,
	}
	c.logger.Printf("[%s] %s %s mode=%s", id, method, path, mode)

	var (
		result any
		err    error
	)
	if stream {
		result, err = c.streamed(ctx, op, req, payload, o.callback, &outcome)
	} else {
		result, err = c.buffered(ctx, op, req, payload, &outcome)
	}
	if err != nil {
		c.logger.Printf("[%s] %s %s failed after %s: %v", id, method, path, time.Since(start), err)
		return nil, err
	}

	if values, ok := result.([]any); ok {
		c.logger.Printf("[%s] %s %s done in %s events=%d", id, method, path, time.Since(start), len(values))
	} else {
		c.logger.Printf("[%s] %s %s done in %s", id, method, path, time.Since(start))
	}
	return result, nil
}

func (c *Client) headers(id string) http.Header {
	h := make(http.Header)
	h.Set("Content-Type", "application/json")
	h.Set("X-Request-Id", id)
	if c.config.BearerToken != "" {
		h.Set("Authorization", "Bearer "+c.config.BearerToken)
	}
	return h
}

// buffered performs a non-streamed exchange and parses the full body.
func (c *Client) buffered(ctx context.Context, op string, req *transport.Request, payload any, outcome *string) (any, error) {
	resp, err := c.transport.Do(ctx, req, nil)
	if err != nil {
		*outcome = metrics.OutcomeRequestError
		return nil, requestError(err, payload)
	}
	c.metrics.AddBytes(op, int64(len(resp.Body)))

	if !transport.IsSuccess(resp.Status) {
		*outcome = metrics.OutcomeRequestError
		return nil, requestError(&transport.StatusError{
			Status: resp.Status,
			Header: resp.Header,
			Body:   resp.Body,
		}, payload)
	}
	return ParseBuffered(NormalizeText(resp.Body)), nil
}

// streamed performs a chunked exchange through a fresh aggregator.
//
// Errors returned by callback come back unchanged; everything else is a
// request error.
func (c *Client) streamed(ctx context.Context, op string, req *transport.Request, payload any, callback EventFunc, outcome *string) (any, error) {
	agg := newAggregator(callback)
	resp, err := c.transport.Do(ctx, req, agg.onChunk)

	values := agg.values()
	total := agg.total
	dropped := agg.release()

	c.metrics.AddBytes(op, total)
	c.metrics.AddEvents(op, len(values))

	if err != nil {
		if agg.callbackErr != nil {
			*outcome = metrics.OutcomeCallbackError
			return nil, agg.callbackErr
		}
		*outcome = metrics.OutcomeRequestError
		return nil, requestError(err, payload)
	}

	if !transport.IsSuccess(resp.Status) {
		*outcome = metrics.OutcomeRequestError
		return nil, requestError(&transport.StatusError{
			Status: resp.Status,
			Header: resp.Header,
		}, payload)
	}

	if dropped > 0 {
		c.logger.Printf("%s %s: dropped %d bytes of trailing unparsed content", req.Method, req.URL, dropped)
	}
	return values, nil
}
