// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package transport

import (
	"bytes"
	"context"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Adapter selects how connections are managed.
type Adapter string

const (
	// AdapterHTTP keeps idle connections in a pool for reuse.
	AdapterHTTP Adapter = "http"
	// AdapterOneShot disables keep-alives so every connection lives for
	// exactly one exchange.
	AdapterOneShot Adapter = "http-oneshot"
)

// DefaultChunkSize is the read buffer size used for streamed bodies.
const DefaultChunkSize = 32 * 1024

// Options configures the HTTP transport. Zero durations disable the
// corresponding timeout.
type Options struct {
	Adapter Adapter

	// Timeout bounds the whole exchange, body included.
	Timeout time.Duration
	// OpenTimeout bounds dialing and the TLS handshake.
	OpenTimeout time.Duration
	// ReadTimeout bounds every read from the connection and the wait for
	// response headers.
	ReadTimeout time.Duration
	// WriteTimeout bounds every write to the connection.
	WriteTimeout time.Duration

	// RequestsPerSecond throttles outgoing exchanges (0 = unlimited).
	RequestsPerSecond float64

	// ChunkSize is the streamed read buffer size (default: 32 KiB).
	ChunkSize int
}

// HTTP is a Transport backed by net/http.
//
// HTTP is safe for concurrent use; every exchange uses its own read buffer.
type HTTP struct {
	client    *http.Client
	limiter   *rate.Limiter
	chunkSize int
}

// NewHTTP builds an HTTP transport from opts.
func NewHTTP(opts Options) *HTTP {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}

	dialer := &net.Dialer{
		Timeout:   opts.OpenTimeout,
		KeepAlive: 30 * time.Second,
	}

	tr := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			conn, err := dialer.DialContext(ctx, network, addr)
			if err != nil {
				return nil, err
			}
			if opts.ReadTimeout <= 0 && opts.WriteTimeout <= 0 {
				return conn, nil
			}
			return &deadlineConn{Conn: conn, read: opts.ReadTimeout, write: opts.WriteTimeout}, nil
		},
		TLSHandshakeTimeout:   opts.OpenTimeout,
		ResponseHeaderTimeout: opts.ReadTimeout,
		DisableKeepAlives:     opts.Adapter == AdapterOneShot,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	h := &HTTP{
		client: &http.Client{
			Transport: tr,
			Timeout:   opts.Timeout,
		},
		chunkSize: opts.ChunkSize,
	}
	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		h.limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return h
}

// Do performs one exchange. The response body is closed on every return path.
func (h *HTTP) Do(ctx context.Context, req *Request, onChunk ChunkFunc) (*Response, error) {
	fail := func(op string, err error) error {
		return &Error{Op: op, Method: req.Method, URL: req.URL, Err: err}
	}

	if h.limiter != nil {
		if err := h.limiter.Wait(ctx); err != nil {
			return nil, fail("throttle", err)
		}
	}

	var body io.Reader
	if req.Body != nil {
		body = bytes.NewReader(req.Body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, req.URL, body)
	if err != nil {
		return nil, fail("build request", err)
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}

	resp, err := h.client.Do(httpReq)
	if err != nil {
		return nil, fail("send", err)
	}
	defer resp.Body.Close()

	out := &Response{Status: resp.StatusCode, Header: resp.Header}

	if onChunk == nil {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fail("read body", err)
		}
		out.Body = data
		return out, nil
	}

	meta := Meta{Status: resp.StatusCode, Header: resp.Header}
	buf := make([]byte, h.chunkSize)
	var total int64
	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			total += int64(n)
			if err := onChunk(Chunk{Data: buf[:n], Total: total, Meta: meta}); err != nil {
				return nil, err
			}
		}
		if readErr == io.EOF {
			return out, nil
		}
		if readErr != nil {
			return nil, fail("read body", readErr)
		}
	}
}

// deadlineConn refreshes the connection deadlines before every read and write.
type deadlineConn struct {
	net.Conn
	read  time.Duration
	write time.Duration
}

func (c *deadlineConn) Read(p []byte) (int, error) {
	if c.read > 0 {
		if err := c.Conn.SetReadDeadline(time.Now().Add(c.read)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Read(p)
}

func (c *deadlineConn) Write(p []byte) (int, error) {
	if c.write > 0 {
		if err := c.Conn.SetWriteDeadline(time.Now().Add(c.write)); err != nil {
			return 0, err
		}
	}
	return c.Conn.Write(p)
}
