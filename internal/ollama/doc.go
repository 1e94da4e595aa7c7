// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package ollama provides the client for the Ollama HTTP API.
//
// Every operation can run buffered or streamed. Streamed responses arrive as
// raw byte chunks that do not line up with JSON boundaries; the client
// reassembles them into discrete JSON events, hands each one to an optional
// callback in arrival order, and returns all of them when the response ends.
// Buffered responses are parsed as newline-delimited JSON, or returned as the
// raw body when they are not JSON.
//
// # Key Types
//
//   - Client: issues requests through a transport.Transport
//   - ClientConfig: address, bearer token, streaming default, timeouts
//   - Event, RawChunk: one decoded value and the chunk that completed it
//   - ClientError: configuration and request failures
//
// # Usage
//
//	client, err := ollama.NewClient(&ollama.ClientConfig{ServerSentEvents: true})
//	if err != nil {
//	    return err
//	}
//	events, err := client.Generate(ctx, ollama.GenerateRequest{
//	    Model:  "llama2",
//	    Prompt: "Hi!",
//	}, ollama.WithCallback(func(value any, raw ollama.RawChunk) error {
//	    fmt.Print(value.(map[string]any)["response"])
//	    return nil
//	}))
//
// Events can also be consumed from a channel:
//
//	for ev := range client.Stream(ctx, ollama.OpChat, request) {
//	    if ev.Err != nil {
//	        return ev.Err
//	    }
//	    handle(ev.Value)
//	}
//
// Results are opaque decoded JSON (map[string]any, []any, ...). DecodeInto
// converts them to the typed responses in this package.
package ollama
