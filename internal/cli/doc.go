// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package cli implements the ollama-ai command-line interface using Cobra.
//
// Each API operation has a subcommand (generate, chat, create, tags, show,
// copy, delete, pull, push, embeddings), plus request for arbitrary paths
// and config for the settings file.
//
// # Usage
//
//	ollama-ai generate llama2 "Why is the sky blue?" --stream
//	ollama-ai chat llama2 Hello --system "Answer briefly."
//	ollama-ai tags
//	echo '{"name":"llama2"}' | ollama-ai pull --payload - --stream
//	ollama-ai request /api/version -X GET
//
// Output is colored only when stdout is a terminal; NO_COLOR and FORCE_COLOR
// override the detection.
package cli
