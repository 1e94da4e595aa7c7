// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jeranaias/ollama-ai/internal/ollama"
)

// payloadFlags are the flags that shape a request payload.
type payloadFlags struct {
	payload   string
	system    string
	format    string
	modelfile string
	insecure  bool
}

// operationSpec describes the subcommand for one API operation.
type operationSpec struct {
	op      ollama.Operation
	use     string
	aliases []string
	short   string
	args    cobra.PositionalArgs
	// build turns positional arguments into a payload. It is skipped when
	// --payload is given.
	build func(args []string, f *payloadFlags) (any, error)
}

func operationCommands() []operationSpec {
	return []operationSpec{
		{
			op:    ollama.OpGenerate,
			use:   "generate MODEL PROMPT...",
			short: "Generate a completion for a prompt",
			args:  cobra.MinimumNArgs(2),
			build: func(args []string, f *payloadFlags) (any, error) {
				return ollama.GenerateRequest{
					Model:  args[0],
					Prompt: strings.Join(args[1:], " "),
					System: f.system,
					Format: f.format,
				}, nil
			},
		},
		{
			op:    ollama.OpChat,
			use:   "chat MODEL MESSAGE...",
			short: "Send a single-turn chat message",
			args:  cobra.MinimumNArgs(2),
			build: func(args []string, f *payloadFlags) (any, error) {
				var messages []ollama.Message
				if f.system != "" {
					messages = append(messages, ollama.NewSystemMessage(f.system))
				}
				messages = append(messages, ollama.NewUserMessage(strings.Join(args[1:], " ")))
				return ollama.ChatRequest{Model: args[0], Messages: messages, Format: f.format}, nil
			},
		},
		{
			op:    ollama.OpCreate,
			use:   "create NAME --modelfile FILE",
			short: "Create a model from a Modelfile",
			args:  cobra.ExactArgs(1),
			build: func(args []string, f *payloadFlags) (any, error) {
				if f.modelfile == "" {
					return nil, errors.New("--modelfile is required")
				}
				data, err := os.ReadFile(f.modelfile)
				if err != nil {
					return nil, fmt.Errorf("failed to read modelfile: %w", err)
				}
				return ollama.CreateModelRequest{Name: args[0], Modelfile: string(data)}, nil
			},
		},
		{
			op:      ollama.OpTags,
			use:     "tags",
			aliases: []string{"list", "ls"},
			short:   "List local models",
			args:    cobra.NoArgs,
			build: func([]string, *payloadFlags) (any, error) {
				return nil, nil
			},
		},
		{
			op:    ollama.OpShow,
			use:   "show MODEL",
			short: "Show model information",
			args:  cobra.ExactArgs(1),
			build: func(args []string, _ *payloadFlags) (any, error) {
				return ollama.ShowModelRequest{Name: args[0]}, nil
			},
		},
		{
			op:    ollama.OpCopy,
			use:   "copy SOURCE DESTINATION",
			short: "Copy a model",
			args:  cobra.ExactArgs(2),
			build: func(args []string, _ *payloadFlags) (any, error) {
				return ollama.CopyModelRequest{Source: args[0], Destination: args[1]}, nil
			},
		},
		{
			op:      ollama.OpDelete,
			use:     "delete MODEL",
			aliases: []string{"rm"},
			short:   "Delete a model",
			args:    cobra.ExactArgs(1),
			build: func(args []string, _ *payloadFlags) (any, error) {
				return ollama.DeleteModelRequest{Name: args[0]}, nil
			},
		},
		{
			op:    ollama.OpPull,
			use:   "pull MODEL",
			short: "Download a model from a registry",
			args:  cobra.ExactArgs(1),
			build: func(args []string, f *payloadFlags) (any, error) {
				return ollama.PullModelRequest{Name: args[0], Insecure: f.insecure}, nil
			},
		},
		{
			op:    ollama.OpPush,
			use:   "push MODEL",
			short: "Upload a model to a registry",
			args:  cobra.ExactArgs(1),
			build: func(args []string, f *payloadFlags) (any, error) {
				return ollama.PushModelRequest{Name: args[0], Insecure: f.insecure}, nil
			},
		},
		{
			op:    ollama.OpEmbeddings,
			use:   "embeddings MODEL TEXT...",
			short: "Compute an embedding for a text",
			args:  cobra.MinimumNArgs(2),
			build: func(args []string, _ *payloadFlags) (any, error) {
				return ollama.EmbeddingRequest{Model: args[0], Prompt: strings.Join(args[1:], " ")}, nil
			},
		},
	}
}

func (a *app) newOperationCommand(spec operationSpec) *cobra.Command {
	f := &payloadFlags{}

	cmd := &cobra.Command{
		Use:     spec.use,
		Aliases: spec.aliases,
		Short:   spec.short,
		Args: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("payload") {
				return nil
			}
			return spec.args(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := buildPayload(cmd, spec, f, args)
			if err != nil {
				return err
			}
			return a.run(cmd, spec.op, func(c *ollama.Client, opts []ollama.CallOption) (any, error) {
				return c.Do(cmd.Context(), spec.op, payload, opts...)
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.payload, "payload", "", "raw JSON payload, or - to read it from stdin")
	switch spec.op {
	case ollama.OpGenerate, ollama.OpChat:
		flags.StringVar(&f.system, "system", "", "system prompt")
		flags.StringVar(&f.format, "format", "", "response format (e.g. json)")
	case ollama.OpCreate:
		flags.StringVar(&f.modelfile, "modelfile", "", "path to the Modelfile")
	case ollama.OpPull, ollama.OpPush:
		flags.BoolVar(&f.insecure, "insecure", false, "allow insecure registry connections")
	}
	return cmd
}

func (a *app) newRequestCommand() *cobra.Command {
	f := &payloadFlags{}
	var method string

	cmd := &cobra.Command{
		Use:   "request PATH",
		Short: "Send a request to an arbitrary API path",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var payload any
			if f.payload != "" {
				raw, err := readPayload(cmd, f.payload)
				if err != nil {
					return err
				}
				payload = raw
			}
			return a.run(cmd, "", func(c *ollama.Client, opts []ollama.CallOption) (any, error) {
				opts = append(opts, ollama.WithMethod(method))
				return c.Request(cmd.Context(), args[0], payload, opts...)
			})
		},
	}
	cmd.Flags().StringVarP(&method, "method", "X", "POST", "HTTP method")
	cmd.Flags().StringVar(&f.payload, "payload", "", "raw JSON payload, or - to read it from stdin")
	return cmd
}

// run executes one call, printing streamed events as they arrive or the
// buffered result at the end.
func (a *app) run(cmd *cobra.Command, op ollama.Operation, call func(*ollama.Client, []ollama.CallOption) (any, error)) error {
	client, settings, err := a.client(cmd)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	opts := a.callOptions(cmd)

	if a.streaming(cmd, settings) {
		p := newEventPrinter(out, op, a.raw)
		opts = append(opts, ollama.WithCallback(p.print))
		result, err := call(client, opts)
		p.finish()
		if err != nil {
			return err
		}
		if ok, isAck := result.(bool); isAck && ok {
			fmt.Fprintln(out, RenderStatus("ok"), string(op))
		}
		return nil
	}

	result, err := call(client, opts)
	if err != nil {
		return err
	}
	return printResult(out, op, result, a.raw)
}

// buildPayload returns the --payload document when given, otherwise the
// payload built from positional arguments.
func buildPayload(cmd *cobra.Command, spec operationSpec, f *payloadFlags, args []string) (any, error) {
	if f.payload != "" {
		return readPayload(cmd, f.payload)
	}
	return spec.build(args, f)
}

// readPayload parses raw as a JSON document. "-" reads it from stdin.
func readPayload(cmd *cobra.Command, raw string) (json.RawMessage, error) {
	data := []byte(raw)
	if raw == "-" {
		in := cmd.InOrStdin()
		if isTerminal(in) {
			return nil, errors.New("--payload -: stdin is a terminal, pipe a JSON document instead")
		}
		var err error
		data, err = io.ReadAll(in)
		if err != nil {
			return nil, fmt.Errorf("failed to read payload: %w", err)
		}
	}
	if !json.Valid(data) {
		return nil, errors.New("--payload is not valid JSON")
	}
	return json.RawMessage(data), nil
}
