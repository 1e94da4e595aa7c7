// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/jeranaias/ollama-ai/internal/config"
	"github.com/jeranaias/ollama-ai/internal/metrics"
	"github.com/jeranaias/ollama-ai/internal/ollama"
	"github.com/jeranaias/ollama-ai/internal/transport"
	"github.com/jeranaias/ollama-ai/internal/util"
)

// Exit codes.
const (
	ExitSuccess      = 0
	ExitGeneralError = 1
	ExitConfigError  = 2
)

// app carries the global flags and shared state of one invocation.
type app struct {
	configPath  string
	address     string
	bearerToken string
	stream      bool
	timeout     time.Duration
	verbose     bool
	showMetrics bool
	raw         bool

	registry *prometheus.Registry
	metrics  *metrics.Collector
}

// NewRootCommand builds the ollama-ai command tree.
func NewRootCommand(version string) *cobra.Command {
	a := &app{registry: prometheus.NewRegistry()}
	a.metrics = metrics.New(a.registry)

	root := &cobra.Command{
		Use:   "ollama-ai",
		Short: "Command-line client for the Ollama API",
		Long: `ollama-ai sends requests to an Ollama server and prints the results.

Streamed responses are printed as they arrive. Settings are read from
~/.ollama-ai/config.toml (or --config) and OLLAMA_* environment variables;
flags take precedence.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if !a.showMetrics {
				return nil
			}
			return a.writeMetrics(cmd.ErrOrStderr())
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&a.configPath, "config", "", "config file (.toml, .json, .yaml)")
	flags.StringVar(&a.address, "address", "", "server address (default http://localhost:11434)")
	flags.StringVar(&a.bearerToken, "bearer-token", "", "bearer token for the Authorization header")
	flags.BoolVar(&a.stream, "stream", false, "stream events as they arrive (overrides server_sent_events)")
	flags.DurationVar(&a.timeout, "timeout", 0, "overall request timeout, e.g. 2m (0 = none)")
	flags.BoolVarP(&a.verbose, "verbose", "v", false, "log requests to stderr")
	flags.BoolVar(&a.showMetrics, "metrics", false, "print client metrics to stderr when done")
	flags.BoolVar(&a.raw, "raw", false, "print every event as JSON instead of text")

	for _, spec := range operationCommands() {
		root.AddCommand(a.newOperationCommand(spec))
	}
	root.AddCommand(a.newRequestCommand())
	root.AddCommand(a.newConfigCommand())
	root.AddCommand(a.newDoctorCommand())

	return root
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	root := NewRootCommand(version)
	if err := root.ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintf(os.Stderr, "%s %v\n", ErrorStyle.Render("Error:"), err)
		if detail := errorDetail(err); detail != "" {
			fmt.Fprintln(os.Stderr, DimStyle.Render(detail))
		}
		os.Exit(ExitCode(err))
	}
}

// maxDetailWidth bounds the server body excerpt shown under an error.
const maxDetailWidth = 200

// errorDetail returns a one-line excerpt of the body the server sent with a
// failing status, or "" when there is none.
func errorDetail(err error) string {
	var se *transport.StatusError
	if !errors.As(err, &se) {
		return ""
	}
	body := util.SingleLine(string(se.Body))
	if body == "" {
		return ""
	}
	return "server said: " + util.Truncate(body, maxDetailWidth)
}

// ExitCode maps an error to the process exit status.
func ExitCode(err error) int {
	var verrs config.ValidateErrors
	switch {
	case err == nil:
		return ExitSuccess
	case ollama.IsConfigurationError(err), errors.As(err, &verrs):
		return ExitConfigError
	default:
		return ExitGeneralError
	}
}

// =============================================================================
// CLIENT CONSTRUCTION
// =============================================================================

// settings loads the config file and applies flag overrides.
func (a *app) settings(cmd *cobra.Command) (*config.Config, error) {
	var (
		s   *config.Config
		err error
	)
	if a.configPath != "" {
		s, err = config.LoadFromPath(a.configPath)
	} else {
		s, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if a.address != "" {
		s.Credentials.Address = config.NormalizeAddress(a.address)
	}
	if a.bearerToken != "" {
		s.Credentials.BearerToken = a.bearerToken
	}
	if cmd.Flags().Changed("timeout") {
		s.Options.Connection.Request.Timeout = a.timeout.Seconds()
	}
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return s, nil
}

// client builds a client from the effective settings, which it also returns.
func (a *app) client(cmd *cobra.Command) (*ollama.Client, *config.Config, error) {
	s, err := a.settings(cmd)
	if err != nil {
		return nil, nil, err
	}

	cfg := ollama.ConfigFromSettings(s)
	cfg.Metrics = a.metrics
	if a.verbose {
		cfg.Logger = log.New(cmd.ErrOrStderr(), "ollama-ai: ", log.LstdFlags|log.Lmicroseconds)
	}
	client, err := ollama.NewClient(cfg)
	if err != nil {
		return nil, nil, err
	}
	return client, s, nil
}

// callOptions returns the per-call options implied by the global flags.
func (a *app) callOptions(cmd *cobra.Command) []ollama.CallOption {
	if cmd.Flags().Changed("stream") {
		return []ollama.CallOption{ollama.WithStream(a.stream)}
	}
	return nil
}

// streaming reports whether a call will be streamed given the flags and the
// configured default.
func (a *app) streaming(cmd *cobra.Command, s *config.Config) bool {
	if cmd.Flags().Changed("stream") {
		return a.stream
	}
	return s.Options.ServerSentEvents
}

func (a *app) writeMetrics(w io.Writer) error {
	families, err := a.registry.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
