// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package cli

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jeranaias/ollama-ai/internal/ollama"
)

// doctorTimeout bounds each network check.
const doctorTimeout = 5 * time.Second

// =============================================================================
// HEALTH CHECK TYPES
// =============================================================================

// CheckStatus represents the status of a health check.
type CheckStatus int

const (
	CheckPass CheckStatus = iota
	CheckWarn
	CheckFail
)

// String returns the string representation of the check status.
func (s CheckStatus) String() string {
	switch s {
	case CheckPass:
		return "pass"
	case CheckWarn:
		return "warn"
	case CheckFail:
		return "fail"
	default:
		return "unknown"
	}
}

// Symbol returns the bracketed marker for the status.
func (s CheckStatus) Symbol() string {
	switch s {
	case CheckPass:
		return RenderStatus("ok")
	case CheckWarn:
		return RenderStatus("warn")
	default:
		return RenderStatus("fail")
	}
}

// HealthCheck represents a single health check result.
type HealthCheck struct {
	Name    string `json:"name"`
	Status  string `json:"status"`
	Message string `json:"message"`
	Fix     string `json:"fix,omitempty"`

	status CheckStatus
}

func (c *HealthCheck) set(status CheckStatus, message, fix string) *HealthCheck {
	c.status = status
	c.Status = status.String()
	c.Message = message
	c.Fix = fix
	return c
}

// Render returns the check as one line, plus the suggested fix when it did
// not pass.
func (c *HealthCheck) Render() string {
	result := fmt.Sprintf("%s %s", c.status.Symbol(), c.Message)
	if c.status != CheckPass && c.Fix != "" {
		result += "\n" + DimStyle.Render("   -> "+c.Fix)
	}
	return result
}

// =============================================================================
// COMMAND
// =============================================================================

func (a *app) newDoctorCommand() *cobra.Command {
	var (
		model  string
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Check the configuration and the connection to the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			checks := a.runChecks(cmd, model)

			failed := 0
			for _, c := range checks {
				if c.status == CheckFail {
					failed++
				}
			}

			out := cmd.OutOrStdout()
			if asJSON {
				if err := writeJSON(out, checks); err != nil {
					return err
				}
			} else {
				renderChecks(out, checks)
			}

			if failed > 0 {
				return fmt.Errorf("%d health check(s) failed", failed)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "also check that this model is available locally")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	return cmd
}

func renderChecks(w io.Writer, checks []*HealthCheck) {
	passed, warned, failed := 0, 0, 0
	for _, c := range checks {
		fmt.Fprintln(w, c.Render())
		switch c.status {
		case CheckPass:
			passed++
		case CheckWarn:
			warned++
		case CheckFail:
			failed++
		}
	}

	parts := []string{fmt.Sprintf("%d passed", passed)}
	if warned > 0 {
		parts = append(parts, WarningStyle.Render(fmt.Sprintf("%d warning", warned)))
	}
	if failed > 0 {
		parts = append(parts, ErrorStyle.Render(fmt.Sprintf("%d failed", failed)))
	}
	fmt.Fprintln(w, DimStyle.Render(strings.Repeat("-", 41)))
	fmt.Fprintln(w, strings.Join(parts, ", "))
}

// runChecks stops after the first failure the later checks depend on.
func (a *app) runChecks(cmd *cobra.Command, model string) []*HealthCheck {
	cfgCheck := &HealthCheck{Name: "config"}
	client, settings, err := a.client(cmd)
	if err != nil {
		return []*HealthCheck{cfgCheck.set(CheckFail, fmt.Sprintf("Config invalid: %v", err), "Run: ollama-ai config init --force")}
	}
	checks := []*HealthCheck{cfgCheck.set(CheckPass, "Config valid, server "+settings.Credentials.Address, "")}

	server := checkServer(cmd.Context(), client)
	checks = append(checks, server)
	if server.status == CheckFail {
		return checks
	}
	return append(checks, checkModels(cmd.Context(), client, model))
}

// checkServer requests the server root, which answers with a plain text
// banner.
func checkServer(ctx context.Context, client *ollama.Client) *HealthCheck {
	check := &HealthCheck{Name: "server"}

	ctx, cancel := context.WithTimeout(ctx, doctorTimeout)
	defer cancel()

	_, err := client.Request(ctx, "/", nil, ollama.WithMethod("GET"), ollama.WithStream(false))
	switch {
	case err == nil:
		return check.set(CheckPass, "Server reachable at "+client.Address(), "")
	case ollama.StatusCode(err) != 0:
		return check.set(CheckWarn, fmt.Sprintf("Server returned status %d", ollama.StatusCode(err)), "Restart the server: ollama serve")
	default:
		return check.set(CheckFail, "Server not reachable at "+client.Address(), "Run: ollama serve")
	}
}

// checkModels lists local models and, when model is set, looks for it.
func checkModels(ctx context.Context, client *ollama.Client, model string) *HealthCheck {
	check := &HealthCheck{Name: "models"}

	ctx, cancel := context.WithTimeout(ctx, doctorTimeout)
	defer cancel()

	list, err := client.Tags(ctx, ollama.WithStream(false))
	if err != nil {
		return check.set(CheckFail, fmt.Sprintf("Could not list models: %v", err), "")
	}
	var resp []ollama.ListModelsResponse
	if err := ollama.DecodeInto(list, &resp); err != nil || len(resp) != 1 {
		return check.set(CheckWarn, "Unexpected api/tags response", "")
	}
	models := resp[0].Models

	if model == "" {
		if len(models) == 0 {
			return check.set(CheckWarn, "No local models", "Run: ollama-ai pull MODEL")
		}
		return check.set(CheckPass, fmt.Sprintf("%d local model(s)", len(models)), "")
	}

	for _, m := range models {
		if m.Name == model || strings.HasPrefix(m.Name, model+":") {
			return check.set(CheckPass, "Model available: "+m.Name, "")
		}
	}
	return check.set(CheckWarn, "Model not downloaded: "+model, "Run: ollama-ai pull "+model)
}
