// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and validation for the
// Ollama client.
//
// Supports TOML, JSON and YAML configuration files, with sensible defaults,
// environment variable overrides, and validation.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/jeranaias/ollama-ai/internal/util"
)

// DefaultAddress is the Ollama server used when no address is configured.
const DefaultAddress = "http://localhost:11434"

// Adapter names accepted in options.connection.adapter.
const (
	AdapterHTTP    = "http"
	AdapterOneShot = "http-oneshot"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete client configuration.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials" json:"credentials" yaml:"credentials"`
	Options     OptionsConfig     `toml:"options" json:"options" yaml:"options"`
}

// CredentialsConfig identifies the server and how to authenticate with it.
type CredentialsConfig struct {
	// Address is the server base URL. Normalized to end with a single "/".
	Address string `toml:"address" json:"address" yaml:"address"`
	// BearerToken is sent as "Authorization: Bearer <token>" when set.
	BearerToken string `toml:"bearer_token" json:"bearer_token" yaml:"bearer_token"`
}

// OptionsConfig holds client behaviour settings.
type OptionsConfig struct {
	// ServerSentEvents enables streamed delivery by default. Individual calls
	// may override it.
	ServerSentEvents bool             `toml:"server_sent_events" json:"server_sent_events" yaml:"server_sent_events"`
	Connection       ConnectionConfig `toml:"connection" json:"connection" yaml:"connection"`
}

// ConnectionConfig configures the HTTP transport.
type ConnectionConfig struct {
	// Adapter is "http" (pooled keep-alive connections) or "http-oneshot"
	// (one connection per request).
	Adapter string `toml:"adapter" json:"adapter" yaml:"adapter"`
	// RequestsPerSecond throttles outgoing requests (0 = unlimited).
	RequestsPerSecond float64       `toml:"requests_per_second" json:"requests_per_second" yaml:"requests_per_second"`
	Request           RequestConfig `toml:"request" json:"request" yaml:"request"`
}

// RequestConfig holds the low-level timeouts, in seconds. Zero disables a
// timeout. Keys other than these four are ignored.
type RequestConfig struct {
	Timeout      float64 `toml:"timeout" json:"timeout" yaml:"timeout"`
	OpenTimeout  float64 `toml:"open_timeout" json:"open_timeout" yaml:"open_timeout"`
	ReadTimeout  float64 `toml:"read_timeout" json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout float64 `toml:"write_timeout" json:"write_timeout" yaml:"write_timeout"`
}

// TimeoutDuration returns Timeout as a time.Duration.
func (r RequestConfig) TimeoutDuration() time.Duration { return seconds(r.Timeout) }

// OpenTimeoutDuration returns OpenTimeout as a time.Duration.
func (r RequestConfig) OpenTimeoutDuration() time.Duration { return seconds(r.OpenTimeout) }

// ReadTimeoutDuration returns ReadTimeout as a time.Duration.
func (r RequestConfig) ReadTimeoutDuration() time.Duration { return seconds(r.ReadTimeout) }

// WriteTimeoutDuration returns WriteTimeout as a time.Duration.
func (r RequestConfig) WriteTimeoutDuration() time.Duration { return seconds(r.WriteTimeout) }

func seconds(s float64) time.Duration {
	if s <= 0 {
		return 0
	}
	return time.Duration(s * float64(time.Second))
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Credentials: CredentialsConfig{
			Address: DefaultAddress + "/",
		},
		Options: OptionsConfig{
			Connection: ConnectionConfig{
				Adapter: AdapterHTTP,
			},
		},
	}
}

// =============================================================================
// PATHS
// =============================================================================

// ConfigDir returns the configuration directory (~/.ollama-ai).
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, ".ollama-ai"), nil
}

// ConfigPath returns the default configuration file path.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// =============================================================================
// LOADING
// =============================================================================

// Load reads the default configuration file if it exists, falling back to
// defaults. Environment overrides are applied last.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return LoadFromPath(path)
		}
	}

	cfg := Default()
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads configuration from a specific file. The format is chosen
// by extension: .json, .yaml/.yml, anything else is TOML.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = LoadJSON(cfg, path)
	case ".yaml", ".yml":
		err = LoadYAML(cfg, path)
	default:
		err = LoadTOML(cfg, path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}

	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML decodes a TOML file into cfg. Unknown keys are logged and ignored.
func LoadTOML(cfg *Config, path string) error {
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	for _, key := range md.Undecoded() {
		log.Printf("config: ignoring unknown key %q in %s", key.String(), path)
	}
	return nil
}

// LoadJSON decodes a JSON file into cfg. Unknown keys are ignored.
func LoadJSON(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// LoadYAML decodes a YAML file into cfg. Unknown keys are ignored.
func LoadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read YAML file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode YAML file: %w", err)
	}
	return nil
}

// SaveTOML writes cfg to path atomically, creating parent directories.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.WriteFileAtomic(path, buf.Bytes(), 0o600, 0o700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// DEFAULTS AND OVERRIDES
// =============================================================================

// NormalizeAddress returns the server base URL with exactly one trailing "/".
// Blank addresses resolve to DefaultAddress.
func NormalizeAddress(address string) string {
	if strings.TrimSpace(address) == "" {
		return DefaultAddress + "/"
	}
	return strings.TrimSuffix(address, "/") + "/"
}

// SetDefaults fills zero values and normalizes the address.
func (c *Config) SetDefaults() {
	c.Credentials.Address = NormalizeAddress(c.Credentials.Address)
	if c.Options.Connection.Adapter == "" {
		c.Options.Connection.Adapter = AdapterHTTP
	}
}

// ApplyEnvOverrides applies environment variable overrides.
//
// Supported variables:
//   - OLLAMA_ADDRESS: overrides credentials.address
//   - OLLAMA_BEARER_TOKEN: overrides credentials.bearer_token
//   - OLLAMA_SERVER_SENT_EVENTS: overrides options.server_sent_events
//   - OLLAMA_TIMEOUT: overrides options.connection.request.timeout (seconds)
func (c *Config) ApplyEnvOverrides() {
	if address := os.Getenv("OLLAMA_ADDRESS"); address != "" {
		c.Credentials.Address = address
	}

	if token := os.Getenv("OLLAMA_BEARER_TOKEN"); token != "" {
		c.Credentials.BearerToken = token
	}

	if sse := os.Getenv("OLLAMA_SERVER_SENT_EVENTS"); sse != "" {
		c.Options.ServerSentEvents = sse == "1" || strings.ToLower(sse) == "true"
	}

	if timeout := os.Getenv("OLLAMA_TIMEOUT"); timeout != "" {
		if secs, err := strconv.ParseFloat(timeout, 64); err == nil {
			c.Options.Connection.Request.Timeout = secs
		}
	}
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	msgs := make([]string, 0, len(e))
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate checks the configuration and returns ValidateErrors if anything
// is wrong.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if err := validateAddress(c.Credentials.Address); err != nil {
		errs = append(errs, ValidationError{Field: "credentials.address", Message: err.Error()})
	}

	switch c.Options.Connection.Adapter {
	case AdapterHTTP, AdapterOneShot:
	default:
		errs = append(errs, ValidationError{
			Field:   "options.connection.adapter",
			Message: fmt.Sprintf("invalid adapter '%s', must be one of: %s, %s", c.Options.Connection.Adapter, AdapterHTTP, AdapterOneShot),
		})
	}

	if c.Options.Connection.RequestsPerSecond < 0 {
		errs = append(errs, ValidationError{Field: "options.connection.requests_per_second", Message: "must not be negative"})
	}

	timeouts := []struct {
		field string
		value float64
	}{
		{"options.connection.request.timeout", c.Options.Connection.Request.Timeout},
		{"options.connection.request.open_timeout", c.Options.Connection.Request.OpenTimeout},
		{"options.connection.request.read_timeout", c.Options.Connection.Request.ReadTimeout},
		{"options.connection.request.write_timeout", c.Options.Connection.Request.WriteTimeout},
	}
	for _, t := range timeouts {
		if t.value < 0 {
			errs = append(errs, ValidationError{Field: t.field, Message: "must not be negative"})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateAddress(address string) error {
	u, err := url.Parse(address)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("scheme must be http or https")
	}
	if u.Host == "" {
		return errors.New("host is required")
	}
	return nil
}
