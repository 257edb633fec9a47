// Copyright (C) 2025 Dyne.org foundation
// designed, written and maintained by Denis Roio <jaromil@dyne.org>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	apperrors "localagent/internal/errors"
	"localagent/internal/theme"
	"localagent/internal/tools"
)

const (
	DefaultModel         = "qwen2.5-coder:7b"
	DefaultAPIURL        = "http://localhost:11434/v1"
	DefaultMaxIterations = 20
	DefaultConfigFile    = "localagent.json"

	defaultAPIKey = "ollama"
)

// Config represents the application configuration
type Config struct {
	APIKey             string            `json:"api_key,omitempty"`
	APIURL             string            `json:"api_url,omitempty"`
	Model              string            `json:"model"`
	Temperature        *float32          `json:"temperature,omitempty"`
	MaxTokens          *int              `json:"max_tokens,omitempty"`
	WorkingRoot        string            `json:"working_root,omitempty"`
	MaxIterations      int               `json:"max_iterations,omitempty"`
	InlineToolsOnly    bool              `json:"inline_tools_only,omitempty"`
	ToolLimits         ToolLimits        `json:"tool_limits,omitempty"`
	ToolTimeouts       ToolTimeouts      `json:"tool_timeouts,omitempty"`
	Interpreters       map[string]string `json:"interpreters,omitempty"`
	DenyPatterns       []string          `json:"deny_patterns,omitempty"`
	AuditDB            string            `json:"audit_db,omitempty"`
	CommandHistoryFile string            `json:"command_history_file,omitempty"`
	Colors             map[string]string `json:"colors,omitempty"`
}

// ToolLimits configures resource limits for tool execution.
type ToolLimits struct {
	MaxReadBytes        int   `json:"max_read_bytes,omitempty"`
	MaxStreamBytes      int   `json:"max_stream_bytes,omitempty"`
	MaxOutputBytes      int   `json:"max_output_bytes,omitempty"`
	MaxFileSizeBytes    int64 `json:"max_file_size_bytes,omitempty"`
	MaxDirectoryEntries int   `json:"max_directory_entries,omitempty"`
}

// ToolTimeouts configures tool execution timeouts.
type ToolTimeouts struct {
	DefaultSeconds int            `json:"default_seconds,omitempty"`
	PerToolSeconds map[string]int `json:"per_tool_seconds,omitempty"`
}

// DefaultConfig returns a config with default values
func DefaultConfig() *Config {
	temperature := float32(0.1)
	maxTokens := 4096
	limits := tools.DefaultLimits()
	return &Config{
		APIKey:        defaultAPIKey,
		APIURL:        DefaultAPIURL,
		Model:         DefaultModel,
		Temperature:   &temperature,
		MaxTokens:     &maxTokens,
		WorkingRoot:   ".",
		MaxIterations: DefaultMaxIterations,
		ToolLimits: ToolLimits{
			MaxReadBytes:        limits.MaxReadBytes,
			MaxStreamBytes:      limits.MaxStreamBytes,
			MaxOutputBytes:      limits.MaxOutputBytes,
			MaxFileSizeBytes:    limits.MaxFileSizeBytes,
			MaxDirectoryEntries: limits.MaxDirectoryEntries,
		},
	}
}

// LoadConfig loads configuration from a JSON or YAML file when it exists,
// then applies environment overrides. A missing file is not an error.
func LoadConfig(filepath string) (*Config, error) {
	config := DefaultConfig()

	if filepath != "" {
		data, err := os.ReadFile(filepath)
		switch {
		case err == nil:
			if isYAMLPath(filepath) {
				data, err = yamlToJSON(data)
				if err != nil {
					return nil, apperrors.Wrap(apperrors.CodeConfig, fmt.Sprintf("invalid config %s", filepath), err)
				}
			}
			normalized, err := normalizeConfigJSON(data)
			if err != nil {
				return nil, apperrors.Wrap(apperrors.CodeConfig, fmt.Sprintf("invalid config %s", filepath), err)
			}
			if err := json.Unmarshal(normalized, config); err != nil {
				return nil, apperrors.Wrap(apperrors.CodeConfig, fmt.Sprintf("invalid config %s", filepath), err)
			}
		case !os.IsNotExist(err):
			return nil, apperrors.Wrap(apperrors.CodeConfig, fmt.Sprintf("read config %s", filepath), err)
		}
	}

	// Env overrides (apply regardless of whether config file exists)
	if val := os.Getenv("OLLAMA_HOST"); val != "" {
		config.APIURL = val
	}
	if val := os.Getenv("LOCALAGENT_MODEL"); val != "" {
		config.Model = val
	}
	if val := os.Getenv("LOCALAGENT_ROOT"); val != "" {
		config.WorkingRoot = val
	}
	if val := os.Getenv("LOCALAGENT_API_KEY"); val != "" {
		config.APIKey = val
	}

	// Set defaults for any missing values
	if config.Model == "" {
		config.Model = DefaultModel
	}
	if config.APIKey == "" {
		config.APIKey = defaultAPIKey
	}
	if config.WorkingRoot == "" {
		config.WorkingRoot = "."
	}
	if config.MaxIterations <= 0 {
		config.MaxIterations = DefaultMaxIterations
	}

	apiURL, err := NormalizeAPIURL(config.APIURL)
	if err != nil {
		return nil, err
	}
	config.APIURL = apiURL

	return config, nil
}

// NormalizeAPIURL turns an Ollama host such as "localhost:11434" into the
// base URL of its OpenAI-compatible endpoint.
func NormalizeAPIURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultAPIURL, nil
	}
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return "", apperrors.New(apperrors.CodeConfig, fmt.Sprintf("invalid api_url %q", raw))
	}
	u.Path = strings.TrimRight(u.Path, "/")
	if u.Path == "" {
		u.Path = "/v1"
	}
	return u.String(), nil
}

// ToolLimitsConfig returns tool limits for runtime enforcement.
func (c *Config) ToolLimitsConfig() tools.Limits {
	return tools.Limits{
		MaxReadBytes:        c.ToolLimits.MaxReadBytes,
		MaxStreamBytes:      c.ToolLimits.MaxStreamBytes,
		MaxOutputBytes:      c.ToolLimits.MaxOutputBytes,
		MaxFileSizeBytes:    c.ToolLimits.MaxFileSizeBytes,
		MaxDirectoryEntries: c.ToolLimits.MaxDirectoryEntries,
	}
}

// ToolTimeoutsConfig returns timeout configuration for tools.
func (c *Config) ToolTimeoutsConfig() tools.TimeoutConfig {
	perTool := make(map[string]time.Duration, len(c.ToolTimeouts.PerToolSeconds))
	for name, seconds := range c.ToolTimeouts.PerToolSeconds {
		if seconds <= 0 {
			continue
		}
		perTool[name] = time.Duration(seconds) * time.Second
	}

	var defaultTimeout time.Duration
	if c.ToolTimeouts.DefaultSeconds > 0 {
		defaultTimeout = time.Duration(c.ToolTimeouts.DefaultSeconds) * time.Second
	}

	return tools.TimeoutConfig{
		Default: defaultTimeout,
		PerTool: perTool,
	}
}

// ValidationWarning represents a non-fatal configuration issue
type ValidationWarning struct {
	Field   string
	Message string
}

// Validate checks the configuration for common issues and returns warnings
func (c *Config) Validate(registry *tools.Registry) []ValidationWarning {
	var warnings []ValidationWarning

	if c.Temperature != nil {
		temp := *c.Temperature
		if temp < 0 || temp > 2 {
			warnings = append(warnings, ValidationWarning{
				Field:   "temperature",
				Message: fmt.Sprintf("temperature %.2f is outside recommended range [0, 2]", temp),
			})
		}
	}

	if c.MaxTokens != nil {
		tokens := *c.MaxTokens
		if tokens <= 0 {
			warnings = append(warnings, ValidationWarning{
				Field:   "max_tokens",
				Message: fmt.Sprintf("max_tokens %d must be positive", tokens),
			})
		}
		if tokens > 128000 {
			warnings = append(warnings, ValidationWarning{
				Field:   "max_tokens",
				Message: fmt.Sprintf("max_tokens %d exceeds typical model limits", tokens),
			})
		}
	}

	if c.MaxIterations > 100 {
		warnings = append(warnings, ValidationWarning{
			Field:   "max_iterations",
			Message: fmt.Sprintf("max_iterations %d is unusually high", c.MaxIterations),
		})
	}

	if registry != nil {
		registered := make(map[string]bool)
		for _, name := range registry.Names() {
			registered[name] = true
		}
		for name := range c.ToolTimeouts.PerToolSeconds {
			if !registered[name] {
				warnings = append(warnings, ValidationWarning{
					Field:   "tool_timeouts.per_tool_seconds",
					Message: fmt.Sprintf("tool %q is not registered", name),
				})
			}
		}
	}

	for ext, command := range c.Interpreters {
		if strings.TrimSpace(command) == "" {
			warnings = append(warnings, ValidationWarning{
				Field:   "interpreters",
				Message: fmt.Sprintf("empty interpreter for %q disables it", ext),
			})
		}
	}

	if len(c.Colors) > 0 {
		if _, err := theme.FromMap(c.Colors); err != nil {
			warnings = append(warnings, ValidationWarning{
				Field:   "colors",
				Message: fmt.Sprintf("%v; using default colors", err),
			})
		}
	}

	return warnings
}

// Theme returns the configured console colors, falling back to the
// defaults when the colors section is invalid.
func (c *Config) Theme() *theme.Theme {
	t, err := theme.FromMap(c.Colors)
	if err != nil {
		return theme.DefaultTheme()
	}
	return t
}
