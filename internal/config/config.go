// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package config provides configuration loading and management for polychat.
//
// Configuration is TOML with sensible defaults, environment variable
// overrides, and validation.
//
// Configuration file locations (in order of precedence):
//   - ~/.polychat/config.toml
//   - Built-in defaults
package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/polychat-tui/internal/catalog"
	"github.com/jeranaias/polychat-tui/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete polychat configuration.
type Config struct {
	// DefaultModel overrides the catalog's default model when set.
	// Must be a catalog id, e.g. "gpt-oss-120b".
	DefaultModel string `toml:"default_model"`

	// API is the OpenRouter connection configuration.
	API APIConfig `toml:"api"`

	// Title configures chat title generation.
	Title TitleConfig `toml:"title"`

	// UI is the terminal UI configuration.
	UI UIConfig `toml:"ui"`

	// Models replaces the built-in model catalog when non-empty.
	Models []catalog.Definition `toml:"models"`
}

// APIConfig contains OpenRouter connection configuration.
type APIConfig struct {
	// OpenRouterKey is the OpenRouter API key.
	OpenRouterKey string `toml:"openrouter_key"`
	// BaseURL overrides the OpenRouter API base URL (for proxies).
	BaseURL string `toml:"base_url"`
	// MaxRetries is the connection attempt cap per request.
	MaxRetries int `toml:"max_retries"`
	// RequestsPerMinute is the client-side rate limit.
	RequestsPerMinute int `toml:"requests_per_minute"`
}

// TitleConfig contains chat title generation configuration.
type TitleConfig struct {
	// ModelID is the provider id of the model used for titles.
	ModelID string `toml:"model_id"`
}

// UIConfig contains UI configuration.
type UIConfig struct {
	// Theme is the UI theme: "dark", "light", "auto"
	Theme string `toml:"theme"`
	// ShowTokens displays token counts under assistant messages.
	ShowTokens bool `toml:"show_tokens"`
	// CompactMode uses a more compact layout.
	CompactMode bool `toml:"compact_mode"`
	// MarkdownWidth is the render width for assistant markdown (0 = auto).
	MarkdownWidth int `toml:"markdown_width"`
	// ExportFormat is the transcript export format: "markdown" or "json".
	ExportFormat string `toml:"export_format"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		API: APIConfig{
			BaseURL:           "https://openrouter.ai/api/v1",
			MaxRetries:        3,
			RequestsPerMinute: 30,
		},

		Title: TitleConfig{
			ModelID: "deepseek/deepseek-chat-v3.1:free",
		},

		UI: UIConfig{
			Theme:        "dark",
			ShowTokens:   true,
			ExportFormat: "markdown",
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// Dir returns the polychat configuration directory path.
func Dir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".polychat"), nil
}

// Path returns the path to the TOML config file.
func Path() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// EnsureDir ensures the config directory exists.
func EnsureDir() error {
	dir, err := Dir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// ensureSecurePermissions checks and fixes permissions on the config file.
// The file carries the API key, so it must be owner read/write only.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	if mode := info.Mode().Perm(); mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}

	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads the configuration from the default file, falling back to
// built-in defaults when no file exists. Environment overrides are applied
// last, then the result is validated.
func Load() (*Config, error) {
	path, err := Path()
	if err != nil {
		return loadDefaults()
	}

	if _, statErr := os.Stat(path); statErr != nil {
		return loadDefaults()
	}

	return LoadFromPath(path)
}

// loadDefaults builds the default config with env overrides applied.
func loadDefaults() (*Config, error) {
	cfg := Default()
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFromPath loads the configuration from a specific TOML file with full
// validation.
func LoadFromPath(path string) (*Config, error) {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to decode TOML file %s: %w", path, err)
	}

	fillDefaults(cfg)
	cfg.ApplyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// fillDefaults fills in any missing values with defaults.
func fillDefaults(cfg *Config) {
	defaults := Default()

	if cfg.API.BaseURL == "" {
		cfg.API.BaseURL = defaults.API.BaseURL
	}
	if cfg.API.MaxRetries == 0 {
		cfg.API.MaxRetries = defaults.API.MaxRetries
	}
	if cfg.API.RequestsPerMinute == 0 {
		cfg.API.RequestsPerMinute = defaults.API.RequestsPerMinute
	}
	if cfg.Title.ModelID == "" {
		cfg.Title.ModelID = defaults.Title.ModelID
	}
	if cfg.UI.Theme == "" {
		cfg.UI.Theme = defaults.UI.Theme
	}
	if cfg.UI.ExportFormat == "" {
		cfg.UI.ExportFormat = defaults.UI.ExportFormat
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := Path()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file with 0600 permissions.
// The write is atomic so a crash mid-save never leaves a truncated config.
func SaveTOML(cfg *Config, path string) error {
	if err := EnsureDir(); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	fmt.Fprintln(&buf, "# polychat configuration file")
	fmt.Fprintln(&buf, "# Generated by polychat - edit with care")
	fmt.Fprintln(&buf, "")

	encoder := toml.NewEncoder(&buf)
	if err := encoder.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
//	OPENROUTER_API_KEY   - API key (also POLYCHAT_OPENROUTER_KEY)
//	POLYCHAT_MODEL       - default model catalog id
//	POLYCHAT_BASE_URL    - API base URL
//	POLYCHAT_THEME       - UI theme
//	POLYCHAT_SHOW_TOKENS - "1"/"true" to show token counts
func (c *Config) ApplyEnvOverrides() {
	if key := os.Getenv("OPENROUTER_API_KEY"); key != "" {
		c.API.OpenRouterKey = key
	}
	if key := os.Getenv("POLYCHAT_OPENROUTER_KEY"); key != "" {
		c.API.OpenRouterKey = key
	}
	if model := os.Getenv("POLYCHAT_MODEL"); model != "" {
		c.DefaultModel = model
	}
	if baseURL := os.Getenv("POLYCHAT_BASE_URL"); baseURL != "" {
		c.API.BaseURL = baseURL
	}
	if theme := os.Getenv("POLYCHAT_THEME"); theme != "" {
		c.UI.Theme = theme
	}
	if show := os.Getenv("POLYCHAT_SHOW_TOKENS"); show != "" {
		c.UI.ShowTokens = show == "1" || strings.ToLower(show) == "true"
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
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	if c.API.BaseURL != "" {
		if u, err := url.Parse(c.API.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, ValidationError{
				Field:   "api.base_url",
				Message: fmt.Sprintf("invalid URL %q", c.API.BaseURL),
			})
		}
	}
	if c.API.MaxRetries < 0 {
		errs = append(errs, ValidationError{
			Field:   "api.max_retries",
			Message: "must be non-negative, got " + strconv.Itoa(c.API.MaxRetries),
		})
	}
	if c.API.RequestsPerMinute < 0 {
		errs = append(errs, ValidationError{
			Field:   "api.requests_per_minute",
			Message: "must be non-negative, got " + strconv.Itoa(c.API.RequestsPerMinute),
		})
	}

	validThemes := map[string]bool{"dark": true, "light": true, "auto": true}
	if !validThemes[strings.ToLower(c.UI.Theme)] {
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme %q, must be one of: dark, light, auto", c.UI.Theme),
		})
	}
	if c.UI.MarkdownWidth < 0 {
		errs = append(errs, ValidationError{
			Field:   "ui.markdown_width",
			Message: "must be non-negative",
		})
	}
	validFormats := map[string]bool{"": true, "markdown": true, "json": true}
	if !validFormats[strings.ToLower(c.UI.ExportFormat)] {
		errs = append(errs, ValidationError{
			Field:   "ui.export_format",
			Message: fmt.Sprintf("invalid export format %q, must be one of: markdown, json", c.UI.ExportFormat),
		})
	}

	// Custom model definitions are checked by building a throwaway
	// catalog; the same checks run again at startup.
	if len(c.Models) > 0 {
		if _, err := catalog.New(c.Models); err != nil {
			errs = append(errs, ValidationError{
				Field:   "models",
				Message: err.Error(),
			})
		}
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// =============================================================================
// CATALOG CONSTRUCTION
// =============================================================================

// Catalog builds the model catalog from the configuration: the custom
// model list when present, the built-in definitions otherwise. A configured
// DefaultModel must name a catalog entry.
func (c *Config) Catalog() (*catalog.Catalog, error) {
	defs := c.Models
	if len(defs) == 0 {
		defs = catalog.BuiltinDefinitions()
	}

	if c.DefaultModel != "" {
		found := false
		for i := range defs {
			defs[i].IsDefault = defs[i].ID == c.DefaultModel
			if defs[i].IsDefault {
				found = true
			}
		}
		if !found {
			available, err := catalog.New(defs)
			if err != nil {
				return nil, err
			}
			return nil, fmt.Errorf("default_model %q is not in the model catalog (available: %s)",
				c.DefaultModel, strings.Join(available.IDs(), ", "))
		}
	}

	return catalog.New(defs)
}
