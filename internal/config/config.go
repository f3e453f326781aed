// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/jeranaias/modelexplorer/internal/observability"
	"github.com/jeranaias/modelexplorer/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete modelexplorer configuration.
type Config struct {
	Version string `toml:"version" json:"version"`

	Model   ModelConfig   `toml:"model" json:"model"`
	Ollama  OllamaConfig  `toml:"ollama" json:"ollama"`
	OpenAI  OpenAIConfig  `toml:"openai" json:"openai"`
	Remote  RemoteConfig  `toml:"remote" json:"remote"`
	Storage StorageConfig `toml:"storage" json:"storage"`
	Server  ServerConfig  `toml:"server" json:"server"`
	Log     LogConfig     `toml:"log" json:"log"`
	UI      UIConfig      `toml:"ui" json:"ui"`
}

// ModelConfig selects the language-model backend.
type ModelConfig struct {
	// Provider is "ollama", "openai" or "remote".
	Provider string `toml:"provider" json:"provider"`
	// Name is the model identifier passed to the provider.
	Name string `toml:"name" json:"name"`
	// SystemPrompt is prepended to every session when set.
	SystemPrompt string `toml:"system_prompt" json:"system_prompt,omitempty"`
	// Offline refuses any backend that is not on this machine.
	Offline bool `toml:"offline" json:"offline"`
}

// OllamaConfig configures the local Ollama backend.
type OllamaConfig struct {
	URL         string `toml:"url" json:"url"`
	TimeoutSecs int    `toml:"timeout_secs" json:"timeout_secs"`
}

// OpenAIConfig configures any OpenAI-compatible backend.
type OpenAIConfig struct {
	BaseURL     string `toml:"base_url" json:"base_url"`
	APIKey      string `toml:"api_key" json:"api_key,omitempty"`
	TimeoutSecs int    `toml:"timeout_secs" json:"timeout_secs"`
}

// RemoteConfig points at another modelexplorer server whose stream
// endpoint serves as the model.
type RemoteConfig struct {
	URL         string `toml:"url" json:"url"`
	TimeoutSecs int    `toml:"timeout_secs" json:"timeout_secs"`
}

// StorageConfig configures conversation persistence.
type StorageConfig struct {
	// Backend is "file" (one JSON file per conversation), "sqlite" or
	// "memory".
	Backend string `toml:"backend" json:"backend"`
	// Dir holds conversation files. Default: ~/.modelexplorer/conversations
	Dir string `toml:"dir" json:"dir"`
	// SQLitePath is the database file. Default: ~/.modelexplorer/conversations.db
	SQLitePath string `toml:"sqlite_path" json:"sqlite_path"`
}

// ServerConfig configures the HTTP/SSE gateway.
type ServerConfig struct {
	Host string `toml:"host" json:"host"`
	Port int    `toml:"port" json:"port"`
	// RateLimit is the sustained requests per second allowed per client IP.
	// Zero disables rate limiting.
	RateLimit float64 `toml:"rate_limit" json:"rate_limit"`
	RateBurst int     `toml:"rate_burst" json:"rate_burst"`
	// CORSOrigins lists allowed browser origins. Empty disables CORS headers.
	CORSOrigins []string `toml:"cors_origins" json:"cors_origins"`
}

// LogConfig configures structured logging.
type LogConfig struct {
	Level  string `toml:"level" json:"level"`
	Format string `toml:"format" json:"format"`
	// File receives log output instead of stderr. The TUI always logs to a
	// file so output does not corrupt the screen.
	File string `toml:"file" json:"file"`
}

// UIConfig configures terminal rendering.
type UIConfig struct {
	CodeTheme string `toml:"code_theme" json:"code_theme"`
	WordWrap  int    `toml:"word_wrap" json:"word_wrap"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// =============================================================================
// DEFAULTS
// =============================================================================

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderRemote = "remote"

	BackendFile   = "file"
	BackendSQLite = "sqlite"
	// BackendMemory keeps conversations for the life of the process only.
	BackendMemory = "memory"
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Version: "1",
		Model: ModelConfig{
			Provider: ProviderOllama,
			Name:     "llama3.2",
		},
		Ollama: OllamaConfig{
			URL:         "http://127.0.0.1:11434",
			TimeoutSecs: 300,
		},
		OpenAI: OpenAIConfig{
			BaseURL:     "https://api.openai.com/v1",
			TimeoutSecs: 120,
		},
		Remote: RemoteConfig{
			URL:         "http://127.0.0.1:8080",
			TimeoutSecs: 30,
		},
		Storage: StorageConfig{
			Backend: BackendFile,
		},
		Server: ServerConfig{
			Host:      "127.0.0.1",
			Port:      8080,
			RateLimit: 5,
			RateBurst: 10,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		UI: UIConfig{
			CodeTheme: "monokai",
			WordWrap:  100,
		},
	}
}

// ConfigDir returns ~/.modelexplorer.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".modelexplorer"), nil
}

// ConfigPath returns the path to the TOML config file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// SetDefaults resolves empty values that depend on the environment, such as
// paths under the config directory.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Model.Provider == "" {
		c.Model.Provider = defaults.Model.Provider
	}
	if c.Ollama.URL == "" {
		c.Ollama.URL = defaults.Ollama.URL
	}
	if c.OpenAI.BaseURL == "" {
		c.OpenAI.BaseURL = defaults.OpenAI.BaseURL
	}
	if c.Remote.URL == "" {
		c.Remote.URL = defaults.Remote.URL
	}
	if c.Storage.Backend == "" {
		c.Storage.Backend = defaults.Storage.Backend
	}
	if c.Log.Level == "" {
		c.Log.Level = defaults.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = defaults.Log.Format
	}
	if c.UI.CodeTheme == "" {
		c.UI.CodeTheme = defaults.UI.CodeTheme
	}

	dir, err := ConfigDir()
	if err != nil {
		dir = ".modelexplorer"
	}
	if c.Storage.Dir == "" {
		c.Storage.Dir = filepath.Join(dir, "conversations")
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = filepath.Join(dir, "conversations.db")
	}
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load reads ~/.modelexplorer/config.toml when it exists and falls back to
// defaults otherwise. Environment overrides are applied last.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err == nil {
		if _, statErr := os.Stat(path); statErr == nil {
			return LoadFromPath(path)
		}
	}

	cfg := Default()
	return finish(cfg)
}

// LoadFromPath loads configuration from a specific TOML file. Keys missing
// from the file keep their default values.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from %s: %w", path, err)
	}
	return finish(cfg)
}

func finish(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyEnvOverrides applies MODELEXPLORER_* environment variables.
func (c *Config) ApplyEnvOverrides() {
	if v := os.Getenv("MODELEXPLORER_PROVIDER"); v != "" {
		c.Model.Provider = v
	}
	if v := os.Getenv("MODELEXPLORER_MODEL"); v != "" {
		c.Model.Name = v
	}
	if v := os.Getenv("MODELEXPLORER_OFFLINE"); v != "" {
		if offline, err := strconv.ParseBool(v); err == nil {
			c.Model.Offline = offline
		}
	}
	if v := os.Getenv("MODELEXPLORER_OLLAMA_URL"); v != "" {
		c.Ollama.URL = v
	}
	if v := os.Getenv("MODELEXPLORER_OPENAI_BASE_URL"); v != "" {
		c.OpenAI.BaseURL = v
	}
	if v := os.Getenv("MODELEXPLORER_REMOTE_URL"); v != "" {
		c.Remote.URL = v
	}

	// The conventional variable is honored so existing setups work unchanged.
	if v := os.Getenv("MODELEXPLORER_OPENAI_API_KEY"); v != "" {
		c.OpenAI.APIKey = v
	} else if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.OpenAI.APIKey == "" {
		c.OpenAI.APIKey = v
	}

	if v := os.Getenv("MODELEXPLORER_STORAGE_BACKEND"); v != "" {
		c.Storage.Backend = v
	}
	if v := os.Getenv("MODELEXPLORER_STORAGE_DIR"); v != "" {
		c.Storage.Dir = v
	}
	if v := os.Getenv("MODELEXPLORER_HOST"); v != "" {
		c.Server.Host = v
	}
	if v := os.Getenv("MODELEXPLORER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Server.Port = port
		}
	}
	if v := os.Getenv("MODELEXPLORER_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("MODELEXPLORER_LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save writes the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML writes the configuration as TOML.
// SECURITY: the file may hold an API key, so it is written 0600.
func SaveTOML(cfg *Config, path string) error {
	var buf bytes.Buffer
	buf.WriteString("# modelexplorer configuration file\n\n")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	if err := util.AtomicWriteFileWithDir(path, buf.Bytes(), 0600, 0700); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// String renders the configuration as TOML with secrets masked.
func (c *Config) String() string {
	masked := *c
	if masked.OpenAI.APIKey != "" {
		masked.OpenAI.APIKey = maskSecret(masked.OpenAI.APIKey)
	}
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(&masked); err != nil {
		return fmt.Sprintf("config encode error: %v", err)
	}
	return buf.String()
}

func maskSecret(s string) string {
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
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

// Validate checks the configuration and returns every problem found as
// ValidateErrors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	switch c.Model.Provider {
	case ProviderOllama, ProviderOpenAI, ProviderRemote:
	default:
		errs = append(errs, ValidationError{
			Field:   "model.provider",
			Message: fmt.Sprintf("invalid provider '%s', must be one of: ollama, openai, remote", c.Model.Provider),
		})
	}
	if strings.TrimSpace(c.Model.Name) == "" {
		errs = append(errs, ValidationError{Field: "model.name", Message: "must not be empty"})
	}

	if err := validateURL(c.Ollama.URL); err != nil {
		errs = append(errs, ValidationError{Field: "ollama.url", Message: err.Error()})
	}
	if err := validateURL(c.OpenAI.BaseURL); err != nil {
		errs = append(errs, ValidationError{Field: "openai.base_url", Message: err.Error()})
	}
	if err := validateURL(c.Remote.URL); err != nil {
		errs = append(errs, ValidationError{Field: "remote.url", Message: err.Error()})
	}
	if c.Remote.TimeoutSecs < 0 {
		errs = append(errs, ValidationError{Field: "remote.timeout_secs", Message: "must not be negative"})
	}
	if c.Ollama.TimeoutSecs < 0 {
		errs = append(errs, ValidationError{Field: "ollama.timeout_secs", Message: "must not be negative"})
	}
	if c.OpenAI.TimeoutSecs < 0 {
		errs = append(errs, ValidationError{Field: "openai.timeout_secs", Message: "must not be negative"})
	}

	switch c.Storage.Backend {
	case BackendFile, BackendSQLite, BackendMemory:
	default:
		errs = append(errs, ValidationError{
			Field:   "storage.backend",
			Message: fmt.Sprintf("invalid backend '%s', must be one of: file, sqlite, memory", c.Storage.Backend),
		})
	}

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, ValidationError{Field: "server.port", Message: fmt.Sprintf("port %d out of range 1-65535", c.Server.Port)})
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, ValidationError{Field: "server.rate_limit", Message: "must not be negative"})
	}
	if c.Server.RateLimit > 0 && c.Server.RateBurst < 1 {
		errs = append(errs, ValidationError{Field: "server.rate_burst", Message: "must be at least 1 when rate limiting is enabled"})
	}

	if !observability.ValidLevel(c.Log.Level) {
		errs = append(errs, ValidationError{
			Field:   "log.level",
			Message: fmt.Sprintf("invalid level '%s', must be one of: debug, info, warn, error", c.Log.Level),
		})
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, ValidationError{Field: "log.format", Message: fmt.Sprintf("invalid format '%s', must be text or json", c.Log.Format)})
	}

	if c.UI.WordWrap < 0 {
		errs = append(errs, ValidationError{Field: "ui.word_wrap", Message: "must not be negative"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

func validateURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return errors.New("URL scheme must be http or https")
	}
	if u.Host == "" {
		return errors.New("URL must include a host")
	}
	return nil
}
