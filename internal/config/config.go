// Package config loads cherry2k's JSON configuration file, expanding
// "${VAR}"-style environment placeholders and an optional KEY=VALUE
// secrets file, then applies direct environment-variable overrides.
package config

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config is the root configuration shape, matching SPEC_FULL.md §6.
type Config struct {
	DataDir     string `json:"data_dir,omitempty"`
	SecretsFile string `json:"secrets_file,omitempty"`

	General   GeneralConfig    `json:"general"`
	OpenAI    *OpenAIConfig    `json:"openai,omitempty"`
	Anthropic *AnthropicConfig `json:"anthropic,omitempty"`
	Ollama    *OllamaConfig    `json:"ollama,omitempty"`
	Safety    SafetyConfig     `json:"safety"`
}

// GeneralConfig holds cross-cutting settings.
type GeneralConfig struct {
	DefaultProvider string `json:"default_provider"`
	LogLevel        string `json:"log_level,omitempty"`
}

// OpenAIConfig configures the OpenAI-compatible adapter.
type OpenAIConfig struct {
	APIKey  string `json:"api_key,omitempty"`
	BaseURL string `json:"base_url,omitempty"`
	Model   string `json:"model,omitempty"`
}

// AnthropicConfig configures the Anthropic adapter.
type AnthropicConfig struct {
	APIKey string `json:"api_key,omitempty"`
	Model  string `json:"model,omitempty"`
}

// OllamaConfig configures the local Ollama adapter.
type OllamaConfig struct {
	Host  string `json:"host,omitempty"`
	Model string `json:"model,omitempty"`
}

// SafetyConfig governs the command safety gate (C8).
type SafetyConfig struct {
	ConfirmCommands   bool     `json:"confirm_commands"`
	ConfirmFileWrites bool     `json:"confirm_file_writes"`
	BlockedPatterns   []string `json:"blocked_patterns"`
}

// DefaultBlockedPatterns is the built-in blocklist from SPEC_FULL.md §6.
func DefaultBlockedPatterns() []string {
	return []string{
		"rm -rf /",
		"rm -rf ~",
		"> /dev/sda",
		"mkfs",
		":(){:|:&};:",
	}
}

// Default returns a default configuration with the OpenAI/Anthropic/Ollama
// env-var placeholders the teacher's own config.Default uses.
func Default() *Config {
	return &Config{
		General: GeneralConfig{
			DefaultProvider: "anthropic",
			LogLevel:        "info",
		},
		OpenAI: &OpenAIConfig{
			APIKey:  "${OPENAI_API_KEY}",
			BaseURL: "https://api.openai.com/v1",
			Model:   "gpt-4o",
		},
		Anthropic: &AnthropicConfig{
			APIKey: "${ANTHROPIC_API_KEY}",
			Model:  "claude-sonnet-4-20250514",
		},
		Ollama: &OllamaConfig{
			Host:  "http://localhost:11434",
			Model: "llama3.2",
		},
		Safety: SafetyConfig{
			ConfirmCommands:   true,
			ConfirmFileWrites: true,
			BlockedPatterns:   DefaultBlockedPatterns(),
		},
	}
}

// Load loads configuration from path, creating a default file if it does
// not yet exist, grounded on the teacher's config.Load pipeline: read or
// seed default, expand tilde paths, load the secrets file into the
// environment, expand "${VAR}" placeholders, apply direct env overrides,
// then validate.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		cfg = Default()
		if err := cfg.Save(path); err != nil {
			return nil, fmt.Errorf("failed to save default config: %w", err)
		}
		fmt.Printf("Created default configuration at %s\n", path)
	} else {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.expandTilde()

	if err := cfg.loadSecretsFile(); err != nil {
		return nil, fmt.Errorf("failed to load secrets file: %w", err)
	}

	cfg.expandEnvVars()
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to path as indented JSON.
func (c *Config) Save(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// expandEnvVars expands "${VAR}" placeholders in config values.
func (c *Config) expandEnvVars() {
	c.DataDir = os.ExpandEnv(c.DataDir)
	c.SecretsFile = os.ExpandEnv(c.SecretsFile)

	if c.OpenAI != nil {
		c.OpenAI.APIKey = os.ExpandEnv(c.OpenAI.APIKey)
		c.OpenAI.BaseURL = os.ExpandEnv(c.OpenAI.BaseURL)
		c.OpenAI.Model = os.ExpandEnv(c.OpenAI.Model)
	}
	if c.Anthropic != nil {
		c.Anthropic.APIKey = os.ExpandEnv(c.Anthropic.APIKey)
		c.Anthropic.Model = os.ExpandEnv(c.Anthropic.Model)
	}
	if c.Ollama != nil {
		c.Ollama.Host = os.ExpandEnv(c.Ollama.Host)
		c.Ollama.Model = os.ExpandEnv(c.Ollama.Model)
	}
}

// applyEnvOverrides applies the direct environment-variable overrides
// named in SPEC_FULL.md §6, taking precedence over config-file values.
func (c *Config) applyEnvOverrides() {
	if v, ok := os.LookupEnv("OPENAI_API_KEY"); ok {
		c.ensureOpenAI().APIKey = v
	}
	if v, ok := os.LookupEnv("OPENAI_BASE_URL"); ok {
		c.ensureOpenAI().BaseURL = v
	}
	if v, ok := os.LookupEnv("OPENAI_MODEL"); ok {
		c.ensureOpenAI().Model = v
	}
	if v, ok := os.LookupEnv("ANTHROPIC_API_KEY"); ok {
		c.ensureAnthropic().APIKey = v
	}
	if v, ok := os.LookupEnv("ANTHROPIC_MODEL"); ok {
		c.ensureAnthropic().Model = v
	}
	if v, ok := os.LookupEnv("OLLAMA_HOST"); ok {
		c.ensureOllama().Host = v
	}
	if v, ok := os.LookupEnv("OLLAMA_MODEL"); ok {
		c.ensureOllama().Model = v
	}
	if v, ok := os.LookupEnv("CHERRY2K_PROVIDER"); ok {
		c.General.DefaultProvider = v
	}
	if v, ok := os.LookupEnv("CHERRY2K_LOG_LEVEL"); ok {
		c.General.LogLevel = v
	}
	if v, ok := os.LookupEnv("CHERRY2K_CONFIRM_COMMANDS"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Safety.ConfirmCommands = b
		}
	}
	if v, ok := os.LookupEnv("CHERRY2K_CONFIRM_FILE_WRITES"); ok {
		if b, err := strconv.ParseBool(v); err == nil {
			c.Safety.ConfirmFileWrites = b
		}
	}
}

func (c *Config) ensureOpenAI() *OpenAIConfig {
	if c.OpenAI == nil {
		c.OpenAI = &OpenAIConfig{}
	}
	return c.OpenAI
}

func (c *Config) ensureAnthropic() *AnthropicConfig {
	if c.Anthropic == nil {
		c.Anthropic = &AnthropicConfig{}
	}
	return c.Anthropic
}

func (c *Config) ensureOllama() *OllamaConfig {
	if c.Ollama == nil {
		c.Ollama = &OllamaConfig{}
	}
	return c.Ollama
}

// Validate checks structural invariants that don't depend on network access.
func (c *Config) Validate() error {
	if c.General.DefaultProvider == "" {
		return fmt.Errorf("general.default_provider must be set")
	}
	return nil
}

// expandTilde replaces a leading "~" or "~/" with the user's home
// directory in path-valued config fields, before env-var expansion so
// both "~/foo" and "${SOME_PATH}" work.
func (c *Config) expandTilde() {
	home, err := os.UserHomeDir()
	if err != nil {
		return
	}
	expand := func(p string) string {
		if p == "~" {
			return home
		}
		if strings.HasPrefix(p, "~/") {
			return filepath.Join(home, p[2:])
		}
		return p
	}

	c.DataDir = expand(c.DataDir)
	c.SecretsFile = expand(c.SecretsFile)
}

// loadSecretsFile reads a KEY=VALUE file into the process environment.
// Blank lines and lines starting with '#' are ignored. Existing environment
// variables are never overridden (shell/systemd wins). A missing or unset
// SecretsFile is a no-op.
func (c *Config) loadSecretsFile() error {
	if c.SecretsFile == "" {
		return nil
	}

	f, err := os.Open(c.SecretsFile)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("cannot open secrets file %s: %w", c.SecretsFile, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)

		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		if _, exists := os.LookupEnv(key); !exists {
			os.Setenv(key, value)
		}
	}
	return scanner.Err()
}
