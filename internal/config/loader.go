package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-json"
	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// Config holds runtime parameters for the daemon.
// Zero values mean "unspecified" and are replaced by ApplyDefaults.
type Config struct {
	Addr      string `json:"addr" yaml:"addr" toml:"addr"`
	ModelsDir string `json:"models_dir" yaml:"models_dir" toml:"models_dir"`
	// Model is loaded at startup when set. It may be a registry id or a path.
	Model string `json:"model" yaml:"model" toml:"model"`

	ContextSize       int  `json:"context_size" yaml:"context_size" toml:"context_size"`
	Threads           int  `json:"threads" yaml:"threads" toml:"threads"`
	MaxPromptTokens   int  `json:"max_prompt_tokens" yaml:"max_prompt_tokens" toml:"max_prompt_tokens"`
	MaxTokens         int  `json:"max_tokens" yaml:"max_tokens" toml:"max_tokens"`
	StreamBuffer      int  `json:"stream_buffer" yaml:"stream_buffer" toml:"stream_buffer"`
	UnloadOnFatalEval bool `json:"unload_on_fatal_eval" yaml:"unload_on_fatal_eval" toml:"unload_on_fatal_eval"`

	LogLevel    string   `json:"log_level" yaml:"log_level" toml:"log_level"`
	CORSOrigins []string `json:"cors_origins" yaml:"cors_origins" toml:"cors_origins"`
	// ShutdownTimeoutSec bounds graceful shutdown of the HTTP server and engine.
	ShutdownTimeoutSec int `json:"shutdown_timeout_sec" yaml:"shutdown_timeout_sec" toml:"shutdown_timeout_sec"`
}

// Defaults returns the configuration used when nothing is specified.
func Defaults() Config {
	return Config{
		Addr:               ":8080",
		ModelsDir:          "~/models/llm",
		ContextSize:        4096,
		MaxPromptTokens:    1024,
		MaxTokens:          512,
		StreamBuffer:       16,
		LogLevel:           "info",
		ShutdownTimeoutSec: 10,
	}
}

// ApplyDefaults fills zero fields from Defaults. Threads stays 0 (auto).
func (c *Config) ApplyDefaults() {
	d := Defaults()
	if c.Addr == "" {
		c.Addr = d.Addr
	}
	if c.ModelsDir == "" {
		c.ModelsDir = d.ModelsDir
	}
	if c.ContextSize <= 0 {
		c.ContextSize = d.ContextSize
	}
	if c.MaxPromptTokens <= 0 {
		c.MaxPromptTokens = d.MaxPromptTokens
	}
	if c.MaxTokens <= 0 {
		c.MaxTokens = d.MaxTokens
	}
	if c.StreamBuffer <= 0 {
		c.StreamBuffer = d.StreamBuffer
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.ShutdownTimeoutSec <= 0 {
		c.ShutdownTimeoutSec = d.ShutdownTimeoutSec
	}
}

// Load reads a configuration file based on its extension.
// Supports: .yaml/.yml, .json, .toml
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".json":
		if err := json.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	case ".toml":
		if err := toml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	return cfg, nil
}
