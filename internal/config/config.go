// Package config loads the single immutable Config value used across the
// assistant core. Config is loaded once at startup and passed by parameter
// everywhere; no package holds a mutable global copy (see DESIGN NOTES §9).
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"assistantcore/internal/logging"
)

// Config holds every environment setting enumerated in spec.md §6.
type Config struct {
	WorkspacePath string `yaml:"workspace_path"`

	BufferSize                int  `yaml:"buffer_size"` // 0 = unlimited
	BufferTruncateAt          int  `yaml:"buffer_truncate_at"`
	SummaryBufferSize         int  `yaml:"summary_buffer_size"`
	MaxSummariesInMemory      int  `yaml:"max_summaries_in_memory"`
	LoadSessionSummaryOnStart bool `yaml:"load_session_summary_on_start"`
	WorkingMemoryMaxTokens    int  `yaml:"working_memory_max_tokens"`

	SchedulerTickSeconds        int `yaml:"scheduler_tick_seconds"`
	TemplateTimeoutSeconds      int `yaml:"template_timeout_seconds"`
	ConversationMemoryArchiveMax int `yaml:"conversation_memory_archive_max"`

	Timezone string `yaml:"timezone"`

	Embedding EmbeddingConfig `yaml:"embedding"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// EmbeddingConfig configures the Semantic Store's embedding engine.
type EmbeddingConfig struct {
	Dimensions int `yaml:"dimensions"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		WorkspacePath: ".assistant",

		BufferSize:                0,
		BufferTruncateAt:          35,
		SummaryBufferSize:         10,
		MaxSummariesInMemory:      10,
		LoadSessionSummaryOnStart: true,
		WorkingMemoryMaxTokens:    8000,

		SchedulerTickSeconds:         30,
		TemplateTimeoutSeconds:       300,
		ConversationMemoryArchiveMax: 100,

		Timezone: "UTC",

		Embedding: EmbeddingConfig{Dimensions: 64},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from a YAML file, falling back to defaults if
// the file does not exist, then applies environment variable overrides.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			logging.Get(logging.CategoryBoot).Info("config file not found, using defaults: %s", path)
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	logging.Get(logging.CategoryBoot).Info("config loaded from %s", path)
	return cfg, nil
}

// Save writes configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies ASSISTANT_-prefixed environment variable
// overrides, following the teacher's per-variable override idiom.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ASSISTANT_WORKSPACE_PATH"); v != "" {
		c.WorkspacePath = v
	}
	if v := os.Getenv("ASSISTANT_TIMEZONE"); v != "" {
		c.Timezone = v
	}
	if v := os.Getenv("ASSISTANT_DEBUG"); v == "1" || v == "true" {
		c.Logging.DebugMode = true
	}
}

// GetTemplateTimeout returns the template execution timeout as a duration.
func (c *Config) GetTemplateTimeout() time.Duration {
	return time.Duration(c.TemplateTimeoutSeconds) * time.Second
}

// GetSchedulerTick returns the orchestrator tick interval as a duration.
func (c *Config) GetSchedulerTick() time.Duration {
	return time.Duration(c.SchedulerTickSeconds) * time.Second
}

// Location resolves the configured IANA timezone, falling back to UTC if
// it cannot be loaded.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Validate checks invariants a caller should fail fast on.
func (c *Config) Validate() error {
	if c.WorkspacePath == "" {
		return fmt.Errorf("workspace_path must not be empty")
	}
	if c.BufferTruncateAt <= 0 {
		return fmt.Errorf("buffer_truncate_at must be positive")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return nil
}
