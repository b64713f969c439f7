// Package config loads the robochat configuration from YAML with
// environment fallbacks for credentials.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "30s" parse.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Config represents the application configuration.
type Config struct {
	Backend BackendConfig `yaml:"backend"`
	Chat    ChatConfig    `yaml:"chat"`
	Store   StoreConfig   `yaml:"store"`
	Janitor JanitorConfig `yaml:"janitor"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// BackendConfig selects and tunes the inference provider.
type BackendConfig struct {
	// Provider is "openai", "gemini", or "bedrock".
	Provider string `yaml:"provider"`
	Model    string `yaml:"model"`
	// BaseURL points OpenAI-compatible requests at a self-hosted
	// endpoint (e.g. a vLLM server).
	BaseURL string `yaml:"base_url"`
	// APIKey falls back to OPENAI_API_KEY or GEMINI_API_KEY.
	APIKey      string   `yaml:"api_key"`
	Region      string   `yaml:"region"`
	Temperature float32  `yaml:"temperature"`
	MaxTokens   int      `yaml:"max_tokens"`
	Timeout     Duration `yaml:"timeout"`
	// RequestsPerSecond caps backend calls (0 = unlimited).
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

// ChatConfig tunes the conversation engine.
type ChatConfig struct {
	// Window is how many transcript turns accompany each ask.
	Window int `yaml:"window"`
	// MaxTurns caps the stored transcript (0 = unlimited).
	MaxTurns int `yaml:"max_turns"`
	// DefaultTask is used when no explicit task is given; "auto"
	// engages the classifier.
	DefaultTask  string `yaml:"default_task"`
	SystemPrompt string `yaml:"system_prompt"`
}

// StoreConfig selects session persistence.
type StoreConfig struct {
	// Type is "file", "redis", or "firestore".
	Type string `yaml:"type"`
	// Dir is the file store directory (file type only).
	Dir string `yaml:"dir"`

	RedisAddr     string   `yaml:"redis_addr"`
	RedisPassword string   `yaml:"redis_password"`
	RedisDB       int      `yaml:"redis_db"`
	RedisTTL      Duration `yaml:"redis_ttl"`

	// FirestoreProject falls back to GCP_PROJECT.
	FirestoreProject    string `yaml:"firestore_project"`
	FirestoreCollection string `yaml:"firestore_collection"`
}

// JanitorConfig schedules expiry of stale stored sessions.
type JanitorConfig struct {
	Enabled  bool     `yaml:"enabled"`
	Schedule string   `yaml:"schedule"`
	MaxAge   Duration `yaml:"max_age"`
}

// MetricsConfig controls the observability HTTP server.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// Default returns the built-in configuration.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.applyEnv()
	return cfg
}

// Load reads configuration from a YAML file, applies defaults, and
// fills credentials from the environment.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path chosen by the operator
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyDefaults()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Backend.Provider == "" {
		c.Backend.Provider = "openai"
	}
	if c.Backend.Temperature == 0 {
		c.Backend.Temperature = 0.7
	}
	if c.Backend.MaxTokens == 0 {
		c.Backend.MaxTokens = 1024
	}
	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = Duration(60 * time.Second)
	}
	if c.Backend.Burst == 0 {
		c.Backend.Burst = 1
	}
	if c.Chat.Window == 0 {
		c.Chat.Window = 10
	}
	if c.Chat.DefaultTask == "" {
		c.Chat.DefaultTask = "auto"
	}
	if c.Store.Type == "" {
		c.Store.Type = "file"
	}
	if c.Store.FirestoreCollection == "" {
		c.Store.FirestoreCollection = "robochat-sessions"
	}
	if c.Janitor.Schedule == "" {
		c.Janitor.Schedule = "@hourly"
	}
	if c.Janitor.MaxAge == 0 {
		c.Janitor.MaxAge = Duration(7 * 24 * time.Hour)
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
}

func (c *Config) applyEnv() {
	if c.Backend.APIKey == "" {
		switch c.Backend.Provider {
		case "gemini":
			c.Backend.APIKey = os.Getenv("GEMINI_API_KEY")
		default:
			c.Backend.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	if c.Backend.Region == "" {
		c.Backend.Region = os.Getenv("AWS_REGION")
	}
	if c.Store.FirestoreProject == "" {
		c.Store.FirestoreProject = os.Getenv("GCP_PROJECT")
	}
}

// Validate checks for inconsistent settings.
func (c *Config) Validate() error {
	switch c.Backend.Provider {
	case "openai", "gemini", "bedrock":
	default:
		return fmt.Errorf("unknown backend provider %q", c.Backend.Provider)
	}
	switch c.Store.Type {
	case "file", "redis", "firestore":
	default:
		return fmt.Errorf("unknown store type %q", c.Store.Type)
	}
	if c.Store.Type == "redis" && c.Store.RedisAddr == "" {
		return fmt.Errorf("store type redis requires redis_addr")
	}
	if c.Store.Type == "firestore" && c.Store.FirestoreProject == "" {
		return fmt.Errorf("store type firestore requires firestore_project or GCP_PROJECT")
	}
	if c.Chat.Window < 0 || c.Chat.MaxTurns < 0 {
		return fmt.Errorf("chat window and max_turns must be non-negative")
	}
	return nil
}
