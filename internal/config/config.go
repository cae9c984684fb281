package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure for finsight.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	LLM       LLMConfig       `yaml:"llm"`
	Agent     AgentConfig     `yaml:"agent"`
	Knowledge KnowledgeConfig `yaml:"knowledge"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
}

type ServerConfig struct {
	Host        string        `yaml:"host"`
	HTTPPort    int           `yaml:"http_port"`
	MetricsPort int           `yaml:"metrics_port"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
}

type DatabaseConfig struct {
	// Path is the sqlite database file. Empty means in-memory stores.
	Path string `yaml:"path"`
}

type LLMConfig struct {
	DefaultProvider string                       `yaml:"default_provider"`
	Providers       map[string]LLMProviderConfig `yaml:"providers"`
}

type LLMProviderConfig struct {
	APIKey       string        `yaml:"api_key"`
	BaseURL      string        `yaml:"base_url"`
	DefaultModel string        `yaml:"default_model"`
	MaxRetries   int           `yaml:"max_retries"`
	RetryDelay   time.Duration `yaml:"retry_delay"`
}

type AgentConfig struct {
	// MaxIterations caps model/tool round trips per request.
	MaxIterations int `yaml:"max_iterations"`

	// MaxTokens is the per-inference output budget.
	MaxTokens int `yaml:"max_tokens"`

	// RequestTimeout is the overall wall-clock budget for one request.
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// ContextMaxChars is the total character budget for the context bundle.
	ContextMaxChars int `yaml:"context_max_chars"`

	// System overrides the built-in system instruction when set.
	System string `yaml:"system"`
}

type KnowledgeConfig struct {
	// SearchLimit is the default retrieval result count.
	SearchLimit int `yaml:"search_limit"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TracingConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Endpoint string `yaml:"endpoint"`
}

// Default returns the baseline configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "127.0.0.1",
			HTTPPort:    8080,
			MetricsPort: 9090,
			ReadTimeout: 30 * time.Second,
		},
		LLM: LLMConfig{
			DefaultProvider: "anthropic",
			Providers:       map[string]LLMProviderConfig{},
		},
		Agent: AgentConfig{
			MaxIterations:   5,
			MaxTokens:       4096,
			RequestTimeout:  90 * time.Second,
			ContextMaxChars: 30000,
		},
		Knowledge: KnowledgeConfig{
			SearchLimit: 5,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads configuration from a YAML file, applies environment overrides,
// and validates the result. An empty path returns the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides lets API keys come from the environment so they never
// have to live in the config file.
func applyEnvOverrides(cfg *Config) {
	if key := os.Getenv("ANTHROPIC_API_KEY"); key != "" {
		p := cfg.LLM.Providers["anthropic"]
		if p.APIKey == "" {
			p.APIKey = key
		}
		cfg.LLM.Providers["anthropic"] = p
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		p := cfg.LLM.Providers["openai"]
		if p.APIKey == "" {
			p.APIKey = key
		}
		cfg.LLM.Providers["openai"] = p
	}
}

// Validate checks invariants that would otherwise surface as confusing
// runtime behavior.
func (c *Config) Validate() error {
	if c.Server.HTTPPort <= 0 || c.Server.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port: %d", c.Server.HTTPPort)
	}
	if c.Agent.MaxIterations <= 0 {
		return fmt.Errorf("agent.max_iterations must be positive, got %d", c.Agent.MaxIterations)
	}
	if c.Agent.ContextMaxChars <= 0 {
		return fmt.Errorf("agent.context_max_chars must be positive, got %d", c.Agent.ContextMaxChars)
	}
	if c.Agent.RequestTimeout <= 0 {
		return fmt.Errorf("agent.request_timeout must be positive, got %s", c.Agent.RequestTimeout)
	}
	if c.LLM.DefaultProvider == "" {
		return fmt.Errorf("llm.default_provider is required")
	}
	return nil
}
