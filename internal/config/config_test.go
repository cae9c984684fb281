package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load(\"\") failed: %v", err)
	}
	if cfg.Agent.MaxIterations != 5 {
		t.Errorf("default max_iterations = %d, want 5", cfg.Agent.MaxIterations)
	}
	if cfg.Agent.RequestTimeout != 90*time.Second {
		t.Errorf("default request_timeout = %s, want 90s", cfg.Agent.RequestTimeout)
	}
	if cfg.LLM.DefaultProvider != "anthropic" {
		t.Errorf("default provider = %q, want anthropic", cfg.LLM.DefaultProvider)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  http_port: 9000
agent:
  max_iterations: 3
  context_max_chars: 12000
llm:
  default_provider: openai
  providers:
    openai:
      default_model: gpt-4o
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Server.HTTPPort != 9000 {
		t.Errorf("http_port = %d, want 9000", cfg.Server.HTTPPort)
	}
	if cfg.Agent.MaxIterations != 3 {
		t.Errorf("max_iterations = %d, want 3", cfg.Agent.MaxIterations)
	}
	if cfg.LLM.Providers["openai"].DefaultModel != "gpt-4o" {
		t.Errorf("openai model = %q, want gpt-4o", cfg.LLM.Providers["openai"].DefaultModel)
	}
	// Values not in the file keep defaults.
	if cfg.Agent.MaxTokens != 4096 {
		t.Errorf("max_tokens = %d, want default 4096", cfg.Agent.MaxTokens)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero iterations", func(c *Config) { c.Agent.MaxIterations = 0 }},
		{"zero context budget", func(c *Config) { c.Agent.ContextMaxChars = 0 }},
		{"bad port", func(c *Config) { c.Server.HTTPPort = -1 }},
		{"missing provider", func(c *Config) { c.LLM.DefaultProvider = "" }},
		{"zero timeout", func(c *Config) { c.Agent.RequestTimeout = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate accepted an invalid config")
			}
		})
	}
}

func TestEnvOverrideAPIKey(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.LLM.Providers["anthropic"].APIKey != "sk-ant-test" {
		t.Errorf("env override not applied, got %q", cfg.LLM.Providers["anthropic"].APIKey)
	}
}
