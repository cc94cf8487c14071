package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse(nil)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.Env != "development" {
		t.Errorf("Expected env 'development', got %q", cfg.Env)
	}
	if cfg.Chains != "chains" {
		t.Errorf("Expected chains dir 'chains', got %q", cfg.Chains)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Expected addr ':8080', got %q", cfg.Server.Addr)
	}
	if cfg.Server.ShutdownTimeout != 10*time.Second {
		t.Errorf("Expected shutdown timeout 10s, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Model.Provider != ProviderOpenAI {
		t.Errorf("Expected provider openai, got %q", cfg.Model.Provider)
	}
	if !cfg.Intercept.Logging || !cfg.Intercept.Metrics || !cfg.Intercept.Timing || cfg.Intercept.Tracing {
		t.Errorf("Unexpected interceptor defaults: %+v", cfg.Intercept)
	}
	if cfg.Production() {
		t.Error("Expected development config")
	}
	if cfg.Telemetry.Enabled || !cfg.Telemetry.Traces || cfg.Telemetry.ServiceName != "agentflow" {
		t.Errorf("Unexpected telemetry defaults: %+v", cfg.Telemetry)
	}
}

func TestParse_FullFile(t *testing.T) {
	t.Setenv("AGENTFLOW_TEST_MODEL", "qwen2")

	data := []byte(`
name: research
env: production
server:
  addr: 127.0.0.1:9090
  shutdown_timeout: 3s
properties:
  region: eu
model:
  provider: ollama
  config:
    model: ${AGENTFLOW_TEST_MODEL}
    base_url: ${AGENTFLOW_TEST_OLLAMA:http://ollama:11434}
tools:
  - type: http_request
    config:
      allowed_hosts: [api.example.com]
interceptors:
  logging: false
  tracing: true
  rate_limit: 30
  deny: [http_request]
telemetry:
  enabled: true
  endpoint: collector:4317
  logs: false
`)

	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}

	if cfg.Name != "research" || !cfg.Production() {
		t.Errorf("Unexpected project: %q env=%q", cfg.Name, cfg.Env)
	}
	if cfg.Server.Addr != "127.0.0.1:9090" || cfg.Server.ShutdownTimeout != 3*time.Second {
		t.Errorf("Unexpected server config: %+v", cfg.Server)
	}
	if cfg.Properties["region"] != "eu" {
		t.Errorf("Expected region property, got %v", cfg.Properties)
	}
	if cfg.Model.Provider != ProviderOllama {
		t.Errorf("Expected provider ollama, got %q", cfg.Model.Provider)
	}
	if cfg.Model.Config["model"] != "qwen2" {
		t.Errorf("Expected model from env, got %v", cfg.Model.Config["model"])
	}
	if cfg.Model.Config["base_url"] != "http://ollama:11434" {
		t.Errorf("Expected default base_url, got %v", cfg.Model.Config["base_url"])
	}
	if len(cfg.Tools) != 1 || cfg.Tools[0].Type != ToolTypeHTTP {
		t.Errorf("Unexpected tools: %+v", cfg.Tools)
	}
	if cfg.Intercept.Logging {
		t.Error("Expected logging interceptor to be disabled")
	}
	if !cfg.Intercept.Metrics || !cfg.Intercept.Tracing {
		t.Errorf("Unexpected interceptors: %+v", cfg.Intercept)
	}
	if cfg.Intercept.RateLimit != 30 {
		t.Errorf("Expected rate limit 30, got %d", cfg.Intercept.RateLimit)
	}
	if !cfg.Telemetry.Enabled || cfg.Telemetry.Logs || !cfg.Telemetry.Metrics || cfg.Telemetry.Endpoint != "collector:4317" {
		t.Errorf("Unexpected telemetry: %+v", cfg.Telemetry)
	}
	if len(cfg.Intercept.Deny) != 1 || cfg.Intercept.Deny[0] != "http_request" {
		t.Errorf("Unexpected deny list: %v", cfg.Intercept.Deny)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
		want string
	}{
		{"bad provider", "model:\n  provider: bard\n", "Provider"},
		{"bad addr", "server:\n  addr: nowhere\n", "Addr"},
		{"unknown tool", "tools:\n  - type: shell\n", "Type"},
		{"negative rate", "interceptors:\n  rate_limit: -1\n", "RateLimit"},
		{"missing env", "model:\n  config:\n    api_key: ${AGENTFLOW_TEST_NEVER_SET}\n", "AGENTFLOW_TEST_NEVER_SET"},
		{"bad yaml", "model: [", "parse"},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := Parse([]byte(test.data))
			if err == nil {
				t.Fatal("Expected error")
			}
			if !strings.Contains(err.Error(), test.want) {
				t.Errorf("Expected error to mention %q, got: %v", test.want, err)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()

	cfg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load without file failed: %v", err)
	}
	if cfg.Name != filepath.Base(dir) {
		t.Errorf("Expected name from directory, got %q", cfg.Name)
	}

	if err := os.WriteFile(filepath.Join(dir, FileName), []byte("name: demo\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err = Load(dir)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Name != "demo" {
		t.Errorf("Expected name 'demo', got %q", cfg.Name)
	}
}

func TestLoadFile_OutsideProject(t *testing.T) {
	dir := t.TempDir()
	_, err := LoadFile(filepath.Join(dir, "project"), filepath.Join(dir, "other", FileName))
	if err == nil || !strings.Contains(err.Error(), "invalid config path") {
		t.Errorf("Expected boundary error, got %v", err)
	}
}
