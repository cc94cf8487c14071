package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BDNK1/agentflow/cli/internal/security"
	"github.com/BDNK1/agentflow/runtime"
	"github.com/BDNK1/agentflow/telemetry"
	"gopkg.in/yaml.v3"
)

// FileName is the project file looked up in the project directory.
const FileName = "agentflow.yaml"

// Model providers.
const (
	ProviderOpenAI = "openai"
	ProviderOllama = "ollama"
)

// ToolTypeHTTP is the built-in HTTP request tool.
const ToolTypeHTTP = "http_request"

// ProjectConfig represents the agentflow.yaml structure
type ProjectConfig struct {
	Name       string            `yaml:"name"`
	Env        string            `yaml:"env" default:"development" validate:"oneof=development dev production prod test"`
	Chains     string            `yaml:"chains" default:"chains" validate:"required"`
	Server     ServerConfig      `yaml:"server"`
	Properties map[string]any    `yaml:"properties"` // seeded into every chain as properties.<key>
	Model      ModelConfig       `yaml:"model"`
	Tools      []ToolConfig      `yaml:"tools" validate:"dive"`
	Intercept  InterceptorConfig `yaml:"interceptors"`
	Telemetry  telemetry.Config  `yaml:"telemetry"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr" default:":8080" validate:"hostname_port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" default:"10s" validate:"gte=0"`
}

// ModelConfig selects the chat model registered as the "llm" component.
// Config is passed to the provider unchanged.
type ModelConfig struct {
	Provider string         `yaml:"provider" default:"openai" validate:"oneof=openai ollama"`
	Config   map[string]any `yaml:"config"`
}

type ToolConfig struct {
	Type   string         `yaml:"type" validate:"required,oneof=http_request"`
	Config map[string]any `yaml:"config"`
}

// InterceptorConfig toggles the tool interceptors. Logging and metrics run
// for every call in the process; the rest wrap calls made by chain nodes.
type InterceptorConfig struct {
	Logging bool `yaml:"logging" default:"true"`
	Metrics bool `yaml:"metrics" default:"true"`
	Timing  bool `yaml:"timing" default:"true"`
	Tracing bool `yaml:"tracing"`
	// RateLimit is the per-tool calls per minute; zero disables it.
	RateLimit int `yaml:"rate_limit" validate:"gte=0"`
	// Deny lists tools whose calls are refused with a denial observation.
	Deny []string `yaml:"deny"`
}

// Load reads agentflow.yaml from projectDir. A missing file yields the
// defaults.
func Load(projectDir string) (*ProjectConfig, error) {
	return LoadFile(projectDir, filepath.Join(projectDir, FileName))
}

// LoadFile reads a project file that must live inside projectDir.
func LoadFile(projectDir, configPath string) (*ProjectConfig, error) {
	if err := security.ValidatePathWithinBoundary(projectDir, configPath); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read %s: %w", configPath, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", configPath, err)
	}
	if cfg.Name == "" {
		cfg.Name = getDirectoryName(projectDir)
	}
	return cfg, nil
}

// Parse decodes a project file, expands environment references, applies
// defaults and validates the result.
func Parse(data []byte) (*ProjectConfig, error) {
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse project config: %w", err)
	}

	expanded, err := ExpandEnv(raw)
	if err != nil {
		return nil, err
	}
	raw, _ = expanded.(map[string]any)

	var cfg ProjectConfig
	if err := runtime.InitializeConfig(&cfg, raw); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Production reports whether logs should be structured JSON.
func (c *ProjectConfig) Production() bool {
	return c.Env == "production" || c.Env == "prod"
}

// getDirectoryName extracts the last component of a path
func getDirectoryName(path string) string {
	if path == "." {
		cwd, err := os.Getwd()
		if err != nil {
			return "agentflow"
		}
		path = cwd
	}
	return filepath.Base(path)
}
