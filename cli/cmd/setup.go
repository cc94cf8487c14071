package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/BDNK1/agentflow/cli/internal/config"
	"github.com/BDNK1/agentflow/cli/internal/security"
	"github.com/BDNK1/agentflow/llm"
	"github.com/BDNK1/agentflow/llm/ollama"
	"github.com/BDNK1/agentflow/llm/openai"
	"github.com/BDNK1/agentflow/logging"
	"github.com/BDNK1/agentflow/metrics"
	"github.com/BDNK1/agentflow/nodes"
	"github.com/BDNK1/agentflow/runtime"
	"github.com/BDNK1/agentflow/runtime/engine/expr"
	"github.com/BDNK1/agentflow/runtime/engine/js"
	"github.com/BDNK1/agentflow/runtime/engine/risor"
	"github.com/BDNK1/agentflow/runtime/engine/yaml"
	"github.com/BDNK1/agentflow/telemetry"
	"github.com/BDNK1/agentflow/tools"
	"github.com/BDNK1/agentflow/tools/httptool"
)

// Component names used by the llm, tool and react node types.
const (
	componentModel = "llm"
	componentTools = "tools"
)

// project is a loaded agentflow.yaml with its container and chains.
type project struct {
	dir       string
	cfg       *config.ProjectConfig
	l         *slog.Logger
	telemetry *telemetry.Telemetry
	app       *runtime.App
}

// loadProject reads the project file, builds and initializes the container
// and prepares an App with the YAML chain loader. Callers must close it.
func loadProject(ctx context.Context, dir, configPath string) (*project, error) {
	var (
		cfg *config.ProjectConfig
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFile(dir, configPath)
	} else {
		cfg, err = config.Load(dir)
	}
	if err != nil {
		return nil, err
	}

	tel, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	l := logging.NewLogger(cfg.Env)
	if h := tel.LogHandler(); h != nil {
		l = slog.New(logging.Tee(l.Handler(), h))
	}
	l = l.With("project", cfg.Name)

	p := &project{dir: dir, cfg: cfg, l: l, telemetry: tel}

	container, err := p.buildContainer(tel)
	if err != nil {
		return nil, errors.Join(err, tel.Shutdown(ctx))
	}
	if err := container.Initialize(ctx); err != nil {
		return nil, errors.Join(err, tel.Shutdown(ctx))
	}

	loader := yaml.NewChainLoader(container, l,
		runtime.WithListener(metrics.ChainListener()),
		runtime.WithProperties(cfg.Properties),
	)
	p.app = runtime.NewApp(container, l, loader)

	l.Info(fmt.Sprintf("Project loaded: %s", cfg.Name),
		"env", cfg.Env, "model", cfg.Model.Provider, "tools", len(cfg.Tools))
	return p, nil
}

func (p *project) buildContainer(tel *telemetry.Telemetry) (*runtime.Container, error) {
	expr.Register()
	risor.Register()
	js.Register()

	metrics.Init()

	container := runtime.NewContainer()
	nodes.Register(container, p.l)

	model, err := newModel(p.cfg.Model)
	if err != nil {
		return nil, err
	}
	if err := container.Register(componentModel, model); err != nil {
		return nil, err
	}

	registry, err := tools.NewRegistry()
	if err != nil {
		return nil, err
	}
	for i, tc := range p.cfg.Tools {
		tool, err := newTool(tc)
		if err != nil {
			return nil, fmt.Errorf("tool #%d: %w", i, err)
		}
		if err := registry.Register(tool); err != nil {
			return nil, fmt.Errorf("tool #%d: %w", i, err)
		}
		// registered as a component too so its lifecycle runs
		if err := container.Register(fmt.Sprintf("tool.%d", i), tool); err != nil {
			return nil, err
		}
	}
	if err := container.Register(componentTools, registry); err != nil {
		return nil, err
	}

	interceptors, err := p.interceptors(tel)
	if err != nil {
		return nil, err
	}
	if err := container.Register(nodes.ComponentInterceptors, interceptors); err != nil {
		return nil, err
	}

	return container, nil
}

// registerGlobals guards the append-only global interceptor registry; the
// first project loaded in the process decides its contents.
var registerGlobals sync.Once

// interceptors installs the process-wide interceptors and returns the ones
// applied per call by chain nodes.
func (p *project) interceptors(tel *telemetry.Telemetry) ([]tools.Interceptor, error) {
	ic := p.cfg.Intercept

	registerGlobals.Do(func() {
		if ic.Logging {
			tools.RegisterGlobalInterceptor(tools.Logging(p.l))
		}
		if ic.Metrics {
			tools.RegisterGlobalInterceptor(tools.Metrics())
		}
	})

	var perCall []tools.Interceptor
	if ic.Tracing {
		perCall = append(perCall, tools.Tracing(tel.Tracer("github.com/BDNK1/agentflow/tools")))
	}
	if ic.Timing {
		perCall = append(perCall, tools.Timing())
	}
	if ic.RateLimit > 0 {
		limit, err := tools.RateLimit(tools.RateLimitConfig{PerMinute: ic.RateLimit})
		if err != nil {
			return nil, err
		}
		perCall = append(perCall, limit)
	}
	if len(ic.Deny) > 0 {
		perCall = append(perCall, tools.Approval(deny, ic.Deny...))
	}
	return perCall, nil
}

func deny(context.Context, *tools.Context) (bool, error) {
	return false, nil
}

func newModel(mc config.ModelConfig) (llm.ChatModel, error) {
	switch mc.Provider {
	case config.ProviderOllama:
		return ollama.New(mc.Config)
	case config.ProviderOpenAI:
		return openai.New(mc.Config)
	default:
		return nil, fmt.Errorf("unknown model provider %q", mc.Provider)
	}
}

func newTool(tc config.ToolConfig) (tools.Tool, error) {
	switch tc.Type {
	case config.ToolTypeHTTP:
		return httptool.New(tc.Config)
	default:
		return nil, fmt.Errorf("unknown tool type %q", tc.Type)
	}
}

// chainsDir resolves the chains directory inside the project.
func (p *project) chainsDir(override string) (string, error) {
	dir := p.cfg.Chains
	if override != "" {
		dir = override
	}
	return security.ResolveWithin(p.dir, dir)
}

func (p *project) Close(ctx context.Context) error {
	return errors.Join(
		p.app.Container.Shutdown(ctx),
		p.telemetry.Shutdown(ctx),
	)
}
