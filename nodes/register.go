package nodes

import (
	"fmt"
	"log/slog"

	"github.com/BDNK1/agentflow/llm"
	"github.com/BDNK1/agentflow/react"
	"github.com/BDNK1/agentflow/runtime"
	"github.com/BDNK1/agentflow/tools"
)

// Node types registered by Register.
const (
	NodeTypeLLM   = "llm"
	NodeTypeTool  = "tool"
	NodeTypeReAct = "react"
)

// ComponentInterceptors names an optional []tools.Interceptor component
// applied to every tool call made by these nodes.
const ComponentInterceptors = "tool_interceptors"

// Register adds the llm, tool and react node types to the container. Chat
// models and tool registries are resolved from container components when a
// chain is built.
func Register(c *runtime.Container, l *slog.Logger) {
	if l == nil {
		l = slog.Default()
	}

	c.RegisterNodeType(NodeTypeLLM, func(def runtime.NodeDefinition, ev runtime.ExpressionEvaluator, c *runtime.Container) (runtime.Node, error) {
		var cfg LLMConfig
		if err := runtime.InitializeConfig(&cfg, def.Args); err != nil {
			return nil, err
		}
		model, err := component[llm.ChatModel](c, cfg.Model)
		if err != nil {
			return nil, err
		}
		return NewLLMNode(def.ID, model, cfg, runtime.NodeOptions(def, ev)...)
	})

	c.RegisterNodeType(NodeTypeTool, func(def runtime.NodeDefinition, ev runtime.ExpressionEvaluator, c *runtime.Container) (runtime.Node, error) {
		var cfg ToolConfig
		if err := runtime.InitializeConfig(&cfg, def.Args); err != nil {
			return nil, err
		}
		registry, err := component[*tools.Registry](c, cfg.Registry)
		if err != nil {
			return nil, err
		}
		return NewToolNode(def.ID, invoker(c, registry, l), cfg, runtime.NodeOptions(def, ev)...)
	})

	c.RegisterNodeType(NodeTypeReAct, func(def runtime.NodeDefinition, ev runtime.ExpressionEvaluator, c *runtime.Container) (runtime.Node, error) {
		var cfg ReActConfig
		if err := runtime.InitializeConfig(&cfg, def.Args); err != nil {
			return nil, err
		}
		model, err := component[llm.ChatModel](c, cfg.Model)
		if err != nil {
			return nil, err
		}
		registry, err := component[*tools.Registry](c, cfg.Registry)
		if err != nil {
			return nil, err
		}
		if registry, err = registry.Subset(cfg.Tools...); err != nil {
			return nil, err
		}
		agent, err := react.NewAgent(model, invoker(c, registry, l), l.With("node", def.ID), react.WithConfig(cfg.Agent))
		if err != nil {
			return nil, err
		}
		return NewReActNode(def.ID, agent, cfg, runtime.NodeOptions(def, ev)...)
	})
}

func component[T any](c *runtime.Container, name string) (T, error) {
	var zero T
	raw, ok := c.Component(name)
	if !ok {
		return zero, fmt.Errorf("component %q is not registered", name)
	}
	typed, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("component %q has type %T", name, raw)
	}
	return typed, nil
}

func invoker(c *runtime.Container, registry *tools.Registry, l *slog.Logger) *tools.Invoker {
	var interceptors []tools.Interceptor
	if raw, ok := c.Component(ComponentInterceptors); ok {
		interceptors, _ = raw.([]tools.Interceptor)
	}
	return tools.NewInvoker(registry, l, interceptors...)
}
