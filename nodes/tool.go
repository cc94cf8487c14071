package nodes

import (
	"fmt"
	"maps"
	"reflect"

	"github.com/BDNK1/agentflow/runtime"
	"github.com/BDNK1/agentflow/tools"
)

type ToolConfig struct {
	Registry string `yaml:"registry" default:"tools" validate:"required"`
	Tool     string `yaml:"tool" validate:"required"`
	// Args are literal arguments; ArgsFrom maps argument names to memory keys
	// and wins on conflicts.
	Args     map[string]any    `yaml:"args"`
	ArgsFrom map[string]string `yaml:"args_from"`
	Output   string            `yaml:"output" default:"result" validate:"required"`
}

// ToolNode calls one tool through the interceptor pipeline. A tool error
// fails the node.
type ToolNode struct {
	runtime.BaseNode
	Config  ToolConfig
	tool    tools.Tool
	invoker *tools.Invoker
}

func NewToolNode(id string, invoker *tools.Invoker, cfg ToolConfig, opts ...runtime.NodeOption) (*ToolNode, error) {
	if invoker == nil || invoker.Registry == nil {
		return nil, fmt.Errorf("tool node %s has no tool registry", id)
	}
	if err := runtime.ApplyDefaults(&cfg); err != nil {
		return nil, err
	}
	if err := runtime.Validate(cfg); err != nil {
		return nil, err
	}
	tool, ok := invoker.Registry.Get(cfg.Tool)
	if !ok {
		return nil, fmt.Errorf("tool node %s: unknown tool %q", id, cfg.Tool)
	}
	return &ToolNode{BaseNode: runtime.NewBaseNode(id, opts...), Config: cfg, tool: tool, invoker: invoker}, nil
}

func (n *ToolNode) Run(execution *runtime.Execution) (map[string]any, error) {
	args := make(map[string]any, len(n.Config.Args)+len(n.Config.ArgsFrom))
	maps.Copy(args, n.Config.Args)
	for name, key := range n.Config.ArgsFrom {
		v, ok := execution.Store.Get(key)
		if !ok {
			return nil, fmt.Errorf("argument %s: memory key %q not set", name, key)
		}
		args[name] = v
	}

	result, err := n.invoker.Invoke(execution, n.tool, args)
	if err != nil {
		return nil, err
	}
	return map[string]any{n.Config.Output: plain(result)}, nil
}

// plain stores struct results as maps keyed by their json names, so
// conditions and prompts can reach fields such as result.status_code.
func plain(result any) any {
	v := reflect.ValueOf(result)
	for v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return result
	}
	m, err := runtime.StructToMap(result)
	if err != nil {
		return result
	}
	return m
}
