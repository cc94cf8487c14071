package tools

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"github.com/BDNK1/agentflow/runtime"
	"github.com/sashabaranov/go-openai/jsonschema"
)

// Definition describes a tool to the model: the listing in a ReAct prompt
// and the function declaration sent to chat APIs.
type Definition struct {
	Name        string                `json:"name"`
	Description string                `json:"description"`
	Parameters  jsonschema.Definition `json:"parameters"`
}

// Tool is a callable selected by model output.
type Tool interface {
	Definition() Definition
	Invoke(ctx context.Context, args map[string]any) (any, error)
}

// FunctionTool adapts a Go function to Tool.
type FunctionTool struct {
	def Definition
	fn  func(ctx context.Context, args map[string]any) (any, error)
}

func NewFunctionTool(def Definition, fn func(ctx context.Context, args map[string]any) (any, error)) *FunctionTool {
	return &FunctionTool{def: def, fn: fn}
}

func (t *FunctionTool) Definition() Definition {
	return t.def
}

func (t *FunctionTool) Invoke(ctx context.Context, args map[string]any) (any, error) {
	return t.fn(ctx, args)
}

// NewTypedTool decodes the argument map into In and validates it with the
// `validate` tags before calling fn. When def has no parameter schema one is
// generated from In.
func NewTypedTool[In any](def Definition, fn func(ctx context.Context, in In) (any, error)) (*FunctionTool, error) {
	if def.Parameters.Type == "" {
		var zero In
		schema, err := jsonschema.GenerateSchemaForType(zero)
		if err != nil {
			return nil, fmt.Errorf("tool %s: generate schema: %w", def.Name, err)
		}
		def.Parameters = *schema
	}

	return NewFunctionTool(def, func(ctx context.Context, args map[string]any) (any, error) {
		var in In
		if err := runtime.MapToStruct(args, &in); err != nil {
			return nil, fmt.Errorf("invalid arguments: %w", err)
		}
		if isStruct(in) {
			if err := runtime.Validate(in); err != nil {
				return nil, fmt.Errorf("invalid arguments: %w", err)
			}
		}
		return fn(ctx, in)
	}), nil
}

func isStruct(v any) bool {
	t := reflect.TypeOf(v)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	return t != nil && t.Kind() == reflect.Struct
}

// Registry maps tool names to tools. Listing order is registration order.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool)}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(t Tool) error {
	name := t.Definition().Name
	if name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("tool %s already registered", name)
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) Tools() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

func (r *Registry) Definitions() []Definition {
	tools := r.Tools()
	out := make([]Definition, 0, len(tools))
	for _, t := range tools {
		out = append(out, t.Definition())
	}
	return out
}

// Subset returns a registry with only the named tools, in the given order.
// An empty list selects every tool.
func (r *Registry) Subset(names ...string) (*Registry, error) {
	if len(names) == 0 {
		return NewRegistry(r.Tools()...)
	}

	selected := make([]Tool, 0, len(names))
	for _, name := range names {
		t, ok := r.Get(name)
		if !ok {
			return nil, fmt.Errorf("unknown tool: %s", name)
		}
		selected = append(selected, t)
	}
	return NewRegistry(selected...)
}
