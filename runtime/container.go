package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
)

// Lifecycle is implemented by components that hold resources, such as chat
// clients with connection pools.
type Lifecycle interface {
	Initialize(ctx context.Context) error
	Shutdown(ctx context.Context) error
}

// NodeFactory builds a node from its definition. The evaluator is already
// resolved from the node's or the chain's engine.
type NodeFactory func(def NodeDefinition, ev ExpressionEvaluator, c *Container) (Node, error)

// Built-in node types.
const (
	NodeTypeCode   = "code"
	NodeTypeRouter = "router"
)

// Container holds node factories and shared components (chat models, tool
// registries) that factories look up by name.
type Container struct {
	factories  map[string]NodeFactory
	components map[string]any
	lifecycle  []Lifecycle
}

func NewContainer() *Container {
	c := &Container{
		factories:  make(map[string]NodeFactory),
		components: make(map[string]any),
	}

	c.RegisterNodeType(NodeTypeCode, func(def NodeDefinition, ev ExpressionEvaluator, _ *Container) (Node, error) {
		if def.Code == "" {
			return nil, fmt.Errorf("code node %s has no code", def.ID)
		}
		return NewCodeNode(def.ID, ev, def.Code, NodeOptions(def, ev)...), nil
	})
	c.RegisterNodeType(NodeTypeRouter, func(def NodeDefinition, ev ExpressionEvaluator, _ *Container) (Node, error) {
		if def.Code == "" {
			return nil, fmt.Errorf("router node %s has no code", def.ID)
		}
		return NewRouterNode(def.ID, ev, def.Code, NodeOptions(def, ev)...), nil
	})

	return c
}

func (c *Container) RegisterNodeType(name string, f NodeFactory) {
	c.factories[name] = f
}

func (c *Container) NodeFactory(name string) (NodeFactory, bool) {
	f, ok := c.factories[name]
	return f, ok
}

// NodeTypes lists registered node types, sorted.
func (c *Container) NodeTypes() []string {
	names := make([]string, 0, len(c.factories))
	for name := range c.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Register stores a named component. Components implementing Lifecycle are
// initialized and shut down with the container.
func (c *Container) Register(name string, component any) error {
	if component == nil {
		return fmt.Errorf("component %s cannot be nil", name)
	}
	if _, exists := c.components[name]; exists {
		return fmt.Errorf("component %s already registered", name)
	}

	c.components[name] = component
	if lc, ok := component.(Lifecycle); ok {
		c.lifecycle = append(c.lifecycle, lc)
	}
	return nil
}

func (c *Container) Component(name string) (any, bool) {
	component, ok := c.components[name]
	return component, ok
}

// Initialize calls Initialize on every Lifecycle component in registration
// order and stops at the first failure.
func (c *Container) Initialize(ctx context.Context) error {
	for i, lc := range c.lifecycle {
		if err := lc.Initialize(ctx); err != nil {
			return fmt.Errorf("component #%d initialization failed: %w", i, err)
		}
	}
	return nil
}

// Shutdown runs in reverse order of initialization and reports every error.
func (c *Container) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(c.lifecycle) - 1; i >= 0; i-- {
		if err := c.lifecycle[i].Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("component #%d shutdown failed: %w", i, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %v", errs)
	}
	return nil
}

// Build turns a definition into a validated Chain.
func (c *Container) Build(def *ChainDefinition, l *slog.Logger, opts ...ChainOption) (*Chain, error) {
	if err := prepareConfig(def); err != nil {
		return nil, fmt.Errorf("chain %s: %w", def.ID, err)
	}

	var cfg ChainConfig
	if err := InitializeConfig(&cfg, def.Config); err != nil {
		return nil, fmt.Errorf("chain %s config: %w", def.ID, err)
	}

	opts = append([]ChainOption{WithConfig(cfg), WithProperties(def.Properties)}, opts...)
	chain := NewChain(def.ID, l, opts...)
	chain.Name = def.Name
	chain.Description = def.Description
	chain.Output = def.Output

	for _, nd := range def.Nodes {
		ev, err := c.evaluator(nd.Engine, def.Engine)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", nd.ID, err)
		}
		factory, ok := c.factories[nd.Type]
		if !ok {
			return nil, &ChainError{Code: ErrCodeInvalidNode, Message: fmt.Sprintf("node %s has unknown type %q", nd.ID, nd.Type)}
		}
		node, err := factory(nd, ev, c)
		if err != nil {
			return nil, fmt.Errorf("node %s: %w", nd.ID, err)
		}
		chain.AddNode(node)
	}

	for _, ed := range def.Edges {
		connector, err := ParseConnector(ed.Connector)
		if err != nil {
			return nil, fmt.Errorf("edge %s->%s: %w", ed.From, ed.To, err)
		}
		edge := &Edge{ID: ed.ID, Source: ed.From, Target: ed.To, Connector: connector}
		if ed.Condition != "" {
			ev, err := c.evaluator(ed.Engine, def.Engine)
			if err != nil {
				return nil, fmt.Errorf("edge %s->%s: %w", ed.From, ed.To, err)
			}
			edge.Condition = &NodeCondition{Source: ed.Condition, Evaluator: ev}
		}
		chain.AddEdge(edge)
	}

	if err := chain.Validate(); err != nil {
		return nil, err
	}
	return chain, nil
}

func (c *Container) evaluator(names ...string) (ExpressionEvaluator, error) {
	for _, name := range names {
		if name == "" {
			continue
		}
		ev, ok := LookupEvaluator(name)
		if !ok {
			return nil, fmt.Errorf("unknown expression engine %q", name)
		}
		return ev, nil
	}
	return nil, fmt.Errorf("no expression engine configured")
}

// NodeOptions maps the common definition fields to node options.
func NodeOptions(def NodeDefinition, ev ExpressionEvaluator) []NodeOption {
	opts := []NodeOption{WithName(def.Name), WithMetadata(def.Metadata)}
	if def.Async {
		opts = append(opts, WithAsync())
	}
	if def.Condition != "" {
		opts = append(opts, WithCondition(ev, def.Condition))
	}
	return opts
}
