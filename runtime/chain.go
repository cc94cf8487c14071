package runtime

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
)

// ChainConfig controls engine behaviour for every execution of a chain.
type ChainConfig struct {
	AsyncWorkers int `yaml:"async_workers" default:"8" validate:"gte=1,lte=1024"`
}

// Chain owns a set of nodes and edges. A Chain is immutable once executed
// and may run several executions concurrently; per-run state lives in
// Execution.
type Chain struct {
	ID          string
	Name        string
	Description string
	Properties  map[string]any
	// Output names the memory keys reported to callers; empty means all.
	Output []string

	cfg       ChainConfig
	l         *slog.Logger
	nodes     []Node
	index     map[string]Node
	edges     []*Edge
	inbound   map[string][]*Edge
	outbound  map[string][]*Edge
	listeners []EventListener
	mu        sync.RWMutex
	err       error
}

// ChainOption configures a Chain.
type ChainOption func(*Chain)

// WithConfig replaces the default engine config.
// Zero fields take their defaults.
func WithConfig(cfg ChainConfig) ChainOption {
	return func(c *Chain) {
		if err := ApplyDefaults(&cfg); err != nil && c.err == nil {
			c.err = err
		}
		c.cfg = cfg
	}
}

// WithListener registers an event listener.
func WithListener(l EventListener) ChainOption {
	return func(c *Chain) {
		c.listeners = append(c.listeners, l)
	}
}

// WithProperties seeds every execution with properties.<key> values. Keys
// already set by an earlier option are kept.
func WithProperties(props map[string]any) ChainOption {
	return func(c *Chain) {
		if len(props) == 0 {
			return
		}
		if c.Properties == nil {
			c.Properties = make(map[string]any, len(props))
		}
		for k, v := range props {
			if _, exists := c.Properties[k]; !exists {
				c.Properties[k] = v
			}
		}
	}
}

func NewChain(id string, l *slog.Logger, opts ...ChainOption) *Chain {
	if l == nil {
		l = slog.Default()
	}

	c := &Chain{
		ID:       id,
		l:        l,
		index:    make(map[string]Node),
		inbound:  make(map[string][]*Edge),
		outbound: make(map[string][]*Edge),
	}
	if err := prepareConfig(&c.cfg); err != nil {
		c.err = err
	}
	for _, opt := range opts {
		opt(c)
	}
	if err := validateConfig(c.cfg); err != nil && c.err == nil {
		c.err = err
	}
	return c
}

// Err returns the first build error, if any.
func (c *Chain) Err() error {
	return c.err
}

func (c *Chain) Config() ChainConfig {
	return c.cfg
}

// AddNode registers a node. Build errors are sticky: the first one is kept
// and returned by Validate and Execute.
func (c *Chain) AddNode(n Node) *Chain {
	if c.err != nil {
		return c
	}
	if n == nil || n.ID() == "" {
		c.err = &ChainError{Code: ErrCodeInvalidNode, Message: "node must have an id"}
		return c
	}
	if _, exists := c.index[n.ID()]; exists {
		c.err = &ChainError{Code: ErrCodeDuplicateNode, Message: fmt.Sprintf("duplicate node id: %s", n.ID())}
		return c
	}

	c.nodes = append(c.nodes, n)
	c.index[n.ID()] = n
	return c
}

// Connect adds an unconditional AND edge.
func (c *Chain) Connect(source, target string) *Chain {
	return c.AddEdge(&Edge{Source: source, Target: target})
}

// AddEdge registers an edge between two existing nodes.
func (c *Chain) AddEdge(e *Edge) *Chain {
	if c.err != nil {
		return c
	}
	if e.Source == e.Target {
		c.err = &ChainError{Code: ErrCodeSelfEdge, Message: fmt.Sprintf("node %s cannot depend on itself", e.Source)}
		return c
	}
	for _, id := range []string{e.Source, e.Target} {
		if _, ok := c.index[id]; !ok {
			c.err = &ChainError{Code: ErrCodeNodeNotFound, Message: fmt.Sprintf("node not found: %s", id)}
			return c
		}
	}
	for _, existing := range c.outbound[e.Source] {
		if existing.Target == e.Target {
			c.err = &ChainError{Code: ErrCodeDuplicateEdge, Message: fmt.Sprintf("duplicate edge %s", e)}
			return c
		}
	}
	if e.Connector == "" {
		e.Connector = ConnectorAnd
	}
	if c.reachable(e.Target, e.Source) {
		c.err = &ChainError{Code: ErrCodeCycle, Message: fmt.Sprintf("edge %s creates a cycle", e)}
		return c
	}

	c.edges = append(c.edges, e)
	c.outbound[e.Source] = append(c.outbound[e.Source], e)
	c.inbound[e.Target] = append(c.inbound[e.Target], e)
	return c
}

// AddListener registers an event listener after construction.
func (c *Chain) AddListener(l EventListener) *Chain {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, l)
	return c
}

// Validate returns the first build error or a structural problem.
func (c *Chain) Validate() error {
	if c.err != nil {
		return c.err
	}
	if len(c.nodes) == 0 {
		return &ChainError{Code: ErrCodeEmptyChain, Message: "chain has no nodes"}
	}
	return nil
}

// Node returns a node by id.
func (c *Chain) Node(id string) (Node, bool) {
	n, ok := c.index[id]
	return n, ok
}

// Nodes returns nodes in registration order.
func (c *Chain) Nodes() []Node {
	out := make([]Node, len(c.nodes))
	copy(out, c.nodes)
	return out
}

// Edges returns edges in registration order.
func (c *Chain) Edges() []*Edge {
	out := make([]*Edge, len(c.edges))
	copy(out, c.edges)
	return out
}

func (c *Chain) InboundEdges(id string) []*Edge {
	return c.inbound[id]
}

func (c *Chain) OutboundEdges(id string) []*Edge {
	return c.outbound[id]
}

// Execute runs the chain to a terminal status. The returned execution is
// non-nil whenever the chain definition is valid, even if a node failed.
func (c *Chain) Execute(ctx context.Context, variables map[string]any) (*Execution, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	exec := NewExecution(ctx, c, NewMemoryStore())
	for k, v := range variables {
		exec.AddValue(k, v)
	}
	return exec, c.Run(exec)
}

// Run drives a prepared execution. It is exported so callers can attach
// their own store or listeners to the Execution before it starts.
func (c *Chain) Run(exec *Execution) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if err := exec.transition(ChainRunning, nil); err != nil {
		return err
	}
	c.l.InfoContext(exec, fmt.Sprintf("Starting chain: %s", c.ID), "execution_id", exec.ID)

	err := newTraversal(c, exec).run()
	if err != nil {
		c.l.ErrorContext(exec, fmt.Sprintf("Chain stopped with error: %s", c.ID),
			"execution_id", exec.ID,
			"error", err)
		_ = exec.transition(ChainStoppedError, err)
		return err
	}

	c.l.InfoContext(exec, fmt.Sprintf("Chain finished: %s", c.ID),
		"execution_id", exec.ID,
		"duration", exec.Duration())
	return exec.transition(ChainFinished, nil)
}

func (c *Chain) emit(event Event) {
	c.mu.RLock()
	listeners := c.listeners
	c.mu.RUnlock()

	for _, l := range listeners {
		l.OnEvent(event)
	}
}

// reachable reports whether to can be reached from from.
func (c *Chain) reachable(from, to string) bool {
	visited := make(map[string]bool)
	var dfs func(id string) bool
	dfs = func(id string) bool {
		if id == to {
			return true
		}
		if visited[id] {
			return false
		}
		visited[id] = true
		for _, e := range c.outbound[id] {
			if dfs(e.Target) {
				return true
			}
		}
		return false
	}
	return dfs(from)
}
