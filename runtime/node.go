package runtime

import (
	"fmt"
)

// NodeCondition guards node activation.
type NodeCondition struct {
	Source    string
	Evaluator ExpressionEvaluator
}

// Parameter declares a node input read from memory.
type Parameter struct {
	Name        string `yaml:"name" json:"name"`
	Description string `yaml:"description" json:"description,omitempty"`
	Required    bool   `yaml:"required" json:"required,omitempty"`
}

// NodeMetadata is free-form descriptive data.
type NodeMetadata struct {
	Description string      `yaml:"description" json:"description,omitempty"`
	Parameters  []Parameter `yaml:"parameters" json:"parameters,omitempty"`
	OutputKeys  []string    `yaml:"outputs" json:"outputs,omitempty"`
}

// BaseNode carries the identity and flags shared by all node kinds.
// Embed it and implement Run.
type BaseNode struct {
	NodeID    string
	NodeName  string
	IsAsync   bool
	Condition *NodeCondition
	Meta      NodeMetadata
}

func (b *BaseNode) ID() string {
	return b.NodeID
}

func (b *BaseNode) Name() string {
	if b.NodeName == "" {
		return b.NodeID
	}
	return b.NodeName
}

func (b *BaseNode) Async() bool {
	return b.IsAsync
}

func (b *BaseNode) Guard() *NodeCondition {
	return b.Condition
}

func (b *BaseNode) Metadata() NodeMetadata {
	return b.Meta
}

// NodeOption configures a BaseNode.
type NodeOption func(*BaseNode)

// WithName sets a display name.
func WithName(name string) NodeOption {
	return func(b *BaseNode) {
		b.NodeName = name
	}
}

// WithAsync marks a node for dispatch on the async worker pool.
func WithAsync() NodeOption {
	return func(b *BaseNode) {
		b.IsAsync = true
	}
}

// WithCondition sets a guard evaluated before the node runs.
func WithCondition(ev ExpressionEvaluator, source string) NodeOption {
	return func(b *BaseNode) {
		b.Condition = &NodeCondition{Source: source, Evaluator: ev}
	}
}

// WithMetadata sets description, parameters and outputs.
func WithMetadata(meta NodeMetadata) NodeOption {
	return func(b *BaseNode) {
		b.Meta = meta
	}
}

// NewBaseNode applies options to a fresh BaseNode.
func NewBaseNode(id string, opts ...NodeOption) BaseNode {
	b := BaseNode{NodeID: id}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// FuncNode runs a Go function.
type FuncNode struct {
	BaseNode
	fn func(execution *Execution) (map[string]any, error)
}

func NewFuncNode(id string, fn func(execution *Execution) (map[string]any, error), opts ...NodeOption) *FuncNode {
	return &FuncNode{BaseNode: NewBaseNode(id, opts...), fn: fn}
}

func (n *FuncNode) Run(execution *Execution) (map[string]any, error) {
	if n.fn == nil {
		return nil, nil
	}
	return n.fn(execution)
}

// RouterNode selects the next node by evaluating an expression in routing
// shape. It never writes to memory.
type RouterNode struct {
	BaseNode
	Source    string
	Evaluator ExpressionEvaluator
}

func NewRouterNode(id string, ev ExpressionEvaluator, source string, opts ...NodeOption) *RouterNode {
	return &RouterNode{BaseNode: NewBaseNode(id, opts...), Source: source, Evaluator: ev}
}

func (n *RouterNode) Run(*Execution) (map[string]any, error) {
	return nil, nil
}

func (n *RouterNode) Route(execution *Execution) (string, bool, error) {
	if n.Evaluator == nil {
		return "", false, fmt.Errorf("router %s has no evaluator", n.NodeID)
	}
	return EvalRoute(n.Evaluator, execution, n.Source)
}

// CodeNode delegates its work to a script evaluated in code-node shape.
type CodeNode struct {
	BaseNode
	Source    string
	Evaluator ExpressionEvaluator
}

func NewCodeNode(id string, ev ExpressionEvaluator, source string, opts ...NodeOption) *CodeNode {
	return &CodeNode{BaseNode: NewBaseNode(id, opts...), Source: source, Evaluator: ev}
}

func (n *CodeNode) Run(execution *Execution) (map[string]any, error) {
	if n.Evaluator == nil {
		return nil, fmt.Errorf("code node %s has no evaluator", n.NodeID)
	}
	return EvalCode(n.Evaluator, execution, n.Source)
}
