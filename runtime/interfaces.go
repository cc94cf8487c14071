package runtime

// ChainLoader loads chain definitions from files.
type ChainLoader interface {
	Extensions() []string
	Load(filePath string) (*Chain, error)
}

// ExpressionEvaluator evaluates source text in a given execution.
// The *Execution carries the deadline/cancellation signal (it implements
// context.Context) and is the handle scripts receive as `_chain`.
// Bindings are owned by the caller; evaluators may write back into map
// bindings but must not retain them after Eval returns.
type ExpressionEvaluator interface {
	Name() string
	Eval(execution *Execution, source string, bindings map[string]any) (any, error)
}

// ValueStore manages execution state storage and retrieval.
type ValueStore interface {
	Set(key string, value any)
	Get(key string) (any, bool)
	SetNested(prefix string, value any)
	All() map[string]any
	Keys() []string
}

// Node is a unit of graph work. Status transitions are owned by the Chain;
// implementations only produce a result map.
type Node interface {
	ID() string
	Name() string
	Async() bool
	Guard() *NodeCondition
	Metadata() NodeMetadata
	Run(execution *Execution) (map[string]any, error)
}

// Router is a Node whose work is selecting one outbound edge. The returned
// target is a node ID; ok=false means no route was chosen.
type Router interface {
	Node
	Route(execution *Execution) (target string, ok bool, err error)
}
