// Package risor is the general-purpose scripting engine. Scripts run
// without Risor's default globals (no os, exec or file access); only the
// bindings passed in are visible.
package risor

import (
	"context"

	"github.com/BDNK1/agentflow/runtime"
	rsr "github.com/risor-io/risor"
	"github.com/risor-io/risor/object"
)

const Name = "risor"

var _ runtime.ExpressionEvaluator = (*Evaluator)(nil)

// Evaluator passes nested maps to Risor as-is, so memory values support
// native dot access (llm.usage.total) unlike the flat-key expr engine.
type Evaluator struct{}

func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

func (e *Evaluator) Name() string {
	return Name
}

func (e *Evaluator) Eval(execution *runtime.Execution, source string, bindings map[string]any) (any, error) {
	globals := make(map[string]any, len(bindings))
	var result *object.Map

	for k, v := range runtime.Unflatten(bindings) {
		switch k {
		case runtime.BindingChain:
			if exec, ok := v.(*runtime.Execution); ok {
				globals[k] = chainModule(exec)
				continue
			}
		case runtime.BindingResult:
			// Scripts populate _result in place; it is copied back below.
			if m, ok := v.(map[string]any); ok {
				contents := make(map[string]object.Object, len(m))
				for rk, rv := range m {
					contents[rk] = toObject(rv)
				}
				result = object.NewMap(contents)
				globals[k] = result
				continue
			}
		}
		globals[k] = toGlobal(k, v)
	}

	var ctx context.Context = context.Background()
	if execution != nil {
		ctx = execution
	}

	value, err := rsr.Eval(ctx, source,
		rsr.WithoutDefaultGlobals(),
		rsr.WithGlobals(globals),
	)
	if err != nil {
		return nil, err
	}

	if result != nil {
		out := bindings[runtime.BindingResult].(map[string]any)
		for k, v := range result.Value() {
			out[k] = toGo(v)
		}
	}
	return toGo(value), nil
}

// chainModule exposes the execution handle as `_chain`.
func chainModule(exec *runtime.Execution) *object.Module {
	return toModule(runtime.BindingChain, map[string]any{
		"id": exec.ID,
		"status": func() string {
			return string(exec.Status())
		},
		"get": func(key string) any {
			v, _ := exec.Store.Get(key)
			return v
		},
		"node_status": func(id string) string {
			return string(exec.NodeStatus(id))
		},
	})
}

// Register makes the engine available to chain loaders under "risor".
func Register() {
	runtime.RegisterEvaluator(NewEvaluator())
}
