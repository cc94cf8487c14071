// Package js runs JavaScript through goja, an embedded ES5.1+ runtime.
// Each evaluation gets a fresh VM so scripts cannot leak state between
// nodes or executions.
package js

import (
	"context"
	"errors"
	"fmt"

	"github.com/BDNK1/agentflow/runtime"
	"github.com/dop251/goja"
)

const Name = "js"

var _ runtime.ExpressionEvaluator = (*Evaluator)(nil)

type Evaluator struct{}

func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

func (e *Evaluator) Name() string {
	return Name
}

// Eval binds every top-level value as a global. _result is bound by
// reference, so `_result.key = value` writes straight into the node output.
func (e *Evaluator) Eval(execution *runtime.Execution, source string, bindings map[string]any) (any, error) {
	var ctx context.Context = context.Background()
	if execution != nil {
		ctx = execution
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	vm := goja.New()
	for k, v := range runtime.Unflatten(bindings) {
		if k == runtime.BindingChain {
			if exec, ok := v.(*runtime.Execution); ok {
				v = chainObject(exec)
			}
		}
		if err := vm.Set(k, v); err != nil {
			return nil, fmt.Errorf("binding %s: %w", k, err)
		}
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			vm.Interrupt(ctx.Err())
		case <-stop:
		}
	}()

	value, err := vm.RunString(source)
	if err != nil {
		var interrupted *goja.InterruptedError
		if errors.As(err, &interrupted) {
			if cause, ok := interrupted.Value().(error); ok {
				return nil, cause
			}
		}
		return nil, err
	}
	return export(value), nil
}

func export(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return v.Export()
}

func chainObject(exec *runtime.Execution) map[string]any {
	return map[string]any{
		"id": exec.ID,
		"status": func() string {
			return string(exec.Status())
		},
		"get": func(key string) any {
			v, _ := exec.Store.Get(key)
			return v
		},
		"nodeStatus": func(id string) string {
			return string(exec.NodeStatus(id))
		},
	}
}

// Register makes the engine available to chain loaders under "js".
func Register() {
	runtime.RegisterEvaluator(NewEvaluator())
}
