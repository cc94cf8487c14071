// Package expr is the lightweight expression-only engine, backed by
// expr-lang. Memory keys are exposed with dots flattened to underscores
// (see FormatKey), so "llm.content" is read as llm.content or llm_content.
package expr

import (
	"encoding/base64"
	"fmt"

	"github.com/BDNK1/agentflow/runtime"
	"github.com/expr-lang/expr"
)

const Name = "expr"

// Custom expression functions available in all chains
var exprFunctions = []expr.Option{
	expr.Function("base64_encode", func(params ...any) (any, error) {
		s, _ := params[0].(string)
		return base64.StdEncoding.EncodeToString([]byte(s)), nil
	}),
	expr.Function("base64_decode", func(params ...any) (any, error) {
		s, _ := params[0].(string)
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return "", err
		}
		return string(decoded), nil
	}),
}

var _ runtime.ExpressionEvaluator = (*Evaluator)(nil)

type Evaluator struct{}

func NewEvaluator() *Evaluator {
	return &Evaluator{}
}

func (e *Evaluator) Name() string {
	return Name
}

func (e *Evaluator) Eval(execution *runtime.Execution, source string, bindings map[string]any) (any, error) {
	if execution != nil {
		if err := execution.Err(); err != nil {
			return nil, err
		}
	}

	env := make(map[string]any, len(bindings)+1)
	for k, v := range bindings {
		env[FormatKey(k)] = v
	}
	for k, v := range bindings {
		if m, ok := v.(map[string]any); ok && k != runtime.BindingResult {
			flatten(env, FormatKey(k), m)
		}
	}
	// null is an alias for nil (JSON/YAML compatibility)
	env["null"] = nil

	// defined() distinguishes a missing key from a key holding nil.
	definedFn := expr.Function(
		"defined",
		func(params ...any) (any, error) {
			path, ok := params[0].(string)
			if !ok {
				return false, fmt.Errorf("defined() expects string path argument, got %T", params[0])
			}
			_, exists := env[FormatKey(path)]
			return exists, nil
		},
		new(func(string) bool),
	)

	// set() writes into the code-node output map.
	setFn := expr.Function(
		"set",
		func(params ...any) (any, error) {
			key, ok := params[0].(string)
			if !ok {
				return nil, fmt.Errorf("set() expects string key, got %T", params[0])
			}
			result, ok := bindings[runtime.BindingResult].(map[string]any)
			if !ok {
				return nil, fmt.Errorf("set() is only available in code nodes")
			}
			result[key] = params[1]
			return params[1], nil
		},
		new(func(string, any) any),
	)

	// NOTE: expr.Env MUST come before AllowUndefinedVariables for it to work
	opts := []expr.Option{
		expr.Env(env),
		expr.AllowUndefinedVariables(),
		definedFn,
		setFn,
	}
	opts = append(opts, exprFunctions...)

	program, err := expr.Compile(FormatExpression(source), opts...)
	if err != nil {
		return nil, err
	}
	return expr.Run(program, env)
}

// flatten exposes nested map entries under underscore-joined keys. Keys
// already bound explicitly win.
func flatten(env map[string]any, prefix string, m map[string]any) {
	for k, v := range m {
		key := prefix + "_" + FormatKey(k)
		if _, exists := env[key]; !exists {
			env[key] = v
		}
		if nested, ok := v.(map[string]any); ok {
			flatten(env, key, nested)
		}
	}
}

// Register makes the engine available to chain loaders under "expr".
func Register() {
	runtime.RegisterEvaluator(NewEvaluator())
}
