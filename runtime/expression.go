package runtime

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
	"sync"
)

// Well-known bindings for code-node evaluation.
const (
	BindingChain  = "_chain"
	BindingResult = "_result"
)

var (
	evaluatorsMu sync.RWMutex
	evaluators   = make(map[string]ExpressionEvaluator)
)

// RegisterEvaluator makes an evaluator available by name to chain loaders.
func RegisterEvaluator(ev ExpressionEvaluator) {
	evaluatorsMu.Lock()
	defer evaluatorsMu.Unlock()
	evaluators[ev.Name()] = ev
}

// LookupEvaluator returns a registered evaluator.
func LookupEvaluator(name string) (ExpressionEvaluator, bool) {
	evaluatorsMu.RLock()
	defer evaluatorsMu.RUnlock()
	ev, ok := evaluators[name]
	return ev, ok
}

// EvaluatorNames lists registered evaluators, sorted.
func EvaluatorNames() []string {
	evaluatorsMu.RLock()
	defer evaluatorsMu.RUnlock()
	names := make([]string, 0, len(evaluators))
	for name := range evaluators {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EvalRoute evaluates source in routing shape. A nil result means no route.
func EvalRoute(ev ExpressionEvaluator, execution *Execution, source string) (string, bool, error) {
	result, err := ev.Eval(execution, source, execution.Values())
	if err != nil {
		return "", false, wrapExpressionError(ev, source, err)
	}

	switch v := result.(type) {
	case nil:
		return "", false, nil
	case string:
		if v == "" {
			return "", false, nil
		}
		return v, true, nil
	case bool, int, int32, int64, uint, uint32, uint64, float32, float64:
		return fmt.Sprint(v), true, nil
	default:
		return "", false, &ExpressionError{
			Engine: ev.Name(),
			Source: source,
			Cause:  fmt.Errorf("route evaluated to %T, expected string", result),
		}
	}
}

// EvalCode evaluates source in code-node shape. The script receives `_chain`
// and an empty `_result` map; whatever it writes there becomes the node
// output. A map returned from the script is used when `_result` stays empty.
func EvalCode(ev ExpressionEvaluator, execution *Execution, source string) (map[string]any, error) {
	bindings := execution.Values()
	result := make(map[string]any)
	bindings[BindingChain] = execution
	bindings[BindingResult] = result

	value, err := ev.Eval(execution, source, bindings)
	if err != nil {
		return nil, wrapExpressionError(ev, source, err)
	}

	if len(result) == 0 {
		if m, ok := value.(map[string]any); ok {
			return m, nil
		}
	}
	return result, nil
}

// EvalCondition evaluates a guard and reports its truthiness.
func EvalCondition(ev ExpressionEvaluator, execution *Execution, source string) (bool, error) {
	result, err := ev.Eval(execution, source, execution.Values())
	if err != nil {
		return false, wrapExpressionError(ev, source, err)
	}
	return Truthy(result), nil
}

// Truthy applies script-style truthiness: nil, false, zero numbers, empty or
// "false" strings and empty collections are false.
func Truthy(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case bool:
		return val
	case string:
		s := strings.TrimSpace(val)
		if s == "" {
			return false
		}
		if b, err := strconv.ParseBool(s); err == nil {
			return b
		}
		return true
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int() != 0
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return rv.Uint() != 0
	case reflect.Float32, reflect.Float64:
		return rv.Float() != 0
	case reflect.Map, reflect.Slice, reflect.Array:
		return rv.Len() > 0
	case reflect.Pointer, reflect.Interface:
		return !rv.IsNil()
	}
	return true
}

func wrapExpressionError(ev ExpressionEvaluator, source string, err error) error {
	if exprErr, ok := err.(*ExpressionError); ok {
		return exprErr
	}
	return &ExpressionError{Engine: ev.Name(), Source: source, Cause: err}
}
