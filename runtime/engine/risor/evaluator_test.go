package risor

import (
	"context"
	"testing"

	"github.com/BDNK1/agentflow/runtime"
)

func TestEval_BasicTypes(t *testing.T) {
	ev := NewEvaluator()
	exec := runtime.NewExecution(context.Background(), nil, nil)

	tests := []struct {
		name     string
		code     string
		bindings map[string]any
		want     any
	}{
		{"string", `"hello"`, nil, "hello"},
		{"int", `42`, nil, int64(42)},
		{"float", `3.14`, nil, 3.14},
		{"bool", `true`, nil, true},
		{"nil", `nil`, nil, nil},
		{"binding access", `x`, map[string]any{"x": "world"}, "world"},
		{"arithmetic", `a + b`, map[string]any{"a": 10, "b": 20}, int64(30)},
		{"comparison", `x > 5`, map[string]any{"x": 3}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bindings := tt.bindings
			if bindings == nil {
				bindings = map[string]any{}
			}
			result, err := ev.Eval(exec, tt.code, bindings)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result != tt.want {
				t.Errorf("got %v (%T), want %v (%T)", result, result, tt.want, tt.want)
			}
		})
	}
}

func TestEval_NestedMapAccess(t *testing.T) {
	bindings := map[string]any{
		"llm": map[string]any{
			"usage": map[string]any{"total": int64(42)},
		},
	}

	result, err := NewEvaluator().Eval(runtime.NewExecution(context.Background(), nil, nil), `llm.usage.total`, bindings)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != int64(42) {
		t.Errorf("got %v, want 42", result)
	}
}

func TestEval_DottedKeysBecomeNested(t *testing.T) {
	bindings := map[string]any{
		"properties.model": "llama3",
	}

	result, err := NewEvaluator().Eval(runtime.NewExecution(context.Background(), nil, nil), `properties.model`, bindings)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "llama3" {
		t.Errorf("got %v, want llama3", result)
	}
}

func TestEval_Sandboxed(t *testing.T) {
	_, err := NewEvaluator().Eval(runtime.NewExecution(context.Background(), nil, nil), `os.getenv("PATH")`, map[string]any{})
	if err == nil {
		t.Fatal("expected error when accessing os module in sandbox, got nil")
	}
}

func TestEval_GoFunctionCall(t *testing.T) {
	called := false
	bindings := map[string]any{
		"double": func(x int64) int64 {
			called = true
			return x * 2
		},
	}

	result, err := NewEvaluator().Eval(runtime.NewExecution(context.Background(), nil, nil), `double(21)`, bindings)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !called {
		t.Error("Go function was not called")
	}
	if result != int64(42) {
		t.Errorf("got %v, want 42", result)
	}
}

func TestCodeShape_PopulatesResult(t *testing.T) {
	exec := runtime.NewExecution(context.Background(), nil, nil)
	exec.AddValue("city", "NY")

	result, err := runtime.EvalCode(NewEvaluator(), exec, `
_result["greeting"] = "hello " + city
_result["status"] = _chain.status()
`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result["greeting"] != "hello NY" {
		t.Errorf("greeting = %v", result["greeting"])
	}
	if result["status"] != string(runtime.ChainCreated) {
		t.Errorf("status = %v", result["status"])
	}
}

func TestCodeShape_ReturnedMap(t *testing.T) {
	exec := runtime.NewExecution(context.Background(), nil, nil)

	result, err := runtime.EvalCode(NewEvaluator(), exec, `{"name": "alice", "age": 30}`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result["name"] != "alice" || result["age"] != int64(30) {
		t.Errorf("got %v", result)
	}
}

func TestRoutingShape(t *testing.T) {
	exec := runtime.NewExecution(context.Background(), nil, nil)
	exec.AddValue("intent", "weather")

	target, ok, err := runtime.EvalRoute(NewEvaluator(), exec, `intent == "weather" ? "weather_tool" : "chat"`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !ok || target != "weather_tool" {
		t.Errorf("got (%q, %v)", target, ok)
	}
}
