package runtime

import (
	"errors"
	"testing"
)

func constEvaluator(v any, err error) *stubEvaluator {
	return &stubEvaluator{name: "const", fn: func(map[string]any, string) (any, error) {
		return v, err
	}}
}

func TestEvalRoute(t *testing.T) {
	exec := NewExecution(nil, nil, nil)

	tests := []struct {
		name    string
		value   any
		want    string
		ok      bool
		wantErr bool
	}{
		{"string", "weather", "weather", true, false},
		{"empty string", "", "", false, false},
		{"nil", nil, "", false, false},
		{"number", 2, "2", true, false},
		{"map", map[string]any{"to": "x"}, "", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := EvalRoute(constEvaluator(tt.value, nil), exec, "route")
			if (err != nil) != tt.wantErr {
				t.Fatalf("EvalRoute error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want || ok != tt.ok {
				t.Errorf("EvalRoute = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestEvalRoute_WrapsEngineError(t *testing.T) {
	exec := NewExecution(nil, nil, nil)
	cause := errors.New("unexpected token")

	_, _, err := EvalRoute(constEvaluator(nil, cause), exec, "1 +")

	var exprErr *ExpressionError
	if !errors.As(err, &exprErr) {
		t.Fatalf("Expected ExpressionError, got %T", err)
	}
	if exprErr.Engine != "const" || exprErr.Source != "1 +" {
		t.Errorf("Unexpected error fields: %+v", exprErr)
	}
	if !errors.Is(err, cause) {
		t.Error("Expected cause to be unwrappable")
	}
}

func TestEvalCode_ResultBinding(t *testing.T) {
	exec := NewExecution(nil, nil, nil)
	exec.AddValue("city", "Paris")

	ev := &stubEvaluator{name: "stub", fn: func(b map[string]any, _ string) (any, error) {
		if b[BindingChain] != exec {
			t.Error("Expected _chain to be the execution")
		}
		b[BindingResult].(map[string]any)["greeting"] = "hello " + b["city"].(string)
		return "ignored", nil
	}}

	out, err := EvalCode(ev, exec, "script")
	if err != nil {
		t.Fatalf("EvalCode failed: %v", err)
	}
	if out["greeting"] != "hello Paris" {
		t.Errorf("Expected greeting, got %v", out)
	}
	if _, ok := exec.Store.Get(BindingResult); ok {
		t.Error("Expected bindings not to leak into memory")
	}
}

func TestEvalCode_ReturnedMap(t *testing.T) {
	exec := NewExecution(nil, nil, nil)

	out, err := EvalCode(constEvaluator(map[string]any{"answer": 42}, nil), exec, "script")
	if err != nil {
		t.Fatalf("EvalCode failed: %v", err)
	}
	if out["answer"] != 42 {
		t.Errorf("Expected answer=42, got %v", out)
	}

	out, err = EvalCode(constEvaluator("scalar", nil), exec, "script")
	if err != nil {
		t.Fatalf("EvalCode failed: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("Expected empty result for scalar return, got %v", out)
	}
}

func TestTruthy(t *testing.T) {
	tests := []struct {
		in   any
		want bool
	}{
		{nil, false},
		{false, false},
		{true, true},
		{"", false},
		{"false", false},
		{" true ", true},
		{"yes", true},
		{0, false},
		{int64(3), true},
		{uint8(0), false},
		{0.0, false},
		{1.5, true},
		{map[string]any{}, false},
		{[]any{1}, true},
		{(*Execution)(nil), false},
		{struct{}{}, true},
	}

	for _, tt := range tests {
		if got := Truthy(tt.in); got != tt.want {
			t.Errorf("Truthy(%#v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestEvaluatorRegistry(t *testing.T) {
	RegisterEvaluator(&stubEvaluator{name: "registry-test"})

	if _, ok := LookupEvaluator("registry-test"); !ok {
		t.Fatal("Expected evaluator to be registered")
	}
	found := false
	for _, name := range EvaluatorNames() {
		if name == "registry-test" {
			found = true
		}
	}
	if !found {
		t.Errorf("Expected registry-test in %v", EvaluatorNames())
	}
}
