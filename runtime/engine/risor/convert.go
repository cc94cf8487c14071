package risor

import (
	"context"
	"fmt"
	"reflect"

	"github.com/risor-io/risor/object"
)

var errorType = reflect.TypeOf((*error)(nil)).Elem()

// toGlobal converts a binding into something the Risor VM accepts as a
// global. Go funcs become builtins and maps holding funcs become modules;
// the VM itself can't convert either and panics on them.
func toGlobal(name string, v any) any {
	switch val := v.(type) {
	case nil:
		return nil
	case object.Object:
		return val
	case map[string]any:
		for _, item := range val {
			if isFunc(item) {
				return toModule(name, val)
			}
		}
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = toGlobal(k, item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = toGlobal(name, item)
		}
		return out
	}

	if isFunc(v) {
		return toBuiltin(name, v)
	}
	return v
}

func isFunc(v any) bool {
	return v != nil && reflect.TypeOf(v).Kind() == reflect.Func
}

func toModule(name string, m map[string]any) *object.Module {
	contents := make(map[string]object.Object, len(m))
	for k, v := range m {
		if isFunc(v) {
			contents[k] = toBuiltin(fmt.Sprintf("%s.%s", name, k), v)
			continue
		}
		contents[k] = toObject(v)
	}
	return object.NewBuiltinsModule(name, contents)
}

// toBuiltin wraps a Go func via reflection. A trailing error return is
// surfaced to the script as a Risor error.
func toBuiltin(name string, fn any) *object.Builtin {
	fnValue := reflect.ValueOf(fn)
	fnType := fnValue.Type()

	return object.NewBuiltin(name, func(ctx context.Context, args ...object.Object) object.Object {
		in := make([]reflect.Value, len(args))
		for i, arg := range args {
			var want reflect.Type
			switch {
			case fnType.IsVariadic() && i >= fnType.NumIn()-1:
				want = fnType.In(fnType.NumIn() - 1).Elem()
			case i < fnType.NumIn():
				want = fnType.In(i)
			}
			in[i] = coerce(toGo(arg), want)
		}
		if !fnType.IsVariadic() && len(in) != fnType.NumIn() {
			return object.NewError(fmt.Errorf("%s: expected %d arguments, got %d", name, fnType.NumIn(), len(in)))
		}

		out := fnValue.Call(in)
		if n := len(out); n > 0 && fnType.Out(n-1).Implements(errorType) {
			if err, _ := out[n-1].Interface().(error); err != nil {
				return object.NewError(err)
			}
			out = out[:n-1]
		}
		if len(out) == 0 {
			return object.Nil
		}
		return toObject(out[0].Interface())
	})
}

func coerce(v any, want reflect.Type) reflect.Value {
	if want == nil {
		if v == nil {
			return reflect.ValueOf((*any)(nil)).Elem()
		}
		return reflect.ValueOf(v)
	}
	if v == nil {
		return reflect.Zero(want)
	}
	rv := reflect.ValueOf(v)
	switch {
	case rv.Type().AssignableTo(want):
		return rv
	case rv.Type().ConvertibleTo(want):
		return rv.Convert(want)
	}
	return rv
}

func toObject(v any) object.Object {
	if v == nil {
		return object.Nil
	}
	if obj, ok := v.(object.Object); ok {
		return obj
	}
	if obj := object.FromGoType(v); obj != nil {
		return obj
	}
	return object.Nil
}

// toGo converts a Risor object back into plain Go values.
func toGo(obj object.Object) any {
	switch o := obj.(type) {
	case nil, *object.NilType:
		return nil
	case *object.Map:
		m := make(map[string]any)
		for k, v := range o.Value() {
			m[k] = toGo(v)
		}
		return m
	case *object.List:
		items := o.Value()
		out := make([]any, len(items))
		for i, v := range items {
			out[i] = toGo(v)
		}
		return out
	default:
		return obj.Interface()
	}
}
