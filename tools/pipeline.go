package tools

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Context is the per-call record that flows through the interceptor chain.
// Interceptors may read and write Attributes to hand data to later links.
type Context struct {
	ID         string
	Tool       Tool
	Args       map[string]any
	Attributes map[string]any
	Result     any
	Err        error

	ctx context.Context
}

func newContext(ctx context.Context, tool Tool, args map[string]any) *Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if args == nil {
		args = map[string]any{}
	}
	return &Context{
		ID:         uuid.New().String(),
		Tool:       tool,
		Args:       args,
		Attributes: make(map[string]any),
		ctx:        ctx,
	}
}

// Name is the invoked tool's name.
func (c *Context) Name() string {
	return c.Tool.Definition().Name
}

// Context returns the context the tool will be invoked with.
func (c *Context) Context() context.Context {
	return c.ctx
}

// SetContext replaces the context seen by later links and the tool, e.g. to
// carry a tracing span.
func (c *Context) SetContext(ctx context.Context) {
	c.ctx = ctx
}

// Next continues the chain.
type Next func(c *Context) (any, error)

// Interceptor wraps a tool call. It must call next to continue or return
// its own result to short-circuit.
type Interceptor interface {
	Intercept(c *Context, next Next) (any, error)
}

// InterceptorFunc adapts a function to Interceptor.
type InterceptorFunc func(c *Context, next Next) (any, error)

func (f InterceptorFunc) Intercept(c *Context, next Next) (any, error) {
	return f(c, next)
}

var (
	globalMu           sync.RWMutex
	globalInterceptors []Interceptor
)

// RegisterGlobalInterceptor appends an interceptor that wraps every
// invocation in the process, ahead of per-call interceptors.
func RegisterGlobalInterceptor(i Interceptor) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalInterceptors = append(globalInterceptors, i)
}

// GlobalInterceptors returns a copy of the global interceptors in
// registration order.
func GlobalInterceptors() []Interceptor {
	globalMu.RLock()
	defer globalMu.RUnlock()
	out := make([]Interceptor, len(globalInterceptors))
	copy(out, globalInterceptors)
	return out
}

// ClearGlobalInterceptors empties the global registry. Meant for tests.
func ClearGlobalInterceptors() {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalInterceptors = nil
}

// Invoke runs tool through the global interceptors, then the given ones,
// then the tool itself. Any error is recorded on the call context before
// being returned.
func Invoke(ctx context.Context, tool Tool, args map[string]any, interceptors ...Interceptor) (any, error) {
	c := newContext(ctx, tool, args)
	chain := append(GlobalInterceptors(), interceptors...)

	result, err := proceed(chain, 0, c)
	c.Result = result
	if err != nil {
		c.Err = err
	}
	return result, err
}

func proceed(chain []Interceptor, i int, c *Context) (any, error) {
	if i == len(chain) {
		return invokeTool(c)
	}
	return chain[i].Intercept(c, func(c *Context) (any, error) {
		return proceed(chain, i+1, c)
	})
}

func invokeTool(c *Context) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			result = nil
			err = &InvocationError{Tool: c.Name(), Cause: fmt.Errorf("panic: %v", r)}
		}
		c.Result = result
		c.Err = err
	}()

	result, err = c.Tool.Invoke(c.Context(), c.Args)
	return result, wrapError(c.Name(), err)
}

// Invoker binds per-call interceptors and a registry so callers invoke tools
// by name.
type Invoker struct {
	Registry     *Registry
	Interceptors []Interceptor

	l *slog.Logger
}

func NewInvoker(registry *Registry, l *slog.Logger, interceptors ...Interceptor) *Invoker {
	if l == nil {
		l = slog.Default()
	}
	return &Invoker{Registry: registry, Interceptors: interceptors, l: l}
}

// Call looks up a tool by name and invokes it.
func (i *Invoker) Call(ctx context.Context, name string, args map[string]any) (any, error) {
	if i.Registry == nil {
		return nil, fmt.Errorf("no tool registry configured")
	}
	tool, ok := i.Registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
	return i.Invoke(ctx, tool, args)
}

func (i *Invoker) Invoke(ctx context.Context, tool Tool, args map[string]any) (any, error) {
	result, err := Invoke(ctx, tool, args, i.Interceptors...)
	if err != nil {
		i.l.WarnContext(ctx, fmt.Sprintf("Tool invocation failed: %s", tool.Definition().Name), "error", err)
	}
	return result, err
}
