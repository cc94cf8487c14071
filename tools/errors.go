package tools

import (
	"context"
	"errors"
	"fmt"
)

// ErrRateLimited is returned by the rate limit interceptor.
var ErrRateLimited = errors.New("tool rate limit exceeded")

// InvocationError wraps a failure returned by a tool.
type InvocationError struct {
	Tool  string
	Cause error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("tool %s invocation failed: %v", e.Tool, e.Cause)
}

func (e *InvocationError) Unwrap() error {
	return e.Cause
}

// wrapError leaves cancellation and existing invocation errors untouched and
// wraps everything else with the tool name.
func wrapError(tool string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var invErr *InvocationError
	if errors.As(err, &invErr) {
		return err
	}
	return &InvocationError{Tool: tool, Cause: err}
}
