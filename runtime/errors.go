package runtime

import (
	"errors"
	"fmt"
)

// ChainErrorCode identifies graph build/validation failures.
type ChainErrorCode string

const (
	ErrCodeDuplicateNode ChainErrorCode = "DUPLICATE_NODE"
	ErrCodeNodeNotFound  ChainErrorCode = "NODE_NOT_FOUND"
	ErrCodeSelfEdge      ChainErrorCode = "SELF_EDGE"
	ErrCodeDuplicateEdge ChainErrorCode = "DUPLICATE_EDGE"
	ErrCodeCycle         ChainErrorCode = "CYCLIC_DEPENDENCY"
	ErrCodeEmptyChain    ChainErrorCode = "EMPTY_CHAIN"
	ErrCodeInvalidNode   ChainErrorCode = "INVALID_NODE"
)

// ErrChainNotRunnable is returned when Execute is called on a chain whose
// definition failed validation.
var ErrChainNotRunnable = errors.New("chain is not runnable")

// ErrExecutionFinishing is returned by Suspend once every node has settled.
var ErrExecutionFinishing = errors.New("execution is finishing and cannot be suspended")

// ChainError reports an invalid chain definition.
type ChainError struct {
	Code    ChainErrorCode `json:"code"`
	Message string         `json:"message"`
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *ChainError) Unwrap() error {
	return ErrChainNotRunnable
}

// ExpressionError is raised when an evaluator fails or produces a value that
// cannot be coerced to the requested shape.
type ExpressionError struct {
	Engine string `json:"engine"`
	Source string `json:"source"`
	Cause  error  `json:"-"`
}

func (e *ExpressionError) Error() string {
	return fmt.Sprintf("expression error (%s) in %q: %v", e.Engine, e.Source, e.Cause)
}

func (e *ExpressionError) Unwrap() error {
	return e.Cause
}

// NodeExecutionError aborts an execution. The chain status becomes
// STOPPED_ERROR and the message is kept on the execution.
type NodeExecutionError struct {
	NodeID string `json:"node_id"`
	Cause  error  `json:"-"`
}

func (e *NodeExecutionError) Error() string {
	return fmt.Sprintf("node %s failed: %v", e.NodeID, e.Cause)
}

func (e *NodeExecutionError) Unwrap() error {
	return e.Cause
}

// ToMap describes the failure for execution responses.
func (e *NodeExecutionError) ToMap() map[string]any {
	m := map[string]any{
		"node":    e.NodeID,
		"message": e.Error(),
		"type":    "node",
	}
	var exprErr *ExpressionError
	if errors.As(e.Cause, &exprErr) {
		m["type"] = "expression"
		m["engine"] = exprErr.Engine
	}
	return m
}
