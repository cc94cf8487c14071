package runtime

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

var _ context.Context = &Execution{}

// Execution is one run of a Chain. It owns the shared memory, per-node
// statuses and the chain status state machine.
type Execution struct {
	ID    string
	Store ValueStore
	Chain *Chain

	mu         sync.Mutex
	status     ChainStatus
	nodeStatus map[string]NodeStatus
	failure    error
	resume     chan struct{}
	draining   bool
	startedAt  time.Time
	finishedAt time.Time

	ctx context.Context // real context carrying deadline/cancellation
}

func NewExecution(ctx context.Context, chain *Chain, store ValueStore) *Execution {
	if ctx == nil {
		ctx = context.Background()
	}
	if store == nil {
		store = NewMemoryStore()
	}

	exec := &Execution{
		ID:         uuid.New().String(),
		Store:      store,
		Chain:      chain,
		status:     ChainCreated,
		nodeStatus: make(map[string]NodeStatus),
		ctx:        ctx,
	}

	if chain != nil {
		for _, n := range chain.nodes {
			exec.nodeStatus[n.ID()] = NodePending
		}
		for k, v := range chain.Properties {
			exec.AddValue("properties."+k, resolveEnvVar(v))
		}
	}

	return exec
}

// context.Context implementation. Delegates to the embedded ctx so that
// cancellation propagates into evaluators, tools and chat calls.

func (e *Execution) Deadline() (deadline time.Time, ok bool) {
	return e.ctx.Deadline()
}

func (e *Execution) Done() <-chan struct{} {
	return e.ctx.Done()
}

func (e *Execution) Err() error {
	return e.ctx.Err()
}

func (e *Execution) Value(key any) any {
	k, ok := key.(string)
	if !ok {
		return e.ctx.Value(key)
	}

	v, _ := e.Store.Get(k)
	return v
}

func (e *Execution) AddValue(k string, v any) {
	e.Store.Set(k, v)
}

// Values returns a snapshot of memory for expression evaluation.
func (e *Execution) Values() map[string]any {
	return e.Store.All()
}

func (e *Execution) Status() ChainStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// NodeStatus returns the status of a node in this execution.
func (e *Execution) NodeStatus(id string) NodeStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.nodeStatus[id]
}

// NodeStatuses returns a copy of all node statuses.
func (e *Execution) NodeStatuses() map[string]NodeStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]NodeStatus, len(e.nodeStatus))
	for k, v := range e.nodeStatus {
		out[k] = v
	}
	return out
}

// Failure returns the error that stopped the execution, if any.
func (e *Execution) Failure() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.failure
}

// ErrorMessage is the human-readable failure message, empty unless
// the execution is STOPPED_ERROR.
func (e *Execution) ErrorMessage() string {
	if err := e.Failure(); err != nil {
		return err.Error()
	}
	return ""
}

func (e *Execution) Duration() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.startedAt.IsZero() {
		return 0
	}
	if e.finishedAt.IsZero() {
		return time.Since(e.startedAt)
	}
	return e.finishedAt.Sub(e.startedAt)
}

// Suspend pauses a running execution at the next node boundary.
func (e *Execution) Suspend() error {
	return e.transition(ChainSuspended, nil)
}

// Resume continues a suspended execution.
func (e *Execution) Resume() error {
	return e.transition(ChainRunning, nil)
}

func (e *Execution) setNodeStatus(id string, status NodeStatus) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.nodeStatus[id] = status
}

// transition moves the chain status and emits a StatusChangeEvent.
func (e *Execution) transition(to ChainStatus, cause error) error {
	e.mu.Lock()
	from := e.status
	if !from.canTransition(to) {
		e.mu.Unlock()
		return fmt.Errorf("invalid chain status transition %s -> %s", from, to)
	}
	if to == ChainSuspended && e.draining {
		e.mu.Unlock()
		return ErrExecutionFinishing
	}
	e.status = to
	switch to {
	case ChainRunning:
		if from == ChainCreated {
			e.startedAt = time.Now()
		}
		if from == ChainSuspended && e.resume != nil {
			close(e.resume)
			e.resume = nil
		}
	case ChainSuspended:
		e.resume = make(chan struct{})
	case ChainFinished, ChainStoppedError:
		e.finishedAt = time.Now()
		e.failure = cause
		if e.resume != nil {
			close(e.resume)
			e.resume = nil
		}
	}
	e.mu.Unlock()

	event := StatusChangeEvent{Execution: e, Before: from, After: to}
	if cause != nil {
		event.Message = cause.Error()
	}
	e.emit(event)
	return nil
}

// awaitResume blocks while the execution is suspended.
func (e *Execution) awaitResume() error {
	e.mu.Lock()
	if e.status != ChainSuspended {
		e.mu.Unlock()
		return nil
	}
	ch := e.resume
	e.mu.Unlock()

	select {
	case <-ch:
		return nil
	case <-e.ctx.Done():
		return e.ctx.Err()
	}
}

// drain waits out any suspension and then refuses further Suspend calls,
// leaving only terminal transitions.
func (e *Execution) drain() error {
	for {
		if err := e.awaitResume(); err != nil {
			return err
		}
		e.mu.Lock()
		if e.status != ChainSuspended {
			e.draining = true
			e.mu.Unlock()
			return nil
		}
		e.mu.Unlock()
	}
}

func (e *Execution) emit(event Event) {
	if e.Chain == nil {
		return
	}
	e.Chain.emit(event)
}

// envVarPattern matches ${VAR} and ${VAR:default} syntax
var envVarPattern = regexp.MustCompile(`^\$\{([A-Z_][A-Z0-9_]*)(:[^}]*)?\}$`)

// ResolveEnv expands a ${VAR} or ${VAR:default} reference. Other strings are
// returned unchanged.
func ResolveEnv(value string) string {
	return resolveEnvVar(value).(string)
}

// resolveEnvVar resolves environment variables in property values.
// Unset variables without a default resolve to an empty string.
func resolveEnvVar(value any) any {
	strValue, ok := value.(string)
	if !ok {
		return value
	}

	matches := envVarPattern.FindStringSubmatch(strValue)
	if matches == nil {
		return value
	}

	varName := matches[1]
	defaultPart := matches[2]

	envValue, exists := os.LookupEnv(varName)
	if exists {
		return envValue
	}

	return strings.TrimPrefix(defaultPart, ":")
}
