package runtime

import (
	"fmt"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"
)

type nodeOutcome struct {
	node     Node
	result   map[string]any
	route    string
	routed   bool
	err      error
	duration time.Duration
}

// traversal drives one execution. All scheduling state is owned by the
// goroutine calling run; async nodes only run their work on the pool and
// report back through done.
type traversal struct {
	c    *Chain
	exec *Execution

	edges       map[*Edge]edgeState
	queue       []Node
	outstanding int
	done        chan nodeOutcome
	pool        errgroup.Group
	failure     error
}

func newTraversal(c *Chain, exec *Execution) *traversal {
	t := &traversal{
		c:     c,
		exec:  exec,
		edges: make(map[*Edge]edgeState, len(c.edges)),
		done:  make(chan nodeOutcome, len(c.nodes)),
	}
	t.pool.SetLimit(c.cfg.AsyncWorkers)
	return t
}

func (t *traversal) run() error {
	for _, n := range t.c.nodes {
		t.exec.setNodeStatus(n.ID(), NodePending)
		if len(t.c.inbound[n.ID()]) == 0 {
			t.queue = append(t.queue, n)
		}
	}

	for {
		for len(t.queue) > 0 && t.failure == nil {
			n := t.queue[0]
			t.queue = t.queue[1:]

			if err := t.exec.awaitResume(); err != nil {
				t.failure = err
				break
			}
			if err := t.exec.Err(); err != nil {
				t.failure = err
				break
			}
			t.activate(n)
		}

		if t.failure != nil || t.outstanding == 0 {
			break
		}

		t.complete(<-t.done)
	}

	// Let in-flight async work settle before reporting; their results are
	// recorded as statuses but no longer schedule anything.
	for t.outstanding > 0 {
		t.complete(<-t.done)
	}
	_ = t.pool.Wait()

	if t.failure != nil {
		return t.failure
	}
	return t.exec.drain()
}

// activate checks the guard and starts the node.
func (t *traversal) activate(n Node) {
	if guard := n.Guard(); guard != nil && guard.Evaluator != nil {
		ok, err := EvalCondition(guard.Evaluator, t.exec, guard.Source)
		if err != nil {
			t.fail(n, err)
			return
		}
		if !ok {
			t.c.l.InfoContext(t.exec, fmt.Sprintf("Skipping node: %s", n.ID()), "condition", guard.Source)
			t.skip(n, fmt.Sprintf("condition not met: %s", guard.Source))
			return
		}
	}

	t.exec.emit(NodeStartEvent{Execution: t.exec, Node: n})
	t.exec.setNodeStatus(n.ID(), NodeRunning)

	if !n.Async() {
		t.complete(t.invoke(n))
		return
	}

	t.outstanding++
	t.pool.Go(func() error {
		t.done <- t.invoke(n)
		return nil
	})
}

// invoke runs a node's work, converting panics into errors.
func (t *traversal) invoke(n Node) (out nodeOutcome) {
	out.node = n
	start := time.Now()
	defer func() {
		out.duration = time.Since(start)
		if r := recover(); r != nil {
			out.err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()

	if router, ok := n.(Router); ok {
		out.route, out.routed, out.err = router.Route(t.exec)
		if out.err == nil && !out.routed {
			t.c.l.InfoContext(t.exec, fmt.Sprintf("Router %s selected no route", n.ID()))
		}
		return out
	}

	out.result, out.err = n.Run(t.exec)
	return out
}

func (t *traversal) complete(o nodeOutcome) {
	if o.node.Async() {
		t.outstanding--
	}

	if o.err != nil {
		t.fail(o.node, o.err)
		return
	}

	Merge(t.exec.Store, o.result)
	t.exec.setNodeStatus(o.node.ID(), NodeSucceeded)
	t.exec.emit(NodeEndEvent{Execution: t.exec, Node: o.node, Result: o.result})
	t.exec.emit(NodeFinishedEvent{Execution: t.exec, Node: o.node, Result: o.result, Duration: o.duration})
	t.c.l.InfoContext(t.exec, fmt.Sprintf("Executed node: %s", o.node.ID()), "duration", o.duration)

	if t.failure != nil {
		return
	}

	_, isRouter := o.node.(Router)
	selected := false
	for _, e := range t.c.outbound[o.node.ID()] {
		active := true
		if isRouter {
			// At most one edge activates per traversal of a router.
			active = o.routed && !selected && e.Target == o.route
			selected = selected || active
		}
		if active && e.Condition != nil && e.Condition.Evaluator != nil {
			ok, err := EvalCondition(e.Condition.Evaluator, t.exec, e.Condition.Source)
			if err != nil {
				t.fail(o.node, fmt.Errorf("edge %s: %w", e, err))
				return
			}
			active = ok
		}
		t.resolve(e, active)
	}
	if isRouter && o.routed && !selected {
		t.c.l.WarnContext(t.exec, fmt.Sprintf("Router %s selected unknown target: %s", o.node.ID(), o.route))
	}
}

func (t *traversal) skip(n Node, reason string) {
	t.exec.setNodeStatus(n.ID(), NodeSkipped)
	t.exec.emit(NodeSkippedEvent{Execution: t.exec, Node: n, Reason: reason})
	for _, e := range t.c.outbound[n.ID()] {
		t.resolve(e, false)
	}
}

func (t *traversal) fail(n Node, err error) {
	t.exec.setNodeStatus(n.ID(), NodeFailed)
	t.exec.emit(NodeFailedEvent{Execution: t.exec, Node: n, Err: err})
	if t.failure == nil {
		t.failure = &NodeExecutionError{NodeID: n.ID(), Cause: err}
	}
}

// resolve records an edge outcome and schedules or skips its target once
// every inbound edge is resolved.
func (t *traversal) resolve(e *Edge, active bool) {
	if active {
		t.edges[e] = edgeActive
	} else {
		t.edges[e] = edgeInactive
	}

	target := t.c.index[e.Target]
	if t.exec.NodeStatus(target.ID()) != NodePending {
		return
	}

	cond := NewConditionExpr()
	for _, in := range t.c.inbound[target.ID()] {
		state := t.edges[in]
		if state == edgeUnresolved {
			return
		}
		cond.Add(in.Connector, edgeOperand{edge: in, state: state})
	}

	ev, err := cond.Evaluate()
	if err != nil {
		t.fail(target, err)
		return
	}
	if ev.Result {
		t.queue = append(t.queue, target)
		return
	}
	t.skip(target, fmt.Sprintf("no active inbound edge: %s", cond))
}
