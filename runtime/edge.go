package runtime

import "fmt"

// Edge is a directed relation between two nodes. When a target has several
// inbound edges their activations are combined left to right using each
// edge's Connector (AND when empty). Condition, if set, is evaluated when the
// source succeeds and must be truthy for the edge to activate.
type Edge struct {
	ID        string
	Source    string
	Target    string
	Connector Connector
	Condition *NodeCondition
}

func (e *Edge) String() string {
	if e.ID != "" {
		return e.ID
	}
	return fmt.Sprintf("%s->%s", e.Source, e.Target)
}

type edgeState int

const (
	edgeUnresolved edgeState = iota
	edgeActive
	edgeInactive
)

// edgeOperand exposes a resolved edge as a condition operand.
type edgeOperand struct {
	edge  *Edge
	state edgeState
}

func (o edgeOperand) Evaluate() (bool, error) {
	return o.state == edgeActive, nil
}

func (o edgeOperand) String() string {
	return o.edge.String()
}
