package runtime

// ChainStatus is the per-execution state machine.
type ChainStatus string

const (
	ChainCreated      ChainStatus = "CREATED"
	ChainRunning      ChainStatus = "RUNNING"
	ChainSuspended    ChainStatus = "SUSPENDED"
	ChainFinished     ChainStatus = "FINISHED"
	ChainStoppedError ChainStatus = "STOPPED_ERROR"
)

// Terminal reports whether no further transition is possible.
func (s ChainStatus) Terminal() bool {
	return s == ChainFinished || s == ChainStoppedError
}

func (s ChainStatus) canTransition(to ChainStatus) bool {
	switch s {
	case ChainCreated:
		return to == ChainRunning || to == ChainStoppedError
	case ChainRunning:
		return to == ChainSuspended || to == ChainFinished || to == ChainStoppedError
	case ChainSuspended:
		return to == ChainRunning || to == ChainStoppedError
	default:
		return false
	}
}

// NodeStatus is the per-execution status of a single node.
type NodeStatus string

const (
	NodePending   NodeStatus = "PENDING"
	NodeRunning   NodeStatus = "RUNNING"
	NodeSucceeded NodeStatus = "SUCCEEDED"
	NodeFailed    NodeStatus = "FAILED"
	NodeSkipped   NodeStatus = "SKIPPED"
)

func (s NodeStatus) Done() bool {
	return s == NodeSucceeded || s == NodeFailed || s == NodeSkipped
}
