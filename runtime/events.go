package runtime

import "time"

// Event is a chain lifecycle notification.
type Event interface {
	chainEvent()
}

// StatusChangeEvent is emitted on every ChainStatus transition.
type StatusChangeEvent struct {
	Execution *Execution
	Before    ChainStatus
	After     ChainStatus
	Message   string
}

// NodeStartEvent is emitted right before a node runs.
type NodeStartEvent struct {
	Execution *Execution
	Node      Node
}

// NodeEndEvent is emitted after a node's result has been merged into memory.
type NodeEndEvent struct {
	Execution *Execution
	Node      Node
	Result    map[string]any
}

// NodeFinishedEvent follows NodeEndEvent once the node is SUCCEEDED.
type NodeFinishedEvent struct {
	Execution *Execution
	Node      Node
	Result    map[string]any
	Duration  time.Duration
}

// NodeSkippedEvent is emitted when a guard is false or no inbound edge
// activated the node.
type NodeSkippedEvent struct {
	Execution *Execution
	Node      Node
	Reason    string
}

// NodeFailedEvent is emitted when a node's work returned an error.
type NodeFailedEvent struct {
	Execution *Execution
	Node      Node
	Err       error
}

func (StatusChangeEvent) chainEvent() {}
func (NodeStartEvent) chainEvent()    {}
func (NodeEndEvent) chainEvent()      {}
func (NodeFinishedEvent) chainEvent() {}
func (NodeSkippedEvent) chainEvent()  {}
func (NodeFailedEvent) chainEvent()   {}

// EventListener receives chain events. Node events of one execution are
// delivered from its traversal goroutine in emission order; status events
// for Suspend/Resume come from the caller's goroutine.
type EventListener interface {
	OnEvent(event Event)
}

// ListenerFunc adapts a function to EventListener.
type ListenerFunc func(event Event)

func (f ListenerFunc) OnEvent(event Event) {
	f(event)
}
