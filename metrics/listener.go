package metrics

import "github.com/BDNK1/agentflow/runtime"

// ChainListener records chain events. Register it with runtime.WithListener
// or Chain.AddListener.
func ChainListener() runtime.EventListener {
	Init()
	return runtime.ListenerFunc(func(event runtime.Event) {
		switch e := event.(type) {
		case runtime.StatusChangeEvent:
			IncChainStatus(chainID(e.Execution), e.After)
		case runtime.NodeFinishedEvent:
			IncNodeStatus(chainID(e.Execution), runtime.NodeSucceeded)
			ObserveNodeDuration(chainID(e.Execution), e.Node.ID(), e.Duration)
		case runtime.NodeFailedEvent:
			IncNodeStatus(chainID(e.Execution), runtime.NodeFailed)
		case runtime.NodeSkippedEvent:
			IncNodeStatus(chainID(e.Execution), runtime.NodeSkipped)
		}
	})
}

func chainID(exec *runtime.Execution) string {
	if exec == nil || exec.Chain == nil {
		return ""
	}
	return exec.Chain.ID
}
