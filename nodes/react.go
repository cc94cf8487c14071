package nodes

import (
	"fmt"

	"github.com/BDNK1/agentflow/react"
	"github.com/BDNK1/agentflow/runtime"
)

type ReActConfig struct {
	Model    string `yaml:"model_component" default:"llm" validate:"required"`
	Registry string `yaml:"registry" default:"tools" validate:"required"`
	// Tools limits the agent to a subset of the registry; empty means all.
	Tools  []string     `yaml:"tools"`
	Input  string       `yaml:"input" default:"question" validate:"required"`
	Output string       `yaml:"output" default:"answer" validate:"required"`
	Agent  react.Config `yaml:"agent"`
}

// ReActNode answers the question stored under Input. Besides the answer it
// writes <output>_status and <output>_iterations.
type ReActNode struct {
	runtime.BaseNode
	Config ReActConfig
	agent  *react.Agent
}

func NewReActNode(id string, agent *react.Agent, cfg ReActConfig, opts ...runtime.NodeOption) (*ReActNode, error) {
	if agent == nil {
		return nil, fmt.Errorf("react node %s has no agent", id)
	}
	if err := runtime.ApplyDefaults(&cfg); err != nil {
		return nil, err
	}
	if err := runtime.Validate(cfg); err != nil {
		return nil, err
	}
	return &ReActNode{BaseNode: runtime.NewBaseNode(id, opts...), Config: cfg, agent: agent}, nil
}

func (n *ReActNode) Run(execution *runtime.Execution) (map[string]any, error) {
	raw, ok := execution.Store.Get(n.Config.Input)
	if !ok {
		return nil, fmt.Errorf("memory key %q not set", n.Config.Input)
	}
	question := runtime.ToString(raw)
	if question == "" {
		return nil, fmt.Errorf("memory key %q is empty", n.Config.Input)
	}

	result, err := n.agent.Run(execution, question)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		n.Config.Output:                 result.Answer,
		n.Config.Output + "_status":     string(result.Status),
		n.Config.Output + "_iterations": result.Iterations,
	}, nil
}
