// Package nodes provides graph nodes backed by chat models and tools.
package nodes

import (
	"fmt"
	"strings"
	"text/template"

	"github.com/BDNK1/agentflow/llm"
	"github.com/BDNK1/agentflow/runtime"
	"github.com/Jeffail/gabs/v2"
)

// LLMConfig is read from a node's args. Prompt and System are Go templates
// rendered against execution memory.
type LLMConfig struct {
	Model       string   `yaml:"model_component" default:"llm" validate:"required"`
	Prompt      string   `yaml:"prompt" validate:"required"`
	System      string   `yaml:"system"`
	ModelName   string   `yaml:"model"`
	Temperature *float64 `yaml:"temperature" validate:"omitempty,gte=0,lte=2"`
	MaxTokens   int      `yaml:"max_tokens" validate:"gte=0"`
	Stream      bool     `yaml:"stream"`
	// JSON requires the completion to be a JSON document; Output then holds
	// the decoded value.
	JSON   bool   `yaml:"json"`
	Output string `yaml:"output" default:"response" validate:"required"`
	// Extract maps memory keys to dotted paths inside the JSON completion.
	Extract map[string]string `yaml:"extract"`
}

type LLMNode struct {
	runtime.BaseNode
	Config LLMConfig
	model  llm.ChatModel
	prompt *template.Template
	system *template.Template
}

func NewLLMNode(id string, model llm.ChatModel, cfg LLMConfig, opts ...runtime.NodeOption) (*LLMNode, error) {
	if model == nil {
		return nil, fmt.Errorf("llm node %s has no chat model", id)
	}
	if err := runtime.ApplyDefaults(&cfg); err != nil {
		return nil, err
	}
	if err := runtime.Validate(cfg); err != nil {
		return nil, err
	}

	n := &LLMNode{BaseNode: runtime.NewBaseNode(id, opts...), Config: cfg, model: model}
	var err error
	if n.prompt, err = parseTemplate(id+".prompt", cfg.Prompt); err != nil {
		return nil, err
	}
	if cfg.System != "" {
		if n.system, err = parseTemplate(id+".system", cfg.System); err != nil {
			return nil, err
		}
	}
	return n, nil
}

func (n *LLMNode) Run(execution *runtime.Execution) (map[string]any, error) {
	values := execution.Values()

	var messages []llm.Message
	if n.system != nil {
		system, err := render(n.system, values)
		if err != nil {
			return nil, err
		}
		messages = append(messages, llm.System(system))
	}
	prompt, err := render(n.prompt, values)
	if err != nil {
		return nil, err
	}
	messages = append(messages, llm.User(prompt))

	opts := llm.Options{
		Model:       n.Config.ModelName,
		Temperature: n.Config.Temperature,
		MaxTokens:   n.Config.MaxTokens,
		JSON:        n.Config.JSON,
	}

	var resp *llm.Response
	if n.Config.Stream {
		stream, err := n.model.ChatStream(execution, messages, opts)
		if err != nil {
			return nil, err
		}
		resp, err = llm.Accumulate(stream, nil)
		if err != nil {
			return nil, err
		}
	} else {
		resp, err = n.model.Chat(execution, messages, opts)
		if err != nil {
			return nil, err
		}
	}

	result := map[string]any{n.Config.Output: resp.Content}
	if !n.Config.JSON && len(n.Config.Extract) == 0 {
		return result, nil
	}

	parsed, err := gabs.ParseJSON([]byte(stripFence(resp.Content)))
	if err != nil {
		return nil, fmt.Errorf("completion is not valid JSON: %w", err)
	}
	if n.Config.JSON {
		result[n.Config.Output] = parsed.Data()
	}
	for key, path := range n.Config.Extract {
		if !parsed.ExistsP(path) {
			return nil, fmt.Errorf("path %q not found in completion", path)
		}
		result[key] = parsed.Path(path).Data()
	}
	return result, nil
}

func parseTemplate(name, text string) (*template.Template, error) {
	t, err := template.New(name).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("template %s: %w", name, err)
	}
	return t, nil
}

func render(t *template.Template, values map[string]any) (string, error) {
	var sb strings.Builder
	if err := t.Execute(&sb, values); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return sb.String(), nil
}

// stripFence removes a markdown code fence around a JSON completion.
func stripFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
