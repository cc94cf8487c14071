package nodes

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/BDNK1/agentflow/llm"
	"github.com/BDNK1/agentflow/runtime"
	"github.com/BDNK1/agentflow/runtime/engine/expr"
	"github.com/BDNK1/agentflow/runtime/engine/yaml"
	"github.com/BDNK1/agentflow/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubModel struct {
	replies  []string
	calls    int
	messages [][]llm.Message
	opts     []llm.Options
}

func (m *stubModel) Chat(_ context.Context, messages []llm.Message, opts llm.Options) (*llm.Response, error) {
	m.messages = append(m.messages, messages)
	m.opts = append(m.opts, opts)
	reply := m.replies[min(m.calls, len(m.replies)-1)]
	m.calls++
	return &llm.Response{Content: reply}, nil
}

func (m *stubModel) ChatStream(ctx context.Context, messages []llm.Message, opts llm.Options) (llm.Stream, error) {
	resp, err := m.Chat(ctx, messages, opts)
	if err != nil {
		return nil, err
	}
	return llm.NewSliceStream(llm.Delta{Content: resp.Content}), nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newExecution(values map[string]any) *runtime.Execution {
	exec := runtime.NewExecution(context.Background(), nil, nil)
	for k, v := range values {
		exec.AddValue(k, v)
	}
	return exec
}

func weatherRegistry(t *testing.T) *tools.Registry {
	t.Helper()
	registry, err := tools.NewRegistry(
		tools.NewFunctionTool(tools.Definition{Name: "get_weather"}, func(_ context.Context, args map[string]any) (any, error) {
			if args["city"] == "" || args["city"] == nil {
				return nil, errors.New("city is required")
			}
			return "sunny in " + args["city"].(string), nil
		}),
		tools.NewFunctionTool(tools.Definition{Name: "get_time"}, func(context.Context, map[string]any) (any, error) {
			return "noon", nil
		}),
	)
	require.NoError(t, err)
	return registry
}

func TestLLMNode_RendersPrompt(t *testing.T) {
	model := &stubModel{replies: []string{"Bonjour"}}
	node, err := NewLLMNode("translate", model, LLMConfig{
		System:      "You translate to {{.lang}}.",
		Prompt:      "Translate: {{.text}}",
		Temperature: llm.Float(0.1),
	})
	require.NoError(t, err)

	result, err := node.Run(newExecution(map[string]any{"lang": "French", "text": "Hello"}))
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"response": "Bonjour"}, result)
	assert.Equal(t, []llm.Message{llm.System("You translate to French."), llm.User("Translate: Hello")}, model.messages[0])
	assert.Equal(t, 0.1, *model.opts[0].Temperature)
}

func TestLLMNode_MissingKeyFails(t *testing.T) {
	node, err := NewLLMNode("n", &stubModel{replies: []string{"x"}}, LLMConfig{Prompt: "{{.absent}}"})
	require.NoError(t, err)

	_, err = node.Run(newExecution(nil))
	assert.ErrorContains(t, err, "absent")
}

func TestLLMNode_JSONExtraction(t *testing.T) {
	model := &stubModel{replies: []string{"```json\n{\"sentiment\": {\"label\": \"positive\", \"score\": 0.93}}\n```"}}
	node, err := NewLLMNode("classify", model, LLMConfig{
		Prompt:  "Classify: {{.text}}",
		JSON:    true,
		Output:  "classification",
		Extract: map[string]string{"label": "sentiment.label", "score": "sentiment.score"},
	})
	require.NoError(t, err)

	result, err := node.Run(newExecution(map[string]any{"text": "great product"}))
	require.NoError(t, err)

	assert.Equal(t, "positive", result["label"])
	assert.Equal(t, 0.93, result["score"])
	assert.Equal(t, map[string]any{"sentiment": map[string]any{"label": "positive", "score": 0.93}}, result["classification"])
	assert.True(t, model.opts[0].JSON)
}

func TestLLMNode_JSONErrors(t *testing.T) {
	node, err := NewLLMNode("n", &stubModel{replies: []string{"not json"}}, LLMConfig{Prompt: "p", JSON: true})
	require.NoError(t, err)
	_, err = node.Run(newExecution(nil))
	assert.ErrorContains(t, err, "not valid JSON")

	node, err = NewLLMNode("n", &stubModel{replies: []string{`{"a":1}`}}, LLMConfig{Prompt: "p", Extract: map[string]string{"b": "b.c"}})
	require.NoError(t, err)
	_, err = node.Run(newExecution(nil))
	assert.ErrorContains(t, err, `path "b.c" not found`)
}

func TestLLMNode_Stream(t *testing.T) {
	model := &stubModel{replies: []string{"streamed"}}
	node, err := NewLLMNode("n", model, LLMConfig{Prompt: "p", Stream: true, Output: "out"})
	require.NoError(t, err)

	result, err := node.Run(newExecution(nil))
	require.NoError(t, err)
	assert.Equal(t, "streamed", result["out"])
}

func TestNewLLMNode_Rejects(t *testing.T) {
	_, err := NewLLMNode("n", nil, LLMConfig{Prompt: "p"})
	assert.Error(t, err)

	_, err = NewLLMNode("n", &stubModel{}, LLMConfig{})
	assert.Error(t, err)

	_, err = NewLLMNode("n", &stubModel{}, LLMConfig{Prompt: "{{.broken"})
	assert.ErrorContains(t, err, "template")
}

func TestToolNode(t *testing.T) {
	invoker := tools.NewInvoker(weatherRegistry(t), testLogger())
	node, err := NewToolNode("weather", invoker, ToolConfig{
		Tool:     "get_weather",
		Args:     map[string]any{"city": "Nowhere", "units": "metric"},
		ArgsFrom: map[string]string{"city": "request.city"},
		Output:   "forecast",
	})
	require.NoError(t, err)

	exec := newExecution(nil)
	exec.Store.SetNested("request", map[string]any{"city": "Lisbon"})

	result, err := node.Run(exec)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"forecast": "sunny in Lisbon"}, result)

	_, err = node.Run(newExecution(nil))
	assert.ErrorContains(t, err, `memory key "request.city" not set`)
}

type lookupResult struct {
	StatusCode int    `json:"status_code"`
	City       string `json:"city"`
}

func TestToolNode_StructResultStoredAsMap(t *testing.T) {
	registry, err := tools.NewRegistry(
		tools.NewFunctionTool(tools.Definition{Name: "lookup"}, func(context.Context, map[string]any) (any, error) {
			return &lookupResult{StatusCode: 200, City: "Porto"}, nil
		}),
	)
	require.NoError(t, err)

	node, err := NewToolNode("lookup", tools.NewInvoker(registry, testLogger()), ToolConfig{Tool: "lookup"})
	require.NoError(t, err)

	result, err := node.Run(newExecution(nil))
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"status_code": float64(200), "city": "Porto"}, result["result"])
}

func TestToolNode_ErrorFailsNode(t *testing.T) {
	invoker := tools.NewInvoker(weatherRegistry(t), testLogger())
	node, err := NewToolNode("weather", invoker, ToolConfig{Tool: "get_weather"})
	require.NoError(t, err)

	_, err = node.Run(newExecution(nil))
	var invErr *tools.InvocationError
	assert.ErrorAs(t, err, &invErr)

	_, err = NewToolNode("n", invoker, ToolConfig{Tool: "missing"})
	assert.ErrorContains(t, err, "unknown tool")
}

const agentChain = `
id: assistant
nodes:
  - id: ask
    type: react
    args:
      tools: [get_weather]
      agent:
        max_iterations: 4
  - id: summarize
    type: llm
    args:
      prompt: "Summarize: {{.answer}}"
      output: summary
  - id: clock
    type: tool
    condition: answer_status == "FINAL_ANSWER"
    args:
      tool: get_time
      output: time
edges:
  - from: ask
    to: summarize
  - from: ask
    to: clock
`

func TestRegister_BuildsAgentChain(t *testing.T) {
	expr.Register()

	model := &stubModel{replies: []string{
		"Thought: weather\nAction: get_weather\nAction Input: {\"city\":\"NY\"}",
		"Final Answer: sunny in NY",
		"It is sunny.",
	}}

	container := runtime.NewContainer()
	Register(container, testLogger())
	require.NoError(t, container.Register("llm", model))
	require.NoError(t, container.Register("tools", weatherRegistry(t)))

	def, err := yaml.Parse([]byte(agentChain))
	require.NoError(t, err)
	chain, err := container.Build(def, testLogger())
	require.NoError(t, err)

	exec, err := chain.Execute(context.Background(), map[string]any{"question": "Weather in NY?"})
	require.NoError(t, err)

	values := exec.Values()
	assert.Equal(t, "sunny in NY", values["answer"])
	assert.Equal(t, "FINAL_ANSWER", values["answer_status"])
	assert.Equal(t, 2, values["answer_iterations"])
	assert.Equal(t, "It is sunny.", values["summary"])
	assert.Equal(t, "noon", values["time"])

	// the agent only sees the selected tools
	assert.NotContains(t, model.messages[0][0].Content, "get_time")
}

func TestRegister_MissingComponents(t *testing.T) {
	expr.Register()

	container := runtime.NewContainer()
	Register(container, nil)
	assert.ElementsMatch(t, []string{"code", "router", "llm", "tool", "react"}, container.NodeTypes())

	def, err := yaml.Parse([]byte(agentChain))
	require.NoError(t, err)
	_, err = container.Build(def, testLogger())
	assert.ErrorContains(t, err, `component "llm" is not registered`)

	require.NoError(t, container.Register("llm", "not a model"))
	_, err = container.Build(def, testLogger())
	assert.ErrorContains(t, err, `component "llm" has type string`)
}

func TestReActNode_RequiresQuestion(t *testing.T) {
	container := runtime.NewContainer()
	Register(container, testLogger())
	require.NoError(t, container.Register("llm", &stubModel{replies: []string{"Final Answer: x"}}))
	require.NoError(t, container.Register("tools", weatherRegistry(t)))

	factory, ok := container.NodeFactory(NodeTypeReAct)
	require.True(t, ok)
	node, err := factory(runtime.NodeDefinition{ID: "agent", Type: NodeTypeReAct, Args: map[string]any{"input": "q"}}, nil, container)
	require.NoError(t, err)

	_, err = node.Run(newExecution(nil))
	assert.ErrorContains(t, err, `memory key "q" not set`)

	result, err := node.Run(newExecution(map[string]any{"q": "anything"}))
	require.NoError(t, err)
	assert.Equal(t, "x", result["answer"])
}
