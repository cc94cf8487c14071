// Package ollama talks to a local Ollama server through its /api/chat
// endpoint. Streaming responses are newline delimited JSON.
package ollama

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/BDNK1/agentflow/llm"
	"github.com/BDNK1/agentflow/runtime"
	"github.com/Jeffail/gabs/v2"
	"github.com/go-resty/resty/v2"
)

type Config struct {
	BaseURL     string        `yaml:"base_url" default:"http://localhost:11434" validate:"url_format"`
	Model       string        `yaml:"model" default:"llama3.1" validate:"required"`
	Temperature float64       `yaml:"temperature" default:"0" validate:"gte=0,lte=2"`
	KeepAlive   string        `yaml:"keep_alive"`
	Timeout     time.Duration `yaml:"timeout" default:"120s" validate:"gte=1s"`
	MaxRetries  int           `yaml:"max_retries" default:"2" validate:"gte=0,lte=10"`
}

type Client struct {
	Config Config
	client *resty.Client
}

var _ llm.ChatModel = (*Client)(nil)
var _ runtime.Lifecycle = (*Client)(nil)

func New(raw map[string]any) (*Client, error) {
	c := &Client{}
	if err := runtime.InitializeConfig(&c.Config, raw); err != nil {
		return nil, fmt.Errorf("ollama config: %w", err)
	}
	return c, nil
}

func (c *Client) Initialize(context.Context) error {
	c.client = resty.New().
		SetBaseURL(strings.TrimSuffix(c.Config.BaseURL, "/")).
		SetTimeout(c.Config.Timeout).
		SetRetryCount(c.Config.MaxRetries).
		SetHeader("Content-Type", "application/json")
	return nil
}

func (c *Client) Shutdown(context.Context) error {
	c.client = nil
	return nil
}

func (c *Client) Chat(ctx context.Context, messages []llm.Message, opts llm.Options) (*llm.Response, error) {
	if c.client == nil {
		return nil, errors.New("ollama client is not initialized")
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(c.payload(messages, opts, false)).
		Post("/api/chat")
	if err != nil {
		return nil, fmt.Errorf("ollama chat: %w", err)
	}
	if resp.IsError() {
		return nil, apiError(resp.StatusCode(), resp.Body())
	}

	parsed, err := gabs.ParseJSON(resp.Body())
	if err != nil {
		return nil, fmt.Errorf("ollama chat: decode response: %w", err)
	}
	delta := parseChunk(parsed)

	out := &llm.Response{
		Content:      delta.Content,
		ToolCalls:    delta.ToolCalls,
		FinishReason: delta.FinishReason,
	}
	if delta.Usage != nil {
		out.Usage = *delta.Usage
	}
	return out, nil
}

func (c *Client) ChatStream(ctx context.Context, messages []llm.Message, opts llm.Options) (llm.Stream, error) {
	if c.client == nil {
		return nil, errors.New("ollama client is not initialized")
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(c.payload(messages, opts, true)).
		SetDoNotParseResponse(true).
		Post("/api/chat")
	if err != nil {
		return nil, fmt.Errorf("ollama chat stream: %w", err)
	}

	body := resp.RawBody()
	if resp.IsError() {
		defer body.Close()
		raw, _ := io.ReadAll(body)
		return nil, apiError(resp.StatusCode(), raw)
	}
	return &chatStream{body: body, scanner: bufio.NewScanner(body)}, nil
}

func (c *Client) payload(messages []llm.Message, opts llm.Options, stream bool) map[string]any {
	model := c.Config.Model
	if opts.Model != "" {
		model = opts.Model
	}

	options := map[string]any{"temperature": c.Config.Temperature}
	if opts.Temperature != nil {
		options["temperature"] = *opts.Temperature
	}
	if opts.MaxTokens > 0 {
		options["num_predict"] = opts.MaxTokens
	}
	if len(opts.Stop) > 0 {
		options["stop"] = opts.Stop
	}

	msgs := make([]map[string]any, 0, len(messages))
	for _, m := range messages {
		msg := map[string]any{"role": string(m.Role), "content": m.Content}
		if len(m.ToolCalls) > 0 {
			calls := make([]map[string]any, 0, len(m.ToolCalls))
			for _, tc := range m.ToolCalls {
				var args any = map[string]any{}
				_ = json.Unmarshal([]byte(tc.Arguments), &args)
				calls = append(calls, map[string]any{
					"function": map[string]any{"name": tc.Name, "arguments": args},
				})
			}
			msg["tool_calls"] = calls
		}
		msgs = append(msgs, msg)
	}

	body := map[string]any{
		"model":    model,
		"messages": msgs,
		"stream":   stream,
		"options":  options,
	}
	if opts.JSON {
		body["format"] = "json"
	}
	if c.Config.KeepAlive != "" {
		body["keep_alive"] = c.Config.KeepAlive
	}
	if len(opts.Tools) > 0 {
		defs := make([]map[string]any, 0, len(opts.Tools))
		for _, def := range opts.Tools {
			defs = append(defs, map[string]any{
				"type": "function",
				"function": map[string]any{
					"name":        def.Name,
					"description": def.Description,
					"parameters":  def.Parameters,
				},
			})
		}
		body["tools"] = defs
	}
	return body
}

// parseChunk reads one /api/chat object, streamed or not.
func parseChunk(parsed *gabs.Container) llm.Delta {
	var delta llm.Delta
	if content, ok := parsed.Path("message.content").Data().(string); ok {
		delta.Content = content
	}

	for i, call := range parsed.Path("message.tool_calls").Children() {
		name, _ := call.Path("function.name").Data().(string)
		args := "{}"
		if a := call.Path("function.arguments"); a.Data() != nil {
			args = a.String()
		}
		delta.ToolCalls = append(delta.ToolCalls, llm.ToolCall{Index: i, Name: name, Arguments: args})
	}

	if done, _ := parsed.Path("done").Data().(bool); done {
		delta.FinishReason, _ = parsed.Path("done_reason").Data().(string)
		if delta.FinishReason == "" {
			delta.FinishReason = "stop"
		}
		prompt := toInt(parsed.Path("prompt_eval_count").Data())
		completion := toInt(parsed.Path("eval_count").Data())
		delta.Usage = &llm.Usage{
			PromptTokens:     prompt,
			CompletionTokens: completion,
			TotalTokens:      prompt + completion,
		}
	}
	return delta
}

func apiError(status int, body []byte) error {
	msg := strings.TrimSpace(string(body))
	if parsed, err := gabs.ParseJSON(body); err == nil {
		if s, ok := parsed.Path("error").Data().(string); ok {
			msg = s
		}
	}
	return fmt.Errorf("ollama returned %d: %s", status, msg)
}

func toInt(v any) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case json.Number:
		i, _ := n.Int64()
		return int(i)
	case int:
		return n
	}
	return 0
}

type chatStream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
}

func (s *chatStream) Recv() (llm.Delta, error) {
	for !s.done && s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" {
			continue
		}
		parsed, err := gabs.ParseJSON([]byte(line))
		if err != nil {
			return llm.Delta{}, fmt.Errorf("ollama chat stream: decode chunk: %w", err)
		}
		if msg, ok := parsed.Path("error").Data().(string); ok {
			return llm.Delta{}, fmt.Errorf("ollama chat stream: %s", msg)
		}
		delta := parseChunk(parsed)
		s.done = delta.Usage != nil
		return delta, nil
	}
	if err := s.scanner.Err(); err != nil {
		return llm.Delta{}, fmt.Errorf("ollama chat stream: %w", err)
	}
	return llm.Delta{}, io.EOF
}

func (s *chatStream) Close() error {
	return s.body.Close()
}
