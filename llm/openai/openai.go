// Package openai adapts OpenAI compatible chat completion APIs to llm.ChatModel.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/BDNK1/agentflow/llm"
	"github.com/BDNK1/agentflow/runtime"
	goopenai "github.com/sashabaranov/go-openai"
)

type Config struct {
	APIKey       string        `yaml:"api_key" default:"${OPENAI_API_KEY:}"`
	BaseURL      string        `yaml:"base_url" validate:"omitempty,url_format"`
	Organization string        `yaml:"organization"`
	Model        string        `yaml:"model" default:"gpt-4o-mini" validate:"required"`
	Temperature  float64       `yaml:"temperature" default:"0" validate:"gte=0,lte=2"`
	MaxTokens    int           `yaml:"max_tokens" validate:"gte=0"`
	Timeout      time.Duration `yaml:"timeout" default:"120s" validate:"gte=1s"`
}

// Client is a llm.ChatModel backed by go-openai.
type Client struct {
	Config Config
	client *goopenai.Client
}

var _ llm.ChatModel = (*Client)(nil)
var _ runtime.Lifecycle = (*Client)(nil)

// New applies defaults to raw settings and validates them. The underlying
// client is built on Initialize.
func New(raw map[string]any) (*Client, error) {
	c := &Client{}
	if err := runtime.InitializeConfig(&c.Config, raw); err != nil {
		return nil, fmt.Errorf("openai config: %w", err)
	}
	return c, nil
}

func (c *Client) Initialize(context.Context) error {
	cfg := goopenai.DefaultConfig(runtime.ResolveEnv(c.Config.APIKey))
	if c.Config.BaseURL != "" {
		cfg.BaseURL = c.Config.BaseURL
	}
	cfg.OrgID = c.Config.Organization
	cfg.HTTPClient = &http.Client{Timeout: c.Config.Timeout}
	c.client = goopenai.NewClientWithConfig(cfg)
	return nil
}

func (c *Client) Shutdown(context.Context) error {
	c.client = nil
	return nil
}

func (c *Client) Chat(ctx context.Context, messages []llm.Message, opts llm.Options) (*llm.Response, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	resp, err := c.client.CreateChatCompletion(ctx, c.request(messages, opts))
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("chat completion returned no choices")
	}

	choice := resp.Choices[0]
	return &llm.Response{
		Content:      choice.Message.Content,
		ToolCalls:    fromToolCalls(choice.Message.ToolCalls),
		FinishReason: string(choice.FinishReason),
		Usage: llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}

func (c *Client) ChatStream(ctx context.Context, messages []llm.Message, opts llm.Options) (llm.Stream, error) {
	if err := c.ready(); err != nil {
		return nil, err
	}
	req := c.request(messages, opts)
	req.Stream = true
	req.StreamOptions = &goopenai.StreamOptions{IncludeUsage: true}

	stream, err := c.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("chat completion stream: %w", err)
	}
	return &chatStream{stream: stream}, nil
}

func (c *Client) ready() error {
	if c.client == nil {
		return errors.New("openai client is not initialized")
	}
	return nil
}

func (c *Client) request(messages []llm.Message, opts llm.Options) goopenai.ChatCompletionRequest {
	req := goopenai.ChatCompletionRequest{
		Model:       c.Config.Model,
		Temperature: float32(c.Config.Temperature),
		MaxTokens:   c.Config.MaxTokens,
		Stop:        opts.Stop,
		Messages:    toMessages(messages),
	}
	if opts.Model != "" {
		req.Model = opts.Model
	}
	if opts.Temperature != nil {
		req.Temperature = float32(*opts.Temperature)
	}
	if opts.MaxTokens > 0 {
		req.MaxTokens = opts.MaxTokens
	}
	if opts.JSON {
		req.ResponseFormat = &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	for _, def := range opts.Tools {
		req.Tools = append(req.Tools, goopenai.Tool{
			Type: goopenai.ToolTypeFunction,
			Function: &goopenai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		})
	}
	return req
}

func toMessages(messages []llm.Message) []goopenai.ChatCompletionMessage {
	out := make([]goopenai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		msg := goopenai.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			Name:       m.Name,
			ToolCallID: m.ToolCallID,
		}
		for _, tc := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, goopenai.ToolCall{
				ID:   tc.ID,
				Type: goopenai.ToolTypeFunction,
				Function: goopenai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}
		out = append(out, msg)
	}
	return out
}

func fromToolCalls(calls []goopenai.ToolCall) []llm.ToolCall {
	if len(calls) == 0 {
		return nil
	}
	out := make([]llm.ToolCall, 0, len(calls))
	for i, tc := range calls {
		idx := i
		if tc.Index != nil {
			idx = *tc.Index
		}
		out = append(out, llm.ToolCall{
			Index:     idx,
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return out
}

type chatStream struct {
	stream *goopenai.ChatCompletionStream
}

func (s *chatStream) Recv() (llm.Delta, error) {
	chunk, err := s.stream.Recv()
	if errors.Is(err, io.EOF) {
		return llm.Delta{}, io.EOF
	}
	if err != nil {
		return llm.Delta{}, fmt.Errorf("chat completion stream: %w", err)
	}

	var delta llm.Delta
	if len(chunk.Choices) > 0 {
		choice := chunk.Choices[0]
		delta.Content = choice.Delta.Content
		delta.ToolCalls = fromToolCalls(choice.Delta.ToolCalls)
		delta.FinishReason = string(choice.FinishReason)
	}
	if chunk.Usage != nil {
		delta.Usage = &llm.Usage{
			PromptTokens:     chunk.Usage.PromptTokens,
			CompletionTokens: chunk.Usage.CompletionTokens,
			TotalTokens:      chunk.Usage.TotalTokens,
		}
	}
	return delta, nil
}

func (s *chatStream) Close() error {
	s.stream.Close()
	return nil
}
