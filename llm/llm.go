// Package llm defines the chat capability the engine depends on. Vendor
// adapters live in subpackages and only translate wire formats.
package llm

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/BDNK1/agentflow/tools"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Message is one conversation turn.
type Message struct {
	Role       Role       `json:"role"`
	Content    string     `json:"content"`
	Name       string     `json:"name,omitempty"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

func System(content string) Message {
	return Message{Role: RoleSystem, Content: content}
}

func User(content string) Message {
	return Message{Role: RoleUser, Content: content}
}

func Assistant(content string) Message {
	return Message{Role: RoleAssistant, Content: content}
}

// ToolCall is a native function call requested by the model. Index orders
// fragments of the same call while streaming.
type ToolCall struct {
	Index     int    `json:"index"`
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// Options are per-request settings. Zero values leave the adapter default.
type Options struct {
	Model       string             `json:"model,omitempty"`
	Temperature *float64           `json:"temperature,omitempty"`
	MaxTokens   int                `json:"max_tokens,omitempty"`
	Stop        []string           `json:"stop,omitempty"`
	Tools       []tools.Definition `json:"tools,omitempty"`
	// JSON asks for a JSON object response where the provider supports it.
	JSON bool `json:"json,omitempty"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is a complete chat completion.
type Response struct {
	Content      string     `json:"content"`
	ToolCalls    []ToolCall `json:"tool_calls,omitempty"`
	FinishReason string     `json:"finish_reason,omitempty"`
	Usage        Usage      `json:"usage"`
}

// Delta is an incremental streaming chunk. The last one may carry the
// finish reason and usage.
type Delta struct {
	Content      string
	ToolCalls    []ToolCall
	FinishReason string
	Usage        *Usage
}

// Stream yields deltas until Recv returns io.EOF.
type Stream interface {
	Recv() (Delta, error)
	Close() error
}

// ChatModel is the chat capability.
type ChatModel interface {
	Chat(ctx context.Context, messages []Message, opts Options) (*Response, error)
	ChatStream(ctx context.Context, messages []Message, opts Options) (Stream, error)
}

// Accumulate drains a stream into one Response, calling onDelta for every
// chunk. The stream is closed on return.
func Accumulate(stream Stream, onDelta func(Delta)) (*Response, error) {
	defer stream.Close()

	var (
		content strings.Builder
		resp    Response
		calls   = map[int]*ToolCall{}
		order   []int
	)
	for {
		delta, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if onDelta != nil {
			onDelta(delta)
		}

		content.WriteString(delta.Content)
		for _, tc := range delta.ToolCalls {
			call, ok := calls[tc.Index]
			if !ok {
				call = &ToolCall{Index: tc.Index}
				calls[tc.Index] = call
				order = append(order, tc.Index)
			}
			if tc.ID != "" {
				call.ID = tc.ID
			}
			if tc.Name != "" {
				call.Name = tc.Name
			}
			call.Arguments += tc.Arguments
		}
		if delta.FinishReason != "" {
			resp.FinishReason = delta.FinishReason
		}
		if delta.Usage != nil {
			resp.Usage = *delta.Usage
		}
	}

	resp.Content = content.String()
	for _, idx := range order {
		resp.ToolCalls = append(resp.ToolCalls, *calls[idx])
	}
	return &resp, nil
}

// SliceStream replays fixed deltas. Useful for stub models.
type SliceStream struct {
	deltas []Delta
	closed bool
}

func NewSliceStream(deltas ...Delta) *SliceStream {
	return &SliceStream{deltas: deltas}
}

func (s *SliceStream) Recv() (Delta, error) {
	if s.closed || len(s.deltas) == 0 {
		return Delta{}, io.EOF
	}
	d := s.deltas[0]
	s.deltas = s.deltas[1:]
	return d, nil
}

func (s *SliceStream) Close() error {
	s.closed = true
	return nil
}

// Float is a helper for Options.Temperature.
func Float(v float64) *float64 {
	return &v
}
