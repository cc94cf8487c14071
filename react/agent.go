// Package react drives a reasoning and acting loop: the model thinks, names a
// tool with JSON input, observes the result and repeats until it answers.
package react

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/BDNK1/agentflow/llm"
	"github.com/BDNK1/agentflow/metrics"
	"github.com/BDNK1/agentflow/runtime"
	"github.com/BDNK1/agentflow/tools"
)

type Config struct {
	MaxIterations     int    `yaml:"max_iterations" default:"20" validate:"gte=1,lte=1000"`
	Stream            bool   `yaml:"stream"`
	FinalAnswerMarker string `yaml:"final_answer_marker" default:"Final Answer" validate:"required"`
	SystemPrompt      string `yaml:"system_prompt"`
}

type Status string

const (
	StatusFinalAnswer   Status = "FINAL_ANSWER"
	StatusMaxIterations Status = "MAX_ITERATIONS"
	StatusNonAction     Status = "NON_ACTION"
)

// Result is the terminal outcome of a run. Answer is empty when the
// iteration cap was reached.
type Result struct {
	Answer     string        `json:"answer"`
	Status     Status        `json:"status"`
	Iterations int           `json:"iterations"`
	Messages   []llm.Message `json:"messages"`
}

type Agent struct {
	Config   Config
	model    llm.ChatModel
	invoker  *tools.Invoker
	listener Listener
	chatOpts llm.Options
	final    *regexp.Regexp
	l        *slog.Logger
}

type Option func(*Agent)

func WithConfig(cfg Config) Option {
	return func(a *Agent) {
		a.Config = cfg
	}
}

func WithListener(listener Listener) Option {
	return func(a *Agent) {
		a.listener = listener
	}
}

func WithChatOptions(opts llm.Options) Option {
	return func(a *Agent) {
		a.chatOpts = opts
	}
}

// NewAgent builds an agent over a chat model and the tools reachable through
// invoker. A nil invoker means no tools.
func NewAgent(model llm.ChatModel, invoker *tools.Invoker, l *slog.Logger, opts ...Option) (*Agent, error) {
	if model == nil {
		return nil, errors.New("react agent requires a chat model")
	}
	if l == nil {
		l = slog.Default()
	}
	if invoker == nil {
		registry, _ := tools.NewRegistry()
		invoker = tools.NewInvoker(registry, l)
	}

	a := &Agent{
		model:    model,
		invoker:  invoker,
		listener: NopListener{},
		l:        l,
	}
	for _, opt := range opts {
		opt(a)
	}

	if err := runtime.ApplyDefaults(&a.Config); err != nil {
		return nil, fmt.Errorf("react config: %w", err)
	}
	if err := runtime.Validate(a.Config); err != nil {
		return nil, fmt.Errorf("react config: %w", err)
	}
	if a.listener == nil {
		a.listener = NopListener{}
	}
	if a.chatOpts.Stop == nil {
		a.chatOpts.Stop = []string{"\nObservation:"}
	}
	a.final = markerPattern(a.Config.FinalAnswerMarker)
	return a, nil
}

// Run loops until the model answers or the iteration cap is hit. The context
// is checked between iterations only.
func (a *Agent) Run(ctx context.Context, question string) (*Result, error) {
	session := a.NewSession(question)
	for {
		if err := ctx.Err(); err != nil {
			metrics.ObserveReActRun("CANCELLED", session.iterations)
			return nil, err
		}
		done, err := session.Next(ctx)
		if err != nil {
			metrics.ObserveReActRun("ERROR", session.iterations)
			return nil, err
		}
		if done {
			result := session.Result()
			metrics.ObserveReActRun(string(result.Status), result.Iterations)
			a.l.InfoContext(ctx, fmt.Sprintf("ReAct run finished: %s", result.Status), "iterations", result.Iterations)
			return result, nil
		}
	}
}

// Session holds the conversation of one run and advances it one iteration
// at a time.
type Session struct {
	agent      *Agent
	messages   []llm.Message
	iterations int
	result     *Result
}

func (a *Agent) NewSession(question string) *Session {
	var defs []tools.Definition
	if a.invoker.Registry != nil {
		defs = a.invoker.Registry.Definitions()
	}

	s := &Session{agent: a}
	if a.Config.SystemPrompt != "" {
		s.messages = append(s.messages, llm.System(a.Config.SystemPrompt))
	}
	s.messages = append(s.messages, llm.User(buildPrompt(defs, question, a.Config.FinalAnswerMarker)))
	return s
}

func (s *Session) Iterations() int {
	return s.iterations
}

func (s *Session) Messages() []llm.Message {
	out := make([]llm.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Result is nil until the session reached a terminal outcome.
func (s *Session) Result() *Result {
	if s.result == nil {
		return nil
	}
	res := *s.result
	res.Messages = s.Messages()
	return &res
}

// Next runs one model round trip and at most one action. It reports true
// once the session is terminal. Only a failed chat call returns an error.
func (s *Session) Next(ctx context.Context) (bool, error) {
	if s.result != nil {
		return true, nil
	}
	a := s.agent

	resp, err := a.complete(ctx, s.messages)
	if err != nil {
		return false, err
	}
	s.iterations++
	a.listener.OnChatResponse(ctx, s.iterations, resp)
	s.messages = append(s.messages, llm.Assistant(resp.Content))

	if answer, ok := finalAnswer(a.final, resp.Content); ok {
		a.listener.OnFinalAnswer(ctx, answer)
		s.finish(StatusFinalAnswer, answer)
		return true, nil
	}

	steps := Parse(resp.Content)
	if len(steps) == 0 {
		for _, tc := range resp.ToolCalls {
			steps = append(steps, Step{Action: tc.Name, ActionInput: tc.Arguments})
		}
	}
	if len(steps) == 0 {
		if !HasStepMarkers(resp.Content) {
			a.listener.OnNonActionResponse(ctx, resp.Content)
			s.finish(StatusNonAction, strings.TrimSpace(resp.Content))
			return true, nil
		}
		perr := &ParseError{Kind: ParseErrorStep, Text: resp.Content}
		a.l.DebugContext(ctx, "ReAct step could not be parsed", "iteration", s.iterations)
		a.listener.OnStepParseError(ctx, perr)
		s.observe(stepFormatCorrection(a.Config.FinalAnswerMarker))
		return s.capped(ctx), nil
	}

	step := steps[0]
	a.listener.OnStepParsed(ctx, step)
	s.act(ctx, step)
	return s.capped(ctx), nil
}

func (s *Session) act(ctx context.Context, step Step) {
	a := s.agent

	var tool tools.Tool
	var found bool
	if a.invoker.Registry != nil {
		tool, found = a.invoker.Registry.Get(step.Action)
	}
	if !found {
		a.l.DebugContext(ctx, fmt.Sprintf("ReAct action not matched: %s", step.Action))
		a.listener.OnActionNotMatched(ctx, step)
		var available []string
		if a.invoker.Registry != nil {
			available = a.invoker.Registry.Names()
		}
		s.observe(notMatchedObservation(step, available))
		return
	}

	args := map[string]any{}
	if input := strings.TrimSpace(step.ActionInput); input != "" {
		if err := json.Unmarshal([]byte(input), &args); err != nil {
			perr := &ParseError{Kind: ParseErrorJSON, Text: step.ActionInput, Cause: err}
			a.l.DebugContext(ctx, fmt.Sprintf("ReAct action input is not valid JSON: %s", step.Action), "error", err)
			a.listener.OnActionJSONParserError(ctx, step, perr)
			s.observe(jsonCorrection(step, err))
			return
		}
	}

	a.listener.OnActionStart(ctx, step, args)
	result, err := a.invoker.Invoke(ctx, tool, args)
	if err != nil {
		a.listener.OnActionInvokeError(ctx, step, err)
		s.observe(invokeErrorObservation(step, err))
		return
	}
	a.listener.OnActionEnd(ctx, step, result)
	s.observe(Observation(step.Action, step.ActionInput, result))
}

func (s *Session) observe(content string) {
	s.messages = append(s.messages, llm.User(content))
}

func (s *Session) capped(ctx context.Context) bool {
	if s.iterations < s.agent.Config.MaxIterations {
		return false
	}
	s.agent.l.WarnContext(ctx, "ReAct iteration cap reached", "iterations", s.iterations)
	s.agent.listener.OnMaxIterationsReached(ctx, s.iterations)
	s.finish(StatusMaxIterations, "")
	return true
}

func (s *Session) finish(status Status, answer string) {
	s.result = &Result{Answer: answer, Status: status, Iterations: s.iterations}
}

func (a *Agent) complete(ctx context.Context, messages []llm.Message) (*llm.Response, error) {
	if !a.Config.Stream {
		resp, err := a.model.Chat(ctx, messages, a.chatOpts)
		if err != nil {
			return nil, fmt.Errorf("chat completion: %w", err)
		}
		return resp, nil
	}

	stream, err := a.model.ChatStream(ctx, messages, a.chatOpts)
	if err != nil {
		return nil, fmt.Errorf("chat completion stream: %w", err)
	}
	resp, err := llm.Accumulate(stream, func(d llm.Delta) {
		a.listener.OnChatDelta(ctx, d)
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion stream: %w", err)
	}
	return resp, nil
}
