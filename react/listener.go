package react

import (
	"context"

	"github.com/BDNK1/agentflow/llm"
)

// Listener receives loop callbacks. Embed NopListener to implement a subset.
type Listener interface {
	OnChatResponse(ctx context.Context, iteration int, resp *llm.Response)
	OnChatDelta(ctx context.Context, delta llm.Delta)
	OnStepParsed(ctx context.Context, step Step)
	OnStepParseError(ctx context.Context, err *ParseError)
	OnActionNotMatched(ctx context.Context, step Step)
	OnActionJSONParserError(ctx context.Context, step Step, err *ParseError)
	OnActionStart(ctx context.Context, step Step, args map[string]any)
	OnActionEnd(ctx context.Context, step Step, result any)
	OnActionInvokeError(ctx context.Context, step Step, err error)
	OnFinalAnswer(ctx context.Context, answer string)
	OnNonActionResponse(ctx context.Context, content string)
	OnMaxIterationsReached(ctx context.Context, iterations int)
}

type NopListener struct{}

var _ Listener = NopListener{}

func (NopListener) OnChatResponse(context.Context, int, *llm.Response) {}
func (NopListener) OnChatDelta(context.Context, llm.Delta) {}
func (NopListener) OnStepParsed(context.Context, Step) {}
func (NopListener) OnStepParseError(context.Context, *ParseError) {}
func (NopListener) OnActionNotMatched(context.Context, Step) {}
func (NopListener) OnActionJSONParserError(context.Context, Step, *ParseError) {}
func (NopListener) OnActionStart(context.Context, Step, map[string]any) {}
func (NopListener) OnActionEnd(context.Context, Step, any) {}
func (NopListener) OnActionInvokeError(context.Context, Step, error) {}
func (NopListener) OnFinalAnswer(context.Context, string) {}
func (NopListener) OnNonActionResponse(context.Context, string) {}
func (NopListener) OnMaxIterationsReached(context.Context, int) {}
