package tools

import (
	"context"
	"testing"

	"github.com/sashabaranov/go-openai/jsonschema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type forecastInput struct {
	City string `json:"city" validate:"required"`
	Days int    `json:"days" validate:"gte=1,lte=7"`
}

func forecastTool(t *testing.T) *FunctionTool {
	t.Helper()
	tool, err := NewTypedTool(Definition{Name: "forecast", Description: "Weather forecast"},
		func(_ context.Context, in forecastInput) (any, error) {
			return map[string]any{"city": in.City, "days": in.Days}, nil
		})
	require.NoError(t, err)
	return tool
}

func TestNewTypedTool_DecodesAndValidates(t *testing.T) {
	tool := forecastTool(t)

	out, err := tool.Invoke(context.Background(), map[string]any{"city": "Paris", "days": float64(3)})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"city": "Paris", "days": 3}, out)

	_, err = tool.Invoke(context.Background(), map[string]any{"days": 3})
	assert.ErrorContains(t, err, "invalid arguments")

	_, err = tool.Invoke(context.Background(), map[string]any{"city": "Paris", "days": 30})
	assert.ErrorContains(t, err, "invalid arguments")
}

func TestNewTypedTool_GeneratesSchema(t *testing.T) {
	def := forecastTool(t).Definition()

	assert.Equal(t, jsonschema.Object, def.Parameters.Type)
	assert.Contains(t, def.Parameters.Properties, "city")
	assert.Equal(t, jsonschema.Integer, def.Parameters.Properties["days"].Type)
}

func TestNewTypedTool_KeepsExplicitSchema(t *testing.T) {
	schema := jsonschema.Definition{
		Type:       jsonschema.Object,
		Properties: map[string]jsonschema.Definition{"q": {Type: jsonschema.String}},
	}
	tool, err := NewTypedTool(Definition{Name: "search", Parameters: schema},
		func(_ context.Context, in map[string]any) (any, error) {
			return in["q"], nil
		})
	require.NoError(t, err)

	assert.Equal(t, schema, tool.Definition().Parameters)
	out, err := tool.Invoke(context.Background(), map[string]any{"q": "go"})
	require.NoError(t, err)
	assert.Equal(t, "go", out)
}

func TestRegistry(t *testing.T) {
	registry, err := NewRegistry(weatherTool(nil), forecastTool(t))
	require.NoError(t, err)

	assert.Equal(t, []string{"get_weather", "forecast"}, registry.Names())
	assert.Len(t, registry.Definitions(), 2)

	_, ok := registry.Get("forecast")
	assert.True(t, ok)

	assert.ErrorContains(t, registry.Register(weatherTool(nil)), "already registered")
	assert.ErrorContains(t, registry.Register(NewFunctionTool(Definition{}, nil)), "cannot be empty")
}

func TestRegistry_Subset(t *testing.T) {
	registry, err := NewRegistry(weatherTool(nil), forecastTool(t))
	require.NoError(t, err)

	sub, err := registry.Subset("forecast")
	require.NoError(t, err)
	assert.Equal(t, []string{"forecast"}, sub.Names())

	all, err := registry.Subset()
	require.NoError(t, err)
	assert.Equal(t, registry.Names(), all.Names())

	_, err = registry.Subset("missing")
	assert.ErrorContains(t, err, "unknown tool")
}
