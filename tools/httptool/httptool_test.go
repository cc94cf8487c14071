package httptool

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/BDNK1/agentflow/tools"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlattenToFormData(t *testing.T) {
	tests := []struct {
		name     string
		input    map[string]any
		expected map[string]string
	}{
		{
			name:     "simple values",
			input:    map[string]any{"city": "Paris", "days": 3},
			expected: map[string]string{"city": "Paris", "days": "3"},
		},
		{
			name: "nested map",
			input: map[string]any{
				"filter": map[string]any{"lang": "en", "units": "metric"},
			},
			expected: map[string]string{
				"filter[lang]":  "en",
				"filter[units]": "metric",
			},
		},
		{
			name: "array of objects",
			input: map[string]any{
				"messages": []any{
					map[string]any{"role": "user", "content": "hi"},
				},
			},
			expected: map[string]string{
				"messages[0][role]":    "user",
				"messages[0][content]": "hi",
			},
		},
		{
			name:     "boolean and float",
			input:    map[string]any{"stream": false, "temperature": 0.25},
			expected: map[string]string{"stream": "false", "temperature": "0.25"},
		},
		{
			name:     "empty map",
			input:    map[string]any{},
			expected: map[string]string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, flattenToFormData(tt.input, ""))
		})
	}
}

func TestNew_Defaults(t *testing.T) {
	tool, err := New(nil)
	require.NoError(t, err)
	assert.Equal(t, 3, tool.Config.MaxRetries)
	assert.Equal(t, "30s", tool.Config.Timeout.String())

	_, err = New(map[string]any{"max_retries": 50})
	require.Error(t, err)
}

func TestInvoke_JSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Paris", r.URL.Query().Get("city"))

		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "metric", body["units"])

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"forecast":"sunny"}`))
	}))
	defer srv.Close()

	tool, err := New(map[string]any{"max_retries": 0})
	require.NoError(t, err)
	require.NoError(t, tool.Initialize(context.Background()))

	result, err := tools.Invoke(context.Background(), tool, map[string]any{
		"url":    srv.URL,
		"method": "POST",
		"query":  map[string]any{"city": "Paris"},
		"body":   map[string]any{"units": "metric"},
	})
	require.NoError(t, err)

	out := result.(RequestOutput)
	assert.Equal(t, 200, out.StatusCode)
	assert.False(t, out.IsError)
	assert.Equal(t, "sunny", out.Body["forecast"])
}

func TestInvoke_TextAndErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("no such city"))
	}))
	defer srv.Close()

	tool, err := New(map[string]any{"max_retries": 0})
	require.NoError(t, err)

	result, err := tool.Invoke(context.Background(), map[string]any{"url": srv.URL})
	require.NoError(t, err)

	out := result.(RequestOutput)
	assert.True(t, out.IsError)
	assert.Equal(t, "no such city", out.Text)
}

func TestInvoke_Rejects(t *testing.T) {
	tool, err := New(map[string]any{"allowed_hosts": []any{"api.weather.test"}})
	require.NoError(t, err)

	_, err = tool.Invoke(context.Background(), map[string]any{"url": "not a url"})
	assert.ErrorContains(t, err, "invalid arguments")

	_, err = tool.Invoke(context.Background(), map[string]any{"url": "http://evil.test/x"})
	assert.ErrorContains(t, err, "host not allowed")

	_, err = tool.Invoke(context.Background(), map[string]any{"url": "http://api.weather.test/x", "method": "TRACE"})
	assert.ErrorContains(t, err, "invalid arguments")
}

func TestDefinition(t *testing.T) {
	def := (&Tool{}).Definition()
	assert.Equal(t, Name, def.Name)
	assert.Equal(t, []string{"url"}, def.Parameters.Required)
}
