package httptool

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"slices"
	"time"

	"github.com/BDNK1/agentflow/runtime"
	"github.com/BDNK1/agentflow/tools"
	"github.com/go-resty/resty/v2"
	"github.com/sashabaranov/go-openai/jsonschema"
)

// Name is the tool name shown to the model.
const Name = "http_request"

// Config holds the HTTP client configuration with declarative tags
type Config struct {
	Timeout     time.Duration `yaml:"timeout" default:"30s" validate:"gte=1s"`
	MaxRetries  int           `yaml:"max_retries" default:"3" validate:"gte=0,lte=10"`
	Debug       bool          `yaml:"debug" default:"false"`
	RetryWaitMS int           `yaml:"retry_wait_ms" default:"100" validate:"gte=0,lte=10000"`
	// AllowedHosts restricts the hosts the model may call; empty allows all.
	AllowedHosts []string `yaml:"allowed_hosts"`
}

// RequestInput is the argument shape the model sends.
type RequestInput struct {
	URL     string            `json:"url" validate:"required,url"`
	Method  string            `json:"method" validate:"omitempty,oneof=GET POST PUT PATCH DELETE HEAD"`
	Headers map[string]string `json:"headers"`
	Query   map[string]string `json:"query"`
	Body    map[string]any    `json:"body"`
	// Form sends Body as application/x-www-form-urlencoded.
	Form bool `json:"form"`
}

// RequestOutput is returned to the model as the action result.
type RequestOutput struct {
	Status     string         `json:"status"`
	StatusCode int            `json:"status_code"`
	IsError    bool           `json:"is_error"`
	Body       map[string]any `json:"body,omitempty"`
	Text       string         `json:"text,omitempty"`
}

// Tool performs HTTP requests chosen by the model.
type Tool struct {
	Config Config
	client *resty.Client
}

var _ tools.Tool = (*Tool)(nil)
var _ runtime.Lifecycle = (*Tool)(nil)

// New applies defaults to raw settings and validates them.
func New(raw map[string]any) (*Tool, error) {
	t := &Tool{}
	if err := runtime.InitializeConfig(&t.Config, raw); err != nil {
		return nil, fmt.Errorf("http tool config: %w", err)
	}
	return t, nil
}

// Initialize builds the resty client from the validated config.
func (t *Tool) Initialize(context.Context) error {
	t.client = resty.New().
		SetTimeout(t.Config.Timeout).
		SetRetryCount(t.Config.MaxRetries).
		SetRetryWaitTime(time.Duration(t.Config.RetryWaitMS) * time.Millisecond).
		SetDebug(t.Config.Debug)
	return nil
}

func (t *Tool) Shutdown(context.Context) error {
	t.client = nil
	return nil
}

func (t *Tool) Definition() tools.Definition {
	return tools.Definition{
		Name:        Name,
		Description: "Send an HTTP request and return the status and response body.",
		Parameters: jsonschema.Definition{
			Type: jsonschema.Object,
			Properties: map[string]jsonschema.Definition{
				"url":     {Type: jsonschema.String, Description: "Absolute URL"},
				"method":  {Type: jsonschema.String, Enum: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "HEAD"}},
				"headers": {Type: jsonschema.Object, Description: "Request headers"},
				"query":   {Type: jsonschema.Object, Description: "Query parameters"},
				"body":    {Type: jsonschema.Object, Description: "JSON body"},
				"form":    {Type: jsonschema.Boolean, Description: "Send body as form data"},
			},
			Required: []string{"url"},
		},
	}
}

func (t *Tool) Invoke(ctx context.Context, args map[string]any) (any, error) {
	var input RequestInput
	if err := runtime.MapToStruct(args, &input); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if err := runtime.Validate(input); err != nil {
		return nil, fmt.Errorf("invalid arguments: %w", err)
	}
	if input.Method == "" {
		input.Method = "GET"
	}
	if err := t.checkHost(input.URL); err != nil {
		return nil, err
	}
	if t.client == nil {
		if err := t.Initialize(ctx); err != nil {
			return nil, err
		}
	}

	req := t.client.R().
		SetContext(ctx).
		SetHeaders(input.Headers).
		SetQueryParams(input.Query)
	if len(input.Body) > 0 {
		if input.Form {
			req.SetFormData(flattenToFormData(input.Body, ""))
		} else {
			req.SetBody(input.Body)
		}
	}

	resp, err := req.Execute(input.Method, input.URL)
	if err != nil {
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}

	output := RequestOutput{
		Status:     resp.Status(),
		StatusCode: resp.StatusCode(),
		IsError:    resp.IsError(),
	}
	var body map[string]any
	if err := json.Unmarshal(resp.Body(), &body); err == nil {
		output.Body = body
	} else {
		output.Text = string(resp.Body())
	}
	return output, nil
}

func (t *Tool) checkHost(rawURL string) error {
	if len(t.Config.AllowedHosts) == 0 {
		return nil
	}
	u, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}
	if slices.Contains(t.Config.AllowedHosts, u.Hostname()) {
		return nil
	}
	return fmt.Errorf("host not allowed: %s", u.Hostname())
}

// flattenToFormData converts nested maps and slices to bracket notation,
// e.g. {"metadata": {"id": 1}} becomes metadata[id]=1.
func flattenToFormData(data map[string]any, prefix string) map[string]string {
	result := make(map[string]string)
	for key, value := range data {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "[" + key + "]"
		}
		flattenValue(result, fullKey, value)
	}
	return result
}

func flattenValue(result map[string]string, key string, value any) {
	switch v := value.(type) {
	case map[string]any:
		for k, val := range flattenToFormData(v, key) {
			result[k] = val
		}
	case []any:
		for i, item := range v {
			flattenValue(result, fmt.Sprintf("%s[%d]", key, i), item)
		}
	default:
		result[key] = runtime.ToString(v)
	}
}
