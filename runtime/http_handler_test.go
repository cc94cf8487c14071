package runtime

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func newTestServer(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	app := NewApp(NewContainer(), testLogger)

	greet := NewChain("greet", testLogger)
	greet.Description = "greets the caller"
	greet.Output = []string{"greeting"}
	greet.AddNode(NewFuncNode("hello", func(exec *Execution) (map[string]any, error) {
		body, _ := exec.Value(RequestBodyPrefix).(map[string]any)
		return map[string]any{
			"greeting": "hello " + ToString(exec.Value("name")),
			"raw_name": ToString(body["name"]),
		}, nil
	}))
	if err := app.RegisterChain(greet); err != nil {
		t.Fatal(err)
	}

	broken := NewChain("broken", testLogger)
	broken.AddNode(NewFuncNode("fail", func(*Execution) (map[string]any, error) {
		return nil, errors.New("tool timeout")
	}))
	if err := app.RegisterChain(broken); err != nil {
		t.Fatal(err)
	}

	g := gin.New()
	NewHttpHandler(app, g)
	return g
}

func TestHttpHandler_ListChains(t *testing.T) {
	g := newTestServer(t)

	w := httptest.NewRecorder()
	g.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/chains", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	var body []map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if len(body) != 2 || body[0]["id"] != "broken" || body[1]["id"] != "greet" {
		t.Errorf("Unexpected chain list: %v", body)
	}
}

func TestHttpHandler_Execute(t *testing.T) {
	g := newTestServer(t)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/chains/greet/executions", strings.NewReader(`{"name":"Ada"}`))
	g.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp ExecutionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if resp.Status != ChainFinished {
		t.Errorf("Expected FINISHED, got %s", resp.Status)
	}
	if resp.Output["greeting"] != "hello Ada" {
		t.Errorf("Expected greeting, got %v", resp.Output)
	}
	if _, ok := resp.Output["raw_name"]; ok {
		t.Error("Expected undeclared output to be filtered")
	}
	if resp.Nodes["hello"] != NodeSucceeded {
		t.Errorf("Expected hello SUCCEEDED, got %v", resp.Nodes)
	}
	if resp.ID == "" {
		t.Error("Expected execution id")
	}
}

func TestHttpHandler_ExecuteErrors(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		body   string
		status int
		want   string
	}{
		{"unknown chain", "/chains/missing/executions", "{}", http.StatusNotFound, "Unknown chain"},
		{"bad body", "/chains/greet/executions", "{not json", http.StatusBadRequest, "Wrong request body format"},
		{"node failure", "/chains/broken/executions", "", http.StatusInternalServerError, "tool timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := newTestServer(t)

			w := httptest.NewRecorder()
			g.ServeHTTP(w, httptest.NewRequest(http.MethodPost, tt.path, strings.NewReader(tt.body)))

			if w.Code != tt.status {
				t.Errorf("Expected %d, got %d", tt.status, w.Code)
			}
			if !strings.Contains(w.Body.String(), tt.want) {
				t.Errorf("Expected body to contain %q, got %s", tt.want, w.Body.String())
			}
		})
	}
}

func TestHttpHandler_ExecuteReportsFailure(t *testing.T) {
	g := newTestServer(t)

	w := httptest.NewRecorder()
	g.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/chains/broken/executions", nil))

	var resp ExecutionResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Invalid JSON: %v", err)
	}
	if resp.Status != ChainStoppedError {
		t.Errorf("Expected STOPPED_ERROR, got %s", resp.Status)
	}
	if resp.Failure["node"] != "fail" || resp.Failure["type"] != "node" {
		t.Errorf("Unexpected failure: %v", resp.Failure)
	}
	if !strings.Contains(ToString(resp.Failure["message"]), "tool timeout") {
		t.Errorf("Expected failure message, got %v", resp.Failure["message"])
	}
}

func TestHttpHandler_Metrics(t *testing.T) {
	g := newTestServer(t)

	w := httptest.NewRecorder()
	g.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}
