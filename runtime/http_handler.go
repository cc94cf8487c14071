package runtime

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	RequestBodyPrefix = "request.body"
	RequestRawBodyKey = "request.rawBody"
)

// ExecutionResponse is the JSON shape returned for an execution.
type ExecutionResponse struct {
	ID       string                `json:"id"`
	Chain    string                `json:"chain"`
	Status   ChainStatus           `json:"status"`
	Message  string                `json:"message,omitempty"`
	Failure  map[string]any        `json:"failure,omitempty"`
	Nodes    map[string]NodeStatus `json:"nodes"`
	Output   map[string]any        `json:"output"`
	Duration string                `json:"duration"`
}

// NewHttpHandler registers the chain API on g:
//
//	GET  /chains                  list chains
//	POST /chains/:id/executions   run a chain with a JSON body of variables
//	GET  /metrics                 Prometheus metrics
func NewHttpHandler(app *App, g *gin.Engine) {
	g.GET("/chains", listChains(app))
	g.POST("/chains/:id/executions", handleExecute(app))
	g.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

func listChains(app *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		out := make([]gin.H, 0)
		for _, chain := range app.Chains() {
			nodes := make([]string, 0)
			for _, n := range chain.Nodes() {
				nodes = append(nodes, n.ID())
			}
			out = append(out, gin.H{
				"id":          chain.ID,
				"name":        chain.Name,
				"description": chain.Description,
				"nodes":       nodes,
			})
		}
		c.JSON(http.StatusOK, out)
	}
}

func handleExecute(app *App) gin.HandlerFunc {
	return func(c *gin.Context) {
		chain, ok := app.Chain(c.Param("id"))
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"message": "Unknown chain: " + c.Param("id")})
			return
		}

		variables, err := extractJsonBody(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"message": "Wrong request body format"})
			return
		}

		exec, err := chain.Execute(c.Request.Context(), variables)
		if exec == nil {
			c.JSON(http.StatusInternalServerError, gin.H{"message": err.Error()})
			return
		}
		if err != nil {
			app.l.ErrorContext(exec, fmt.Sprintf("Chain execution failed: %s", chain.ID),
				"chain", chain.ID,
				"execution_id", exec.ID,
				"error", err.Error())
			c.JSON(http.StatusInternalServerError, NewExecutionResponse(exec))
			return
		}

		c.JSON(http.StatusOK, NewExecutionResponse(exec))
	}
}

// NewExecutionResponse reports the chain's Output keys, or all of memory
// when none are declared.
func NewExecutionResponse(exec *Execution) ExecutionResponse {
	output := exec.Values()
	if keys := exec.Chain.Output; len(keys) > 0 {
		selected := make(map[string]any, len(keys))
		for _, k := range keys {
			selected[k] = output[k]
		}
		output = selected
	}

	var failure map[string]any
	var nodeErr *NodeExecutionError
	if errors.As(exec.Failure(), &nodeErr) {
		failure = nodeErr.ToMap()
	}

	return ExecutionResponse{
		ID:       exec.ID,
		Chain:    exec.Chain.ID,
		Status:   exec.Status(),
		Message:  exec.ErrorMessage(),
		Failure:  failure,
		Nodes:    exec.NodeStatuses(),
		Output:   output,
		Duration: exec.Duration().String(),
	}
}

// extractJsonBody decodes an optional JSON object. Top-level fields become
// variables; the raw body and nested values are kept under request.*.
func extractJsonBody(c *gin.Context) (map[string]any, error) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return map[string]any{}, nil
	}

	var parsed map[string]any
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("decode body: %w", err)
	}

	variables := make(map[string]any, len(parsed)+2)
	for k, v := range parsed {
		variables[k] = v
	}
	variables[RequestRawBodyKey] = string(body)
	variables[RequestBodyPrefix] = parsed
	return variables, nil
}
